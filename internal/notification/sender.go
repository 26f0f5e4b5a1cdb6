package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopflow/orderflow/pkg/kafka"
)

// Sender delivers messages for one or more channels.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// LogSender writes messages to the log. Used in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.InfoContext(ctx, "notification sent",
		slog.String("notification_id", msg.ID),
		slog.String("kind", msg.Kind),
		slog.String("channel", msg.Channel),
		slog.String("order_id", msg.OrderID),
		slog.String("recipient", msg.Recipient),
	)
	return nil
}

// RequestedTopic carries notification requests to the notification service.
const RequestedTopic = "ecommerce.notification.requested"

// KafkaSender hands messages to a downstream notification service as
// notification.requested events.
type KafkaSender struct {
	publisher kafka.Publisher
	source    string
}

func NewKafkaSender(publisher kafka.Publisher, source string) *KafkaSender {
	return &KafkaSender{publisher: publisher, source: source}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, msg *Message) error {
	event, err := kafka.NewEvent("notification.requested", msg.OrderID, "order", s.source, msg)
	if err != nil {
		return fmt.Errorf("build notification event: %w", err)
	}
	event.WithContext(ctx).WithMetadata("channel", msg.Channel)

	if err := s.publisher.Publish(ctx, RequestedTopic, event); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
