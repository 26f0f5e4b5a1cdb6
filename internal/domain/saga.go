package domain

import (
	"fmt"
	"time"
)

// Saga step status constants.
const (
	SagaStepPending     = "pending"
	SagaStepCompleted   = "completed"
	SagaStepFailed      = "failed"
	SagaStepCompensated = "compensated"
)

// Checkout stages, in execution order.
const (
	StageCart                = "cart"
	StagePricing             = "pricing"
	StageOrderCreation       = "order_creation"
	StagePaymentIntent       = "payment_intent"
	StagePaymentConfirmation = "payment_confirmation"
	StageCartClear           = "cart_clear"
)

// StageIdempotency reports a failure to reserve the checkout idempotency key.
// It runs before the saga and has no step of its own.
const StageIdempotency = "idempotency"

// CheckoutStages lists the stages in the order they run.
var CheckoutStages = []string{
	StageCart,
	StagePricing,
	StageOrderCreation,
	StagePaymentIntent,
	StagePaymentConfirmation,
	StageCartClear,
}

// SagaStep tracks the execution status of a single checkout stage.
type SagaStep struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at,omitempty"`
}

// NewSagaStep creates a new saga step in the pending state.
func NewSagaStep(name string) SagaStep {
	return SagaStep{Name: name, Status: SagaStepPending}
}

// NewCheckoutSaga returns one pending step per checkout stage.
func NewCheckoutSaga() []SagaStep {
	steps := make([]SagaStep, len(CheckoutStages))
	for i, name := range CheckoutStages {
		steps[i] = NewSagaStep(name)
	}
	return steps
}

func (s *SagaStep) Complete() {
	s.Status = SagaStepCompleted
	s.ExecutedAt = time.Now().UTC()
}

func (s *SagaStep) Fail(err string) {
	s.Status = SagaStepFailed
	s.Error = err
	s.ExecutedAt = time.Now().UTC()
}

// Compensate marks a completed step as rolled back.
func (s *SagaStep) Compensate() {
	s.Status = SagaStepCompensated
	s.ExecutedAt = time.Now().UTC()
}

// Compensation is an undo action run against an earlier completed stage.
type Compensation string

const (
	// CompensationCancelOrder cancels the order created in order_creation.
	CompensationCancelOrder Compensation = "cancel_order"
)

// Stage returns the stage a compensation undoes.
func (c Compensation) Stage() string {
	switch c {
	case CompensationCancelOrder:
		return StageOrderCreation
	default:
		return ""
	}
}

// CompensationPolicy maps a failed stage to the compensations to run.
// Stages without an entry leave completed work as it is.
type CompensationPolicy map[string][]Compensation

// Named policies selectable through configuration.
const (
	PolicyNone        = "none"
	PolicyCancelOrder = "cancel_order"
)

// NoCompensation keeps an order PLACED after a payment failure.
var NoCompensation = CompensationPolicy{}

// CancelOrderOnPaymentFailure cancels the order when either payment stage
// fails.
var CancelOrderOnPaymentFailure = CompensationPolicy{
	StagePaymentIntent:       {CompensationCancelOrder},
	StagePaymentConfirmation: {CompensationCancelOrder},
}

// ParseCompensationPolicy resolves a policy by name. Empty means none.
func ParseCompensationPolicy(name string) (CompensationPolicy, error) {
	switch name {
	case "", PolicyNone:
		return NoCompensation, nil
	case PolicyCancelOrder:
		return CancelOrderOnPaymentFailure, nil
	default:
		return nil, fmt.Errorf("unknown compensation policy %q", name)
	}
}

// For returns the compensations to run after stage fails.
func (p CompensationPolicy) For(stage string) []Compensation {
	return p[stage]
}
