package database

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "orderflow")
	require.NotNil(t, c)
	assert.Equal(t, "orderflow", c.service)

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var descs []*prometheus.Desc
	for d := range ch {
		descs = append(descs, d)
	}
	assert.Len(t, descs, 8)
}

func TestRegisterPoolMetrics_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, RegisterPoolMetrics(reg, nil, "orderflow"))
	assert.Error(t, RegisterPoolMetrics(reg, nil, "orderflow"))
}
