package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TaskFinished("alerts", nil, time.Millisecond)
	m.TaskFinished("alerts", errors.New("boom"), time.Millisecond)
	m.TaskFinished("alerts", nil, time.Millisecond)
	m.TickSkipped("balances")
	m.SetOpenPositions("account", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.taskRuns.WithLabelValues("alerts", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskRuns.WithLabelValues("alerts", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedTicks.WithLabelValues("balances")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.openPositions.WithLabelValues("account")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskFinished("x", nil, 0)
		m.TickSkipped("x")
		m.EventEmitted("x")
		m.NotificationFailed("x")
		m.SetOpenPositions("x", 1)
	})
}
