package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRequest("/api/registrations", "POST", 201, 15*time.Millisecond)
	m.RecordRequest("/api/registrations", "POST", 201, 10*time.Millisecond)
	m.RecordError("/api/registrations", "POST", "VALIDATION_FAILED")
	m.RecordSubmission("created", "created")
	m.RecordAllocationFailure()
	m.RecordNotificationQueued("welcome")
	m.RecordDelivery("welcome", "sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/registrations", "POST", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("/api/registrations", "POST", "VALIDATION_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissionsTotal.WithLabelValues("created", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsQueued.WithLabelValues("welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("welcome", "sent")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
		m.RecordSubmission("created", "created")
		m.RecordAllocationFailure()
		m.RecordNotificationQueued("bulk")
		m.RecordDelivery("bulk", "dropped")
	})
}
