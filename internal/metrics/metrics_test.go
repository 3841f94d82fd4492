package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/healthz", "200")
		ObserveSlots(3)
		IncSyncTask("completed")
	})
}

func TestBookingCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingsCreated)
	IncBookingCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingsCreated))

	IncRejection("create", "SLOT_ALREADY_BOOKED")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingRejections.WithLabelValues("create", "SLOT_ALREADY_BOOKED")), 1.0)

	IncTransition("pending", "confirmed")
	assert.GreaterOrEqual(t, testutil.ToFloat64(statusTransitions.WithLabelValues("pending", "confirmed")), 1.0)
}
