package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/zen-systems/stagegate/pkg/event"
)

func TestAttachCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	bus := event.NewBus(10)
	detach := m.Attach(bus)
	defer detach()

	bus.Publish(event.Event{Type: event.TypeAttemptRecorded, Stage: "audit", Outcome: "fail"})
	bus.Publish(event.Event{Type: event.TypeAttemptRecorded, Stage: "audit", Outcome: "fail"})
	bus.Publish(event.Event{Type: event.TypeTaskCompleted})
	bus.Publish(event.Event{Type: event.TypeTaskFinalized})

	// Delivery is asynchronous.
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.attempts.WithLabelValues("audit", "fail")) == 2 &&
			testutil.ToFloat64(m.tasks.WithLabelValues("completed")) == 1 &&
			testutil.ToFloat64(m.finalized) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
