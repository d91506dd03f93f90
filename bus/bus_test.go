package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Base
	N int
}

func newTestPayload(service string, n int) *testPayload {
	return &testPayload{Base: Base{Meta{Timestamp: time.Now(), ServiceName: service}}, N: n}
}

func TestEmitDeliversInOrderToSameTopicSubscriber(t *testing.T) {
	b := New(nil)

	var received []int
	b.Subscribe(TopicDashboardLog, "dashboard", func(e *Event) {
		received = append(received, e.Payload.(*testPayload).N)
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", i)))
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, received)
}

func TestSubscriptionReadinessDeliversToAllSubscribers(t *testing.T) {
	b := New(nil)

	var a, c int
	b.Subscribe(TopicDashboardLog, "a", func(e *Event) { a++ })
	b.Subscribe(TopicDashboardLog, "c", func(e *Event) { c++ })

	require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", 1)))

	require.Equal(t, 1, a)
	require.Equal(t, 1, c)
}

func TestStickyReplayDeliversLastPayloadBeforeNewEmission(t *testing.T) {
	b := New(nil)

	require.NoError(t, b.Emit(TopicServiceStatus, newTestPayload("svc-a", 1)))
	require.NoError(t, b.Emit(TopicServiceStatus, newTestPayload("svc-b", 2)))
	require.NoError(t, b.Emit(TopicServiceStatus, newTestPayload("svc-a", 3))) // newer a

	var replayed []int
	b.Subscribe(TopicServiceStatus, "late", func(e *Event) {
		replayed = append(replayed, e.Payload.(*testPayload).N)
	})

	require.Equal(t, []int{3, 2}, replayed)

	require.NoError(t, b.Emit(TopicServiceStatus, newTestPayload("svc-c", 4)))
	require.Equal(t, []int{3, 2, 4}, replayed)
}

func TestHandlerPanicDoesNotStopOtherSubscribers(t *testing.T) {
	b := New(nil)

	var secondCalled bool
	b.Subscribe(TopicDashboardLog, "panics", func(e *Event) { panic("boom") })
	b.Subscribe(TopicDashboardLog, "survivor", func(e *Event) { secondCalled = true })

	require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", 1)))
	require.True(t, secondCalled)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)

	var count int
	cancel := b.Subscribe(TopicDashboardLog, "a", func(e *Event) { count++ })
	require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", 1)))
	cancel()
	require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", 2)))

	require.Equal(t, 1, count)
}

func TestValidatorRejectsInvalidPayload(t *testing.T) {
	b := New(rejectAllValidator{})
	err := b.Emit(TopicDashboardLog, newTestPayload("x", 1))
	require.Error(t, err)
	var verr *PublishValidationError
	require.ErrorAs(t, err, &verr)
}

type rejectAllValidator struct{}

func (rejectAllValidator) Validate(topic Topic, payload Payload) error {
	return &PublishValidationError{Topic: topic, Reason: "rejected for test"}
}

func TestCoalesceLatestThrottleDeliversMostRecentEvent(t *testing.T) {
	b := New(nil)

	var delivered []int
	b.Subscribe(TopicDashboardLog, "coalesced", func(e *Event) {
		delivered = append(delivered, e.Payload.(*testPayload).N)
	}, ThrottleConfig{Mode: ThrottleCoalesceLatest, PerSecond: 1})

	// The first emit lands within the limiter's budget; the rest of the
	// burst coalesces into the single pending slot.
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", i)))
	}

	require.NotEmpty(t, delivered)
	require.Equal(t, 0, delivered[0])
	require.Less(t, len(delivered), 5)
}

func TestTailDropThrottleDropsExcessEvents(t *testing.T) {
	b := New(nil)

	var delivered int
	b.Subscribe(TopicDashboardLog, "throttled", func(e *Event) { delivered++ }, ThrottleConfig{Mode: ThrottleTailDrop, PerSecond: 2})

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Emit(TopicDashboardLog, newTestPayload("x", i)))
	}

	require.LessOrEqual(t, delivered, 3) // burst of 2 + a little slack, never all 10
}
