package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func TestRegisterSucceedsOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
}

func TestListenerRecordsPlanOutcome(t *testing.T) {
	l := NewListener()
	l.Handle(&bus.Event{
		Topic: bus.TopicPlanEnded,
		Payload: &schema.PlanEndedPayload{
			Layer:  schema.LayerForeground,
			Status: schema.PlanCompleted,
		},
	})

	metric := &dto.Metric{}
	m, err := plansTotal.GetMetricWithLabelValues(string(schema.LayerForeground), string(schema.PlanCompleted))
	require.NoError(t, err)
	require.NoError(t, m.Write(metric))
	require.GreaterOrEqual(t, metric.GetCounter().GetValue(), float64(1))
}

func TestListenerCountsEveryTopic(t *testing.T) {
	l := NewListener()
	before := &dto.Metric{}
	m, err := eventsTotal.GetMetricWithLabelValues(string(bus.TopicTrackStopped))
	require.NoError(t, err)
	require.NoError(t, m.Write(before))

	l.Handle(&bus.Event{Topic: bus.TopicTrackStopped, Payload: &schema.TrackStoppedPayload{}})

	after := &dto.Metric{}
	require.NoError(t, m.Write(after))
	require.Equal(t, before.GetCounter().GetValue()+1, after.GetCounter().GetValue())
}
