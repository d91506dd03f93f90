package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
)

func TestRegistryAcceptsValidPayload(t *testing.T) {
	r := NewRegistry()

	p := &ServiceStatusPayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "music"}},
		Status:   StateRunning,
		Severity: SeverityInfo,
	}

	require.NoError(t, r.Validate(bus.TopicServiceStatus, p))
}

// bareStatusPayload carries none of ServiceStatusPayload's required
// status/severity keys, so its JSON form genuinely omits them (a zero
// value on the real struct still marshals the key).
type bareStatusPayload struct {
	bus.Base
}

func TestRegistryRejectsMissingRequiredField(t *testing.T) {
	r := NewRegistry()

	p := &bareStatusPayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "music"}},
	}

	err := r.Validate(bus.TopicServiceStatus, p)
	require.Error(t, err)
	var verr *bus.PublishValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRegistryValidatesMarshaledDashboardLogPayload(t *testing.T) {
	// A payload's bus.Base fields must surface at the top level of its
	// JSON form, not nested under "Meta": the dashboard_log schema requires
	// timestamp and service_name at the top level, so this payload only
	// validates if they do.
	p := &DashboardLogPayload{
		Base:    bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "logging"}},
		Level:   "info",
		Message: "hello",
	}
	r := NewRegistry()
	require.NoError(t, r.Validate(bus.TopicDashboardLog, p))
}

func TestUnregisteredTopicIsAcceptedUnvalidated(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Validate(bus.Topic("not_a_real_topic"), &DashboardLogPayload{}))
}
