package ocpp201

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/session"
)

func newTestHandler(t *testing.T) (*Handler, map[string][]eventbus.Event) {
	t.Helper()
	bus := eventbus.New(nil)
	captured := map[string][]eventbus.Event{}
	bus.SubscribeAll(func(e eventbus.Event) error {
		captured[e.Topic] = append(captured[e.Topic], e)
		return nil
	})
	return NewHandler("CP1", bus, 10, nil), captured
}

func TestHandler_BootNotification(t *testing.T) {
	handler, captured := newTestHandler(t)

	payload := json.RawMessage(`{
		"chargingStation": {"model": "ModelX", "vendorName": "VendorY"},
		"reason": "PowerUp"
	}`)
	ack, err := handler.HandleCall("BootNotification", payload)
	require.NoError(t, err)

	resp, ok := ack.(ocpp201.BootNotificationResponse)
	require.True(t, ok)
	assert.Equal(t, "Accepted", resp.Status)
	assert.Equal(t, 10, resp.Interval)
	assert.NotEmpty(t, resp.CurrentTime)

	events := captured[eventbus.TopicBootNotification]
	require.Len(t, events, 1)
	assert.Equal(t, "2.0.1", events[0].OCPPVersion)
	assert.Equal(t, "PowerUp", events[0].Payload["reason"])
}

func TestHandler_BootNotification_Invalid(t *testing.T) {
	handler, _ := newTestHandler(t)

	_, err := handler.HandleCall("BootNotification", json.RawMessage(`{"reason": "PowerUp"}`))
	assert.ErrorIs(t, err, session.ErrInvalidPayload)
}

func TestHandler_Heartbeat(t *testing.T) {
	handler, captured := newTestHandler(t)

	ack, err := handler.HandleCall("Heartbeat", json.RawMessage(`{}`))
	require.NoError(t, err)

	resp, ok := ack.(ocpp201.HeartbeatResponse)
	require.True(t, ok)
	assert.NotEmpty(t, resp.CurrentTime)
	assert.Len(t, captured[eventbus.TopicHeartbeat], 1)
}

func TestHandler_Authorize(t *testing.T) {
	handler, captured := newTestHandler(t)

	ack, err := handler.HandleCall("Authorize", json.RawMessage(`{"idToken": {"idToken": "TAG-1", "type": "ISO14443"}}`))
	require.NoError(t, err)

	resp, ok := ack.(ocpp201.AuthorizeResponse)
	require.True(t, ok)
	assert.Equal(t, "Accepted", resp.IdTokenInfo.Status)
	assert.Len(t, captured[eventbus.TopicAuthorize], 1)
}

func TestHandler_NotifyReportFeedsAssembler(t *testing.T) {
	handler, captured := newTestHandler(t)

	done := handler.Reports().Begin(55)

	seg1 := json.RawMessage(`{
		"requestId": 55, "generatedAt": "2025-01-01T00:00:00Z", "seqNo": 0, "tbc": true,
		"reportData": [{"component": {"name": "OCPPCommCtrlr"}, "variable": {"name": "HeartbeatInterval"},
			"variableAttribute": [{"value": "10", "mutability": "ReadWrite"}]}]
	}`)
	ack, err := handler.HandleCall("NotifyReport", seg1)
	require.NoError(t, err)
	_, ok := ack.(ocpp201.NotifyReportResponse)
	assert.True(t, ok)

	seg2 := json.RawMessage(`{
		"requestId": 55, "generatedAt": "2025-01-01T00:00:01Z", "seqNo": 1, "tbc": false,
		"reportData": [{"variable": {"name": "NumberOfConnectors"},
			"variableAttribute": [{"attributeValue": "2", "mutability": "ReadOnly"}]}]
	}`)
	_, err = handler.HandleCall("NotifyReport", seg2)
	require.NoError(t, err)

	select {
	case <-done:
	default:
		t.Fatal("report not marked complete")
	}

	rows := handler.Reports().Snapshot()
	require.Len(t, rows, 2)
	assert.Equal(t, "HeartbeatInterval", rows[0].Key)
	require.NotNil(t, rows[1].Readonly)
	assert.True(t, *rows[1].Readonly)

	// 每段一条总线事件，携带本段摊平后的行
	events := captured[eventbus.TopicNotifyReport]
	require.Len(t, events, 2)
	assert.Equal(t, "2025-01-01T00:00:00Z", events[0].Payload["generated_at"])
	segRows, ok := events[0].Payload["rows"].([]ConfigRow)
	require.True(t, ok)
	require.Len(t, segRows, 1)
	assert.Equal(t, "HeartbeatInterval", segRows[0].Key)
}

func TestHandler_EmptyAcks(t *testing.T) {
	handler, captured := newTestHandler(t)

	cases := []struct {
		action string
		topic  string
	}{
		{"StatusNotification", eventbus.TopicStatusNotification},
		{"NotifyEvent", eventbus.TopicNotifyEvent},
		{"StartTransaction", eventbus.TopicStartTransaction},
		{"StopTransaction", eventbus.TopicStopTransaction},
		{"MeterValues", eventbus.TopicMeterValues},
	}
	for _, tc := range cases {
		_, err := handler.HandleCall(tc.action, json.RawMessage(`{}`))
		require.NoError(t, err, tc.action)
		assert.Len(t, captured[tc.topic], 1, tc.action)
	}
}

func TestHandler_TransactionEventRouting(t *testing.T) {
	handler, captured := newTestHandler(t)

	_, err := handler.HandleCall("TransactionEvent", json.RawMessage(`{"eventType": "Started"}`))
	require.NoError(t, err)
	_, err = handler.HandleCall("TransactionEvent", json.RawMessage(`{"eventType": "Updated"}`))
	require.NoError(t, err)
	_, err = handler.HandleCall("TransactionEvent", json.RawMessage(`{"eventType": "Ended"}`))
	require.NoError(t, err)

	assert.Len(t, captured[eventbus.TopicStartTransaction], 1)
	assert.Len(t, captured[eventbus.TopicMeterValues], 1)
	assert.Len(t, captured[eventbus.TopicStopTransaction], 1)
}

func TestHandler_UnknownAction(t *testing.T) {
	handler, _ := newTestHandler(t)

	_, err := handler.HandleCall("FirmwareStatusNotification", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, session.ErrNotImplemented)
}
