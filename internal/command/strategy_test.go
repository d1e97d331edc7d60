package command

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp16"
	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
)

func requireBadRequest(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestForVersion(t *testing.T) {
	assert.IsType(t, v16Strategy{}, ForVersion(protocol.VersionV16))
	assert.IsType(t, v201Strategy{}, ForVersion(protocol.VersionV201))
}

func TestV16_RemoteStartTransaction(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV16).Build("RemoteStartTransaction", map[string]interface{}{
		"id_tag":       "TAG-1",
		"connector_id": float64(2),
	})
	require.NoError(t, err)

	req, ok := payload.(ocpp16.RemoteStartTransactionRequest)
	require.True(t, ok)
	assert.Equal(t, "TAG-1", req.IdTag)
	require.NotNil(t, req.ConnectorId)
	assert.Equal(t, 2, *req.ConnectorId)
}

func TestV16_RemoteStartTransaction_Defaults(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV16).Build("RemoteStartTransaction", map[string]interface{}{})
	require.NoError(t, err)

	req := payload.(ocpp16.RemoteStartTransactionRequest)
	assert.Equal(t, "UNKNOWN", req.IdTag)
	assert.Nil(t, req.ConnectorId)
}

func TestV16_RemoteStopTransaction_MissingID(t *testing.T) {
	_, err := ForVersion(protocol.VersionV16).Build("RemoteStopTransaction", map[string]interface{}{})
	requireBadRequest(t, err)
}

func TestV16_ChangeConfiguration(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV16).Build("ChangeConfiguration", map[string]interface{}{
		"key": "MaxChargingCurrent", "value": "16",
	})
	require.NoError(t, err)

	req := payload.(ocpp16.ChangeConfigurationRequest)
	assert.Equal(t, "MaxChargingCurrent", req.Key)
	assert.Equal(t, "16", req.Value)

	_, err = ForVersion(protocol.VersionV16).Build("ChangeConfiguration", map[string]interface{}{"key": "X"})
	requireBadRequest(t, err)
}

func TestV16_GetConfiguration(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV16).Build("GetConfiguration", map[string]interface{}{
		"key": []interface{}{"HeartbeatInterval"},
	})
	require.NoError(t, err)

	req := payload.(ocpp16.GetConfigurationRequest)
	assert.Equal(t, []string{"HeartbeatInterval"}, req.Key)

	// key缺省表示全部
	payload, err = ForVersion(protocol.VersionV16).Build("GetConfiguration", map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, payload.(ocpp16.GetConfigurationRequest).Key)
}

func TestV16_UnknownAction(t *testing.T) {
	_, err := ForVersion(protocol.VersionV16).Build("Reset", map[string]interface{}{})
	requireBadRequest(t, err)
	assert.Contains(t, err.Error(), "Unknown OCPP 1.6 action")
}

func TestV201_RequestStartTransaction(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("RequestStartTransaction", map[string]interface{}{
		"id_tag": "TAG-9",
	})
	require.NoError(t, err)

	req := payload.(ocpp201.RequestStartTransactionRequest)
	assert.Equal(t, "TAG-9", req.IdToken.IdToken)
	assert.Equal(t, "Central", req.IdToken.Type)
	assert.Equal(t, 1234, req.RemoteStartId)
}

func TestV201_RequestStopTransaction(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("RequestStopTransaction", map[string]interface{}{
		"transaction_id": "tx-17",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-17", payload.(ocpp201.RequestStopTransactionRequest).TransactionId)

	_, err = ForVersion(protocol.VersionV201).Build("RequestStopTransaction", map[string]interface{}{})
	requireBadRequest(t, err)
}

func TestV201_GetBaseReport_Defaults(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("GetBaseReport", map[string]interface{}{})
	require.NoError(t, err)

	req := payload.(ocpp201.GetBaseReportRequest)
	assert.Equal(t, 55, req.RequestId)
	assert.Equal(t, "FullInventory", req.ReportBase)
}

func TestV201_GetVariables(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("GetVariables", map[string]interface{}{
		"key": []interface{}{
			map[string]interface{}{
				"component":     map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":      map[string]interface{}{"name": "HeartbeatInterval"},
				"attributeType": "Target",
			},
		},
	})
	require.NoError(t, err)

	req := payload.(ocpp201.GetVariablesRequest)
	require.Len(t, req.GetVariableData, 1)
	assert.Equal(t, "HeartbeatInterval", req.GetVariableData[0].Variable.Name)
	require.NotNil(t, req.GetVariableData[0].AttributeType)
	assert.Equal(t, "Target", *req.GetVariableData[0].AttributeType)
}

func TestV201_GetVariables_EmptyList(t *testing.T) {
	_, err := ForVersion(protocol.VersionV201).Build("GetVariables", map[string]interface{}{})
	requireBadRequest(t, err)

	_, err = ForVersion(protocol.VersionV201).Build("GetVariables", map[string]interface{}{
		"key": []interface{}{},
	})
	requireBadRequest(t, err)
}

func TestV201_SetVariables_StringKey(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{
		"key": "HeartbeatInterval", "value": "30",
	})
	require.NoError(t, err)

	req := payload.(ocpp201.SetVariablesRequest)
	require.Len(t, req.SetVariableData, 1)
	assert.Equal(t, "HeartbeatInterval", req.SetVariableData[0].Variable.Name)
	assert.Equal(t, "30", req.SetVariableData[0].AttributeValue)
	require.NotNil(t, req.SetVariableData[0].AttributeType)
	assert.Equal(t, "Actual", *req.SetVariableData[0].AttributeType)
}

func TestV201_SetVariables_ListShape(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{
		"set_variable_data": []interface{}{
			map[string]interface{}{
				"component":      map[string]interface{}{"name": "OCPPCommCtrlr"},
				"variable":       map[string]interface{}{"name": "HeartbeatInterval"},
				"attributeValue": "60",
			},
			map[string]interface{}{
				"variable":       map[string]interface{}{"name": "ChargingCurrent"},
				"attributeValue": "16",
				"attributeType":  "Target",
			},
		},
	})
	require.NoError(t, err)

	req := payload.(ocpp201.SetVariablesRequest)
	require.Len(t, req.SetVariableData, 2)
	assert.Equal(t, "HeartbeatInterval", req.SetVariableData[0].Variable.Name)
	assert.Equal(t, "60", req.SetVariableData[0].AttributeValue)
	assert.Nil(t, req.SetVariableData[0].AttributeType)
	require.NotNil(t, req.SetVariableData[1].AttributeType)
	assert.Equal(t, "Target", *req.SetVariableData[1].AttributeType)

	// 缺值条目拒绝
	_, err = ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{
		"set_variable_data": []interface{}{
			map[string]interface{}{"variable": map[string]interface{}{"name": "X"}},
		},
	})
	requireBadRequest(t, err)
}

func TestV201_SetVariables_ObjectKey(t *testing.T) {
	payload, err := ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{
		"key": map[string]interface{}{
			"component":     map[string]interface{}{"name": "SmartChargingCtrlr"},
			"variable_name": "ChargingCurrent",
		},
		"value": "16",
	})
	require.NoError(t, err)

	req := payload.(ocpp201.SetVariablesRequest)
	require.Len(t, req.SetVariableData, 1)
	assert.Equal(t, "ChargingCurrent", req.SetVariableData[0].Variable.Name)
	assert.Equal(t, "SmartChargingCtrlr", req.SetVariableData[0].Component["name"])
	assert.Equal(t, "16", req.SetVariableData[0].AttributeValue)
}

func TestV201_SetVariables_MissingParams(t *testing.T) {
	_, err := ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{"key": "X"})
	requireBadRequest(t, err)

	_, err = ForVersion(protocol.VersionV201).Build("SetVariables", map[string]interface{}{"value": "1"})
	requireBadRequest(t, err)
}

func TestV201_UnknownAction(t *testing.T) {
	_, err := ForVersion(protocol.VersionV201).Build("RemoteStartTransaction", map[string]interface{}{})
	requireBadRequest(t, err)
	assert.Contains(t, err.Error(), "Unknown OCPP 2.0.1 action")
}
