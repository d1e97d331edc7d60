package command

import (
	"fmt"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp16"
	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
)

// 远程命令的默认参数
const (
	defaultIdTag         = "UNKNOWN"
	defaultRemoteStartID = 1234
	defaultReportID      = 55
	defaultReportBase    = "FullInventory"
)

// Strategy 把通用的action+parameters翻译成版本正确的下行载荷。
// 参数不合法时返回*APIError(400)。
type Strategy interface {
	Build(action string, params map[string]interface{}) (interface{}, error)
}

// ForVersion 按协议版本选择策略
func ForVersion(version protocol.Version) Strategy {
	if version == protocol.VersionV201 {
		return v201Strategy{}
	}
	return v16Strategy{}
}

// v16Strategy OCPP 1.6命令映射
type v16Strategy struct{}

func (v16Strategy) Build(action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "RemoteStartTransaction":
		req := ocpp16.RemoteStartTransactionRequest{
			IdTag: paramString(params, "id_tag", defaultIdTag),
		}
		if connector, exists := paramInt(params, "connector_id"); exists {
			req.ConnectorId = &connector
		}
		if profile, exists := params["charging_profile"]; exists {
			req.ChargingProfile = profile
		}
		return req, nil

	case "RemoteStopTransaction":
		transactionID, exists := paramInt(params, "transaction_id")
		if !exists {
			return nil, ErrBadRequest("Missing 'transaction_id' parameter")
		}
		return ocpp16.RemoteStopTransactionRequest{TransactionId: transactionID}, nil

	case "ChangeConfiguration":
		key := paramString(params, "key", "")
		value := paramString(params, "value", "")
		if key == "" || value == "" {
			return nil, ErrBadRequest("Missing 'key' or 'value' parameter")
		}
		return ocpp16.ChangeConfigurationRequest{Key: key, Value: value}, nil

	case "GetConfiguration":
		return ocpp16.GetConfigurationRequest{Key: paramStringSlice(params, "key")}, nil

	default:
		return nil, ErrBadRequest(fmt.Sprintf("Unknown OCPP 1.6 action: %s", action))
	}
}

// v201Strategy OCPP 2.0.1命令映射
type v201Strategy struct{}

func (v201Strategy) Build(action string, params map[string]interface{}) (interface{}, error) {
	switch action {
	case "RequestStartTransaction":
		remoteStartID, exists := paramInt(params, "remote_start_id")
		if !exists {
			remoteStartID = defaultRemoteStartID
		}
		return ocpp201.RequestStartTransactionRequest{
			IdToken: ocpp201.IdToken{
				IdToken: paramString(params, "id_tag", defaultIdTag),
				Type:    "Central",
			},
			RemoteStartId: remoteStartID,
		}, nil

	case "RequestStopTransaction":
		transactionID, exists := params["transaction_id"]
		if !exists || transactionID == nil {
			return nil, ErrBadRequest("Missing 'transaction_id' parameter")
		}
		return ocpp201.RequestStopTransactionRequest{TransactionId: transactionID}, nil

	case "GetBaseReport":
		requestID, exists := paramInt(params, "requestId")
		if !exists {
			requestID = defaultReportID
		}
		reportBase := paramString(params, "reportBase", defaultReportBase)
		return ocpp201.GetBaseReportRequest{RequestId: requestID, ReportBase: reportBase}, nil

	case "GetVariables":
		return buildGetVariables(params)

	case "SetVariables":
		return buildSetVariables(params)

	default:
		return nil, ErrBadRequest(fmt.Sprintf("Unknown OCPP 2.0.1 action: %s", action))
	}
}

// buildGetVariables params["key"]是一组{component, variable, attributeType}条目
func buildGetVariables(params map[string]interface{}) (interface{}, error) {
	raw, _ := params["key"].([]interface{})
	if len(raw) == 0 {
		if typed, exists := params["key"].([]map[string]interface{}); exists && len(typed) > 0 {
			raw = make([]interface{}, len(typed))
			for i, entry := range typed {
				raw[i] = entry
			}
		}
	}
	if len(raw) == 0 {
		return nil, ErrBadRequest("GetVariables requires a non-empty 'key' list")
	}

	data := make([]ocpp201.GetVariableData, 0, len(raw))
	for _, item := range raw {
		entry, exists := item.(map[string]interface{})
		if !exists {
			return nil, ErrBadRequest("GetVariables 'key' entries must be objects")
		}
		name := variableName(entry)
		if name == "" {
			return nil, ErrBadRequest("GetVariables entry missing variable name")
		}
		gvd := ocpp201.GetVariableData{
			Component: componentOf(entry),
			Variable:  ocpp201.Variable{Name: name},
		}
		if attrType := ocpp201.FieldString(entry, "attribute_type", "attributeType"); attrType != "" {
			gvd.AttributeType = &attrType
		}
		data = append(data, gvd)
	}
	return ocpp201.GetVariablesRequest{GetVariableData: data}, nil
}

// buildSetVariables 接受两种形态：标准的set_variable_data列表，
// 或便捷形态{key, value}——key可以是变量名字符串，也可以是
// {component, variable_name}对象，展开时属性类型固定为Actual。
func buildSetVariables(params map[string]interface{}) (interface{}, error) {
	if raw, exists := ocpp201.Field(params, "set_variable_data", "setVariableData").([]interface{}); exists && len(raw) > 0 {
		return setVariablesFromList(raw)
	}

	value := paramString(params, "value", "")
	if value == "" {
		return nil, ErrBadRequest("Missing 'key' or 'value' parameter")
	}

	actual := "Actual"
	data := ocpp201.SetVariableData{AttributeType: &actual, AttributeValue: value}
	switch key := params["key"].(type) {
	case string:
		if key == "" {
			return nil, ErrBadRequest("Missing 'key' or 'value' parameter")
		}
		data.Variable = ocpp201.Variable{Name: key}
	case map[string]interface{}:
		name := ocpp201.FieldString(key, "variable_name", "variableName")
		if name == "" {
			name = variableName(key)
		}
		if name == "" {
			return nil, ErrBadRequest("SetVariables entry missing variable name")
		}
		data.Variable = ocpp201.Variable{Name: name}
		data.Component = componentOf(key)
	default:
		return nil, ErrBadRequest("Missing 'key' or 'value' parameter")
	}

	return ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{data}}, nil
}

// setVariablesFromList 标准形态透传
func setVariablesFromList(raw []interface{}) (interface{}, error) {
	data := make([]ocpp201.SetVariableData, 0, len(raw))
	for _, item := range raw {
		entry, exists := item.(map[string]interface{})
		if !exists {
			return nil, ErrBadRequest("SetVariables 'set_variable_data' entries must be objects")
		}
		name := variableName(entry)
		if name == "" {
			return nil, ErrBadRequest("SetVariables entry missing variable name")
		}
		value := ocpp201.FieldString(entry, "attribute_value", "attributeValue")
		if value == "" {
			return nil, ErrBadRequest("SetVariables entry missing attribute value")
		}
		svd := ocpp201.SetVariableData{
			AttributeValue: value,
			Component:      componentOf(entry),
			Variable:       ocpp201.Variable{Name: name},
		}
		if attrType := ocpp201.FieldString(entry, "attribute_type", "attributeType"); attrType != "" {
			svd.AttributeType = &attrType
		}
		data = append(data, svd)
	}
	return ocpp201.SetVariablesRequest{SetVariableData: data}, nil
}

// variableName entry里variable.name的宽容读取
func variableName(entry map[string]interface{}) string {
	if variable := ocpp201.FieldMap(entry, "variable", "variable"); variable != nil {
		return ocpp201.FieldString(variable, "name", "name")
	}
	return ""
}

// componentOf entry里component的读取，缺失时返回空对象
func componentOf(entry map[string]interface{}) map[string]interface{} {
	if component := ocpp201.FieldMap(entry, "component", "component"); component != nil {
		return component
	}
	return map[string]interface{}{}
}

// paramString 字符串参数，空缺回落默认值
func paramString(params map[string]interface{}, name, fallback string) string {
	if raw, exists := params[name]; exists {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// paramInt 整数参数，JSON解码后的数字是float64
func paramInt(params map[string]interface{}, name string) (int, bool) {
	raw, exists := params[name]
	if !exists || raw == nil {
		return 0, false
	}
	switch n := raw.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// paramStringSlice 字符串列表参数
func paramStringSlice(params map[string]interface{}, name string) []string {
	raw, exists := params[name]
	if !exists {
		return nil
	}
	switch list := raw.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
