package ocpp201

// OCPP 2.0.1载荷定义。结构体只声明网关实际消费的字段；
// 组件与属性保持泛型map，因为不同充电桩固件在
// variableAttribute里混用value/attribute_value/attributeValue
// 等拼写，解析时需要宽容处理（见Attribute相关helper）。

// ChargingStation 启动通知中的站点描述
type ChargingStation struct {
	Model        string  `json:"model" validate:"required,max=20"`
	VendorName   string  `json:"vendorName" validate:"required,max=50"`
	SerialNumber *string `json:"serialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
	Reason          string          `json:"reason" validate:"required"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	CurrentTime string `json:"currentTime" validate:"required"`
	Interval    int    `json:"interval" validate:"min=0"`
	Status      string `json:"status" validate:"required"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime" validate:"required"`
}

// Variable 变量标识
type Variable struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
}

// ReportData NotifyReport中的一行：一个(component, variable)组合
// 及其属性与特征。属性保持泛型map以兼容拼写差异。
type ReportData struct {
	Component               map[string]interface{}   `json:"component"`
	Variable                Variable                 `json:"variable" validate:"required"`
	VariableAttribute       []map[string]interface{} `json:"variableAttribute,omitempty"`
	VariableCharacteristics map[string]interface{}   `json:"variableCharacteristics,omitempty"`
}

// NotifyReportRequest 多段配置报告
type NotifyReportRequest struct {
	RequestId   int          `json:"requestId"`
	GeneratedAt string       `json:"generatedAt" validate:"required"`
	SeqNo       int          `json:"seqNo" validate:"min=0"`
	Tbc         bool         `json:"tbc"`
	ReportData  []ReportData `json:"reportData,omitempty"`
}

// NotifyReportResponse 配置报告响应（空确认）
type NotifyReportResponse struct{}

// NotifyEventResponse 事件通知响应（空确认）
type NotifyEventResponse struct{}

// StatusNotificationResponse 状态通知响应（空确认）
type StatusNotificationResponse struct{}

// TransactionEventResponse 交易事件响应（空确认）
type TransactionEventResponse struct{}

// StartTransactionResponse 交易开始响应（空确认，兼容沿用1.6命名的固件）
type StartTransactionResponse struct{}

// StopTransactionResponse 交易停止响应（空确认，兼容沿用1.6命名的固件）
type StopTransactionResponse struct{}

// MeterValuesResponse 电表值响应（空确认，兼容沿用1.6命名的固件）
type MeterValuesResponse struct{}

// GetBaseReportRequest 请求完整库存报告（下行）
type GetBaseReportRequest struct {
	RequestId  int    `json:"requestId"`
	ReportBase string `json:"reportBase" validate:"required"`
}

// GetVariableData GetVariables中的一项
type GetVariableData struct {
	Component     map[string]interface{} `json:"component"`
	Variable      Variable               `json:"variable" validate:"required"`
	AttributeType *string                `json:"attributeType,omitempty"`
}

// GetVariablesRequest 批量读取变量（下行）
type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1"`
}

// SetVariableData SetVariables中的一项
type SetVariableData struct {
	AttributeType  *string                `json:"attributeType,omitempty"`
	AttributeValue string                 `json:"attributeValue" validate:"required"`
	Component      map[string]interface{} `json:"component"`
	Variable       Variable               `json:"variable" validate:"required"`
}

// SetVariablesRequest 批量写入变量（下行）
type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1"`
}

// IdTokenInfo 授权判定
type IdTokenInfo struct {
	Status string `json:"status" validate:"required"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo" validate:"required"`
}

// IdToken 远程启动的授权token
type IdToken struct {
	IdToken string `json:"idToken" validate:"required,max=36"`
	Type    string `json:"type" validate:"required"`
}

// RequestStartTransactionRequest 远程启动充电（下行）
type RequestStartTransactionRequest struct {
	IdToken       IdToken `json:"idToken" validate:"required"`
	RemoteStartId int     `json:"remoteStartId"`
	EvseId        *int    `json:"evseId,omitempty"`
}

// RequestStopTransactionRequest 远程停止充电（下行）
type RequestStopTransactionRequest struct {
	TransactionId interface{} `json:"transactionId"`
}
