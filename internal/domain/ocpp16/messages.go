package ocpp16

// OCPP 1.6-J载荷定义。网关只承载转发职责，因此字段集合
// 覆盖Core Profile的必需字段，其余经由omitempty透传。

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	Status      string `json:"status" validate:"required"`
	CurrentTime string `json:"currentTime" validate:"required"`
	Interval    int    `json:"interval" validate:"min=0"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime" validate:"required"`
}

// IdTagInfo 授权信息
type IdTagInfo struct {
	Status      string  `json:"status" validate:"required"`
	ExpiryDate  *string `json:"expiryDate,omitempty"`
	ParentIdTag *string `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

// StartTransactionRequest 开始交易请求
type StartTransactionRequest struct {
	ConnectorId   int    `json:"connectorId" validate:"min=0"`
	IdTag         string `json:"idTag" validate:"required,max=20"`
	MeterStart    int    `json:"meterStart"`
	ReservationId *int   `json:"reservationId,omitempty"`
	Timestamp     string `json:"timestamp" validate:"required"`
}

// StartTransactionResponse 开始交易响应
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionId int       `json:"transactionId"`
}

// StopTransactionRequest 停止交易请求
type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int          `json:"meterStop"`
	Timestamp       string       `json:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId"`
	Reason          *string      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

// StopTransactionResponse 停止交易响应
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId     int     `json:"connectorId" validate:"min=0"`
	ErrorCode       string  `json:"errorCode" validate:"required"`
	Info            *string `json:"info,omitempty" validate:"omitempty,max=50"`
	Status          string  `json:"status" validate:"required"`
	Timestamp       *string `json:"timestamp,omitempty"`
	VendorId        *string `json:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode *string `json:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// SampledValue 采样值
type SampledValue struct {
	Value     string  `json:"value" validate:"required"`
	Context   *string `json:"context,omitempty"`
	Format    *string `json:"format,omitempty"`
	Measurand *string `json:"measurand,omitempty"`
	Phase     *string `json:"phase,omitempty"`
	Location  *string `json:"location,omitempty"`
	Unit      *string `json:"unit,omitempty"`
}

// MeterValue 电表采样组
type MeterValue struct {
	Timestamp    string         `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"min=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1"`
}

// MeterValuesResponse 电表值响应
type MeterValuesResponse struct{}

// RemoteStartTransactionRequest 远程启动充电（下行）
type RemoteStartTransactionRequest struct {
	IdTag           string      `json:"idTag" validate:"required,max=20"`
	ConnectorId     *int        `json:"connectorId,omitempty"`
	ChargingProfile interface{} `json:"chargingProfile,omitempty"`
}

// RemoteStopTransactionRequest 远程停止充电（下行）
type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

// ChangeConfigurationRequest 修改配置项（下行）
type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=500"`
}

// GetConfigurationRequest 读取配置（下行）；Key为空表示读取全部
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}
