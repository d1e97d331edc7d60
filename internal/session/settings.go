package session

import "github.com/charging-platform/csms-gateway/internal/domain/protocol"

// ChargePointSettings 一个充电桩的运营侧设置。
// Alias与Enabled由REST接口维护，断线后在注册表的缓存里存活。
type ChargePointSettings struct {
	ChargePointID string           `json:"charge_point_id"`
	Alias         *string          `json:"alias"`
	Enabled       bool             `json:"enabled"`
	OCPPVersion   protocol.Version `json:"ocpp_version"`
}

// ChargePointInfo 列表接口返回的充电桩快照
type ChargePointInfo struct {
	ChargePointID string           `json:"charge_point_id"`
	Alias         *string          `json:"alias"`
	Enabled       bool             `json:"enabled"`
	OCPPVersion   protocol.Version `json:"ocpp_version"`
	Connected     bool             `json:"connected"`
}
