package protocol

import "strings"

// Version OCPP协议版本
type Version string

const (
	// VersionV16 OCPP 1.6-J
	VersionV16 Version = "1.6"
	// VersionV201 OCPP 2.0.1
	VersionV201 Version = "2.0.1"

	// 默认版本
	DefaultVersion = VersionV16
)

// WebSocket子协议名称
const (
	SubprotocolV16  = "ocpp1.6"
	SubprotocolV201 = "ocpp2.0.1"
)

// SupportedSubprotocols 升级握手时可协商的子协议列表
var SupportedSubprotocols = []string{
	SubprotocolV201,
	SubprotocolV16,
}

// String 实现Stringer
func (v Version) String() string {
	return string(v)
}

// Subprotocol 版本对应的子协议名称
func (v Version) Subprotocol() string {
	if v == VersionV201 {
		return SubprotocolV201
	}
	return SubprotocolV16
}

// FromSubprotocol 根据客户端子协议头选择协议版本。
// 规则沿用网关的宽容协商：包含"2.0.1"选 2.0.1，包含"1.6"选 1.6，
// 其余情况回落到默认的 1.6（由调用方记录警告）。
func FromSubprotocol(subprotocol string) (Version, bool) {
	s := strings.ToLower(subprotocol)
	switch {
	case strings.Contains(s, "2.0.1"):
		return VersionV201, true
	case strings.Contains(s, "1.6"):
		return VersionV16, true
	default:
		return DefaultVersion, false
	}
}

// ParseVersion 规范化版本字符串（"1.6"、"ocpp1.6"等），失败时返回默认版本
func ParseVersion(raw string) Version {
	v, _ := FromSubprotocol(raw)
	return v
}
