package session

import (
	"errors"
	"fmt"
)

// RPC层的内部错误信号。对外的HTTP语义映射只发生在command门面。
var (
	// ErrSessionClosed 会话不在Running状态，拒绝发送
	ErrSessionClosed = errors.New("session closed")
	// ErrTimeout 充电桩在截止时间内未应答
	ErrTimeout = errors.New("call timeout")
	// ErrDisconnected 调用进行中通道关闭
	ErrDisconnected = errors.New("charge point disconnected")
	// ErrChannelClosed 通道已被对端正常关闭
	ErrChannelClosed = errors.New("channel closed")
	// ErrInvalidPayload 入站载荷不符合协议要求，映射为FormationViolation
	ErrInvalidPayload = errors.New("invalid payload")
)

// OCPPError 充电桩返回的CALLERROR
type OCPPError struct {
	Code        string
	Description string
}

// Error 实现error接口
func (e *OCPPError) Error() string {
	return fmt.Sprintf("OCPP error %s: %s", e.Code, e.Description)
}
