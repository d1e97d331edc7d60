package command

import (
	"fmt"
	"net/http"
)

// APIError 带HTTP语义的命令层错误。传输层直接使用Status作答。
type APIError struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

// Error 实现error接口
func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Detail)
}

// ErrNotConnected 充电桩不在线
func ErrNotConnected() *APIError {
	return &APIError{Status: http.StatusNotFound, Detail: "Charge-point not connected"}
}

// ErrCallTimeout 充电桩未在截止时间内应答
func ErrCallTimeout() *APIError {
	return &APIError{Status: http.StatusGatewayTimeout, Detail: "Charge-point did not respond (timeout)."}
}

// ErrDisconnectedDuringCall 调用进行中连接断开
func ErrDisconnectedDuringCall() *APIError {
	return &APIError{Status: http.StatusServiceUnavailable, Detail: "Charge-point disconnected while processing the request."}
}

// ErrBadRequest 请求参数不合法
func ErrBadRequest(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Detail: detail}
}
