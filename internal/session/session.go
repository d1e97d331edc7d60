package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	"github.com/charging-platform/csms-gateway/internal/domain/serialization"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/metrics"
)

// State 会话状态机：Starting -> Running -> Closing -> Closed
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateClosing
	StateClosed
)

// String 实现Stringer
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// DefaultCallTimeout 下行调用的默认截止时间
const DefaultCallTimeout = 30 * time.Second

// ErrNotImplemented 处理器不认识的action，映射为NotImplemented错误帧
var ErrNotImplemented = errors.New("action not implemented")

// Handler 按协议版本处理充电桩发来的Call。
// 返回的载荷会被序列化为CALLRESULT；返回error时改发CALLERROR。
type Handler interface {
	HandleCall(action string, payload json.RawMessage) (interface{}, error)
}

// callOutcome 一次下行调用的结果：CALLRESULT载荷或错误
type callOutcome struct {
	payload json.RawMessage
	err     error
}

// Session 一条充电桩连接的会话。拥有入站读取泵、
// 未决调用表与运营设置，是版本感知RPC的唯一入口。
type Session struct {
	id          string
	version     protocol.Version
	channel     Channel
	handler     Handler
	logger      *logger.Logger
	callTimeout time.Duration

	state int32

	pendingMutex sync.Mutex
	pending      map[string]chan callOutcome

	settingsMutex sync.Mutex
	settings      ChargePointSettings

	connectedAt time.Time
	done        chan struct{}
}

// New 创建会话。handler决定入站Call的版本语义。
func New(id string, version protocol.Version, channel Channel, handler Handler, log *logger.Logger, callTimeout time.Duration) *Session {
	if log == nil {
		log = logger.Default()
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Session{
		id:          id,
		version:     version,
		channel:     channel,
		handler:     handler,
		logger:      log.With("charge_point_id", id),
		callTimeout: callTimeout,
		state:       int32(StateStarting),
		pending:     make(map[string]chan callOutcome),
		settings: ChargePointSettings{
			ChargePointID: id,
			Enabled:       false,
			OCPPVersion:   version,
		},
		connectedAt: time.Now().UTC(),
		done:        make(chan struct{}),
	}
}

// ID 充电桩标识
func (s *Session) ID() string {
	return s.id
}

// Version 协商出的OCPP版本
func (s *Session) Version() protocol.Version {
	return s.version
}

// State 当前状态
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Handler 会话绑定的协议处理器，命令层按版本断言具体类型
func (s *Session) Handler() Handler {
	return s.handler
}

// ConnectedAt 连接建立时间
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Done 会话关闭信号
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Settings 运营设置快照
func (s *Session) Settings() ChargePointSettings {
	s.settingsMutex.Lock()
	defer s.settingsMutex.Unlock()
	return s.settings
}

// SetEnabled 启用/停用充电桩
func (s *Session) SetEnabled(enabled bool) {
	s.settingsMutex.Lock()
	defer s.settingsMutex.Unlock()
	s.settings.Enabled = enabled
}

// SetAlias 设置别名
func (s *Session) SetAlias(alias *string) {
	s.settingsMutex.Lock()
	defer s.settingsMutex.Unlock()
	s.settings.Alias = alias
}

// Run 启动入站读取泵，通道关闭后返回。调用方负责在返回后注销会话。
func (s *Session) Run() {
	if !atomic.CompareAndSwapInt32(&s.state, int32(StateStarting), int32(StateRunning)) {
		return
	}
	s.logger.Event(zerolog.InfoLevel).
		Str("ocpp_version", s.version.String()).
		Msg("session running")

	for {
		raw, err := s.channel.Recv()
		if err != nil {
			if errors.Is(err, ErrChannelClosed) {
				s.logger.Info("charge point disconnected")
			} else {
				s.logger.ErrorWithErr(err, "session read failed")
			}
			break
		}
		s.handleIncoming(raw)
	}
	s.Close()
}

// handleIncoming 路由一条入站帧
func (s *Session) handleIncoming(raw string) {
	frame, err := serialization.DecodeFrame([]byte(raw))
	if err != nil {
		s.logger.ErrorWithErr(err, "discarding malformed frame")
		return
	}

	switch frame.MessageType {
	case serialization.MessageTypeCall:
		s.handleCall(frame)
	case serialization.MessageTypeCallResult:
		s.resolve(frame.MessageID, callOutcome{payload: frame.Payload})
	case serialization.MessageTypeCallError:
		s.resolve(frame.MessageID, callOutcome{err: &OCPPError{
			Code:        frame.ErrorCode,
			Description: frame.ErrorDescription,
		}})
	}
}

// handleCall 处理充电桩发起的Call并回写确认
func (s *Session) handleCall(frame *serialization.Frame) {
	s.logger.Event(zerolog.DebugLevel).
		Str("action", frame.Action).
		Str("message_id", frame.MessageID).
		RawJSON("payload", frame.Payload).
		Msg("call received")

	ack, err := s.handler.HandleCall(frame.Action, frame.Payload)
	if err != nil {
		code := "InternalError"
		switch {
		case errors.Is(err, ErrNotImplemented):
			code = "NotImplemented"
		case errors.Is(err, ErrInvalidPayload):
			code = "FormationViolation"
		}
		s.logger.Event(zerolog.WarnLevel).
			Str("action", frame.Action).
			Str("error_code", code).
			Err(err).
			Msg("call handling failed")
		data, encErr := serialization.EncodeCallError(frame.MessageID, code, err.Error(), nil)
		if encErr != nil {
			s.logger.ErrorWithErr(encErr, "encode call error failed")
			return
		}
		if sendErr := s.channel.Send(string(data)); sendErr != nil {
			s.logger.ErrorWithErr(sendErr, "send call error failed")
		}
		return
	}

	data, err := serialization.EncodeCallResult(frame.MessageID, ack)
	if err != nil {
		s.logger.ErrorWithErr(err, "encode call result failed")
		return
	}
	if err := s.channel.Send(string(data)); err != nil {
		s.logger.ErrorWithErr(err, "send call result failed")
	}
}

// SendCall 发起一次下行调用并等待充电桩应答。
// 会话未运行返回ErrSessionClosed；截止超时返回ErrTimeout；
// 等待期间断开返回ErrDisconnected；CALLERROR以*OCPPError返回。
func (s *Session) SendCall(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	if s.State() != StateRunning {
		return nil, ErrSessionClosed
	}

	messageID := uuid.New().String()
	data, err := serialization.EncodeCall(messageID, action, payload)
	if err != nil {
		return nil, err
	}

	outcome := make(chan callOutcome, 1)
	s.pendingMutex.Lock()
	s.pending[messageID] = outcome
	s.pendingMutex.Unlock()

	s.logger.Event(zerolog.InfoLevel).
		Str("action", action).
		Str("message_id", messageID).
		RawJSON("payload", data).
		Msg("call sent")

	start := time.Now()
	if err := s.channel.Send(string(data)); err != nil {
		s.removePending(messageID)
		metrics.CallsSent.WithLabelValues(s.version.String(), action, "disconnected").Inc()
		return nil, ErrDisconnected
	}

	timeout := s.callTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-outcome:
		elapsed := time.Since(start)
		if result.err != nil {
			var ocppErr *OCPPError
			if errors.As(result.err, &ocppErr) {
				metrics.CallsSent.WithLabelValues(s.version.String(), action, "call_error").Inc()
				s.logger.Event(zerolog.WarnLevel).
					Str("action", action).
					Str("message_id", messageID).
					Str("error_code", ocppErr.Code).
					Msg("call rejected by charge point")
			} else {
				metrics.CallsSent.WithLabelValues(s.version.String(), action, "disconnected").Inc()
			}
			return nil, result.err
		}
		metrics.CallsSent.WithLabelValues(s.version.String(), action, "success").Inc()
		metrics.CallDuration.WithLabelValues(action).Observe(elapsed.Seconds())
		s.logger.Event(zerolog.InfoLevel).
			Str("action", action).
			Str("message_id", messageID).
			Dur("elapsed", elapsed).
			RawJSON("response", result.payload).
			Msg("call answered")
		return result.payload, nil

	case <-timer.C:
		s.removePending(messageID)
		metrics.CallsSent.WithLabelValues(s.version.String(), action, "timeout").Inc()
		s.logger.Event(zerolog.WarnLevel).
			Str("action", action).
			Str("message_id", messageID).
			Dur("timeout", timeout).
			Msg("call timed out")
		return nil, ErrTimeout

	case <-ctx.Done():
		s.removePending(messageID)
		metrics.CallsSent.WithLabelValues(s.version.String(), action, "canceled").Inc()
		return nil, ctx.Err()
	}
}

// resolve 将应答投递给等待中的调用
func (s *Session) resolve(messageID string, result callOutcome) {
	s.pendingMutex.Lock()
	outcome, exists := s.pending[messageID]
	if exists {
		delete(s.pending, messageID)
	}
	s.pendingMutex.Unlock()

	if !exists {
		s.logger.Warnf("response for unknown message id %s", messageID)
		return
	}
	outcome <- result
}

// removePending 清理一个未决调用
func (s *Session) removePending(messageID string) {
	s.pendingMutex.Lock()
	delete(s.pending, messageID)
	s.pendingMutex.Unlock()
}

// Close 关闭会话：Running/Starting -> Closing，清空未决调用，
// 关闭通道后进入Closed。可重复调用。
func (s *Session) Close() {
	if !atomic.CompareAndSwapInt32(&s.state, int32(StateRunning), int32(StateClosing)) &&
		!atomic.CompareAndSwapInt32(&s.state, int32(StateStarting), int32(StateClosing)) {
		return
	}

	s.pendingMutex.Lock()
	drained := len(s.pending)
	for messageID, outcome := range s.pending {
		outcome <- callOutcome{err: ErrDisconnected}
		delete(s.pending, messageID)
	}
	s.pendingMutex.Unlock()

	s.channel.Close()
	atomic.StoreInt32(&s.state, int32(StateClosed))
	close(s.done)

	if drained > 0 {
		s.logger.Warnf("session closed with %d pending calls", drained)
	} else {
		s.logger.Info("session closed")
	}
}
