package command

import (
	"context"
	"errors"
	"time"

	"github.com/charging-platform/csms-gateway/internal/domain/serialization"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/session"
)

// DefaultReportTimeout 等待NotifyReport收齐的默认截止时间
const DefaultReportTimeout = 10 * time.Second

// Service REST层与OCPP会话之间的门面。
// 负责会话查找、版本切换与错误到HTTP语义的映射。
type Service struct {
	registry      *session.Registry
	bus           *eventbus.Bus
	reportTimeout time.Duration
	logger        *logger.Logger
}

// NewService 创建命令门面
func NewService(registry *session.Registry, bus *eventbus.Bus, reportTimeout time.Duration, log *logger.Logger) *Service {
	if reportTimeout <= 0 {
		reportTimeout = DefaultReportTimeout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		registry:      registry,
		bus:           bus,
		reportTimeout: reportTimeout,
		logger:        log,
	}
}

// Send 向充电桩发送一条命令并返回包装后的应答：{"result": <payload>}。
// 错误映射：无会话404，超时504，断开503，参数问题400。
func (s *Service) Send(ctx context.Context, chargePointID, action string, params map[string]interface{}) (map[string]interface{}, error) {
	sess, err := s.lookup(chargePointID)
	if err != nil {
		return nil, err
	}

	strategy := ForVersion(sess.Version())
	payload, err := strategy.Build(action, params)
	if err != nil {
		return nil, err
	}

	raw, err := sess.SendCall(ctx, action, payload)
	if err != nil {
		return nil, s.mapCallError(sess, err)
	}

	result := serialization.PayloadToMap(raw)

	// 配置写命令成功后广播变更，时序库与前端都订阅这个topic
	if action == "ChangeConfiguration" || action == "SetVariables" {
		s.bus.Publish(eventbus.TopicConfigurationChanged, chargePointID, sess.Version().String(), map[string]interface{}{
			"ocpp_action": action,
			"parameters":  params,
			"result":      result,
		})
	}

	return map[string]interface{}{"result": result}, nil
}

// lookup 查找运行中的会话；僵尸会话顺手注销
func (s *Service) lookup(chargePointID string) (*session.Session, error) {
	sess, exists := s.registry.Get(chargePointID)
	if !exists {
		return nil, ErrNotConnected()
	}
	if sess.State() != session.StateRunning {
		s.registry.Deregister(sess)
		return nil, ErrNotConnected()
	}
	return sess, nil
}

// Session 对外暴露会话查找，传输层的设置端点使用
func (s *Service) Session(chargePointID string) (*session.Session, error) {
	return s.lookup(chargePointID)
}

// mapCallError RPC错误到HTTP语义
func (s *Service) mapCallError(sess *session.Session, err error) error {
	switch {
	case errors.Is(err, session.ErrTimeout):
		return ErrCallTimeout()
	case errors.Is(err, session.ErrDisconnected), errors.Is(err, session.ErrSessionClosed):
		s.registry.Deregister(sess)
		return ErrDisconnectedDuringCall()
	}

	var ocppErr *session.OCPPError
	if errors.As(err, &ocppErr) {
		return ErrBadRequest(ocppErr.Error())
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	s.logger.ErrorWithErr(err, "unexpected call failure")
	return &APIError{Status: 500, Detail: "Internal gateway error"}
}
