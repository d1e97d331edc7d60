package ocpp16

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp16"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	"github.com/charging-platform/csms-gateway/internal/domain/serialization"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/session"
)

// 网关只做接入确认，业务判定在下游系统：
// 授权一律Accepted，交易确认使用固定事务号。
const (
	defaultHeartbeatInterval = 10
	ackTransactionID         = 1
)

var validate = validator.New()

// Handler OCPP 1.6-J入站Call处理器。确认每条消息并把
// 载荷原样发布到事件总线。
type Handler struct {
	chargePointID     string
	bus               *eventbus.Bus
	heartbeatInterval int
	logger            *logger.Logger
}

// NewHandler 创建1.6处理器
func NewHandler(chargePointID string, bus *eventbus.Bus, heartbeatInterval int, log *logger.Logger) *Handler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		chargePointID:     chargePointID,
		bus:               bus,
		heartbeatInterval: heartbeatInterval,
		logger:            log.With("charge_point_id", chargePointID),
	}
}

// HandleCall 实现session.Handler
func (h *Handler) HandleCall(action string, payload json.RawMessage) (interface{}, error) {
	switch action {
	case "BootNotification":
		return h.bootNotification(payload)
	case "Heartbeat":
		return h.heartbeat(payload)
	case "Authorize":
		return h.authorize(payload)
	case "StartTransaction":
		return h.startTransaction(payload)
	case "StopTransaction":
		return h.stopTransaction(payload)
	case "StatusNotification":
		return h.statusNotification(payload)
	case "MeterValues":
		return h.meterValues(payload)
	default:
		return nil, fmt.Errorf("%w: %s", session.ErrNotImplemented, action)
	}
}

func (h *Handler) bootNotification(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.BootNotificationRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.publish(eventbus.TopicBootNotification, payload)
	return ocpp16.BootNotificationResponse{
		Status:      "Accepted",
		CurrentTime: now(),
		Interval:    h.heartbeatInterval,
	}, nil
}

func (h *Handler) heartbeat(payload json.RawMessage) (interface{}, error) {
	h.publish(eventbus.TopicHeartbeat, payload)
	return ocpp16.HeartbeatResponse{CurrentTime: now()}, nil
}

func (h *Handler) authorize(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.AuthorizeRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.publish(eventbus.TopicAuthorize, payload)
	return ocpp16.AuthorizeResponse{
		IdTagInfo: ocpp16.IdTagInfo{Status: "Accepted"},
	}, nil
}

func (h *Handler) startTransaction(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.StartTransactionRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.publish(eventbus.TopicStartTransaction, payload)
	return ocpp16.StartTransactionResponse{
		IdTagInfo:     ocpp16.IdTagInfo{Status: "Accepted"},
		TransactionId: ackTransactionID,
	}, nil
}

func (h *Handler) stopTransaction(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.StopTransactionRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	// 网关不是授权机构，停止确认不带idTagInfo
	h.publish(eventbus.TopicStopTransaction, payload)
	return ocpp16.StopTransactionResponse{}, nil
}

func (h *Handler) statusNotification(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.StatusNotificationRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.publish(eventbus.TopicStatusNotification, payload)
	return ocpp16.StatusNotificationResponse{}, nil
}

func (h *Handler) meterValues(payload json.RawMessage) (interface{}, error) {
	var req ocpp16.MeterValuesRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.publish(eventbus.TopicMeterValues, payload)
	return ocpp16.MeterValuesResponse{}, nil
}

// decode 反序列化并校验载荷，失败映射为FormationViolation
func (h *Handler) decode(payload json.RawMessage, target interface{}) error {
	if err := serialization.DecodePayload(payload, target); err != nil {
		return fmt.Errorf("%w: %v", session.ErrInvalidPayload, err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", session.ErrInvalidPayload, err)
	}
	return nil
}

func (h *Handler) publish(topic string, payload json.RawMessage) {
	h.bus.Publish(topic, h.chargePointID, protocol.VersionV16.String(), serialization.PayloadToMap(payload))
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
