package ocpp201

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	"github.com/charging-platform/csms-gateway/internal/domain/serialization"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/session"
)

const defaultHeartbeatInterval = 10

var validate = validator.New()

// Handler OCPP 2.0.1入站Call处理器。确认消息、发布事件，
// 并把NotifyReport分段交给拼装器。
type Handler struct {
	chargePointID     string
	bus               *eventbus.Bus
	reports           *ReportAssembler
	heartbeatInterval int
	logger            *logger.Logger
}

// NewHandler 创建2.0.1处理器
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
		reports:           NewReportAssembler(log.With("charge_point_id", chargePointID)),
		heartbeatInterval: heartbeatInterval,
		logger:            log.With("charge_point_id", chargePointID),
	}
}

// Reports 会话的报告拼装器，配置聚合流程使用
func (h *Handler) Reports() *ReportAssembler {
	return h.reports
}

// HandleCall 实现session.Handler
func (h *Handler) HandleCall(action string, payload json.RawMessage) (interface{}, error) {
	switch action {
	case "BootNotification":
		return h.bootNotification(payload)
	case "Heartbeat":
		h.bus.Publish(eventbus.TopicHeartbeat, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.HeartbeatResponse{CurrentTime: now()}, nil
	case "Authorize":
		h.bus.Publish(eventbus.TopicAuthorize, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.AuthorizeResponse{IdTokenInfo: ocpp201.IdTokenInfo{Status: "Accepted"}}, nil
	case "StatusNotification":
		h.bus.Publish(eventbus.TopicStatusNotification, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.StatusNotificationResponse{}, nil
	case "NotifyEvent":
		h.bus.Publish(eventbus.TopicNotifyEvent, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.NotifyEventResponse{}, nil
	case "NotifyReport":
		return h.notifyReport(payload)
	case "StartTransaction":
		h.bus.Publish(eventbus.TopicStartTransaction, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.StartTransactionResponse{}, nil
	case "StopTransaction":
		h.bus.Publish(eventbus.TopicStopTransaction, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.StopTransactionResponse{}, nil
	case "MeterValues":
		h.bus.Publish(eventbus.TopicMeterValues, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
		return ocpp201.MeterValuesResponse{}, nil
	case "TransactionEvent":
		return h.transactionEvent(payload)
	default:
		return nil, fmt.Errorf("%w: %s", session.ErrNotImplemented, action)
	}
}

func (h *Handler) bootNotification(payload json.RawMessage) (interface{}, error) {
	var req ocpp201.BootNotificationRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	h.bus.Publish(eventbus.TopicBootNotification, h.chargePointID, protocol.VersionV201.String(), serialization.PayloadToMap(payload))
	return ocpp201.BootNotificationResponse{
		CurrentTime: now(),
		Interval:    h.heartbeatInterval,
		Status:      "Accepted",
	}, nil
}

func (h *Handler) notifyReport(payload json.RawMessage) (interface{}, error) {
	var req ocpp201.NotifyReportRequest
	if err := h.decode(payload, &req); err != nil {
		return nil, err
	}
	segment := h.reports.Ingest(&req)
	h.bus.Publish(eventbus.TopicNotifyReport, h.chargePointID, protocol.VersionV201.String(), map[string]interface{}{
		"request_id":   req.RequestId,
		"generated_at": req.GeneratedAt,
		"seq_no":       req.SeqNo,
		"tbc":          req.Tbc,
		"rows":         segment,
	})
	return ocpp201.NotifyReportResponse{}, nil
}

// transactionEvent 标准2.0.1交易事件。eventType为Started/Ended时
// 归入交易话题，其余归入电表话题（常携带meterValue采样）。
func (h *Handler) transactionEvent(payload json.RawMessage) (interface{}, error) {
	body := serialization.PayloadToMap(payload)
	topic := eventbus.TopicMeterValues
	switch body["eventType"] {
	case "Started":
		topic = eventbus.TopicStartTransaction
	case "Ended":
		topic = eventbus.TopicStopTransaction
	}
	h.bus.Publish(topic, h.chargePointID, protocol.VersionV201.String(), body)
	return ocpp201.TransactionEventResponse{}, nil
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

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
