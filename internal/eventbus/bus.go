package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/metrics"
	"github.com/google/uuid"
)

// 本网关的封闭topic集合：每个OCPP上行action一个，
// 外加连接生命周期与配置变更。
const (
	TopicBootNotification        = "BootNotification"
	TopicHeartbeat               = "Heartbeat"
	TopicAuthorize               = "Authorize"
	TopicStartTransaction        = "StartTransaction"
	TopicStopTransaction         = "StopTransaction"
	TopicStatusNotification      = "StatusNotification"
	TopicMeterValues             = "MeterValues"
	TopicNotifyEvent             = "NotifyEvent"
	TopicNotifyReport            = "NotifyReport"
	TopicChargePointConnected    = "ChargePointConnected"
	TopicChargePointDisconnected = "ChargePointDisconnected"
	TopicConfigurationChanged    = "ConfigurationChanged"
)

// Topics 所有已知topic，按固定顺序
var Topics = []string{
	TopicBootNotification,
	TopicHeartbeat,
	TopicAuthorize,
	TopicStartTransaction,
	TopicStopTransaction,
	TopicStatusNotification,
	TopicMeterValues,
	TopicNotifyEvent,
	TopicNotifyReport,
	TopicChargePointConnected,
	TopicChargePointDisconnected,
	TopicConfigurationChanged,
}

// Event 一条总线事件
type Event struct {
	ID            string                 `json:"id"`
	Topic         string                 `json:"topic"`
	ChargePointID string                 `json:"charge_point_id"`
	OCPPVersion   string                 `json:"ocpp_version"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Handler 事件订阅者。返回的error只记录日志，不会中断其余订阅者。
type Handler func(event Event) error

// Bus 进程内pub/sub。同一topic的订阅者按订阅顺序串行调用，
// Publish在所有订阅者返回后才返回；无持久化、无重试。
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]Handler
	logger *logger.Logger
}

// New 创建事件总线
func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		subs:   make(map[string][]Handler),
		logger: log,
	}
}

// Subscribe 订阅一个topic
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], handler)
}

// SubscribeAll 订阅封闭集合内的全部topic
func (b *Bus) SubscribeAll(handler Handler) {
	for _, topic := range Topics {
		b.Subscribe(topic, handler)
	}
}

// Publish 发布事件。订阅者的panic与error被吞掉并记录，
// 保证剩余订阅者仍然收到事件。
func (b *Bus) Publish(topic, chargePointID, ocppVersion string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	event := Event{
		ID:            uuid.New().String(),
		Topic:         topic,
		ChargePointID: chargePointID,
		OCPPVersion:   ocppVersion,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(topic).Inc()

	for _, h := range handlers {
		b.dispatch(topic, h, event)
	}
}

// dispatch 单个订阅者调用，隔离panic
func (b *Bus) dispatch(topic string, h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorWithErr(fmt.Errorf("panic: %v", r), fmt.Sprintf("handler panic for %s", topic))
		}
	}()
	if err := h(event); err != nil {
		b.logger.ErrorWithErr(err, fmt.Sprintf("handler error for %s", topic))
	}
}

// SubscriberCount 当前topic的订阅者数量（测试用）
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
