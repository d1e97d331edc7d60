package tsdb

import (
	"context"
	"strconv"
	"time"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/metrics"
)

// 单点写入的截止时间
const writeTimeout = 5 * time.Second

// sinkTopics 落盘的topic集合。NotifyReport分段量大且已有
// 配置接口聚合，不写时序库。
var sinkTopics = []string{
	eventbus.TopicMeterValues,
	eventbus.TopicHeartbeat,
	eventbus.TopicStatusNotification,
	eventbus.TopicStartTransaction,
	eventbus.TopicStopTransaction,
	eventbus.TopicBootNotification,
	eventbus.TopicAuthorize,
	eventbus.TopicChargePointConnected,
	eventbus.TopicChargePointDisconnected,
	eventbus.TopicConfigurationChanged,
	eventbus.TopicNotifyEvent,
}

// Sink 订阅事件总线并把事件写入时序库。
// MeterValues与ConfigurationChanged做结构化解析，
// 其余事件整体序列化为JSON字符串落盘。写失败只记录日志。
type Sink struct {
	writer PointWriter
	logger *logger.Logger
}

// NewSink 创建sink并订阅相关topic
func NewSink(bus *eventbus.Bus, writer PointWriter, log *logger.Logger) *Sink {
	if log == nil {
		log = logger.Default()
	}
	s := &Sink{writer: writer, logger: log}
	for _, topic := range sinkTopics {
		bus.Subscribe(topic, s.handle)
	}
	return s
}

// handle 实现eventbus.Handler
func (s *Sink) handle(event eventbus.Event) error {
	switch event.Topic {
	case eventbus.TopicMeterValues:
		s.writeMeterValues(event)
	case eventbus.TopicConfigurationChanged:
		s.writeConfigChange(event)
	default:
		s.writeGeneric(event)
	}
	return nil
}

// writeMeterValues 每个采样值一个点，非数值样本跳过
func (s *Sink) writeMeterValues(event eventbus.Event) {
	connector := connectorTag(event.Payload)

	meterValues, _ := ocpp201.Field(event.Payload, "meter_value", "meterValue").([]interface{})
	for _, rawMV := range meterValues {
		mv, ok := rawMV.(map[string]interface{})
		if !ok {
			continue
		}
		ts := parseTimestamp(ocpp201.FieldString(mv, "timestamp", "timestamp"))

		sampled, _ := ocpp201.Field(mv, "sampled_value", "sampledValue").([]interface{})
		for _, rawSV := range sampled {
			sv, ok := rawSV.(map[string]interface{})
			if !ok {
				continue
			}
			value, ok := numericValue(sv["value"])
			if !ok {
				// 非数值采样对图表无用
				continue
			}

			measurand := ocpp201.FieldString(sv, "measurand", "measurand")
			if measurand == "" {
				measurand = "Unknown"
			}
			tags := map[string]string{
				"cp_id":     event.ChargePointID,
				"connector": connector,
				"measurand": measurand,
				"phase":     ocpp201.FieldString(sv, "phase", "phase"),
				"location":  ocpp201.FieldString(sv, "location", "location"),
				"unit":      ocpp201.FieldString(sv, "unit", "unit"),
			}
			s.write("meter_value", tags, map[string]interface{}{"value": value}, ts)
		}
	}
}

// writeConfigChange 数值可解析时写value，否则写value_str
func (s *Sink) writeConfigChange(event eventbus.Event) {
	params, _ := event.Payload["parameters"].(map[string]interface{})
	if params == nil {
		params = map[string]interface{}{}
	}
	key := ocpp201.FieldString(params, "key", "key")

	tags := map[string]string{
		"cp_id": event.ChargePointID,
		"key":   key,
	}
	rawValue := params["value"]
	if value, ok := numericValue(rawValue); ok {
		s.write("configuration_change", tags, map[string]interface{}{"value": value}, event.Timestamp)
		return
	}
	value, _ := rawValue.(string)
	s.write("configuration_change", tags, map[string]interface{}{"value_str": value}, event.Timestamp)
}

// writeGeneric 只落发生次数，不展开载荷（避免字段爆炸）
func (s *Sink) writeGeneric(event eventbus.Event) {
	tags := map[string]string{
		"cp_id": event.ChargePointID,
		"ocpp":  event.OCPPVersion,
	}
	s.write(event.Topic, tags, map[string]interface{}{"count": 1}, event.Timestamp)
}

// write 带截止时间的单点写入
func (s *Sink) write(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.writer.WritePoint(ctx, measurement, tags, fields, ts); err != nil {
		s.logger.ErrorWithErr(err, "time-series write failed")
		return
	}
	metrics.PointsWritten.WithLabelValues(measurement).Inc()
}

// connectorTag connector_id标签，缺失时为空串
func connectorTag(body map[string]interface{}) string {
	raw := ocpp201.Field(body, "connector_id", "connectorId")
	if raw == nil {
		return ""
	}
	switch n := raw.(type) {
	case float64:
		return strconv.Itoa(int(n))
	case int:
		return strconv.Itoa(n)
	case string:
		return n
	default:
		return ""
	}
}

// numericValue 采样值到float64，string与数字都接受
func numericValue(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// parseTimestamp ISO时间戳解析，失败回落到当前时间
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}
