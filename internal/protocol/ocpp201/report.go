package ocpp201

import (
	"sync"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/logger"
)

// ConfigRow NotifyReport中的一行配置，已摊平。
// Value为nil表示充电桩没有报告可用的值；Readonly为nil表示
// 可写性尚未确定，聚合收尾时缺省判为只读。
type ConfigRow struct {
	Key           string                 `json:"key"`
	Value         *string                `json:"value"`
	Readonly      *bool                  `json:"readonly"`
	Component     map[string]interface{} `json:"component,omitempty"`
	DataType      string                 `json:"data_type,omitempty"`
	Unit          string                 `json:"unit,omitempty"`
	ValuesList    string                 `json:"values_list,omitempty"`
	Mutability    string                 `json:"mutability,omitempty"`
	AttributeType string                 `json:"attribute_type,omitempty"`
}

// reportCycle 一轮NotifyReport的缓冲。周期内只追加，去重在读出时做。
type reportCycle struct {
	rows      []ConfigRow
	requestID int
	lastSeq   int
	complete  bool
	done      chan struct{}
}

// ReportAssembler 把多段NotifyReport拼装成一份完整的配置报告。
// 同一会话同时只有一轮报告：seqNo为0或无缓冲时开新轮，
// tbc为false时关闭done通道宣告完成。等待方select该通道
// 而不是轮询完成标志。
type ReportAssembler struct {
	mu     sync.Mutex
	cycle  *reportCycle
	logger *logger.Logger
}

// NewReportAssembler 创建拼装器
func NewReportAssembler(log *logger.Logger) *ReportAssembler {
	if log == nil {
		log = logger.Default()
	}
	return &ReportAssembler{logger: log}
}

// Begin 显式开启一轮报告并返回完成信号。
// 在发送GetBaseReport之前调用。
func (a *ReportAssembler) Begin(requestID int) <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cycle = &reportCycle{
		requestID: requestID,
		done:      make(chan struct{}),
	}
	return a.cycle.done
}

// Ingest 接收一段NotifyReport，返回本段摊平后的行
func (a *ReportAssembler) Ingest(req *ocpp201.NotifyReportRequest) []ConfigRow {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cycle == nil || req.SeqNo == 0 {
		done := make(chan struct{})
		if a.cycle != nil && !a.cycle.complete {
			if len(a.cycle.rows) > 0 {
				a.logger.Warnf("report restarted at seq 0, dropping %d buffered rows", len(a.cycle.rows))
			}
			// Begin发出的done通道还有等待方，保留它
			done = a.cycle.done
		}
		a.cycle = &reportCycle{requestID: req.RequestId, done: done}
	}

	if a.cycle.requestID != req.RequestId {
		a.logger.Warnf("report request id mismatch: expected %d got %d", a.cycle.requestID, req.RequestId)
	}
	if a.cycle.complete {
		a.logger.Warnf("report segment after completion (seq %d), ignored", req.SeqNo)
		return nil
	}

	segment := make([]ConfigRow, 0, len(req.ReportData))
	for _, entry := range req.ReportData {
		segment = append(segment, flatten(entry))
	}
	a.cycle.rows = append(a.cycle.rows, segment...)
	a.cycle.lastSeq = req.SeqNo

	if !req.Tbc {
		a.cycle.complete = true
		close(a.cycle.done)
		a.logger.Infof("report complete: %d rows over final seq %d", len(a.cycle.rows), req.SeqNo)
	}
	return segment
}

// flatten 取第一条带可用值的属性；没有可用值时保留占位行，
// Value与Readonly均未定。
func flatten(entry ocpp201.ReportData) ConfigRow {
	row := ConfigRow{
		Key:       entry.Variable.Name,
		Component: entry.Component,
	}
	if chars := entry.VariableCharacteristics; chars != nil {
		row.DataType = ocpp201.FieldString(chars, "data_type", "dataType")
		row.Unit = ocpp201.FieldString(chars, "unit", "unit")
		row.ValuesList = ocpp201.FieldString(chars, "values_list", "valuesList")
	}
	for _, attr := range entry.VariableAttribute {
		value, usable := ocpp201.AttributeValue(attr)
		if !usable {
			continue
		}
		readonly := ocpp201.AttributeMutability(attr) == "ReadOnly"
		row.Value = &value
		row.Readonly = &readonly
		row.Mutability = ocpp201.AttributeMutability(attr)
		row.AttributeType = ocpp201.FieldString(attr, "type", "type")
		break
	}
	return row
}

// Snapshot 当前缓冲的配置行副本
func (a *ReportAssembler) Snapshot() []ConfigRow {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cycle == nil {
		return nil
	}
	rows := make([]ConfigRow, len(a.cycle.rows))
	copy(rows, a.cycle.rows)
	return rows
}

// Complete 当前一轮是否已收完
func (a *ReportAssembler) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cycle != nil && a.cycle.complete
}
