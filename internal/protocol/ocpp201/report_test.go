package ocpp201

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
)

func row(name string, attrs ...map[string]interface{}) ocpp201.ReportData {
	return ocpp201.ReportData{
		Variable:          ocpp201.Variable{Name: name},
		VariableAttribute: attrs,
	}
}

func segment(requestID, seqNo int, tbc bool, rows ...ocpp201.ReportData) *ocpp201.NotifyReportRequest {
	return &ocpp201.NotifyReportRequest{
		RequestId:   requestID,
		GeneratedAt: "2025-01-01T00:00:00Z",
		SeqNo:       seqNo,
		Tbc:         tbc,
		ReportData:  rows,
	}
}

func TestReportAssembler_MultiSegment(t *testing.T) {
	assembler := NewReportAssembler(nil)
	done := assembler.Begin(55)

	assembler.Ingest(segment(55, 0, true,
		row("HeartbeatInterval", map[string]interface{}{"value": "10", "mutability": "ReadWrite"}),
	))
	assembler.Ingest(segment(55, 1, true,
		row("NumberOfConnectors", map[string]interface{}{"value": "2", "mutability": "ReadOnly"}),
	))

	select {
	case <-done:
		t.Fatal("report marked complete while tbc was still true")
	default:
	}
	assert.False(t, assembler.Complete())

	assembler.Ingest(segment(55, 2, false,
		row("MeterValuesSampledData", map[string]interface{}{"value": "Energy.Active.Import.Register"}),
	))

	select {
	case <-done:
	default:
		t.Fatal("done channel not closed after final segment")
	}
	assert.True(t, assembler.Complete())

	rows := assembler.Snapshot()
	require.Len(t, rows, 3)
	assert.Equal(t, "HeartbeatInterval", rows[0].Key)
	require.NotNil(t, rows[0].Readonly)
	assert.False(t, *rows[0].Readonly)
	require.NotNil(t, rows[1].Readonly)
	assert.True(t, *rows[1].Readonly)
	require.NotNil(t, rows[2].Value)
	assert.Equal(t, "Energy.Active.Import.Register", *rows[2].Value)
}

func TestReportAssembler_TolerantValueSpellings(t *testing.T) {
	assembler := NewReportAssembler(nil)
	assembler.Begin(55)

	assembler.Ingest(segment(55, 0, false,
		row("A", map[string]interface{}{"value": "1"}),
		row("B", map[string]interface{}{"attribute_value": "2"}),
		row("C", map[string]interface{}{"attributeValue": "3"}),
		// 空串与字面量null视为缺失，继续探测下一条属性
		row("D", map[string]interface{}{"value": ""}, map[string]interface{}{"attributeValue": "4"}),
		row("E", map[string]interface{}{"value": "null"}),
	))

	rows := assembler.Snapshot()
	require.Len(t, rows, 5)

	byKey := map[string]ConfigRow{}
	for _, r := range rows {
		byKey[r.Key] = r
	}
	for key, want := range map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"} {
		require.NotNil(t, byKey[key].Value, "key %s", key)
		assert.Equal(t, want, *byKey[key].Value)
	}
	assert.Nil(t, byKey["E"].Value)
}

func TestReportAssembler_NoUsableAttribute(t *testing.T) {
	assembler := NewReportAssembler(nil)
	assembler.Begin(55)

	assembler.Ingest(segment(55, 0, false, row("Bare")))

	rows := assembler.Snapshot()
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Value)
	// 可写性未定，留给聚合端缺省判只读
	assert.Nil(t, rows[0].Readonly)
}

func TestReportAssembler_RestartAtSeqZeroKeepsWaiter(t *testing.T) {
	assembler := NewReportAssembler(nil)
	done := assembler.Begin(55)

	assembler.Ingest(segment(55, 0, true, row("Old", map[string]interface{}{"value": "x"})))
	// 充电桩重新从seq 0开始：旧缓冲丢弃，等待方的done通道保留
	assembler.Ingest(segment(55, 0, false, row("New", map[string]interface{}{"value": "y"})))

	select {
	case <-done:
	default:
		t.Fatal("waiter lost its completion signal across restart")
	}

	rows := assembler.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "New", rows[0].Key)
}

func TestReportAssembler_ImplicitInit(t *testing.T) {
	assembler := NewReportAssembler(nil)

	// 没有Begin也能接收充电桩主动上报
	assembler.Ingest(segment(7, 0, false, row("K", map[string]interface{}{"value": "v"})))

	assert.True(t, assembler.Complete())
	assert.Len(t, assembler.Snapshot(), 1)
}

func TestReportAssembler_SegmentAfterCompletionIgnored(t *testing.T) {
	assembler := NewReportAssembler(nil)
	assembler.Begin(55)

	assembler.Ingest(segment(55, 0, false, row("K", map[string]interface{}{"value": "v"})))
	assembler.Ingest(segment(55, 3, false, row("Late", map[string]interface{}{"value": "w"})))

	rows := assembler.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "K", rows[0].Key)
}
