package command

import (
	"context"
	"sort"
	"strings"
	"time"

	domain201 "github.com/charging-platform/csms-gateway/internal/domain/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	proto201 "github.com/charging-platform/csms-gateway/internal/protocol/ocpp201"
)

// GetVariables单批上限，超出的key分多轮请求
const variableBatchSize = 24

// Configuration 读取充电桩的完整配置。
//   - OCPP 1.6：单次GetConfiguration。
//   - OCPP 2.0.1：GetBaseReport触发NotifyReport分段上报，收齐后
//     按key去重，缺值项经GetVariables补值，再用Target属性探测
//     可写性，最终按key排序返回{status, configuration_key}。
func (s *Service) Configuration(ctx context.Context, chargePointID string) (map[string]interface{}, error) {
	sess, err := s.lookup(chargePointID)
	if err != nil {
		return nil, err
	}

	if sess.Version() != protocol.VersionV201 {
		return s.Send(ctx, chargePointID, "GetConfiguration", map[string]interface{}{"key": []string{}})
	}

	handler, ok := sess.Handler().(*proto201.Handler)
	if !ok {
		return nil, &APIError{Status: 500, Detail: "Session has no report assembler"}
	}
	reports := handler.Reports()

	done := reports.Begin(defaultReportID)
	base, err := s.Send(ctx, chargePointID, "GetBaseReport", map[string]interface{}{
		"requestId":  defaultReportID,
		"reportBase": defaultReportBase,
	})
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-time.After(s.reportTimeout):
		s.logger.Warnf("report for %s incomplete after %s, continuing with partial data", chargePointID, s.reportTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rows := dedupRows(reports.Snapshot())

	if err := s.fillMissingValues(ctx, chargePointID, rows); err != nil {
		return nil, err
	}
	if err := s.probeWritability(ctx, chargePointID, rows); err != nil {
		return nil, err
	}

	// 两轮探测后仍未定可写性的项，保守按只读处理
	for i := range rows {
		if rows[i].Readonly == nil {
			readonly := true
			rows[i].Readonly = &readonly
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Key) < strings.ToLower(rows[j].Key)
	})

	return map[string]interface{}{
		"status":            baseReportStatus(base),
		"configuration_key": rows,
	}, nil
}

// dedupRows 按key去重；同key时带值的行优先
func dedupRows(rows []proto201.ConfigRow) []proto201.ConfigRow {
	deduped := make([]proto201.ConfigRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.Key == "" {
			continue
		}
		if at, exists := index[row.Key]; exists {
			if deduped[at].Value == nil && row.Value != nil {
				deduped[at] = row
			}
			continue
		}
		index[row.Key] = len(deduped)
		deduped = append(deduped, row)
	}
	return deduped
}

// fillMissingValues 对报告里没带值的key批量GetVariables补值。
// Rejected/NotSupported的key直接标记只读。
func (s *Service) fillMissingValues(ctx context.Context, chargePointID string, rows []proto201.ConfigRow) error {
	var missing []int
	for i := range rows {
		if rows[i].Value == nil {
			missing = append(missing, i)
		}
	}

	for start := 0; start < len(missing); start += variableBatchSize {
		end := start + variableBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		entries := make([]interface{}, 0, len(batch))
		for _, i := range batch {
			entries = append(entries, map[string]interface{}{
				"component": componentOrEmpty(rows[i].Component),
				"variable":  map[string]interface{}{"name": rows[i].Key},
			})
		}

		resp, err := s.Send(ctx, chargePointID, "GetVariables", map[string]interface{}{"key": entries})
		if err != nil {
			return err
		}

		for _, result := range variableResults(resp) {
			name := variableName(result)
			value := domain201.FieldString(result, "attribute_value", "attributeValue")
			status := domain201.FieldString(result, "attribute_status", "attributeStatus")
			if status == "" {
				status = "Rejected"
			}
			for _, i := range batch {
				if rows[i].Key != name || rows[i].Value != nil {
					continue
				}
				if value != "" {
					v := value
					rows[i].Value = &v
				}
				if status == "Rejected" || status == "NotSupported" {
					readonly := true
					rows[i].Readonly = &readonly
				}
			}
		}
	}
	return nil
}

// probeWritability 用Target属性批量探测可写性：
// 非Accepted的key一律只读。
func (s *Service) probeWritability(ctx context.Context, chargePointID string, rows []proto201.ConfigRow) error {
	for start := 0; start < len(rows); start += variableBatchSize {
		end := start + variableBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		entries := make([]interface{}, 0, len(batch))
		for i := range batch {
			entries = append(entries, map[string]interface{}{
				"component":     componentOrEmpty(batch[i].Component),
				"variable":      map[string]interface{}{"name": batch[i].Key},
				"attributeType": "Target",
			})
		}

		resp, err := s.Send(ctx, chargePointID, "GetVariables", map[string]interface{}{"key": entries})
		if err != nil {
			return err
		}

		for _, result := range variableResults(resp) {
			name := variableName(result)
			status := domain201.FieldString(result, "attribute_status", "attributeStatus")
			if status == "" {
				status = "Rejected"
			}
			for i := range batch {
				if batch[i].Key == name {
					readonly := status != "Accepted"
					batch[i].Readonly = &readonly
				}
			}
		}
	}
	return nil
}

// componentOrEmpty 报告行自带component就原样回传，否则给空对象
func componentOrEmpty(component map[string]interface{}) map[string]interface{} {
	if component != nil {
		return component
	}
	return map[string]interface{}{}
}

// variableResults 从{"result": ...}包装里取getVariableResult列表
func variableResults(resp map[string]interface{}) []map[string]interface{} {
	result, _ := resp["result"].(map[string]interface{})
	if result == nil {
		return nil
	}
	raw, _ := domain201.Field(result, "get_variable_result", "getVariableResult").([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if entry, ok := item.(map[string]interface{}); ok {
			out = append(out, entry)
		}
	}
	return out
}

// baseReportStatus GetBaseReport应答里的status，缺省Accepted
func baseReportStatus(base map[string]interface{}) string {
	result, _ := base["result"].(map[string]interface{})
	if result == nil {
		return "Accepted"
	}
	if status, ok := result["status"].(string); ok && status != "" {
		return status
	}
	return "Accepted"
}
