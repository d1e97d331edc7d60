package ocpp201

// 宽容字段访问：不同固件/库在同一字段上混用snake_case与camelCase，
// 这里按固定顺序探测一组封闭的拼写并返回第一个非空值。

// attributeValueKeys variableAttribute值字段的已知拼写
var attributeValueKeys = []string{"value", "attribute_value", "attributeValue"}

// AttributeValue 从variableAttribute条目中取出可用的值。
// 空字符串与字面量"null"视为缺失。
func AttributeValue(attr map[string]interface{}) (string, bool) {
	for _, key := range attributeValueKeys {
		raw, exists := attr[key]
		if !exists || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if s == "" || s == "null" {
			continue
		}
		return s, true
	}
	return "", false
}

// AttributeMutability variableAttribute条目的mutability，缺省ReadWrite
func AttributeMutability(attr map[string]interface{}) string {
	if raw, exists := attr["mutability"]; exists {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return "ReadWrite"
}

// Field snake/camel双拼写字段读取，返回第一个非nil值
func Field(m map[string]interface{}, snake, camel string) interface{} {
	if v, ok := m[snake]; ok && v != nil {
		return v
	}
	if v, ok := m[camel]; ok && v != nil {
		return v
	}
	return nil
}

// FieldString Field的字符串便捷形式
func FieldString(m map[string]interface{}, snake, camel string) string {
	if v := Field(m, snake, camel); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FieldMap Field的map便捷形式
func FieldMap(m map[string]interface{}, snake, camel string) map[string]interface{} {
	if v := Field(m, snake, camel); v != nil {
		if mm, ok := v.(map[string]interface{}); ok {
			return mm
		}
	}
	return nil
}
