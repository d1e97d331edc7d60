package serialization

import (
	"encoding/json"
	"fmt"
)

// OCPP JSON-RPC消息类型
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// Frame 一条已解析的OCPP线缆帧。
// Call帧携带Action；CallResult/CallError只带MessageID与Payload。
type Frame struct {
	MessageType int
	MessageID   string
	Action      string
	Payload     json.RawMessage

	// CallError专用字段
	ErrorCode        string
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// SerializationError 序列化错误
type SerializationError struct {
	Operation string
	Message   string
	Cause     error
}

// Error 实现error接口
func (e SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// EncodeCall 序列化Call帧: [2, id, action, payload]
func EncodeCall(messageID, action string, payload interface{}) ([]byte, error) {
	return encode("EncodeCall", []interface{}{MessageTypeCall, messageID, action, payload})
}

// EncodeCallResult 序列化CallResult帧: [3, id, payload]
func EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	return encode("EncodeCallResult", []interface{}{MessageTypeCallResult, messageID, payload})
}

// EncodeCallError 序列化CallError帧: [4, id, code, description, details]
func EncodeCallError(messageID, errorCode, errorDescription string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	return encode("EncodeCallError", []interface{}{MessageTypeCallError, messageID, errorCode, errorDescription, details})
}

func encode(op string, message []interface{}) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, SerializationError{Operation: op, Message: "Failed to marshal JSON", Cause: err}
	}
	return data, nil
}

// DecodeFrame 反序列化一条OCPP帧
func DecodeFrame(data []byte) (*Frame, error) {
	var message []json.RawMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to unmarshal JSON array", Cause: err}
	}
	if len(message) < 3 {
		return nil, SerializationError{Operation: "DecodeFrame", Message: "Message array too short"}
	}

	var msgType int
	if err := json.Unmarshal(message[0], &msgType); err != nil {
		return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to parse message type", Cause: err}
	}

	var msgID string
	if err := json.Unmarshal(message[1], &msgID); err != nil {
		return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to parse message ID", Cause: err}
	}

	frame := &Frame{MessageType: msgType, MessageID: msgID}

	switch msgType {
	case MessageTypeCall:
		if len(message) != 4 {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "Call message must have exactly 4 elements"}
		}
		if err := json.Unmarshal(message[2], &frame.Action); err != nil {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to parse action", Cause: err}
		}
		frame.Payload = message[3]
		return frame, nil

	case MessageTypeCallResult:
		if len(message) != 3 {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "CallResult message must have exactly 3 elements"}
		}
		frame.Payload = message[2]
		return frame, nil

	case MessageTypeCallError:
		if len(message) < 4 || len(message) > 5 {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "CallError message must have 4 or 5 elements"}
		}
		if err := json.Unmarshal(message[2], &frame.ErrorCode); err != nil {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to parse error code", Cause: err}
		}
		if err := json.Unmarshal(message[3], &frame.ErrorDescription); err != nil {
			return nil, SerializationError{Operation: "DecodeFrame", Message: "Failed to parse error description", Cause: err}
		}
		if len(message) == 5 {
			frame.ErrorDetails = message[4]
		}
		return frame, nil

	default:
		return nil, SerializationError{Operation: "DecodeFrame", Message: fmt.Sprintf("Invalid message type: %d", msgType)}
	}
}

// DecodePayload 反序列化载荷到指定类型
func DecodePayload(data json.RawMessage, target interface{}) error {
	if err := json.Unmarshal(data, target); err != nil {
		return SerializationError{Operation: "DecodePayload", Message: "Failed to unmarshal payload", Cause: err}
	}
	return nil
}

// PayloadToMap 将载荷摊平为通用map，便于事件总线与前端推送
func PayloadToMap(data json.RawMessage) map[string]interface{} {
	result := map[string]interface{}{}
	if len(data) == 0 {
		return result
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]interface{}{}
	}
	return result
}
