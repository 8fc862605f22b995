package main

import (
	"bytes"
	"encoding/json"
)

// JSONRPCRequest JSON RPC 请求的数据结构
type JSONRPCRequest struct {
	ID      interface{} `json:"id"`
	JSONRPC string      `json:"jsonrpc,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// JSONRPCResponse JSON RPC 响应的数据结构
type JSONRPCResponse struct {
	ID      interface{} `json:"id"`
	JSONRPC string      `json:"jsonrpc,omitempty"`
	// grin miners match responses by method rather than by id
	Method string      `json:"method,omitempty"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

// JSONRPC2Error error object of json-rpc 2.0
type JSONRPC2Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSONRPCArray JSON RPC 数组
type JSONRPCArray []interface{}

// JSONRPCObj JSON RPC 对象
type JSONRPCObj map[string]interface{}

// ToJSONBytesLine 将 JSONRPCRequest 对象转换为以换行结尾的 JSON 字节序列
func (rpcData *JSONRPCRequest) ToJSONBytesLine() ([]byte, error) {
	return toJSONBytesLine(rpcData)
}

// ToJSONBytesLine 将 JSONRPCResponse 对象转换为以换行结尾的 JSON 字节序列
func (rpcData *JSONRPCResponse) ToJSONBytesLine() ([]byte, error) {
	return toJSONBytesLine(rpcData)
}

func toJSONBytesLine(v interface{}) ([]byte, error) {
	bytes, err := fastJSONMarshal(v)
	if err != nil {
		return nil, err
	}
	return append(bytes, '\n'), nil
}

// StratumMessage 一行 stratum 消息。
// 按字段保存原始 JSON，重新序列化时保留对端发送的所有字段。
type StratumMessage map[string]json.RawMessage

var jsonNull = json.RawMessage("null")

// ParseStratumMessage 解析一行 JSON
func ParseStratumMessage(line []byte) (StratumMessage, error) {
	var msg StratumMessage
	err := fastJSONUnmarshal(line, &msg)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotJSONObject
	}
	return msg, nil
}

// Clone 浅拷贝，修改字段时不影响缓存的原消息
func (msg StratumMessage) Clone() StratumMessage {
	out := make(StratumMessage, len(msg))
	for k, v := range msg {
		out[k] = v
	}
	return out
}

func (msg StratumMessage) Has(key string) bool {
	_, ok := msg[key]
	return ok
}

// IsNull 字段不存在或为 null
func (msg StratumMessage) IsNull(key string) bool {
	raw, ok := msg[key]
	return !ok || isJSONNull(raw)
}

func (msg StratumMessage) ID() json.RawMessage {
	raw, ok := msg["id"]
	if !ok {
		return jsonNull
	}
	return raw
}

func (msg StratumMessage) SetRawID(id json.RawMessage) {
	if len(id) < 1 {
		id = jsonNull
	}
	msg["id"] = id
}

func (msg StratumMessage) SetField(key string, value interface{}) error {
	raw, err := fastJSONMarshal(value)
	if err != nil {
		return err
	}
	msg[key] = raw
	return nil
}

func (msg StratumMessage) String(key string) string {
	return rawString(msg[key])
}

func (msg StratumMessage) Method() string {
	return msg.String("method")
}

// Object 返回对象类型的字段，不是对象时返回 nil
func (msg StratumMessage) Object(key string) StratumMessage {
	return rawObject(msg[key])
}

// Array 返回数组类型的字段，不是数组时返回 nil
func (msg StratumMessage) Array(key string) []json.RawMessage {
	return rawArray(msg[key])
}

func (msg StratumMessage) ToJSONBytesLine() ([]byte, error) {
	return toJSONBytesLine(map[string]json.RawMessage(msg))
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) < 1 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func rawString(raw json.RawMessage) (str string) {
	if len(raw) < 1 || raw[0] != '"' {
		return
	}
	if fastJSONUnmarshal(raw, &str) != nil {
		return ""
	}
	return
}

func rawObject(raw json.RawMessage) StratumMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 1 || raw[0] != '{' {
		return nil
	}
	var obj StratumMessage
	if fastJSONUnmarshal(raw, &obj) != nil {
		return nil
	}
	return obj
}

func rawArray(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 1 || raw[0] != '[' {
		return nil
	}
	var arr []json.RawMessage
	if fastJSONUnmarshal(raw, &arr) != nil {
		return nil
	}
	return arr
}

// rawScalar 返回字符串或数字字段的文本形式
func rawScalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 1 || isJSONNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		return rawString(raw)
	}
	if raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9') {
		return string(raw)
	}
	return ""
}
