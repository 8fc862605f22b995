package main

import (
	"encoding/json"
	"strings"
)

// Dialect 矿机使用的协议方言
type Dialect uint8

const (
	DialectUnknown Dialect = iota
	DialectDefault
	DialectGrin
	DialectETH
)

func (dialect Dialect) String() string {
	switch dialect {
	case DialectDefault:
		return "default"
	case DialectGrin:
		return "grin"
	case DialectETH:
		return "eth"
	}
	return "unknown"
}

// DetectDialect 根据矿机连接上的第一条消息判断方言
func DetectDialect(msg StratumMessage) Dialect {
	switch msg.Method() {
	case "mining.subscribe", "mining.authorize", "mining.extranonce.subscribe":
		return DialectETH
	case "getjobtemplate":
		return DialectGrin
	case "login":
		agent := msg.Object("params").String("agent")
		if strings.Contains(strings.ToLower(agent), "grin") {
			return DialectGrin
		}
		return DialectDefault
	}
	return DialectUnknown
}

// Multiplexer 在矿池协议与矿机方言之间转换消息
type Multiplexer interface {
	Dialect() Dialect
	IsLogin(method string) bool
	// Credentials 矿机登录时提供的用户名和密码
	Credentials(req StratumMessage) (user, pass string)
	// LoginReply 登录响应以及紧随其后的任务推送
	LoginReply(miner *MinerConn, req StratumMessage, state *JobState) []Outgoing
	// JobLines 新任务到达时推送给已登录矿机的消息
	JobLines(miner *MinerConn, state *JobState) []Outgoing
	// TargetLines 矿池单独下发 target 时推送给矿机的消息
	TargetLines(miner *MinerConn, state *JobState) []Outgoing
	// LocalReply 在本地应答而不转发给矿池的请求
	LocalReply(miner *MinerConn, req StratumMessage, state *JobState, poolReady bool) ([]Outgoing, bool)
	// ToPool 把矿机请求转换为矿池请求，id 由调用者重写
	ToPool(miner *MinerConn, req StratumMessage, state *JobState) (StratumMessage, *StratumError)
	// FromPool 把矿池响应转换为矿机期望的形式
	FromPool(miner *MinerConn, pending *PendingRequest, pm PoolMessage) Outgoing
	ErrorReply(req StratumMessage, err *StratumError) Outgoing
}

func NewMultiplexer(dialect Dialect) Multiplexer {
	switch dialect {
	case DialectGrin:
		return grinMultiplexer{}
	case DialectETH:
		return ethMultiplexer{}
	}
	return defaultMultiplexer{}
}

// IsSubmitMethod 提交 share 的请求会刷新空闲看门狗
func IsSubmitMethod(method string) bool {
	return method == "submit" || method == "mining.submit"
}

func IsKeepaliveMethod(method string) bool {
	return method == "keepalived" || method == "keepalive"
}

func rawJSON(v interface{}) json.RawMessage {
	raw, err := fastJSONMarshal(v)
	if err != nil {
		return jsonNull
	}
	return raw
}

// responseMessage 以矿机原请求的 id 构造 json-rpc 2.0 响应
func responseMessage(id json.RawMessage, result interface{}, err interface{}) StratumMessage {
	if len(id) < 1 {
		id = jsonNull
	}
	return StratumMessage{
		"id":      id,
		"jsonrpc": json.RawMessage(`"2.0"`),
		"result":  rawJSON(result),
		"error":   rawJSON(err),
	}
}
