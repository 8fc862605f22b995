package main

// PoolMessageKind 矿池消息的类型
type PoolMessageKind uint8

const (
	// PoolMsgInvalid 无法识别的消息
	PoolMsgInvalid PoolMessageKind = iota
	// PoolMsgLoginJob login 响应，result.job 中带有第一个任务
	PoolMsgLoginJob
	// PoolMsgJob method = "job" 的任务通知
	PoolMsgJob
	// PoolMsgTarget mining.set_target / mining.set_difficulty
	PoolMsgTarget
	// PoolMsgKeepaliveAck keepalived 请求的响应，不转发给矿机
	PoolMsgKeepaliveAck
	// PoolMsgReply 其他响应
	PoolMsgReply
	// PoolMsgNotify 其他通知
	PoolMsgNotify
)

func (kind PoolMessageKind) String() string {
	switch kind {
	case PoolMsgLoginJob:
		return "login-job"
	case PoolMsgJob:
		return "job"
	case PoolMsgTarget:
		return "target"
	case PoolMsgKeepaliveAck:
		return "keepalive-ack"
	case PoolMsgReply:
		return "reply"
	case PoolMsgNotify:
		return "notify"
	}
	return "invalid"
}

// PoolMessage 分类后的矿池消息
type PoolMessage struct {
	Kind     PoolMessageKind
	Msg      StratumMessage
	HasError bool

	// PoolMsgLoginJob / PoolMsgJob
	JobParams StratumMessage
	// PoolMsgLoginJob
	SessionID string
	// PoolMsgTarget
	Target string
}

// ClassifyPoolMessage 根据消息中存在的字段确定矿池消息的类型
func ClassifyPoolMessage(msg StratumMessage) (pm PoolMessage) {
	pm.Msg = msg
	pm.HasError = !msg.IsNull("error")

	method := msg.Method()
	switch method {
	case "":
		// reply
	case "job":
		pm.JobParams = msg.Object("params")
		if pm.JobParams == nil {
			pm.Kind = PoolMsgInvalid
			return
		}
		pm.Kind = PoolMsgJob
		return
	case "mining.set_target", "mining.set_difficulty":
		pm.Kind = PoolMsgTarget
		params := msg.Array("params")
		if len(params) > 0 {
			pm.Target = rawScalar(params[0])
		}
		return
	default:
		pm.Kind = PoolMsgNotify
		return
	}

	if !msg.Has("result") && !msg.Has("error") {
		pm.Kind = PoolMsgInvalid
		return
	}

	result := msg.Object("result")
	if result != nil {
		if job := result.Object("job"); job != nil && !pm.HasError {
			pm.Kind = PoolMsgLoginJob
			pm.JobParams = job
			pm.SessionID = rawScalar(result["id"])
			return
		}
		if result.String("status") == "KEEPALIVED" {
			pm.Kind = PoolMsgKeepaliveAck
			return
		}
	}
	pm.Kind = PoolMsgReply
	return
}

// IsProofOfGood 任务或者不带错误的响应证明矿池会话可用
func (pm *PoolMessage) IsProofOfGood() bool {
	switch pm.Kind {
	case PoolMsgLoginJob, PoolMsgJob:
		return true
	case PoolMsgReply, PoolMsgKeepaliveAck:
		return !pm.HasError
	}
	return false
}

// ResultIsOK 响应是否表示成功
func (pm *PoolMessage) ResultIsOK() bool {
	if pm.HasError {
		return false
	}
	raw, ok := pm.Msg["result"]
	if !ok || isJSONNull(raw) {
		return false
	}
	var flag bool
	if fastJSONUnmarshal(raw, &flag) == nil {
		return flag
	}
	if result := rawObject(raw); result != nil {
		status := result.String("status")
		return status == "" || status == "OK" || status == "ok"
	}
	str := rawString(raw)
	return str == "" || str == "OK" || str == "ok"
}

// ErrorMessage 响应中的错误描述
func (pm *PoolMessage) ErrorMessage() string {
	if !pm.HasError {
		return ""
	}
	raw := pm.Msg["error"]
	if obj := rawObject(raw); obj != nil {
		return obj.String("message")
	}
	if arr := rawArray(raw); len(arr) > 1 {
		return rawString(arr[1])
	}
	if str := rawString(raw); str != "" {
		return str
	}
	return string(raw)
}
