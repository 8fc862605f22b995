package main

// defaultMultiplexer 矿池与矿机使用相同的消息格式，只重写请求 id
type defaultMultiplexer struct{}

func (defaultMultiplexer) Dialect() Dialect {
	return DialectDefault
}

func (defaultMultiplexer) IsLogin(method string) bool {
	return method == "login"
}

func (defaultMultiplexer) Credentials(req StratumMessage) (user, pass string) {
	params := req.Object("params")
	return params.String("login"), params.String("pass")
}

func (mux defaultMultiplexer) LoginReply(miner *MinerConn, req StratumMessage, state *JobState) []Outgoing {
	reply := state.LoginReplyFor(req.ID())
	if reply == nil {
		return []Outgoing{mux.ErrorReply(req, StratumErrPoolNotReady)}
	}
	return []Outgoing{reply}
}

func (defaultMultiplexer) JobLines(miner *MinerConn, state *JobState) []Outgoing {
	notify := state.JobNotify()
	if notify == nil {
		return nil
	}
	return []Outgoing{notify}
}

func (defaultMultiplexer) TargetLines(miner *MinerConn, state *JobState) []Outgoing {
	return nil
}

func (defaultMultiplexer) LocalReply(miner *MinerConn, req StratumMessage, state *JobState, poolReady bool) ([]Outgoing, bool) {
	return nil, false
}

// ToPool 矿池切换后矿机仍带着旧会话的 params.id，改为当前会话
func (defaultMultiplexer) ToPool(miner *MinerConn, req StratumMessage, state *JobState) (StratumMessage, *StratumError) {
	out := req.Clone()
	params := req.Object("params")
	if params == nil || !params.Has("id") || len(state.SessionID) < 1 || params.String("id") == state.SessionID {
		return out, nil
	}
	params["id"] = rawJSON(state.SessionID)
	if err := out.SetField("params", params); err != nil {
		return nil, StratumErrIllegalParams
	}
	return out, nil
}

func (defaultMultiplexer) FromPool(miner *MinerConn, pending *PendingRequest, pm PoolMessage) Outgoing {
	reply := pm.Msg.Clone()
	reply.SetRawID(pending.OrigID)
	return reply
}

func (defaultMultiplexer) ErrorReply(req StratumMessage, err *StratumError) Outgoing {
	return responseMessage(req.ID(), nil, err.ToJSONRPC2Error())
}
