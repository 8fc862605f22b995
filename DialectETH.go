package main

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang/glog"
)

// ethMultiplexer mining.subscribe / mining.authorize / mining.notify 风格的矿机
type ethMultiplexer struct{}

// ethExtraNonce 没有矿池会话时 mining.subscribe 的应答
const ethExtraNonce = "00"

func (ethMultiplexer) Dialect() Dialect {
	return DialectETH
}

func (ethMultiplexer) IsLogin(method string) bool {
	return method == "mining.authorize"
}

func (ethMultiplexer) Credentials(req StratumMessage) (user, pass string) {
	params := req.Array("params")
	if len(params) > 0 {
		user = rawString(params[0])
	}
	if len(params) > 1 {
		pass = rawString(params[1])
	}
	return
}

func ethTarget(state *JobState) string {
	if len(state.Target) > 0 {
		target, err := Target256(state.Target)
		if err == nil {
			return target
		}
	}
	if state.Job == nil {
		return ""
	}
	target, err := Target256(state.Job.Target)
	if err != nil {
		glog.Warning("eth: cannot convert target '", state.Job.Target, "': ", err.Error())
		return ""
	}
	return target
}

func ethSetTarget(target string) Outgoing {
	return &JSONRPCRequest{
		ID:     nil,
		Method: "mining.set_target",
		Params: JSONRPCArray{target},
	}
}

func ethNotify(job *Job, target string) Outgoing {
	bits := rawScalar(rawObject(job.Raw)["bits"])
	if len(bits) < 1 {
		bits = job.Target
	}
	return &JSONRPCRequest{
		ID:     nil,
		Method: "mining.notify",
		Params: JSONRPCArray{
			job.JobID,
			HexAddPrefix(job.Blob),
			HexAddPrefix(job.SeedHash),
			target,
			true,
			job.Height,
			bits,
		},
	}
}

func (mux ethMultiplexer) LoginReply(miner *MinerConn, req StratumMessage, state *JobState) []Outgoing {
	lines := []Outgoing{responseMessage(req.ID(), true, nil)}
	miner.lastTarget = ""
	return append(lines, mux.JobLines(miner, state)...)
}

// JobLines target 变化时先发送 mining.set_target
func (mux ethMultiplexer) JobLines(miner *MinerConn, state *JobState) (lines []Outgoing) {
	target := ethTarget(state)
	if len(target) > 0 && target != miner.lastTarget {
		lines = append(lines, ethSetTarget(target))
		miner.lastTarget = target
	}
	if state.Job != nil {
		lines = append(lines, ethNotify(state.Job, target))
	}
	return
}

func (ethMultiplexer) TargetLines(miner *MinerConn, state *JobState) []Outgoing {
	target := ethTarget(state)
	if len(target) < 1 || target == miner.lastTarget {
		return nil
	}
	miner.lastTarget = target
	return []Outgoing{ethSetTarget(target)}
}

func (ethMultiplexer) LocalReply(miner *MinerConn, req StratumMessage, state *JobState, poolReady bool) ([]Outgoing, bool) {
	switch req.Method() {
	case "mining.subscribe":
		if poolReady {
			return nil, false
		}
		return []Outgoing{&JSONRPCResponse{
			ID:     req.ID(),
			Result: JSONRPCArray{nil, ethExtraNonce},
			Error:  nil,
		}}, true
	case "mining.extranonce.subscribe", "eth_submitHashrate":
		return []Outgoing{&JSONRPCResponse{ID: req.ID(), Result: true, Error: nil}}, true
	}
	return nil, false
}

func (ethMultiplexer) ToPool(miner *MinerConn, req StratumMessage, state *JobState) (StratumMessage, *StratumError) {
	if req.Method() != "mining.submit" {
		return req.Clone(), nil
	}

	// [worker, job_id, nonce, header_hash, mix_hash]
	params := req.Array("params")
	if len(params) < 5 {
		return nil, StratumErrTooFewParams
	}
	nonce := rawString(params[2])
	headerHash := rawString(params[3])
	mixHash := rawString(params[4])
	for _, field := range []string{nonce, headerHash, mixHash} {
		if _, err := hexutil.Decode(HexAddPrefix(field)); err != nil {
			return nil, StratumErrIllegalParams
		}
	}

	return StratumMessage{
		"id":      jsonNull,
		"jsonrpc": rawJSON("2.0"),
		"method":  rawJSON("submit"),
		"params": rawJSON(JSONRPCObj{
			"id":          state.SessionID,
			"job_id":      rawScalar(params[1]),
			"nonce":       HexRemovePrefix(nonce),
			"header_hash": HexRemovePrefix(headerHash),
			"mix_hash":    HexRemovePrefix(mixHash),
		}),
	}, nil
}

func (mux ethMultiplexer) FromPool(miner *MinerConn, pending *PendingRequest, pm PoolMessage) Outgoing {
	if pending.Method == "mining.subscribe" {
		reply := pm.Msg.Clone()
		reply.SetRawID(pending.OrigID)
		return reply
	}
	if pm.ResultIsOK() {
		return &JSONRPCResponse{ID: pending.OrigID, Result: true, Error: nil}
	}
	msg := pm.ErrorMessage()
	if len(msg) < 1 {
		msg = StratumErrRejected.ErrMsg
	}
	return &JSONRPCResponse{
		ID:     pending.OrigID,
		Result: false,
		Error:  NewStratumError(StratumErrRejected.ErrNo, msg).ToJSONRPCArray(nil),
	}
}

func (ethMultiplexer) ErrorReply(req StratumMessage, err *StratumError) Outgoing {
	return &JSONRPCResponse{ID: req.ID(), Result: false, Error: err.ToJSONRPCArray(nil)}
}
