package main

import (
	"encoding/json"
	"strconv"
)

// grinMultiplexer grin-miner 的协议：login 之后通过 getjobtemplate 拉取任务，
// 任务 id 必须是数字
type grinMultiplexer struct{}

type grinJobTemplate struct {
	Difficulty uint64 `json:"difficulty"`
	Height     uint64 `json:"height"`
	JobID      uint64 `json:"job_id"`
	PrePow     string `json:"pre_pow"`
}

func (grinMultiplexer) Dialect() Dialect {
	return DialectGrin
}

func (grinMultiplexer) IsLogin(method string) bool {
	return method == "login"
}

func (grinMultiplexer) Credentials(req StratumMessage) (user, pass string) {
	params := req.Object("params")
	return params.String("login"), params.String("pass")
}

// grinReply grin-miner 按 method 匹配响应
func grinReply(id json.RawMessage, method string, result interface{}, err interface{}) StratumMessage {
	reply := responseMessage(id, result, err)
	reply["method"] = rawJSON(method)
	return reply
}

func grinTemplate(miner *MinerConn, job *Job) grinJobTemplate {
	diff, err := TargetToDifficulty(job.Target)
	if err != nil || diff < 1 {
		diff = 1
	}
	return grinJobTemplate{
		Difficulty: diff,
		Height:     job.Height,
		JobID:      miner.grinJobs.Add(job.JobID),
		PrePow:     job.Blob,
	}
}

// LoginReply 任务推送推迟到矿机发送 getjobtemplate
func (grinMultiplexer) LoginReply(miner *MinerConn, req StratumMessage, state *JobState) []Outgoing {
	return []Outgoing{grinReply(req.ID(), "login", "ok", nil)}
}

func (grinMultiplexer) JobLines(miner *MinerConn, state *JobState) []Outgoing {
	if state.Job == nil {
		return nil
	}
	return []Outgoing{&JSONRPCRequest{
		ID:      "Stratum",
		JSONRPC: "2.0",
		Method:  "job",
		Params:  grinTemplate(miner, state.Job),
	}}
}

func (grinMultiplexer) TargetLines(miner *MinerConn, state *JobState) []Outgoing {
	return nil
}

func (mux grinMultiplexer) LocalReply(miner *MinerConn, req StratumMessage, state *JobState, poolReady bool) ([]Outgoing, bool) {
	switch req.Method() {
	case "getjobtemplate":
		if state.Job == nil {
			return []Outgoing{mux.ErrorReply(req, StratumErrNoJob)}, true
		}
		return []Outgoing{grinReply(req.ID(), "getjobtemplate", grinTemplate(miner, state.Job), nil)}, true
	case "keepalive":
		return []Outgoing{grinReply(req.ID(), "keepalive", "ok", nil)}, true
	case "status":
		return []Outgoing{grinReply(req.ID(), "status", JSONRPCObj{"status": "ok"}, nil)}, true
	}
	return nil, false
}

func (grinMultiplexer) ToPool(miner *MinerConn, req StratumMessage, state *JobState) (StratumMessage, *StratumError) {
	if req.Method() != "submit" {
		return req.Clone(), nil
	}

	params := req.Object("params")
	if params == nil {
		return nil, StratumErrTooFewParams
	}
	jobID, err := strconv.ParseUint(rawScalar(params["job_id"]), 10, 64)
	if err != nil {
		return nil, StratumErrIllegalParams
	}
	poolJobID, ok := miner.grinJobs.Find(jobID)
	if !ok {
		return nil, StratumErrJobNotFound
	}

	submit := StratumMessage{
		"id":     jsonNull,
		"method": rawJSON("submit"),
		"params": rawJSON(JSONRPCObj{
			"id":     state.SessionID,
			"job_id": poolJobID,
			"nonce":  params["nonce"],
			"pow":    params["pow"],
		}),
	}
	if req.Has("jsonrpc") {
		submit["jsonrpc"] = req["jsonrpc"]
	}
	return submit, nil
}

func (mux grinMultiplexer) FromPool(miner *MinerConn, pending *PendingRequest, pm PoolMessage) Outgoing {
	if pending.Method != "submit" {
		reply := pm.Msg.Clone()
		reply.SetRawID(pending.OrigID)
		return reply
	}
	if pm.ResultIsOK() {
		return grinReply(pending.OrigID, "submit", "ok", nil)
	}
	rejected := NewStratumError(StratumErrRejected.ErrNo, StratumErrRejected.ErrMsg)
	if msg := pm.ErrorMessage(); len(msg) > 0 {
		rejected.ErrMsg = msg
	}
	return grinReply(pending.OrigID, "submit", nil, rejected.ToJSONRPC2Error())
}

func (grinMultiplexer) ErrorReply(req StratumMessage, err *StratumError) Outgoing {
	return grinReply(req.ID(), req.Method(), nil, err.ToJSONRPC2Error())
}
