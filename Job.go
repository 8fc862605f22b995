package main

import (
	"encoding/json"
	"strconv"

	"github.com/golang/glog"
)

// Job 矿池下发的任务
type Job struct {
	Algo      string
	JobID     string
	Blob      string
	Target    string
	Height    uint64
	SeedHash  string
	SessionID string
	// Raw 矿池发送的原始 params 对象，原样转发给矿机
	Raw json.RawMessage
}

// ParseJob 解析任务对象，没有 algo 字段时使用 defaultAlgo
func ParseJob(params StratumMessage, sessionID string, defaultAlgo string) (job *Job, err error) {
	raw, err := fastJSONMarshal(map[string]json.RawMessage(params))
	if err != nil {
		return
	}

	job = &Job{
		Algo:      params.String("algo"),
		JobID:     rawScalar(params["job_id"]),
		Blob:      params.String("blob"),
		Target:    params.String("target"),
		SeedHash:  params.String("seed_hash"),
		SessionID: params.String("id"),
		Raw:       raw,
	}
	if len(job.Algo) < 1 {
		job.Algo = defaultAlgo
	}
	if len(job.SessionID) < 1 {
		job.SessionID = sessionID
	}
	if height := rawScalar(params["height"]); len(height) > 0 {
		job.Height, _ = strconv.ParseUint(height, 10, 64)
	}
	return
}

// JobState 矿池会话缓存的任务，矿机（重新）连接时立即下发
type JobState struct {
	// LoginReply 矿池的 login 响应（"job1"），后续任务会替换其中的 result.job
	LoginReply StratumMessage
	// Notify 最新的 job 通知，login 响应之后才收到任务时不为空
	Notify    StratumMessage
	Job       *Job
	Target    string
	SessionID string
}

func (state *JobState) Clear() {
	*state = JobState{}
}

func (state *JobState) HasJob() bool {
	return state.Job != nil
}

// SetLoginJob 缓存 login 响应以及其中的任务
func (state *JobState) SetLoginJob(pm PoolMessage, job *Job) {
	state.LoginReply = pm.Msg.Clone()
	state.Notify = nil
	state.Job = job
	state.SessionID = pm.SessionID
}

// SetJob 缓存 job 通知，并替换 login 响应中的 result.job
func (state *JobState) SetJob(id string, pm PoolMessage, job *Job) {
	if state.LoginReply == nil {
		glog.Warning(id, "first job missing, job ", job.JobID, " arrived before the login reply")
	} else if result := state.LoginReply.Object("result"); result != nil {
		result["job"] = job.Raw
		reply := state.LoginReply.Clone()
		if err := reply.SetField("result", result); err == nil {
			state.LoginReply = reply
		}
	}

	state.Notify = pm.Msg
	state.Job = job
}

// LoginReplyFor 以矿机请求的 id 返回缓存的 login 响应
func (state *JobState) LoginReplyFor(minerID json.RawMessage) StratumMessage {
	if state.LoginReply == nil {
		return nil
	}
	reply := state.LoginReply.Clone()
	reply.SetRawID(minerID)
	return reply
}

// JobNotify 返回可直接发给默认协议矿机的 job 通知
func (state *JobState) JobNotify() StratumMessage {
	if state.Notify != nil {
		return state.Notify
	}
	if state.Job == nil {
		return nil
	}
	return StratumMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"method":  json.RawMessage(`"job"`),
		"params":  state.Job.Raw,
	}
}
