package main

import (
	"strconv"

	"github.com/golang/glog"
)

// connectPool 连接第 index 个矿池。background 表示在备用矿池工作时后台重试主矿池
func (r *Relay) connectPool(index int, background bool) {
	if len(r.endpoints) < 1 {
		glog.Error(ErrNoPools.Error())
		r.exit(1)
		return
	}

	session := NewPoolSession(index, r.endpoints[index], background)
	if background {
		r.primaryProbe = session
		glog.Info(session.id, "Trying to reconnect to the primary pool...")
	} else {
		r.pool = session
		glog.Info(session.id, "Connecting to pool...")
	}
	r.dialPool(session)
}

func (r *Relay) isLiveSession(session *PoolSession) bool {
	return session == r.pool || session == r.primaryProbe
}

func (r *Relay) poolConnection(e EventPoolConnection) {
	session := e.Session
	if !r.isLiveSession(session) {
		if e.Conn != nil {
			e.Conn.Close()
		}
		return
	}
	if e.Err != nil {
		r.poolFailed(session, e.Err)
		return
	}

	session.attach(e.Conn)
	err := session.sendLogin(r.config, r.algos, r.perf)
	if err != nil {
		r.poolFailed(session, err)
		return
	}
	r.startPoolReader(session)
}

func (r *Relay) poolLine(e EventPoolLine) {
	session := e.Session
	if !r.isLiveSession(session) || session.conn == nil {
		return
	}
	if r.config.IsDebug || bool(glog.V(9)) {
		glog.Info(session.id, "<- ", string(e.Line))
	}

	msg, err := ParseStratumMessage(e.Line)
	if err != nil {
		glog.Warning(session.id, "JSON decode failed: ", err.Error(), " ", string(e.Line))
		return
	}
	pm := ClassifyPoolMessage(msg)

	if session.stat == StatAuthenticating {
		if !pm.IsProofOfGood() {
			if pm.HasError {
				glog.Error(session.id, "pool error before login completed: ", pm.ErrorMessage())
			} else {
				glog.Warning(session.id, "dropping ", pm.Kind, " message before login completed: ", string(e.Line))
			}
			return
		}
		r.poolOk(session)
	}

	r.poolMessage(session, pm)
}

// poolOk 会话收到第一个任务或无错误的响应，成为当前会话
func (r *Relay) poolOk(session *PoolSession) {
	session.stat = StatActive

	if session == r.primaryProbe {
		old := r.pool
		r.primaryProbe = nil
		session.background = false
		r.pool = session
		if old != nil {
			glog.Info(old.id, "Disconnecting backup pool, the primary pool is back")
			old.close(StatClosed)
		}
	}

	r.resetPending()
	glog.Info(session.id, "Connected to pool")

	if session.index == 0 {
		stopTimer(&r.mainRetryTimer)
	} else if r.mainRetryTimer == nil && r.primaryProbe == nil {
		r.mainRetryTimer = r.schedule(MainPoolRetryInterval, EventMainPoolRetry{})
	}

	if r.config.KeepaliveInterval() > 0 && r.keepaliveTimer == nil {
		r.keepaliveTimer = r.schedule(r.config.KeepaliveInterval(), EventKeepaliveTick{})
	}
	session.lastMinerTraffic = r.now()
}

// poolFailed 连接失败或断开后的故障转移策略
func (r *Relay) poolFailed(session *PoolSession, err error) {
	reason := "connection closed"
	if err != nil {
		reason = err.Error()
	}

	if session == r.primaryProbe {
		glog.Warning(session.id, "Primary pool is still unavailable: ", reason)
		session.close(StatErrored)
		session.JobState.Clear()
		r.primaryProbe = nil
		if r.pool != nil && r.pool.index > 0 && !r.exiting {
			r.mainRetryTimer = r.schedule(MainPoolRetryInterval, EventMainPoolRetry{})
		}
		return
	}

	if session != r.pool {
		if session.stat != StatClosed && session.stat != StatErrored {
			glog.Error("[INTERNAL ERROR] ", session.id, "reported an error but it is not the current pool: ", reason)
			session.close(StatErrored)
		}
		return
	}

	if r.exiting {
		return
	}

	glog.Error(session.id, "Pool connection failed: ", reason)
	session.close(StatErrored)
	session.JobState.Clear()
	r.pool = nil
	r.resetPending()

	next := session.index + 1
	if next >= len(r.endpoints) {
		glog.Warning("All pools failed, retrying from the first pool in ", PoolCooldown)
		stopTimer(&r.mainRetryTimer)
		stopTimer(&r.keepaliveTimer)
		r.cooldownTimer = r.schedule(PoolCooldown, EventPoolCooldownDone{})
		return
	}
	r.connectPool(next, false)
}

func (r *Relay) cooldownDone() {
	r.cooldownTimer = nil
	if r.pool != nil || r.exiting {
		return
	}
	r.connectPool(0, false)
}

func (r *Relay) mainPoolRetry() {
	r.mainRetryTimer = nil
	if r.pool == nil || r.pool.index == 0 || r.primaryProbe != nil || r.exiting {
		return
	}
	r.connectPool(0, true)
}

// keepaliveTick 矿机一段时间没有请求时，向矿池发送 keepalived
func (r *Relay) keepaliveTick() {
	r.keepaliveTimer = nil
	interval := r.config.KeepaliveInterval()
	if interval <= 0 || r.exiting {
		return
	}
	r.keepaliveTimer = r.schedule(interval, EventKeepaliveTick{})

	session := r.pool
	if session == nil || !session.IsActive() {
		return
	}
	now := r.now()
	if now.Sub(session.lastMinerTraffic) < interval {
		return
	}

	id, err := r.requestIDs.AllocRequestID()
	if err != nil {
		glog.Error(session.id, "keepalive: ", err.Error())
		return
	}
	request := JSONRPCRequest{
		ID:      id,
		JSONRPC: "2.0",
		Method:  "keepalived",
		Params:  JSONRPCObj{"id": session.JobState.SessionID},
	}
	r.pending[id] = PendingRequest{Method: "keepalived", RelayOwned: true}
	session.lastMinerTraffic = now
	err = session.writeLine(&request, r.config.IsDebug)
	if err != nil {
		glog.Error(session.id, "send keepalive failed: ", err.Error())
	}
}

func (r *Relay) poolMessage(session *PoolSession, pm PoolMessage) {
	switch pm.Kind {
	case PoolMsgLoginJob, PoolMsgJob:
		r.poolJob(session, pm)
	case PoolMsgTarget:
		session.JobState.Target = pm.Target
		if r.link != nil && r.mode == ModeRelay {
			r.link.writeLines(r.link.mux.TargetLines(r.link, &session.JobState), r.config.IsDebug)
		}
	case PoolMsgKeepaliveAck, PoolMsgReply:
		r.poolReply(session, pm)
	case PoolMsgNotify:
		if r.link != nil && r.link.dialect == DialectDefault {
			r.link.writeLines([]Outgoing{pm.Msg}, r.config.IsDebug)
			return
		}
		glog.V(2).Info(session.id, "ignoring notification ", pm.Msg.Method())
	default:
		glog.Warning(session.id, "unrecognized message: ", pm.Msg)
	}
}

func (r *Relay) poolReply(session *PoolSession, pm PoolMessage) {
	id, err := strconv.ParseUint(rawScalar(pm.Msg.ID()), 10, 32)
	if err != nil {
		glog.V(2).Info(session.id, "reply without a relay id: ", pm.Msg)
		return
	}
	if id == LoginRequestID {
		if pm.HasError {
			glog.Error(session.id, "login failed: ", pm.ErrorMessage())
		}
		return
	}

	pending, ok := r.pending[uint32(id)]
	if !ok {
		if pm.Kind != PoolMsgKeepaliveAck {
			glog.V(2).Info(session.id, "reply for unknown request ", id)
		}
		return
	}
	delete(r.pending, uint32(id))
	r.requestIDs.FreeRequestID(uint32(id))

	if pending.RelayOwned {
		if pm.HasError {
			glog.Warning(session.id, pending.Method, " failed: ", pm.ErrorMessage())
		}
		return
	}
	if pending.Conn == nil || pending.Conn != r.miner || pending.Conn.closed {
		glog.V(2).Info(session.id, "the miner of request ", id, " is gone")
		return
	}
	if pm.HasError && IsSubmitMethod(pending.Method) {
		glog.Warning(session.id, "share rejected: ", pm.ErrorMessage())
	}

	reply := pending.Conn.mux.FromPool(pending.Conn, &pending, pm)
	pending.Conn.writeLines([]Outgoing{reply}, r.config.IsDebug)
}

// poolJob 按任务的算法选择矿机，必要时切换进程，然后缓存并转发任务
func (r *Relay) poolJob(session *PoolSession, pm PoolMessage) {
	sessionID := session.JobState.SessionID
	if pm.Kind == PoolMsgLoginJob {
		sessionID = pm.SessionID
	}
	job, err := ParseJob(pm.JobParams, sessionID, r.config.DefaultAlgo)
	if err != nil {
		glog.Warning(session.id, "invalid job: ", err.Error())
		return
	}

	command, ok := r.algos.Lookup(job.Algo)
	if !ok {
		glog.Error(session.id, "Ignoring job with unknown algo ", job.Algo)
		return
	}

	if job.Algo != r.currentAlgo {
		if len(r.currentAlgo) > 0 {
			glog.Info(session.id, "Algo switch from ", r.currentAlgo, " to ", job.Algo)
		}
		r.currentAlgo = job.Algo
		r.algoChangedAt = r.now()
		r.hashrateWatchdog.Reset()
	}

	if command != r.supervisor.Command() || r.supervisor.Idle() {
		r.unlink()
		r.idleWatchdog.Touch(r.now())
		r.supervisor.Switch(command)
	}

	if pm.Kind == PoolMsgLoginJob {
		session.JobState.SetLoginJob(pm, job)
	} else {
		session.JobState.SetJob(session.id, pm, job)
	}

	if r.link != nil {
		r.link.writeLines(r.link.mux.JobLines(r.link, &session.JobState), r.config.IsDebug)
	}
}
