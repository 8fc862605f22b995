package main

import (
	"github.com/golang/glog"
)

func (r *Relay) minerConnected(e EventMinerConnected) {
	if r.exiting {
		e.Conn.Close()
		return
	}
	if r.miner != nil {
		glog.Warning("miner (", e.Conn.RemoteAddr(), ") rejected, ", r.miner.id, "is already connected")
		e.Conn.Close()
		return
	}

	miner := NewMinerConn(e.Conn)
	r.miner = miner
	if !r.config.IsQuietMode {
		glog.Info(miner.id, "connected")
	}
	r.startMinerReader(miner)
}

// unlink 断开当前矿机，新的矿机进程需要重新登录
func (r *Relay) unlink() {
	if r.miner == nil {
		return
	}
	r.miner.close()
	r.miner = nil
	r.link = nil
}

func (r *Relay) minerLine(e EventMinerLine) {
	miner := e.Conn
	if miner != r.miner || miner.closed {
		return
	}
	if r.config.IsDebug || bool(glog.V(9)) {
		glog.Info(miner.id, "-> ", string(e.Line))
	}

	msg, err := ParseStratumMessage(e.Line)
	if err != nil {
		glog.Warning(miner.id, "JSON decode failed: ", err.Error(), " ", string(e.Line))
		return
	}

	if miner.mux == nil {
		dialect := DetectDialect(msg)
		if dialect == DialectUnknown {
			glog.Warning(miner.id, "unexpected first message, waiting for login: ", string(e.Line))
			return
		}
		miner.bindDialect(dialect)
	}

	method := msg.Method()
	if miner.mux.IsLogin(method) {
		r.minerLogin(miner, msg)
		return
	}

	if r.mode == ModeProbing {
		r.prober.minerMessage(miner, msg)
		return
	}

	state := r.jobState()
	poolReady := r.poolReady()
	if replies, handled := miner.mux.LocalReply(miner, msg, state, poolReady); handled {
		miner.writeLines(replies, r.config.IsDebug)
		return
	}

	if miner != r.link && method != "mining.subscribe" {
		glog.Warning(miner.id, "dropping ", method, " before login")
		return
	}

	if !poolReady {
		if !IsKeepaliveMethod(method) {
			glog.Error(miner.id, "no active pool, dropping ", method)
		}
		return
	}

	if IsSubmitMethod(method) {
		r.idleWatchdog.Touch(r.now())
	}

	out, serr := miner.mux.ToPool(miner, msg, state)
	if serr != nil {
		glog.Warning(miner.id, method, " rejected locally: ", serr.Error())
		miner.writeLines([]Outgoing{miner.mux.ErrorReply(msg, serr)}, r.config.IsDebug)
		return
	}

	id, err := r.requestIDs.AllocRequestID()
	if err != nil {
		glog.Error(miner.id, method, ": ", err.Error())
		miner.writeLines([]Outgoing{miner.mux.ErrorReply(msg, StratumErrPoolNotReady)}, r.config.IsDebug)
		return
	}
	out.SetField("id", id)
	r.pending[id] = PendingRequest{
		Conn:   miner,
		OrigID: msg.ID(),
		Method: method,
	}

	r.pool.lastMinerTraffic = r.now()
	err = r.pool.writeLine(out, r.config.IsDebug)
	if err != nil {
		glog.Error(r.pool.id, "forward ", method, " failed: ", err.Error())
	}
}

// minerLogin 登录消息。已登录的连接再次登录表示矿机希望重置
func (r *Relay) minerLogin(miner *MinerConn, msg StratumMessage) {
	if miner == r.link {
		glog.Info(miner.id, "Miner wants to reset, restarting it")
		r.unlink()
		r.idleWatchdog.Touch(r.now())
		r.hashrateWatchdog.Reset()
		r.supervisor.Restart()
		return
	}

	user, pass := miner.mux.Credentials(msg)
	if len(r.config.User) < 1 && len(user) > 0 {
		glog.Info("Setting pool user to \"", user, "\" reported by the miner")
		r.config.User = user
	}
	if len(r.config.Pass) < 1 && len(pass) > 0 {
		glog.Info("Setting pool password reported by the miner")
		r.config.Pass = pass
	}
	miner.agent = msg.Object("params").String("agent")

	if r.mode == ModeProbing {
		r.prober.minerLogin(miner, msg)
		return
	}

	r.link = miner
	miner.writeLines(miner.mux.LoginReply(miner, msg, r.jobState()), r.config.IsDebug)
	if r.pool != nil {
		glog.Info(r.pool.id, "Pool <-> miner link established (", miner.dialect, " dialect)")
	}
}

func (r *Relay) minerBroken(e EventMinerBroken) {
	miner := e.Conn
	if miner != r.miner {
		return
	}

	wasLinked := r.link == miner
	miner.close()
	r.miner = nil
	r.link = nil

	if wasLinked && r.poolReady() {
		glog.Warning(r.pool.id, "Pool <-> miner link was broken due to closed miner socket")
		return
	}
	if !r.config.IsQuietMode {
		glog.Info(miner.id, "miner socket closed")
	}
}
