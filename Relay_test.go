package main

import (
	"errors"
	"net"
	"testing"
	"time"
)

const testLoginJob = `{"id":1,"jsonrpc":"2.0","error":null,"result":{"id":"sess1","job":{"blob":"0707","job_id":"j1","target":"10000000","algo":"rx/0","height":5,"seed_hash":"aa","id":"sess1"},"status":"OK"}}`
const testJob2 = `{"jsonrpc":"2.0","method":"job","params":{"blob":"0808","job_id":"j2","target":"10000000","algo":"rx/0","height":6,"seed_hash":"aa","id":"sess1"}}`

func newRelayTestConfig() *Config {
	config := NewConfig()
	config.Pools = []string{"a:3333", "b:ssl3334"}
	config.Algos = AlgoTable{"rx/0": "minerA --opt"}
	config.User = "wallet"
	return config
}

// startRelayMode 跳过探测，直接连接第一个矿池
func startRelayMode(config *Config) *testRelay {
	tr := newTestRelay(config)
	tr.mode = ModeRelay
	tr.connectPool(0, false)
	return tr
}

func TestRelayJobSpawnsMinerAndReplays(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	if len(tr.dialed) != 1 || tr.dialed[0].endpoint.Host != "a" || tr.dialed[0].endpoint.UseTLS {
		t.Errorf("first dial should be plain pool a, got %v", tr.dialed)
		return
	}

	session, poolConn := tr.connectLastDial()
	login := poolConn.lines(t)
	if len(login) != 1 || login[0].Method() != "login" {
		t.Errorf("login request not sent: %v", login)
		return
	}
	params := login[0].Object("params")
	if params.String("login") != "wallet" || params.String("agent") != AgentName {
		t.Errorf("wrong login params: %v", params)
		return
	}
	if algos := params.Array("algo"); len(algos) != 1 || rawString(algos[0]) != "rx/0" {
		t.Errorf("login should carry the algo list, got %v", algos)
		return
	}

	tr.poolSays(session, testLoginJob)
	if !session.IsActive() {
		t.Errorf("session should be active after the login job, stat: %s", session.stat)
		return
	}
	commands := tr.launcher.commands()
	if len(commands) != 1 || commands[0] != "minerA --opt" {
		t.Errorf("expected minerA to be spawned, got %v", commands)
		return
	}

	tr.poolSays(session, testJob2)
	if len(tr.launcher.procs) != 1 {
		t.Errorf("same algo must not respawn, got %v", tr.launcher.commands())
		return
	}
	if session.JobState.Job.JobID != "j2" {
		t.Errorf("job j2 should be cached, got %s", session.JobState.Job.JobID)
		return
	}

	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0","algo":["rx/0"]}}`)
	if tr.link != miner {
		t.Errorf("miner should be linked")
		return
	}
	replies := minerConn.lines(t)
	if len(replies) != 1 {
		t.Errorf("expected one login reply, got %v", replies)
		return
	}
	job := replies[0].Object("result").Object("job")
	if job.String("job_id") != "j2" || job.String("blob") != "0808" {
		t.Errorf("login reply should replay the latest job, got %v", job)
		return
	}
	if replies[0].Object("result").String("id") != "sess1" {
		t.Errorf("login reply should keep the pool session id")
		return
	}

	tr.advance(30 * time.Second)
	tr.minerSays(miner, `{"id":7,"jsonrpc":"2.0","method":"submit","params":{"id":"sess1","job_id":"j2","nonce":"deadbeef","result":"abcd"}}`)
	if !tr.idleWatchdog.lastActivity.Equal(tr.clock) {
		t.Errorf("submit should touch the idle watchdog")
		return
	}
	forwarded := poolConn.lines(t)
	if len(forwarded) != 1 || forwarded[0].Method() != "submit" {
		t.Errorf("submit not forwarded: %v", forwarded)
		return
	}
	if rawScalar(forwarded[0].ID()) != "2" {
		t.Errorf("submit should use a relay id, got %s", forwarded[0].ID())
		return
	}
	if forwarded[0].Object("params").String("nonce") != "deadbeef" {
		t.Errorf("submit params should pass through, got %v", forwarded[0].Object("params"))
		return
	}

	tr.poolSays(session, `{"id":2,"jsonrpc":"2.0","error":null,"result":{"status":"OK"}}`)
	replies = minerConn.lines(t)
	if len(replies) != 1 || rawScalar(replies[0].ID()) != "7" {
		t.Errorf("submit reply should be restored to id 7, got %v", replies)
		return
	}
	if len(tr.pending) != 0 {
		t.Errorf("pending request should be released")
		return
	}

	tr.poolSays(session, `{"jsonrpc":"2.0","method":"job","params":{"blob":"0909","job_id":"j3","target":"10000000","algo":"rx/0","height":7,"seed_hash":"aa","id":"sess1"}}`)
	replies = minerConn.lines(t)
	if len(replies) != 1 || replies[0].Method() != "job" || replies[0].Object("params").String("job_id") != "j3" {
		t.Errorf("new job should be pushed to the linked miner, got %v", replies)
		return
	}
}

func TestRelayPoolErrorBeforeJobTriesNextPool(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	tr.send(EventPoolConnection{tr.dialed[0], nil, errors.New("connection refused")})

	if len(tr.dialed) != 2 {
		t.Errorf("expected an immediate dial to pool b, got %d dials", len(tr.dialed))
		return
	}
	next := tr.dialed[1]
	if next.index != 1 || next.endpoint.Host != "b" || !next.endpoint.UseTLS || next.endpoint.Port != 3334 {
		t.Errorf("second dial should be tls pool b, got %s", next.endpoint)
		return
	}
	if tr.scheduler.find(func(e interface{}) bool { _, ok := e.(EventPoolCooldownDone); return ok }) != nil {
		t.Errorf("no cooldown expected before the list is exhausted")
		return
	}
}

func TestRelayFailoverCycle(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	tr.send(EventPoolBroken{session, errors.New("connection reset")})
	if tr.pool == nil || tr.pool.index != 1 {
		t.Errorf("should fail over to pool 1")
		return
	}
	if tr.jobState().HasJob() {
		t.Errorf("cached job must be cleared on failover")
		return
	}
	if session.JobState.HasJob() || session.JobState.SessionID != "" {
		t.Errorf("the failed session must drop its cached job and session id")
		return
	}

	backup, _ := tr.connectLastDial()
	tr.send(EventPoolBroken{backup, errors.New("tls handshake failed")})
	if tr.pool != nil {
		t.Errorf("no pool should be current during cooldown")
		return
	}
	cooldown := tr.scheduler.find(func(e interface{}) bool { _, ok := e.(EventPoolCooldownDone); return ok })
	if cooldown == nil || cooldown.delay != PoolCooldown {
		t.Errorf("cooldown should be scheduled after the last pool failed")
		return
	}
	if len(tr.dialed) != 2 {
		t.Errorf("no dial expected during cooldown, got %d", len(tr.dialed))
		return
	}

	tr.send(cooldown.event)
	if len(tr.dialed) != 3 || tr.dialed[2].index != 0 {
		t.Errorf("should restart at pool 0 after cooldown")
		return
	}

	// a stale failure of an already replaced session is ignored
	tr.send(EventPoolBroken{session, errors.New("late")})
	if tr.pool != tr.dialed[2] {
		t.Errorf("stale failure must not change the current pool")
		return
	}
}

func TestRelayPrimaryRetryPromotesPrimary(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	tr.send(EventPoolConnection{tr.dialed[0], nil, errors.New("connection refused")})
	backup, backupConn := tr.connectLastDial()
	tr.poolSays(backup, testLoginJob)

	retry := tr.scheduler.find(func(e interface{}) bool { _, ok := e.(EventMainPoolRetry); return ok })
	if retry == nil {
		t.Errorf("primary retry timer should be armed while on a backup pool")
		return
	}

	// background failure only re-arms the timer
	tr.send(retry.event)
	if tr.primaryProbe == nil || tr.primaryProbe.index != 0 {
		t.Errorf("primary should be retried in the background")
		return
	}
	tr.send(EventPoolConnection{tr.primaryProbe, nil, errors.New("still down")})
	if tr.pool != backup || !backup.IsActive() || backupConn.closed {
		t.Errorf("background failure must not affect the backup session")
		return
	}
	retry = tr.scheduler.find(func(e interface{}) bool { _, ok := e.(EventMainPoolRetry); return ok })
	if retry == nil {
		t.Errorf("primary retry should be re-armed")
		return
	}

	tr.send(retry.event)
	primary, _ := tr.connectLastDial()
	tr.poolSays(primary, testLoginJob)
	if tr.pool != primary || tr.primaryProbe != nil {
		t.Errorf("primary should be promoted")
		return
	}
	if !backupConn.closed {
		t.Errorf("backup connection should be closed")
		return
	}
	if tr.mainRetryTimer != nil {
		t.Errorf("primary retry timer should be canceled")
		return
	}
}

func TestRelayUnknownAlgoIsIgnored(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	tr.poolSays(session, `{"jsonrpc":"2.0","method":"job","params":{"blob":"0a0a","job_id":"j9","target":"10000000","algo":"unknownalgo"}}`)
	if len(tr.launcher.procs) != 1 || tr.launcher.procs[0].terminated {
		t.Errorf("unknown algo must not spawn or stop a miner, got %v", tr.launcher.commands())
		return
	}
	if session.JobState.Job.JobID != "j1" {
		t.Errorf("unknown algo must not replace the cached job, got %s", session.JobState.Job.JobID)
		return
	}
	if tr.currentAlgo != "rx/0" {
		t.Errorf("current algo changed to %s", tr.currentAlgo)
		return
	}
}

func TestRelayAlgoSwitchSwapsMiner(t *testing.T) {
	config := newRelayTestConfig()
	config.Algos["cn/r"] = "minerB"
	tr := startRelayMode(config)
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`)

	tr.advance(time.Minute)
	tr.poolSays(session, `{"jsonrpc":"2.0","method":"job","params":{"blob":"0b0b","job_id":"j4","target":"10000000","algo":"cn/r"}}`)
	commands := tr.launcher.commands()
	if len(commands) != 2 || commands[1] != "minerB" {
		t.Errorf("expected a swap to minerB, got %v", commands)
		return
	}
	if !tr.launcher.procs[0].terminated {
		t.Errorf("old miner should be terminated")
		return
	}
	if tr.link != nil || !minerConn.closed {
		t.Errorf("old miner link should be cleared")
		return
	}
	if !tr.algoChangedAt.Equal(tr.clock) {
		t.Errorf("algo change time not recorded")
		return
	}
}

func TestRelayMinerCrashRespawns(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	tr.launcher.last().crash()
	tr.drain()
	commands := tr.launcher.commands()
	if len(commands) != 2 || commands[1] != "minerA --opt" {
		t.Errorf("crashed miner should be respawned once, got %v", commands)
		return
	}
}

func TestRelayKeepalive(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, poolConn := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)
	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`)
	poolConn.lines(t)
	minerConn.lines(t)

	tick := tr.scheduler.find(func(e interface{}) bool { _, ok := e.(EventKeepaliveTick); return ok })
	if tick == nil {
		t.Errorf("keepalive timer should be armed")
		return
	}
	tr.advance(61 * time.Second)
	tr.send(tick.event)

	sent := poolConn.lines(t)
	if len(sent) != 1 || sent[0].Method() != "keepalived" || sent[0].Object("params").String("id") != "sess1" {
		t.Errorf("keepalived not sent: %v", sent)
		return
	}
	tr.poolSays(session, `{"id":`+rawScalar(sent[0].ID())+`,"jsonrpc":"2.0","error":null,"result":{"status":"KEEPALIVED"}}`)
	if replies := minerConn.lines(t); len(replies) != 0 {
		t.Errorf("keepalive ack must not reach the miner, got %v", replies)
		return
	}
}

func TestRelayDropsBeforeProofOfGood(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, `{"jsonrpc":"2.0","method":"mining.set_target","params":["00ff"]}`)
	tr.poolSays(session, `{"id":1,"jsonrpc":"2.0","error":{"code":-1,"message":"Invalid address"},"result":null}`)
	if session.stat != StatAuthenticating {
		t.Errorf("session must stay authenticating, got %s", session.stat)
		return
	}
	if session.JobState.Target != "" {
		t.Errorf("messages before login must be dropped")
		return
	}
	if len(tr.launcher.procs) != 0 {
		t.Errorf("nothing should be spawned")
		return
	}
}

func TestRelaySecondMinerRejected(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	first, _ := tr.connectMiner()
	second := newFakeConn("127.0.0.1:50001")
	tr.send(EventMinerConnected{second})
	if tr.miner != first || !second.closed {
		t.Errorf("second miner connection should be rejected")
		return
	}
}

func TestRelayMinerResetRestartsProcess(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)
	miner, _ := tr.connectMiner()
	login := `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`
	tr.minerSays(miner, login)
	tr.minerSays(miner, login)

	commands := tr.launcher.commands()
	if len(commands) != 2 || commands[1] != "minerA --opt" {
		t.Errorf("second login should restart the miner, got %v", commands)
		return
	}
	if tr.link != nil {
		t.Errorf("link should be cleared after a reset")
		return
	}
}

func TestRelayNoPoolDropsRequests(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`)
	minerConn.lines(t)
	tr.minerSays(miner, `{"id":2,"jsonrpc":"2.0","method":"submit","params":{"job_id":"j1"}}`)
	if len(tr.pending) != 0 {
		t.Errorf("requests must not be queued without a pool")
		return
	}
}

func TestRelayHashrateWatchdogGrace(t *testing.T) {
	config := newRelayTestConfig()
	config.HashrateWatchdog = 50
	config.AlgoPerf = PerfTable{"rx/0": 1000}
	tr := startRelayMode(config)
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	generation := tr.supervisor.generation
	tr.advance(10 * time.Second)
	tr.send(EventProcessOutput{generation, "[2020-01-01 00:00:10] speed 10s/60s/15m 100.0 100.0 n/a H/s max 100.0 H/s"})
	if len(tr.launcher.procs) != 1 {
		t.Errorf("low hashrate inside the grace period must not restart the miner")
		return
	}

	tr.advance(time.Minute)
	tr.send(EventProcessOutput{generation, "[2020-01-01 00:01:10] speed 10s/60s/15m 100.0 100.0 n/a H/s max 100.0 H/s"})
	if len(tr.launcher.procs) != 2 {
		t.Errorf("low hashrate after the grace period should restart the miner, got %v", tr.launcher.commands())
		return
	}
}

func TestRelayIdleWatchdog(t *testing.T) {
	config := newRelayTestConfig()
	config.Watchdog = 120
	tr := startRelayMode(config)
	tr.armWatchdog()
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)

	tr.advance(100 * time.Second)
	tr.send(EventWatchdogTick{})
	if len(tr.launcher.procs) != 1 {
		t.Errorf("idle watchdog fired too early")
		return
	}

	tr.advance(100 * time.Second)
	tr.send(EventWatchdogTick{})
	if len(tr.launcher.procs) != 2 {
		t.Errorf("idle watchdog should restart the miner, got %v", tr.launcher.commands())
		return
	}
}

func TestRelayFailoverRewritesSessionID(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, _ := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)
	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`)
	minerConn.lines(t)

	tr.send(EventPoolBroken{session, errors.New("connection reset")})
	backup, backupConn := tr.connectLastDial()
	backupConn.lines(t)
	tr.poolSays(backup, `{"id":1,"jsonrpc":"2.0","error":null,"result":{"id":"sess2","job":{"blob":"0c0c","job_id":"b1","target":"10000000","algo":"rx/0","id":"sess2"},"status":"OK"}}`)
	if tr.link != miner {
		t.Errorf("the miner should stay linked across a failover of the same algo")
		return
	}
	pushed := minerConn.lines(t)
	if len(pushed) != 1 || pushed[0].Method() != "job" || pushed[0].Object("params").String("job_id") != "b1" {
		t.Errorf("the backup job should be pushed to the miner, got %v", pushed)
		return
	}

	tr.minerSays(miner, `{"id":8,"jsonrpc":"2.0","method":"submit","params":{"id":"sess1","job_id":"b1","nonce":"00ff00ff","result":"abcd"}}`)
	forwarded := backupConn.lines(t)
	if len(forwarded) != 1 || forwarded[0].Method() != "submit" {
		t.Errorf("submit not forwarded to the backup pool: %v", forwarded)
		return
	}
	params := forwarded[0].Object("params")
	if params.String("id") != "sess2" || params.String("nonce") != "00ff00ff" {
		t.Errorf("submit should carry the backup session id, got %v", params)
		return
	}
}

func TestRelayAdoptsMinerPassword(t *testing.T) {
	config := newRelayTestConfig()
	config.Pass = ""
	tr := startRelayMode(config)
	miner, _ := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"other","pass":"rig1","agent":"XMRig/6.0"}}`)
	if tr.config.User != "wallet" {
		t.Errorf("a configured user must not be replaced, got %s", tr.config.User)
		return
	}
	if tr.config.Pass != "rig1" {
		t.Errorf("an empty password should be taken from the miner, got %q", tr.config.Pass)
		return
	}
}

func TestRelayETHSubscribeForwarded(t *testing.T) {
	tr := startRelayMode(newRelayTestConfig())
	session, poolConn := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)
	poolConn.lines(t)

	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"method":"mining.subscribe","params":["miner/1.0","EthereumStratum/1.0.0"]}`)
	forwarded := poolConn.lines(t)
	if len(forwarded) != 1 || forwarded[0].Method() != "mining.subscribe" {
		t.Errorf("subscribe should be forwarded while a pool is active, got %v", forwarded)
		return
	}
	if len(minerConn.lines(t)) != 0 {
		t.Errorf("subscribe must not be answered locally while a pool is active")
		return
	}

	tr.poolSays(session, `{"id":`+rawScalar(forwarded[0].ID())+`,"jsonrpc":"2.0","error":null,"result":[["mining.notify","ae6812eb4cd7735a302a8a9dd95cf71f","EthereumStratum/1.0.0"],"0a0b"]}`)
	replies := minerConn.lines(t)
	if len(replies) != 1 || rawScalar(replies[0].ID()) != "1" {
		t.Errorf("subscribe ack should come back with the miner id, got %v", replies)
		return
	}
	if result := replies[0].Array("result"); len(result) != 2 || rawString(result[1]) != "0a0b" {
		t.Errorf("pool extranonce should pass through, got %v", replies[0])
		return
	}
}

func TestRelayDebugTraffic(t *testing.T) {
	config := newRelayTestConfig()
	config.IsDebug = true
	tr := startRelayMode(config)
	session, poolConn := tr.connectLastDial()
	tr.poolSays(session, testLoginJob)
	miner, minerConn := tr.connectMiner()
	tr.minerSays(miner, `{"id":1,"jsonrpc":"2.0","method":"login","params":{"login":"x","pass":"y","agent":"XMRig/6.0"}}`)
	if len(minerConn.lines(t)) != 1 {
		t.Errorf("login reply missing with debug logging on")
		return
	}
	poolConn.lines(t)
	tr.minerSays(miner, `{"id":2,"jsonrpc":"2.0","method":"submit","params":{"id":"sess1","job_id":"j1","nonce":"01","result":"ab"}}`)
	if len(poolConn.lines(t)) != 1 {
		t.Errorf("submit not forwarded with debug logging on")
		return
	}
}

type fakeListener struct {
	results []interface{}
}

func (listener *fakeListener) Accept() (net.Conn, error) {
	if len(listener.results) < 1 {
		return nil, net.ErrClosed
	}
	result := listener.results[0]
	listener.results = listener.results[1:]
	if err, ok := result.(error); ok {
		return nil, err
	}
	return result.(net.Conn), nil
}
func (listener *fakeListener) Close() error   { return nil }
func (listener *fakeListener) Addr() net.Addr { return fakeAddr("127.0.0.1:3333") }

func TestRelayAcceptLoop(t *testing.T) {
	tr := newTestRelay(newRelayTestConfig())
	conn := newFakeConn("127.0.0.1:50000")
	listener := &fakeListener{results: []interface{}{
		errors.New("too many open files"),
		errors.New("too many open files"),
		conn,
	}}

	// 监听关闭后返回
	tr.acceptLoop(listener)

	select {
	case event := <-tr.eventChannel:
		connected, ok := event.(EventMinerConnected)
		if !ok || connected.Conn != conn {
			t.Errorf("expected EventMinerConnected, got %v", event)
			return
		}
	default:
		t.Errorf("accepted connection was not posted")
		return
	}
	if len(tr.eventChannel) != 0 {
		t.Errorf("accept errors must not be posted as events")
		return
	}
}
