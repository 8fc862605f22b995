package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/golang/glog"
)

// Timer 可以取消的定时器
type Timer interface {
	Stop() bool
}

// Relay 矿池与本地矿机之间的中继。
// 所有状态只在 handleEvent 中读写，socket、定时器和进程的回调都以事件的形式送回。
type Relay struct {
	config     *Config
	configPath string
	endpoints  []PoolEndpoint
	algos      AlgoTable
	perf       PerfTable

	supervisor *Supervisor
	prober     *Prober
	mode       RelayMode

	listener net.Listener
	miner    *MinerConn // 已接受的矿机连接
	link     *MinerConn // 已登录的矿机

	pool         *PoolSession // 当前矿池会话
	primaryProbe *PoolSession // 使用备用矿池时在后台连接主矿池

	mainRetryTimer Timer
	cooldownTimer  Timer
	keepaliveTimer Timer
	watchdogTimer  Timer

	requestIDs *RequestIDManager
	pending    map[uint32]PendingRequest

	currentAlgo   string
	algoChangedAt time.Time

	idleWatchdog     IdleWatchdog
	hashrateWatchdog HashrateWatchdog

	eventChannel chan interface{}
	exiting      bool

	now              func() time.Time
	schedule         func(d time.Duration, event interface{}) Timer
	dialPool         func(session *PoolSession)
	startPoolReader  func(session *PoolSession)
	startMinerReader func(miner *MinerConn)
	exit             func(code int)
	output           io.Writer
}

func NewRelay(config *Config, configPath string, endpoints []PoolEndpoint, launcher ProcessLauncher) (r *Relay) {
	r = new(Relay)
	r.config = config
	r.configPath = configPath
	r.endpoints = endpoints
	r.algos = config.Algos
	r.perf = config.AlgoPerf
	r.eventChannel = make(chan interface{}, RelayEventChannelCache)
	r.requestIDs = NewRequestIDManager(RequestIDBase, RequestIDBits)
	r.pending = make(map[uint32]PendingRequest)
	r.idleWatchdog.Timeout = config.WatchdogTimeout()
	r.hashrateWatchdog.Percent = config.HashrateWatchdog
	r.mode = ModeProbing

	r.now = time.Now
	r.schedule = func(d time.Duration, event interface{}) Timer {
		return time.AfterFunc(d, func() { r.SendEvent(event) })
	}
	r.dialPool = func(session *PoolSession) {
		proxyURL := config.ProxyURL()
		go func() {
			conn, err := DialPool(session.endpoint, proxyURL)
			r.SendEvent(EventPoolConnection{session, conn, err})
		}()
	}
	r.startPoolReader = func(session *PoolSession) {
		go session.readLoop(r.SendEvent)
	}
	r.startMinerReader = func(miner *MinerConn) {
		go miner.readLoop(r.SendEvent)
	}
	r.exit = func(code int) {
		glog.Flush()
		os.Exit(code)
	}
	r.output = os.Stdout

	r.supervisor = NewSupervisor(launcher, r.SendEvent, func() time.Time { return r.now() })
	r.supervisor.autoRestart = func() bool {
		return r.mode == ModeRelay && r.pool != nil && r.pool.IsActive()
	}
	r.prober = NewProber(r)
	return
}

func (r *Relay) SendEvent(event interface{}) {
	r.eventChannel <- event
}

// Run 监听矿机端口并开始探测，直到收到 EventExit
func (r *Relay) Run() (err error) {
	r.listener, err = net.Listen("tcp", r.config.ListenAddr())
	if err != nil {
		return
	}
	glog.Info("Listening for miner connections on ", r.config.ListenAddr())

	go r.acceptLoop(r.listener)

	r.prober.Start()
	r.handleEvent()
	return nil
}

// acceptLoop 在独立的 goroutine 中运行，只通过事件与中继交互。监听关闭后退出
func (r *Relay) acceptLoop(listener net.Listener) {
	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = AcceptRetryMinDelay
			} else if delay *= 2; delay > AcceptRetryMaxDelay {
				delay = AcceptRetryMaxDelay
			}
			glog.Error("accept miner connection failed: ", err.Error(), ", retrying in ", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0
		r.SendEvent(EventMinerConnected{conn})
	}
}

// jobState 矿机当前应当收到的任务
func (r *Relay) jobState() *JobState {
	if r.mode == ModeProbing {
		return &r.prober.state
	}
	if r.pool != nil && r.pool.IsActive() {
		return &r.pool.JobState
	}
	return &JobState{}
}

func (r *Relay) poolReady() bool {
	return r.mode == ModeRelay && r.pool != nil && r.pool.IsActive()
}

func stopTimer(timer *Timer) {
	if *timer != nil {
		(*timer).Stop()
		*timer = nil
	}
}

// resetPending 矿池会话变化时，旧会话上的请求不会再有响应
func (r *Relay) resetPending() {
	r.requestIDs.Reset()
	r.pending = make(map[uint32]PendingRequest)
}

// graceUntil 算法变化或矿机启动后的宽限期
func (r *Relay) graceUntil() time.Time {
	since := r.algoChangedAt
	if started := r.supervisor.StartedAt(); started.After(since) {
		since = started
	}
	return since.Add(r.config.WatchdogGracePeriod())
}

func (r *Relay) armWatchdog() {
	if !r.idleWatchdog.Enabled() && !r.hashrateWatchdog.Enabled() {
		return
	}
	r.watchdogTimer = r.schedule(WatchdogTickInterval, EventWatchdogTick{})
}

func (r *Relay) watchdogTick() {
	r.armWatchdog()
	if !r.poolReady() || !r.supervisor.Running() {
		return
	}

	now := r.now()
	if r.idleWatchdog.Expired(now, r.graceUntil()) {
		glog.Error("No shares submitted for ", r.config.Watchdog, " seconds, restarting miner")
		r.restartMiner()
		return
	}
	r.checkHashrate()
}

func (r *Relay) checkHashrate() {
	if !r.poolReady() || !r.supervisor.Running() {
		return
	}
	expected := r.perf.Rate(r.currentAlgo)
	if !r.hashrateWatchdog.Underperforming(r.now(), r.graceUntil(), expected) {
		return
	}
	glog.Error("Hashrate ", formatHashrate(r.hashrateWatchdog.LastSample()), " is below ",
		r.hashrateWatchdog.Percent, "% of ", formatHashrate(expected), " for algo ", r.currentAlgo, ", restarting miner")
	r.restartMiner()
}

func (r *Relay) restartMiner() {
	r.idleWatchdog.Touch(r.now())
	r.hashrateWatchdog.Reset()
	r.unlink()
	r.supervisor.Restart()
}

func (r *Relay) processOutput(e EventProcessOutput) {
	if !r.supervisor.IsCurrent(e.Generation) {
		return
	}
	if r.mode == ModeRelay || !r.config.IsQuietMode {
		fmt.Fprintln(r.output, e.Line)
	}

	rate, ok := ParseHashrate(e.Line)
	if !ok {
		return
	}
	if r.mode == ModeProbing {
		r.prober.hashrate(rate)
		return
	}
	r.hashrateWatchdog.Sample(rate)
	r.checkHashrate()
}

func (r *Relay) processExit(e EventProcessExit) {
	r.supervisor.HandleExit(e)
}

func (r *Relay) minerStopped() {
	if r.mode == ModeProbing {
		r.prober.minerStopped()
		return
	}
	glog.V(3).Info("miner process stopped")
}

// setupComplete 探测结束，开始连接矿池
func (r *Relay) setupComplete() {
	if len(r.algos) < 1 {
		glog.Error(ErrNoMiners.Error())
		r.exit(1)
		return
	}

	configJSON, err := r.config.ToJSON()
	if err == nil {
		glog.Info("SETUP COMPLETE\n", string(configJSON))
	}
	if !r.config.IsNoConfigSave && len(r.configPath) > 0 {
		err = r.config.SaveToFile(r.configPath)
		if err != nil {
			glog.Error("save config to ", r.configPath, " failed: ", err.Error())
		} else {
			glog.Info("Config saved to ", r.configPath)
		}
	}

	r.mode = ModeRelay
	r.unlink()
	r.connectPool(0, false)
	r.armWatchdog()
}

func (r *Relay) shutdown() {
	r.exiting = true
	glog.Info("exiting...")

	stopTimer(&r.mainRetryTimer)
	stopTimer(&r.cooldownTimer)
	stopTimer(&r.keepaliveTimer)
	stopTimer(&r.watchdogTimer)
	r.prober.stop()

	r.supervisor.Shutdown()
	r.unlink()
	if r.pool != nil {
		r.pool.close(StatClosed)
	}
	if r.primaryProbe != nil {
		r.primaryProbe.close(StatClosed)
	}
	if r.listener != nil {
		r.listener.Close()
	}
	r.exit(0)
}

func (r *Relay) dispatch(event interface{}) {
	switch e := event.(type) {
	case EventPoolConnection:
		r.poolConnection(e)
	case EventPoolLine:
		r.poolLine(e)
	case EventPoolBroken:
		r.poolFailed(e.Session, e.Err)
	case EventPoolCooldownDone:
		r.cooldownDone()
	case EventMainPoolRetry:
		r.mainPoolRetry()
	case EventKeepaliveTick:
		r.keepaliveTick()
	case EventMinerConnected:
		r.minerConnected(e)
	case EventMinerLine:
		r.minerLine(e)
	case EventMinerBroken:
		r.minerBroken(e)
	case EventProcessOutput:
		r.processOutput(e)
	case EventProcessExit:
		r.processExit(e)
	case EventMinerStopped:
		r.minerStopped()
	case EventWatchdogTick:
		r.watchdogTick()
	case EventProbeTimeout:
		r.prober.timeout(e.Task)
	case EventExit:
		r.shutdown()
	default:
		glog.Error("Unknown event: ", e)
	}
}

func (r *Relay) handleEvent() {
	for event := range r.eventChannel {
		r.dispatch(event)
		if r.exiting {
			return
		}
	}
}
