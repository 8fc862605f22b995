package main

import (
	"time"

	"github.com/golang/glog"
)

// ProbeKind 启动时的探测任务类型
type ProbeKind uint8

const (
	// ProbeSmart 矿机在 login 中上报支持的算法
	ProbeSmart ProbeKind = iota
	// ProbeAlgo 命令行指定了算法的矿机
	ProbeAlgo
	// ProbeBenchmark 测量算力
	ProbeBenchmark
)

func (kind ProbeKind) String() string {
	switch kind {
	case ProbeSmart:
		return "smart miner probe"
	case ProbeAlgo:
		return "algo miner probe"
	case ProbeBenchmark:
		return "benchmark"
	}
	return "unknown"
}

type ProbeTask struct {
	Kind    ProbeKind
	Command string
	Algo    string

	timer   Timer
	samples int
	done    bool
}

func (task *ProbeTask) timeout() time.Duration {
	if task.Kind == ProbeBenchmark {
		return BenchmarkTimeout
	}
	return ProbeTimeout
}

// Prober 在连接矿池之前依次执行探测任务，同一时间只运行一个矿机
type Prober struct {
	relay   *Relay
	tasks   []*ProbeTask
	current *ProbeTask
	// state 模拟的矿池会话，发给被探测的矿机
	state JobState

	benchmarksQueued bool
}

func NewProber(relay *Relay) *Prober {
	return &Prober{relay: relay}
}

// benchmarkBlob 一个真实的 cryptonight 区块头，任何算法都可以对它进行计算
const benchmarkBlob = "ff05feeaa0db054f15eca39c843cb82c15e5c5a7743e06536cb541d4e96e90ffd31120b7703aa90000000076a6f6e34a9977c982629d8fe6c8b45024cafca109eef92198784891e0df41bc03"

const benchmarkSeedHash = "0000000000000000000000000000000000000000000000000000000000000000"

type benchmarkJob struct {
	Blob     string `json:"blob"`
	Algo     string `json:"algo"`
	JobID    string `json:"job_id"`
	Target   string `json:"target"`
	ID       string `json:"id"`
	Height   uint64 `json:"height"`
	SeedHash string `json:"seed_hash"`
}

type benchmarkResult struct {
	ID     string       `json:"id"`
	Job    benchmarkJob `json:"job"`
	Status string       `json:"status"`
}

// benchmarkState 构造模拟的 login 响应
func benchmarkState(algo string) (state JobState) {
	reply := JSONRPCResponse{
		ID:      LoginRequestID,
		JSONRPC: "2.0",
		Error:   nil,
		Result: benchmarkResult{
			ID: "benchmark",
			Job: benchmarkJob{
				Blob:     benchmarkBlob,
				Algo:     algo,
				JobID:    "benchmark1",
				Target:   "10000000",
				ID:       "benchmark",
				Height:   1,
				SeedHash: benchmarkSeedHash,
			},
			Status: "OK",
		},
	}

	line, err := reply.ToJSONBytesLine()
	if err != nil {
		return
	}
	msg, err := ParseStratumMessage(line)
	if err != nil {
		return
	}
	pm := ClassifyPoolMessage(msg)
	job, err := ParseJob(pm.JobParams, pm.SessionID, algo)
	if err != nil {
		return
	}
	state.SetLoginJob(pm, job)
	return
}

// Start 生成探测任务并开始执行
func (prober *Prober) Start() {
	conf := prober.relay.config
	for _, command := range conf.SmartMiners {
		prober.tasks = append(prober.tasks, &ProbeTask{Kind: ProbeSmart, Command: command})
	}
	for _, algo := range conf.PinnedAlgos() {
		prober.tasks = append(prober.tasks, &ProbeTask{Kind: ProbeAlgo, Command: conf.AlgoMiners[algo], Algo: algo})
	}
	prober.next()
}

func (prober *Prober) queueBenchmarks() {
	relay := prober.relay
	prober.benchmarksQueued = true
	relay.perf.FillDerived()

	for _, algo := range relay.perf.MissingBenchmarks(relay.algos) {
		command, ok := relay.algos.Lookup(algo)
		if !ok {
			continue
		}
		prober.tasks = append(prober.tasks, &ProbeTask{Kind: ProbeBenchmark, Command: command, Algo: algo})
	}
}

// next 启动下一个任务，全部完成后进入中继模式
func (prober *Prober) next() {
	relay := prober.relay
	for prober.current == nil {
		if len(prober.tasks) < 1 {
			if prober.benchmarksQueued {
				relay.setupComplete()
				return
			}
			if len(relay.algos) < 1 {
				glog.Error(ErrNoMiners.Error())
				relay.exit(1)
				return
			}
			prober.queueBenchmarks()
			continue
		}

		task := prober.tasks[0]
		prober.tasks = prober.tasks[1:]

		algo := task.Algo
		if len(algo) < 1 {
			algo = relay.config.DefaultAlgo
		}
		prober.state = benchmarkState(algo)

		if task.Kind == ProbeBenchmark {
			glog.Info("Benchmarking algo ", task.Algo, " with \"", task.Command, "\", this can take up to ", BenchmarkTimeout)
		} else {
			glog.Info("Checking miner \"", task.Command, "\" (", task.Kind, ")")
		}

		err := relay.supervisor.Start(task.Command)
		if err != nil {
			glog.Warning("Skipping \"", task.Command, "\": ", err.Error())
			continue
		}
		task.timer = relay.schedule(task.timeout(), EventProbeTimeout{task})
		prober.current = task
	}
}

// finish 任务已有结果，结束矿机进程，等待 EventMinerStopped
func (prober *Prober) finish(task *ProbeTask) {
	if task.done {
		return
	}
	task.done = true
	stopTimer(&task.timer)
	prober.relay.supervisor.Stop()
}

func (prober *Prober) minerLogin(miner *MinerConn, msg StratumMessage) {
	relay := prober.relay
	task := prober.current
	if task == nil || task.done {
		miner.writeLines([]Outgoing{miner.mux.ErrorReply(msg, StratumErrPoolNotReady)}, relay.config.IsDebug)
		return
	}

	relay.link = miner
	miner.writeLines(miner.mux.LoginReply(miner, msg, &prober.state), relay.config.IsDebug)

	switch task.Kind {
	case ProbeSmart:
		params := msg.Object("params")
		algos := params.Array("algo")
		if len(algos) < 1 {
			glog.Warning("Miner \"", task.Command, "\" does not report any algo and will be ignored")
		}
		for _, raw := range algos {
			if algo := rawString(raw); len(algo) > 0 {
				relay.algos.Register(algo, task.Command)
			}
		}
		if perf := params.Object("algo-perf"); perf != nil {
			for algo, raw := range perf {
				var rate float64
				if fastJSONUnmarshal(raw, &rate) == nil && rate > 0 && !relay.perf.has(algo) {
					relay.perf.SetMeasured(algo, rate)
				}
			}
		}
		prober.finish(task)
	case ProbeAlgo:
		relay.algos.Register(task.Algo, task.Command)
		prober.finish(task)
	case ProbeBenchmark:
		glog.V(2).Info(miner.id, "benchmark job delivered")
	}
}

// minerMessage 探测阶段矿机的其他请求都在本地应答
func (prober *Prober) minerMessage(miner *MinerConn, msg StratumMessage) {
	debug := prober.relay.config.IsDebug
	if replies, handled := miner.mux.LocalReply(miner, msg, &prober.state, false); handled {
		miner.writeLines(replies, debug)
		return
	}

	method := msg.Method()
	if !IsSubmitMethod(method) && !IsKeepaliveMethod(method) {
		glog.V(2).Info(miner.id, "ignoring ", method, " during probing")
		return
	}

	switch miner.dialect {
	case DialectGrin:
		miner.writeLines([]Outgoing{grinReply(msg.ID(), method, "ok", nil)}, debug)
	case DialectETH:
		miner.writeLines([]Outgoing{&JSONRPCResponse{ID: msg.ID(), Result: true, Error: nil}}, debug)
	default:
		status := "OK"
		if IsKeepaliveMethod(method) {
			status = "KEEPALIVED"
		}
		miner.writeLines([]Outgoing{responseMessage(msg.ID(), JSONRPCObj{"status": status}, nil)}, debug)
	}
}

func (prober *Prober) hashrate(rate float64) {
	task := prober.current
	if task == nil || task.done || task.Kind != ProbeBenchmark {
		return
	}
	task.samples++
	if task.samples < BenchmarkStableSamples {
		glog.V(1).Info("Waiting for a stable hashrate of algo ", task.Algo, ", got ", formatHashrate(rate))
		return
	}
	glog.Info("Benchmarked algo ", task.Algo, ": ", formatHashrate(rate))
	prober.relay.perf.SetMeasured(task.Algo, rate)
	prober.finish(task)
}

func (prober *Prober) timeout(task *ProbeTask) {
	if task != prober.current || task.done {
		return
	}
	task.timer = nil
	if task.Kind == ProbeBenchmark {
		glog.Warning("Benchmark of algo ", task.Algo, " with \"", task.Command, "\" timed out and will be skipped")
	} else {
		glog.Warning("Miner \"", task.Command, "\" did not connect in time and will be ignored")
	}
	prober.finish(task)
}

func (prober *Prober) minerStopped() {
	task := prober.current
	if task == nil {
		return
	}
	if !task.done {
		glog.Warning("Miner \"", task.Command, "\" exited before the ", task.Kind, " finished")
		task.done = true
		stopTimer(&task.timer)
	}
	prober.current = nil
	prober.relay.unlink()
	prober.next()
}

func (prober *Prober) stop() {
	if prober.current != nil {
		stopTimer(&prober.current.timer)
	}
	prober.tasks = nil
}
