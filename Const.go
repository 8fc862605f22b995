package main

import "time"

// PoolStat 矿池连接状态
type PoolStat uint8

const (
	StatConnecting PoolStat = iota
	StatAuthenticating
	StatActive
	StatClosed
	StatErrored
)

func (stat PoolStat) String() string {
	switch stat {
	case StatConnecting:
		return "connecting"
	case StatAuthenticating:
		return "authenticating"
	case StatActive:
		return "active"
	case StatClosed:
		return "closed"
	case StatErrored:
		return "errored"
	}
	return "unknown"
}

// RelayMode 运行阶段
type RelayMode uint8

const (
	ModeProbing RelayMode = iota
	ModeRelay
)

const Version = "v1.0.0"

const AgentName = "Meta Miner " + Version

// DefaultAlgo is assumed for pool jobs that carry no algo field
const DefaultAlgo = "cn/1"

const DefaultMinerHost = "127.0.0.1"
const DefaultMinerPort = 3333

const RelayEventChannelCache = 1024

const PoolDialTimeout = 15 * time.Second
const PoolWriteTimeout = 15 * time.Second
const MinerWriteTimeout = 10 * time.Second

// PoolCooldown 所有矿池都连接失败后，重新从第一个矿池开始之前的等待时间
const PoolCooldown = 60 * time.Second

// MainPoolRetryInterval 连接到备用矿池时，重试主矿池的间隔
const MainPoolRetryInterval = 90 * time.Second

const ProbeTimeout = 60 * time.Second
const BenchmarkTimeout = 5 * time.Minute

// BenchmarkStableSamples is how many hashrate lines a benchmarked miner must
// print before the last one is trusted
const BenchmarkStableSamples = 2

const WatchdogTickInterval = 10 * time.Second

// Accept 失败后的重试间隔，连续失败时翻倍
const AcceptRetryMinDelay = 5 * time.Millisecond
const AcceptRetryMaxDelay = time.Second

// ProcessWaitDelay 矿机退出后，等待仍持有输出管道的子进程的最长时间
const ProcessWaitDelay = 2 * time.Second

const DefaultWatchdogSeconds = 600
const DefaultWatchdogGraceSeconds = 60
const DefaultPoolKeepaliveSeconds = 60

// LoginRequestID 发往矿池的 login 请求固定使用的 id
const LoginRequestID = 1

// relay request ids start right after the login id
const RequestIDBase = LoginRequestID + 1
const RequestIDBits = 16

const GrinJobIDQueueSize = 32

// MaxLineSize 单行 JSON 的最大长度
const MaxLineSize = 1024 * 1024

const ReadBufferSize = 16 * 1024
