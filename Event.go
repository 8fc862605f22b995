package main

import "net"

type EventExit struct{}

// pool side

type EventPoolConnection struct {
	Session *PoolSession
	Conn    net.Conn
	Err     error
}

type EventPoolLine struct {
	Session *PoolSession
	Line    []byte
}

type EventPoolBroken struct {
	Session *PoolSession
	Err     error
}

type EventPoolCooldownDone struct{}

type EventMainPoolRetry struct{}

type EventKeepaliveTick struct{}

// miner side

type EventMinerConnected struct {
	Conn net.Conn
}

type EventMinerLine struct {
	Conn *MinerConn
	Line []byte
}

type EventMinerBroken struct {
	Conn *MinerConn
	Err  error
}

// process side

type EventProcessOutput struct {
	Generation uint64
	Line       string
}

type EventProcessExit struct {
	Generation uint64
	Err        error
}

// EventMinerStopped is posted when the supervisor has no process left and
// nothing queued to start
type EventMinerStopped struct{}

type EventWatchdogTick struct{}

type EventProbeTimeout struct {
	Task *ProbeTask
}
