package main

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

type fakeAddr string

func (addr fakeAddr) Network() string { return "tcp" }
func (addr fakeAddr) String() string  { return string(addr) }

// fakeConn 记录写入内容的内存连接
type fakeConn struct {
	addr   string
	out    bytes.Buffer
	closed bool
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{addr: addr}
}

func (conn *fakeConn) Read(b []byte) (int, error) { return 0, errors.New("fake conn is write only") }
func (conn *fakeConn) Write(b []byte) (int, error) {
	if conn.closed {
		return 0, net.ErrClosed
	}
	return conn.out.Write(b)
}
func (conn *fakeConn) Close() error                       { conn.closed = true; return nil }
func (conn *fakeConn) LocalAddr() net.Addr                { return fakeAddr("127.0.0.1:3333") }
func (conn *fakeConn) RemoteAddr() net.Addr               { return fakeAddr(conn.addr) }
func (conn *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (conn *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (conn *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// lines 取出目前为止写入的所有行
func (conn *fakeConn) lines(t *testing.T) (msgs []StratumMessage) {
	for _, line := range strings.Split(conn.out.String(), "\n") {
		if len(strings.TrimSpace(line)) < 1 {
			continue
		}
		msg, err := ParseStratumMessage([]byte(line))
		if err != nil {
			t.Errorf("written line is not JSON: %s", line)
			continue
		}
		msgs = append(msgs, msg)
	}
	conn.out.Reset()
	return
}

type fakeTimer struct {
	stopped bool
}

func (timer *fakeTimer) Stop() bool {
	timer.stopped = true
	return true
}

type scheduledEvent struct {
	delay time.Duration
	event interface{}
	timer *fakeTimer
}

type fakeScheduler struct {
	events []scheduledEvent
}

func (scheduler *fakeScheduler) schedule(d time.Duration, event interface{}) Timer {
	timer := &fakeTimer{}
	scheduler.events = append(scheduler.events, scheduledEvent{d, event, timer})
	return timer
}

// find 最后一个未取消的同类型定时器
func (scheduler *fakeScheduler) find(match func(event interface{}) bool) *scheduledEvent {
	for i := len(scheduler.events) - 1; i >= 0; i-- {
		e := &scheduler.events[i]
		if !e.timer.stopped && match(e.event) {
			return e
		}
	}
	return nil
}

type fakeProcess struct {
	pid        int
	command    string
	onOutput   func(string)
	onExit     func(error)
	terminated bool
}

func (proc *fakeProcess) Pid() int { return proc.pid }

func (proc *fakeProcess) TerminateTree() error {
	if proc.terminated {
		return nil
	}
	proc.terminated = true
	proc.onExit(errors.New("signal: killed"))
	return nil
}

// crash 模拟进程意外退出
func (proc *fakeProcess) crash() {
	proc.onExit(errors.New("exit status 1"))
}

type fakeLauncher struct {
	procs []*fakeProcess
	fail  map[string]bool
}

func (launcher *fakeLauncher) Launch(command string, onOutput func(string), onExit func(error)) (MinerProcess, error) {
	if launcher.fail[command] {
		return nil, errors.New("executable file not found")
	}
	proc := &fakeProcess{
		pid:      1000 + len(launcher.procs),
		command:  command,
		onOutput: onOutput,
		onExit:   onExit,
	}
	launcher.procs = append(launcher.procs, proc)
	return proc, nil
}

func (launcher *fakeLauncher) commands() (commands []string) {
	for _, proc := range launcher.procs {
		commands = append(commands, proc.command)
	}
	return
}

func (launcher *fakeLauncher) last() *fakeProcess {
	if len(launcher.procs) < 1 {
		return nil
	}
	return launcher.procs[len(launcher.procs)-1]
}

type testRelay struct {
	*Relay
	launcher  *fakeLauncher
	scheduler *fakeScheduler
	dialed    []*PoolSession
	exitCodes []int
	clock     time.Time
}

func newTestRelay(config *Config) *testRelay {
	config.Init()
	endpoints, _ := config.PoolEndpoints()
	tr := &testRelay{
		launcher:  &fakeLauncher{},
		scheduler: &fakeScheduler{},
		clock:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	tr.Relay = NewRelay(config, "", endpoints, tr.launcher)
	tr.now = func() time.Time { return tr.clock }
	tr.schedule = tr.scheduler.schedule
	tr.dialPool = func(session *PoolSession) { tr.dialed = append(tr.dialed, session) }
	tr.startPoolReader = func(session *PoolSession) {}
	tr.startMinerReader = func(miner *MinerConn) {}
	tr.exit = func(code int) { tr.exitCodes = append(tr.exitCodes, code) }
	tr.output = &bytes.Buffer{}
	tr.supervisor.terminate = func(proc MinerProcess) { proc.TerminateTree() }
	return tr
}

// drain 处理事件通道中排队的所有事件
func (tr *testRelay) drain() {
	for {
		select {
		case event := <-tr.eventChannel:
			tr.dispatch(event)
		default:
			return
		}
	}
}

func (tr *testRelay) send(event interface{}) {
	tr.dispatch(event)
	tr.drain()
}

func (tr *testRelay) advance(d time.Duration) {
	tr.clock = tr.clock.Add(d)
}

// connectLastDial 让最后一次拨号成功并返回矿池端的连接
func (tr *testRelay) connectLastDial() (*PoolSession, *fakeConn) {
	session := tr.dialed[len(tr.dialed)-1]
	conn := newFakeConn(session.endpoint.Addr())
	tr.send(EventPoolConnection{session, conn, nil})
	return session, conn
}

func (tr *testRelay) poolSays(session *PoolSession, line string) {
	tr.send(EventPoolLine{session, []byte(line)})
}

func (tr *testRelay) connectMiner() (*MinerConn, *fakeConn) {
	conn := newFakeConn("127.0.0.1:50000")
	tr.send(EventMinerConnected{conn})
	return tr.miner, conn
}

func (tr *testRelay) minerSays(miner *MinerConn, line string) {
	tr.send(EventMinerLine{miner, []byte(line)})
}
