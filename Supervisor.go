package main

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

// Supervisor 管理唯一的矿机进程。
// 只在事件循环中调用，进程的输出和退出通过 post 回到事件循环。
//
//	idle -> running(cmd) -> killing(pending) -> running(pending) | idle
type Supervisor struct {
	launcher ProcessLauncher
	post     func(event interface{})
	now      func() time.Time

	command    string
	proc       MinerProcess
	generation uint64
	startedAt  time.Time

	// 已请求结束当前进程，等待它的退出通知
	killing    bool
	pending    string
	hasPending bool

	// autoRestart 判断意外退出的进程是否需要立即重启（有矿池会话时）
	autoRestart func() bool
	// terminate 结束进程树，默认在 goroutine 中执行
	terminate func(proc MinerProcess)
}

func NewSupervisor(launcher ProcessLauncher, post func(event interface{}), now func() time.Time) *Supervisor {
	sup := &Supervisor{
		launcher:    launcher,
		post:        post,
		now:         now,
		autoRestart: func() bool { return false },
	}
	sup.terminate = func(proc MinerProcess) {
		go func() {
			if err := proc.TerminateTree(); err != nil {
				glog.Warning("process#", proc.Pid(), " terminate failed: ", err.Error())
			}
		}()
	}
	return sup
}

func (sup *Supervisor) id() string {
	return fmt.Sprintf("process#%d ", sup.generation)
}

func (sup *Supervisor) Running() bool {
	return sup.proc != nil
}

func (sup *Supervisor) Idle() bool {
	return sup.proc == nil && !sup.killing
}

// Command 当前（或即将）运行的命令
func (sup *Supervisor) Command() string {
	if sup.hasPending {
		return sup.pending
	}
	if sup.killing {
		return ""
	}
	return sup.command
}

func (sup *Supervisor) StartedAt() time.Time {
	return sup.startedAt
}

func (sup *Supervisor) IsCurrent(generation uint64) bool {
	return sup.proc != nil && generation == sup.generation
}

// Start 启动命令，已有进程时返回错误
func (sup *Supervisor) Start(command string) error {
	if !sup.Idle() {
		return fmt.Errorf("%sstill running \"%s\"", sup.id(), sup.command)
	}
	return sup.spawn(command)
}

func (sup *Supervisor) spawn(command string) error {
	sup.generation++
	generation := sup.generation
	post := sup.post

	proc, err := sup.launcher.Launch(command,
		func(line string) { post(EventProcessOutput{generation, line}) },
		func(err error) { post(EventProcessExit{generation, err}) },
	)
	if err != nil {
		glog.Error(sup.id(), "failed to start \"", command, "\": ", err.Error())
		sup.proc = nil
		sup.command = ""
		return err
	}

	sup.proc = proc
	sup.command = command
	sup.startedAt = sup.now()
	glog.Info(sup.id(), "Starting miner: ", command, " (pid ", proc.Pid(), ")")
	return nil
}

func (sup *Supervisor) kill() {
	if sup.proc == nil || sup.killing {
		return
	}
	sup.killing = true
	glog.Info(sup.id(), "Stopping miner: ", sup.command)
	sup.terminate(sup.proc)
}

// Switch 切换到 command。正在结束旧进程时只记住最后一次请求的命令
func (sup *Supervisor) Switch(command string) {
	if sup.killing {
		sup.pending = command
		sup.hasPending = true
		return
	}
	if sup.proc != nil {
		if sup.command == command {
			return
		}
		sup.pending = command
		sup.hasPending = true
		sup.kill()
		return
	}
	sup.spawn(command)
}

// Restart 结束并重新启动当前命令
func (sup *Supervisor) Restart() {
	command := sup.Command()
	if len(command) < 1 {
		return
	}
	if sup.proc == nil {
		sup.spawn(command)
		return
	}
	sup.pending = command
	sup.hasPending = true
	sup.kill()
}

// Stop 结束进程，之后 post EventMinerStopped
func (sup *Supervisor) Stop() {
	sup.hasPending = false
	sup.pending = ""
	if sup.proc == nil {
		if !sup.killing {
			sup.post(EventMinerStopped{})
		}
		return
	}
	sup.kill()
}

// Shutdown 同步结束进程树，程序退出前调用
func (sup *Supervisor) Shutdown() {
	sup.hasPending = false
	if sup.proc == nil {
		return
	}
	if err := sup.proc.TerminateTree(); err != nil {
		glog.Warning(sup.id(), "terminate failed: ", err.Error())
	}
	sup.proc = nil
}

// HandleExit 处理进程退出通知，过期的通知被忽略
func (sup *Supervisor) HandleExit(e EventProcessExit) {
	if !sup.IsCurrent(e.Generation) {
		glog.V(3).Info("process#", e.Generation, " stale exit ignored")
		return
	}

	command := sup.command
	sup.proc = nil
	status := "exited"
	if e.Err != nil {
		status = e.Err.Error()
	}

	if sup.killing {
		sup.killing = false
		glog.Info(sup.id(), "Miner stopped (", status, ")")
		if sup.hasPending {
			next := sup.pending
			sup.hasPending = false
			sup.pending = ""
			sup.spawn(next)
			return
		}
		sup.command = ""
		sup.post(EventMinerStopped{})
		return
	}

	if sup.autoRestart() {
		glog.Warning(sup.id(), "Miner \"", command, "\" exited unexpectedly (", status, "), restarting it")
		sup.spawn(command)
		return
	}

	glog.Info(sup.id(), "Miner \"", command, "\" exited (", status, ")")
	sup.command = ""
	sup.post(EventMinerStopped{})
}
