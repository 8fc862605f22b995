package main

import (
	"bufio"
	"errors"
	"io"
	"os/exec"

	"github.com/golang/glog"
)

// MinerProcess 一个正在运行的矿机进程
type MinerProcess interface {
	Pid() int
	// TerminateTree 结束进程以及它启动的所有子进程
	TerminateTree() error
}

// ProcessLauncher 启动矿机进程。onOutput 和 onExit 在其他 goroutine 中调用
type ProcessLauncher interface {
	Launch(command string, onOutput func(line string), onExit func(err error)) (MinerProcess, error)
}

// OSProcessLauncher 通过操作系统启动矿机
type OSProcessLauncher struct{}

type osProcess struct {
	cmd *exec.Cmd
}

func (proc *osProcess) Pid() int {
	return proc.cmd.Process.Pid
}

func (proc *osProcess) TerminateTree() error {
	return terminateTree(proc.cmd.Process)
}

func (OSProcessLauncher) Launch(command string, onOutput func(line string), onExit func(err error)) (MinerProcess, error) {
	name, args, err := SplitCommandLine(command)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	configureChildProcess(cmd)

	// stdout 与 stderr 共用一个管道。矿机派生的子进程可能一直持有它，
	// 所以退出通知不能等管道关闭，由 WaitDelay 限定等待时间
	reader, writer := io.Pipe()
	cmd.Stdout = writer
	cmd.Stderr = writer
	cmd.WaitDelay = ProcessWaitDelay

	err = cmd.Start()
	if err != nil {
		writer.Close()
		return nil, err
	}

	drained := make(chan struct{})
	go func() {
		scanOutput(reader, onOutput)
		close(drained)
	}()

	go func() {
		err := cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			err = nil
		}
		writer.Close()
		<-drained
		onExit(err)
	}()

	return &osProcess{cmd}, nil
}

func scanOutput(reader io.Reader, onOutput func(line string)) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, ReadBufferSize), MaxLineSize)
	for scanner.Scan() {
		onOutput(StripANSI(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		glog.V(3).Info("miner output: ", err.Error())
		// keep draining so the process never blocks on a full pipe
		io.Copy(io.Discard, reader)
	}
}
