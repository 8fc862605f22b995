package main

import (
	"errors"
	"os"

	"github.com/golang/glog"
	"github.com/shirou/gopsutil/v3/process"
)

// descendants 广度优先遍历子进程，越靠后层级越深
func descendants(pid int) (procs []*process.Process) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	queue := []*process.Process{root}
	seen := map[int32]bool{root.Pid: true}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children, err := parent.Children()
		if err != nil {
			if !errors.Is(err, process.ErrorNoChildren) {
				glog.V(3).Info("process#", parent.Pid, " children: ", err.Error())
			}
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			procs = append(procs, child)
			queue = append(queue, child)
		}
	}
	return
}

// terminateTree 结束进程树。子进程必须在父进程退出前枚举，否则会被过继给 init
func terminateTree(root *os.Process) (err error) {
	children := descendants(root.Pid)

	err = root.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}

	// leaves first
	for i := len(children) - 1; i >= 0; i-- {
		if killErr := children[i].Kill(); killErr != nil {
			glog.V(3).Info("process#", children[i].Pid, " kill: ", killErr.Error())
		}
	}

	if groupErr := killProcessGroup(root.Pid); groupErr != nil && err == nil {
		err = groupErr
	}
	return
}
