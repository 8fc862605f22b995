package main

import (
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
)

// Outgoing 可以序列化为一行 JSON 的消息
type Outgoing interface {
	ToJSONBytesLine() ([]byte, error)
}

// MinerConn 到矿机的 TCP 连接
type MinerConn struct {
	id      string
	conn    net.Conn
	framer  *LineFramer
	dialect Dialect
	mux     Multiplexer
	closed  bool

	// grin 矿机只接受数字任务 id
	grinJobs *JobIDQueue
	// 最后一次发给 eth 矿机的 target
	lastTarget string
	// 矿机登录时上报的名称
	agent string
}

func NewMinerConn(conn net.Conn) *MinerConn {
	miner := new(MinerConn)
	miner.conn = conn
	miner.id = fmt.Sprintf("miner (%s) ", conn.RemoteAddr())
	miner.framer = NewLineFramer(miner.id)
	miner.grinJobs = NewJobIDQueue(GrinJobIDQueueSize)
	return miner
}

func (miner *MinerConn) ID() string {
	return miner.id
}

// bindDialect 方言在连接的第一条消息上确定，之后不再改变
func (miner *MinerConn) bindDialect(dialect Dialect) {
	if miner.mux != nil {
		return
	}
	miner.mux = NewMultiplexer(dialect)
	miner.dialect = miner.mux.Dialect()
	glog.V(3).Info(miner.id, "dialect: ", miner.dialect)
}

func (miner *MinerConn) readLoop(post func(event interface{})) {
	err := readLines(miner.conn, miner.framer, func(line []byte) {
		post(EventMinerLine{miner, line})
	})
	post(EventMinerBroken{miner, err})
}

func (miner *MinerConn) writeLine(msg Outgoing) error {
	if miner.closed {
		return net.ErrClosed
	}
	bytes, err := msg.ToJSONBytesLine()
	if err != nil {
		return err
	}
	miner.conn.SetWriteDeadline(time.Now().Add(MinerWriteTimeout))
	_, err = miner.conn.Write(bytes)
	return err
}

func (miner *MinerConn) writeLines(msgs []Outgoing, debug bool) (err error) {
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		err = miner.writeLine(msg)
		if err != nil {
			glog.Error(miner.id, "write failed: ", err.Error())
			return
		}
		if debug || bool(glog.V(9)) {
			bytes, _ := msg.ToJSONBytesLine()
			glog.Info(miner.id, "<- ", string(bytes))
		}
	}
	return
}

func (miner *MinerConn) close() {
	if miner.closed {
		return
	}
	miner.closed = true
	miner.conn.Close()
}
