package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// PoolEndpoint 矿池地址，端口前加 ssl 表示使用 TLS
type PoolEndpoint struct {
	Host   string
	Port   uint16
	UseTLS bool
}

// ParsePoolEndpoint 解析 host:port 或 host:sslPORT
func ParsePoolEndpoint(addr string) (endpoint PoolEndpoint, err error) {
	addr = strings.TrimSpace(addr)
	pos := strings.LastIndex(addr, ":")
	if pos < 1 || pos == len(addr)-1 {
		err = ErrInvalidPoolAddress
		return
	}

	endpoint.Host = strings.Trim(addr[:pos], "[]")
	portStr := addr[pos+1:]
	if strings.HasPrefix(strings.ToLower(portStr), "ssl") {
		endpoint.UseTLS = true
		portStr = portStr[3:]
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		err = ErrInvalidPoolAddress
		return
	}
	endpoint.Port = uint16(port)
	return
}

func (endpoint PoolEndpoint) Addr() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(int(endpoint.Port)))
}

func (endpoint PoolEndpoint) String() string {
	if endpoint.UseTLS {
		return "tls://" + endpoint.Addr()
	}
	return endpoint.Addr()
}

// PoolSession 一次到矿池的连接
type PoolSession struct {
	id         string // 打印日志用的连接标识符
	index      int
	endpoint   PoolEndpoint
	background bool // 连接备用矿池时在后台重试主矿池

	conn   net.Conn
	framer *LineFramer
	stat   PoolStat

	JobState JobState

	lastMinerTraffic time.Time
}

func NewPoolSession(index int, endpoint PoolEndpoint, background bool) (session *PoolSession) {
	session = new(PoolSession)
	session.index = index
	session.endpoint = endpoint
	session.background = background
	session.id = fmt.Sprintf("pool#%d [%s] ", index, endpoint)
	session.framer = NewLineFramer(session.id)
	session.stat = StatConnecting
	return
}

func (session *PoolSession) ID() string {
	return session.id
}

func (session *PoolSession) IsActive() bool {
	return session.stat == StatActive
}

func (session *PoolSession) attach(conn net.Conn) {
	session.conn = conn
	session.stat = StatAuthenticating
	session.id += fmt.Sprintf("(%s) ", conn.RemoteAddr())
	session.framer = NewLineFramer(session.id)
}

func (session *PoolSession) readLoop(post func(event interface{})) {
	err := readLines(session.conn, session.framer, func(line []byte) {
		post(EventPoolLine{session, line})
	})
	post(EventPoolBroken{session, err})
}

func (session *PoolSession) writeLine(msg Outgoing, debug bool) error {
	if session.conn == nil || session.stat == StatClosed || session.stat == StatErrored {
		return net.ErrClosed
	}
	bytes, err := msg.ToJSONBytesLine()
	if err != nil {
		return err
	}
	if debug || bool(glog.V(9)) {
		glog.Info(session.id, "-> ", strings.TrimSpace(string(bytes)))
	}
	session.conn.SetWriteDeadline(time.Now().Add(PoolWriteTimeout))
	_, err = session.conn.Write(bytes)
	return err
}

type poolLoginParams struct {
	Login       string    `json:"login"`
	Pass        string    `json:"pass"`
	Agent       string    `json:"agent"`
	Algo        []string  `json:"algo"`
	AlgoPerf    PerfTable `json:"algo-perf"`
	AlgoMinTime int       `json:"algo-min-time,omitempty"`
}

// sendLogin 发送带有算法扩展字段的 login 请求
func (session *PoolSession) sendLogin(conf *Config, algos AlgoTable, perf PerfTable) error {
	request := JSONRPCRequest{
		ID:      LoginRequestID,
		JSONRPC: "2.0",
		Method:  "login",
		Params: poolLoginParams{
			Login:       conf.User,
			Pass:        conf.Pass,
			Agent:       AgentName,
			Algo:        algos.Keys(),
			AlgoPerf:    perf,
			AlgoMinTime: conf.AlgoMinTime,
		},
	}
	return session.writeLine(&request, conf.IsDebug)
}

func (session *PoolSession) close(stat PoolStat) {
	if session.stat == StatClosed || session.stat == StatErrored {
		return
	}
	session.stat = stat
	if session.conn != nil {
		session.conn.Close()
	}
}
