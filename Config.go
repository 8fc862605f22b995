package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"time"
)

type Config struct {
	MinerHost        string    `json:"miner_host"`
	MinerPort        uint16    `json:"miner_port"`
	Pools            []string  `json:"pools"`
	Algos            AlgoTable `json:"algos"`
	AlgoPerf         PerfTable `json:"algo_perf"`
	AlgoMinTime      int       `json:"algo_min_time"`
	User             string    `json:"user"`
	Pass             string    `json:"pass"`
	DefaultAlgo      string    `json:"default_algo"`
	Watchdog         int       `json:"watchdog"`
	HashrateWatchdog int       `json:"hashrate_watchdog"`
	WatchdogGrace    int       `json:"watchdog_grace"`
	PoolKeepalive    int       `json:"pool_keepalive"`
	Proxy            string    `json:"proxy"`
	UseEnvProxy      bool      `json:"use_env_proxy"`
	LogFile          string    `json:"log_file"`
	IsQuietMode      bool      `json:"is_quiet_mode"`
	IsDebug          bool      `json:"is_debug"`
	IsNoConfigSave   bool      `json:"is_no_config_save"`

	// only from the command line, probed at startup and never persisted
	SmartMiners []string          `json:"-"`
	AlgoMiners  map[string]string `json:"-"`
}

// NewConfig 返回带默认值的配置，配置文件中的字段会覆盖它们
func NewConfig() *Config {
	return &Config{
		MinerHost:     DefaultMinerHost,
		MinerPort:     DefaultMinerPort,
		Algos:         AlgoTable{},
		AlgoPerf:      PerfTable{},
		DefaultAlgo:   DefaultAlgo,
		Watchdog:      DefaultWatchdogSeconds,
		WatchdogGrace: DefaultWatchdogGraceSeconds,
		PoolKeepalive: DefaultPoolKeepaliveSeconds,
		AlgoMiners:    map[string]string{},
	}
}

// LoadFromFile 从文件载入配置
func (conf *Config) LoadFromFile(file string) (err error) {
	configJSON, err := ioutil.ReadFile(file)
	if err != nil {
		return
	}
	err = json.Unmarshal(configJSON, conf)
	return
}

// SaveToFile writes the resolved configuration, including the probed algo
// and perf tables, back to the file
func (conf *Config) SaveToFile(file string) error {
	configJSON, err := conf.ToJSON()
	if err != nil {
		return err
	}
	return ioutil.WriteFile(file, configJSON, 0644)
}

func (conf *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(conf, "", " ")
}

func (conf *Config) Init() {
	if conf.Algos == nil {
		conf.Algos = AlgoTable{}
	}
	if conf.AlgoPerf == nil {
		conf.AlgoPerf = PerfTable{}
	}
	if conf.AlgoMiners == nil {
		conf.AlgoMiners = map[string]string{}
	}
	if len(conf.MinerHost) < 1 {
		conf.MinerHost = DefaultMinerHost
	}
	if conf.MinerPort == 0 {
		conf.MinerPort = DefaultMinerPort
	}
	if len(conf.DefaultAlgo) < 1 {
		conf.DefaultAlgo = DefaultAlgo
	}
	if conf.Watchdog < 0 {
		conf.Watchdog = 0
	}
	if conf.HashrateWatchdog < 0 {
		conf.HashrateWatchdog = 0
	}
	if conf.WatchdogGrace < 0 {
		conf.WatchdogGrace = 0
	}
	if conf.PoolKeepalive < 0 {
		conf.PoolKeepalive = 0
	}
	conf.User = strings.TrimSpace(conf.User)
	conf.Pass = strings.TrimSpace(conf.Pass)
}

// PoolEndpoints parses the pool list, invalid entries are reported and skipped
func (conf *Config) PoolEndpoints() (endpoints []PoolEndpoint, errs []error) {
	for _, addr := range conf.Pools {
		ep, err := ParsePoolEndpoint(addr)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool '%s': %w", addr, err))
			continue
		}
		endpoints = append(endpoints, ep)
	}
	return
}

func (conf *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", conf.MinerHost, conf.MinerPort)
}

func (conf *Config) WatchdogTimeout() time.Duration {
	return time.Duration(conf.Watchdog) * time.Second
}

func (conf *Config) WatchdogGracePeriod() time.Duration {
	return time.Duration(conf.WatchdogGrace) * time.Second
}

func (conf *Config) KeepaliveInterval() time.Duration {
	return time.Duration(conf.PoolKeepalive) * time.Second
}

// ProxyURL 返回连接矿池使用的代理，为空表示直连
func (conf *Config) ProxyURL() string {
	if len(conf.Proxy) > 0 || !conf.UseEnvProxy {
		return conf.Proxy
	}
	return GetProxyURLFromEnv()
}

// PinnedAlgos 命令行中指定了算法的矿机，按算法名排序
func (conf *Config) PinnedAlgos() []string {
	algos := make([]string, 0, len(conf.AlgoMiners))
	for algo := range conf.AlgoMiners {
		algos = append(algos, algo)
	}
	sort.Strings(algos)
	return algos
}

// Validate reports configuration that makes running pointless
func (conf *Config) Validate() error {
	if len(conf.Pools) < 1 {
		return ErrNoPools
	}
	if len(conf.Algos) < 1 && len(conf.SmartMiners) < 1 && len(conf.AlgoMiners) < 1 {
		return ErrNoMiners
	}
	return nil
}
