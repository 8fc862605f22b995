package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/golang/glog"
)

// stringList 可以重复指定的命令行参数
type stringList []string

func (list *stringList) String() string {
	return strings.Join(*list, ",")
}

func (list *stringList) Set(value string) error {
	*list = append(*list, value)
	return nil
}

// splitPair 解析 key=value
func splitPair(value string) (key string, val string, err error) {
	pos := strings.Index(value, "=")
	if pos < 1 {
		err = fmt.Errorf("'%s' should be in <algo>=<value> format", value)
		return
	}
	return strings.TrimSpace(value[:pos]), strings.TrimSpace(value[pos+1:]), nil
}

func defaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "mm.json"
	}
	return filepath.Join(filepath.Dir(exe), "mm.json")
}

func fatal(args ...interface{}) {
	glog.Error(args...)
	glog.Flush()
	os.Exit(1)
}

func main() {
	// 解析命令行参数
	var pools, perfs, smartMiners, algoMiners stringList
	configFilePath := flag.String("c", defaultConfigPath(), "Path of config file")
	logDir := flag.String("l", "", "Log directory")
	flag.Var(&pools, "pool", "Pool address <host>:<port> or <host>:ssl<port>, can be repeated")
	host := flag.String("host", "", "Miner listen host")
	port := flag.Uint("port", 0, "Miner listen port")
	user := flag.String("user", "", "Pool user")
	pass := flag.String("pass", "", "Pool password")
	flag.Var(&perfs, "perf", "Algo performance <algo>=<hashrate>, can be repeated")
	flag.Var(&smartMiners, "miner", "Miner command line that reports its algos, can be repeated")
	flag.Var(&algoMiners, "algo", "Miner command line for one algo <algo>=<command line>, can be repeated")
	watchdog := flag.Int("watchdog", -1, "Restart the miner after this many seconds without shares (0 disables)")
	hashrateWatchdog := flag.Int("hashrate_watchdog", -1, "Restart the miner when its hashrate drops below this percent of the benchmark (0 disables)")
	quiet := flag.Bool("quiet", false, "Quiet mode")
	debug := flag.Bool("debug", false, "Log pool and miner traffic")
	logFile := flag.String("log", "", "Append miner output to this file")
	noConfigSave := flag.Bool("no-config-save", false, "Do not save the config after setup")
	flag.Parse()

	if *logDir == "" || *logDir == "stderr" {
		flag.Lookup("logtostderr").Value.Set("true")
	} else {
		flag.Lookup("log_dir").Value.Set(*logDir)
	}
	defer glog.Flush()

	glog.Info(AgentName)

	// 读取配置文件
	config := NewConfig()
	configNamed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "c" {
			configNamed = true
		}
	})
	err := config.LoadFromFile(*configFilePath)
	if err != nil {
		if configNamed || !os.IsNotExist(err) {
			fatal("load config ", *configFilePath, " failed: ", err)
		}
		glog.Info("config ", *configFilePath, " not found, using command line options")
	}

	// 命令行参数覆盖配置文件
	config.Pools = append(config.Pools, pools...)
	if len(*host) > 0 {
		config.MinerHost = *host
	}
	if *port > 0 {
		if *port > 65535 {
			fatal("invalid miner port ", *port)
		}
		config.MinerPort = uint16(*port)
	}
	if len(*user) > 0 {
		config.User = *user
	}
	if len(*pass) > 0 {
		config.Pass = *pass
	}
	if *watchdog >= 0 {
		config.Watchdog = *watchdog
	}
	if *hashrateWatchdog >= 0 {
		config.HashrateWatchdog = *hashrateWatchdog
	}
	if *quiet {
		config.IsQuietMode = true
	}
	if *debug {
		config.IsDebug = true
	}
	if len(*logFile) > 0 {
		config.LogFile = *logFile
	}
	if *noConfigSave {
		config.IsNoConfigSave = true
	}
	config.Init()

	for _, perf := range perfs {
		algo, value, err := splitPair(perf)
		if err != nil {
			fatal("-perf: ", err)
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 {
			fatal("-perf: invalid hashrate '", value, "'")
		}
		config.AlgoPerf[algo] = rate
	}
	config.SmartMiners = append(config.SmartMiners, smartMiners...)
	for _, algoMiner := range algoMiners {
		algo, command, err := splitPair(algoMiner)
		if err != nil {
			fatal("-algo: ", err)
		}
		config.AlgoMiners[algo] = command
	}

	err = config.Validate()
	if err != nil {
		fatal(err.Error())
	}

	endpoints, errs := config.PoolEndpoints()
	for _, err := range errs {
		glog.Warning("Ignoring ", err.Error())
	}
	if len(endpoints) < 1 {
		fatal(ErrNoPools.Error())
	}

	relay := NewRelay(config, *configFilePath, endpoints, OSProcessLauncher{})
	if len(config.LogFile) > 0 {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fatal("open log file ", config.LogFile, " failed: ", err)
		}
		defer file.Close()
		relay.output = io.MultiWriter(os.Stdout, file)
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalChannel
		glog.Info("received signal ", sig)
		relay.SendEvent(EventExit{})
	}()

	// 运行中继
	err = relay.Run()
	if err != nil {
		fatal("listen on ", config.ListenAddr(), " failed: ", err)
	}
}
