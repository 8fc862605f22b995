package main

import (
	"sort"
	"strings"

	"github.com/golang/glog"
)

// AlgoTable 算法 -> 矿机命令行
type AlgoTable map[string]string

// PerfTable 算法 -> 算力 (H/s)
type PerfTable map[string]float64

// algoAliases 同一算法的别名：cryptonight 与 cn 两种写法
func algoAliases(algo string) []string {
	aliases := []string{algo}
	for _, alias := range []string{
		strings.Replace(algo, "cryptonight", "cn", 1),
		strings.Replace(algo, "cn", "cryptonight", 1),
	} {
		if alias != algo && alias != aliases[len(aliases)-1] {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// Register 为算法及其别名登记矿机命令，已登记的算法不会被覆盖
func (table AlgoTable) Register(algo string, command string) bool {
	if _, ok := table[algo]; ok {
		glog.Warning("Algo ", algo, " is already set to miner \"", table[algo], "\", ignoring \"", command, "\"")
		return false
	}
	for _, alias := range algoAliases(algo) {
		table[alias] = command
	}
	glog.Info("Setting ", algo, " algo to miner \"", command, "\"")
	return true
}

func (table AlgoTable) Lookup(algo string) (command string, ok bool) {
	command, ok = table[algo]
	return
}

// Keys 排序后的算法列表
func (table AlgoTable) Keys() []string {
	keys := make([]string, 0, len(table))
	for algo := range table {
		keys = append(keys, algo)
	}
	sort.Strings(keys)
	return keys
}

type perfSibling struct {
	Algo  string
	Ratio float64
}

// perfDerivations 测量代表算法即可按固定比例得到同族算法的算力
var perfDerivations = map[string][]perfSibling{
	"cn/r": {
		{"cn/2", 1}, {"cn/1", 1}, {"cn/0", 1},
		{"cn/half", 2},
		{"cn/rwz", 4.0 / 3}, {"cn/zls", 4.0 / 3},
		{"cn/double", 0.5},
	},
	"cn-lite/1": {
		{"cn-lite/0", 1},
	},
	"cn-heavy/xhv": {
		{"cn-heavy/0", 1}, {"cn-heavy/tube", 1},
	},
	"cn-pico": {
		{"cn-pico/trtl", 1}, {"cn-pico/tlo", 1},
	},
	"rx/0": {
		{"rx/sfx", 1},
	},
	"c29s": {
		{"c29v", 1},
	},
}

// normalizeAlgo 把别名统一为短写法
func normalizeAlgo(algo string) string {
	return strings.Replace(algo, "cryptonight", "cn", 1)
}

// BenchmarkAlgo 返回测量 algo 时实际运行的代表算法
func BenchmarkAlgo(algo string) string {
	algo = normalizeAlgo(algo)
	if _, ok := perfDerivations[algo]; ok {
		return algo
	}
	for representative, siblings := range perfDerivations {
		for _, sibling := range siblings {
			if sibling.Algo == algo {
				return representative
			}
		}
	}
	return algo
}

func (table PerfTable) has(algo string) bool {
	for _, alias := range algoAliases(algo) {
		if rate, ok := table[alias]; ok && rate > 0 {
			return true
		}
	}
	return false
}

func (table PerfTable) setIfMissing(algo string, rate float64) {
	if table.has(algo) {
		return
	}
	table[algo] = rate
	glog.Info("Setting ", algo, " algo perf to ", formatHashrate(rate))
}

// Rate 返回算法（或其别名）的算力
func (table PerfTable) Rate(algo string) float64 {
	for _, alias := range algoAliases(algo) {
		if rate, ok := table[alias]; ok && rate > 0 {
			return rate
		}
	}
	return 0
}

// SetMeasured 登记测量结果并推导同族算法，已有的非零值不会被覆盖
func (table PerfTable) SetMeasured(algo string, rate float64) {
	if rate <= 0 {
		return
	}
	algo = normalizeAlgo(algo)
	table.setIfMissing(algo, rate)
	for _, sibling := range perfDerivations[algo] {
		table.setIfMissing(sibling.Algo, rate*sibling.Ratio)
	}
}

// FillDerived 用已配置的代表算法算力补全同族算法
func (table PerfTable) FillDerived() {
	for representative, siblings := range perfDerivations {
		rate := table.Rate(representative)
		if rate <= 0 {
			continue
		}
		for _, sibling := range siblings {
			table.setIfMissing(sibling.Algo, rate*sibling.Ratio)
		}
	}
}

// MissingBenchmarks 返回需要测量的代表算法及其命令，不重复
func (table PerfTable) MissingBenchmarks(algos AlgoTable) (missing []string) {
	seen := map[string]bool{}
	for _, algo := range algos.Keys() {
		if table.has(algo) {
			continue
		}
		representative := BenchmarkAlgo(algo)
		if table.has(representative) {
			continue
		}
		if _, ok := algos[representative]; !ok {
			// 代表算法没有矿机，只能直接测量这个算法
			representative = algo
		}
		key := normalizeAlgo(representative)
		if seen[key] {
			continue
		}
		seen[key] = true
		missing = append(missing, representative)
	}
	return
}
