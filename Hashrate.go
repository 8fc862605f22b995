package main

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

type hashrateFormat struct {
	name  string
	regex *regexp.Regexp
}

// hashrateFormats 按顺序匹配，第一个捕获组是数值，第二个（如果有）是单位前缀
var hashrateFormats = []hashrateFormat{
	{"xmrig-old", regexp.MustCompile(`\[[^\]]+\] speed 2\.5s/60s/15m [\d\.]+ ([\d\.]+)`)},
	{"xmrig", regexp.MustCompile(`speed 10s/60s/15m (?:[\d\.]+|n/a) ([\d\.]+)`)},
	{"xmr-stak", regexp.MustCompile(`Totals \(ALL\):\s+([\d\.]+)`)},
	{"grin", regexp.MustCompile(`Graphs per second:\s*([\d\.]+)`)},
	{"generic", regexp.MustCompile(`(?i)([\d\.]+)\s*([kmg]?)h/s`)},
}

// ParseHashrate 从一行矿机输出中提取算力 (H/s)
func ParseHashrate(line string) (rate float64, ok bool) {
	line = StripANSI(line)
	for _, format := range hashrateFormats {
		match := format.regex.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if len(match) > 2 {
			switch strings.ToLower(match[2]) {
			case "k":
				value *= 1e3
			case "m":
				value *= 1e6
			case "g":
				value *= 1e9
			}
		}
		return value, true
	}
	return 0, false
}

func formatHashrate(rate float64) string {
	return humanize.SIWithDigits(rate, 2, "H/s")
}
