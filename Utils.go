package main

import (
	"regexp"
	"strings"
)

var commandTokenRegexp = regexp.MustCompile(`"[^"]*"|'[^']*'|\S+`)

// SplitCommandLine 拆分矿机命令行，支持单引号和双引号，引号本身被去掉。
// 反斜杠不是转义字符，Windows 路径可以原样书写。
func SplitCommandLine(command string) (name string, args []string, err error) {
	tokens := commandTokenRegexp.FindAllString(command, -1)
	if len(tokens) < 1 {
		err = ErrEmptyCommand
		return
	}
	for i, token := range tokens {
		if len(token) >= 2 && (token[0] == '"' || token[0] == '\'') && token[len(token)-1] == token[0] {
			tokens[i] = token[1 : len(token)-1]
		}
	}
	name = tokens[0]
	args = tokens[1:]
	return
}

var ansiEscapeRegexp = regexp.MustCompile("\x1b\\[[0-9;?]*[ -/]*[@-~]")

// StripANSI 去掉矿机输出中的颜色控制符
func StripANSI(line string) string {
	return ansiEscapeRegexp.ReplaceAllString(line, "")
}

func HexRemovePrefix(hexStr string) string {
	if len(hexStr) >= 2 && (hexStr[:2] == "0x" || hexStr[:2] == "0X") {
		return hexStr[2:]
	}
	return hexStr
}

func HexAddPrefix(hexStr string) string {
	if len(hexStr) >= 2 && strings.EqualFold(hexStr[:2], "0x") {
		return hexStr
	}
	return "0x" + hexStr
}
