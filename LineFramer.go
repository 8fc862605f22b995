package main

import (
	"bytes"
	"io"

	"github.com/golang/glog"
)

// LineFramer 把字节流拆分为完整的行，不完整的尾部保留到下一次 Feed
type LineFramer struct {
	id      string
	pending []byte
	// 丢弃超长行，直到遇到下一个换行符
	discarding bool
}

func NewLineFramer(id string) *LineFramer {
	return &LineFramer{id: id}
}

// Feed returns the complete non-empty lines in data, each one a fresh copy
func (framer *LineFramer) Feed(data []byte) (lines [][]byte) {
	for len(data) > 0 {
		pos := bytes.IndexByte(data, '\n')
		if pos < 0 {
			if !framer.discarding {
				framer.pending = append(framer.pending, data...)
				if len(framer.pending) > MaxLineSize {
					glog.Warning(framer.id, ErrLineTooLong.Error(), ", dropped ", len(framer.pending), " bytes")
					framer.pending = nil
					framer.discarding = true
				}
			}
			return
		}

		chunk := data[:pos]
		data = data[pos+1:]

		if framer.discarding {
			framer.discarding = false
			continue
		}

		var line []byte
		if len(framer.pending) > 0 {
			line = append(framer.pending, chunk...)
			framer.pending = nil
		} else {
			line = chunk
		}

		line = bytes.TrimSpace(line)
		if len(line) < 1 {
			continue
		}
		if len(line) > MaxLineSize {
			glog.Warning(framer.id, ErrLineTooLong.Error(), ", dropped ", len(line), " bytes")
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	return
}

// Buffered 尚未成行的字节数
func (framer *LineFramer) Buffered() int {
	return len(framer.pending)
}

// readLines 从 reader 读取数据直到出错，每一行回调一次
func readLines(reader io.Reader, framer *LineFramer, onLine func([]byte)) error {
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				onLine(line)
			}
		}
		if err != nil {
			return err
		}
	}
}
