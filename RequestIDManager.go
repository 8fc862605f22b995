package main

import (
	"encoding/json"

	"github.com/bits-and-blooms/bitset"
)

//////////////////////////////// RequestIDManager //////////////////////////////

// RequestIDManager 为转发给矿池的请求分配 id。
// 只在事件循环中使用，没有加锁。
type RequestIDManager struct {
	//
	//  REQUEST ID: UINT32
	//
	//   base + index
	//   index range: [0, mask]
	//
	base       uint32
	requestIDs *bitset.BitSet

	count    uint32 // how many ids are used now
	allocIDx uint32

	mask uint32
}

// NewRequestIDManager 创建一个请求ID管理器实例
func NewRequestIDManager(base uint32, indexBits uint8) *RequestIDManager {
	if indexBits > 24 {
		indexBits = 24
	}
	manager := new(RequestIDManager)
	manager.base = base
	manager.mask = (1 << indexBits) - 1
	manager.requestIDs = bitset.New(uint(manager.mask + 1))
	manager.Reset()
	return manager
}

// Reset 释放所有 id，矿池会话切换时调用
func (manager *RequestIDManager) Reset() {
	manager.requestIDs.ClearAll()
	manager.count = 0
	manager.allocIDx = 0
}

// IsFull 判断请求ID是否已满
func (manager *RequestIDManager) IsFull() bool {
	return manager.count > manager.mask
}

// AllocRequestID 分配一个请求ID
func (manager *RequestIDManager) AllocRequestID() (requestID uint32, err error) {
	if manager.IsFull() {
		err = ErrRequestIDFull
		return
	}

	// find an empty bit
	for manager.requestIDs.Test(uint(manager.allocIDx)) {
		manager.allocIDx = (manager.allocIDx + 1) & manager.mask
	}

	manager.requestIDs.Set(uint(manager.allocIDx))
	manager.count++

	requestID = manager.base + manager.allocIDx
	manager.allocIDx = (manager.allocIDx + 1) & manager.mask
	return
}

// FreeRequestID 释放一个请求ID
func (manager *RequestIDManager) FreeRequestID(requestID uint32) {
	if requestID < manager.base {
		return
	}
	idx := requestID - manager.base
	if idx > manager.mask || !manager.requestIDs.Test(uint(idx)) {
		// ID未分配，无需释放
		return
	}

	manager.requestIDs.Clear(uint(idx))
	manager.count--
}

// PendingRequest 已转发给矿池、等待响应的请求
type PendingRequest struct {
	Conn       *MinerConn
	OrigID     json.RawMessage
	Method     string
	RelayOwned bool
}
