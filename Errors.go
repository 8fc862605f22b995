package main

import "errors"

// StratumError Stratum错误
type StratumError struct {
	// 错误号
	ErrNo int
	// 错误信息
	ErrMsg string
}

// NewStratumError 新建一个StratumError
func NewStratumError(errNo int, errMsg string) *StratumError {
	err := new(StratumError)
	err.ErrNo = errNo
	err.ErrMsg = errMsg

	return err
}

// Error 实现StratumError的Error()接口以便其被当做error类型使用
func (err *StratumError) Error() string {
	return err.ErrMsg
}

// ToJSONRPCArray 转换为JSONRPCArray
func (err *StratumError) ToJSONRPCArray(extData interface{}) JSONRPCArray {
	if err == nil {
		return nil
	}

	return JSONRPCArray{err.ErrNo, err.ErrMsg, extData}
}

// ToJSONRPC2Error converts it to a json-rpc 2.0 error object, the shape grin miners expect
func (err *StratumError) ToJSONRPC2Error() *JSONRPC2Error {
	if err == nil {
		return nil
	}
	return &JSONRPC2Error{Code: err.ErrNo, Message: err.ErrMsg}
}

var (
	// ErrRequestIDFull 所有可用的请求ID均已分配
	ErrRequestIDFull = errors.New("request id is full")
	// ErrInvalidPoolAddress 矿池地址格式错误
	ErrInvalidPoolAddress = errors.New("invalid pool address, use pool_address:pool_port format")
	// ErrNotJSONObject 收到的 JSON 不是对象
	ErrNotJSONObject = errors.New("message is not a JSON object")
	// ErrLineTooLong 单行数据过长
	ErrLineTooLong = errors.New("line too long")
	// ErrEmptyCommand 矿机命令行为空
	ErrEmptyCommand = errors.New("empty miner command line")
	// ErrInvalidTarget 无法解析的 target
	ErrInvalidTarget = errors.New("invalid target")
	// ErrNoPools 没有配置矿池
	ErrNoPools = errors.New("you should specify at least one pool")
	// ErrNoMiners 没有可用的矿机程序
	ErrNoMiners = errors.New("you should specify at least one working miner")
)

var (
	// StratumErrJobNotFound 任务不存在
	StratumErrJobNotFound = NewStratumError(21, "Job not found (=stale)")
	// StratumErrIllegalParams 参数非法
	StratumErrIllegalParams = NewStratumError(27, "Illegal params")
	// StratumErrTooFewParams 参数太少
	StratumErrTooFewParams = NewStratumError(27, "Too few params")
	// StratumErrPoolNotReady 没有可用的矿池连接
	StratumErrPoolNotReady = NewStratumError(302, "Pool connection not ready")
	// StratumErrNoJob grin-miner keeps polling on this message until a job shows up
	StratumErrNoJob = NewStratumError(-32000, "Node is syncing - Please wait")
	// StratumErrRejected 矿池拒绝了提交
	StratumErrRejected = NewStratumError(-32502, "Share rejected")
)
