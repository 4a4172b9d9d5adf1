package entity

import "errors"

// 错误分类，具体错误通过%w包装以下哨兵错误，RPC边界据此映射状态码
var (
	// 请求字段缺失、格式错误或越界，调用方可修正
	ErrValidation = errors.New("validation error")
	// 路网中两点间不存在路径，或路口/信号灯ID不存在
	ErrNotFound = errors.New("not found")
	// 路网尚未加载完成，可重试
	ErrNotReady = errors.New("service not ready")
	// 下游信控调用失败或超时，不影响走廊触发记录
	ErrBridge = errors.New("bridge error")
	// 信控计算出现意外错误
	ErrInternal = errors.New("internal error")
)
