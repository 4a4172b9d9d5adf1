package rpc

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// ToConnectError 将内部错误映射为connect错误码
// 功能：RPC边界统一的错误分类
// 说明：
//   - ErrValidation -> InvalidArgument (400)
//   - ErrNotFound -> NotFound (404)
//   - ErrNotReady -> Unavailable (503)
//   - ErrBridge -> Unavailable (503)
//   - 超时 -> DeadlineExceeded，其余 -> Internal (500)
func ToConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	return connect.NewError(Code(err), err)
}

// Code 错误对应的connect错误码
func Code(err error) connect.Code {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return connect.CodeInvalidArgument
	case errors.Is(err, entity.ErrNotFound):
		return connect.CodeNotFound
	case errors.Is(err, entity.ErrNotReady), errors.Is(err, entity.ErrBridge):
		return connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	default:
		return connect.CodeInternal
	}
}
