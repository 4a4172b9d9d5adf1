package event

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
)

const (
	EventServiceName   = "greenwave.event.v1.EventService"
	SubscribeProcedure = "/" + EventServiceName + "/Subscribe"
)

type SubscribeRequest struct {
	Types []entity.EventType `json:"types,omitempty"`
}

// Register 将广播中心注册为EventService
func (h *Hub) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = rpc.HandlerOptions(opts...)
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, h.SubscribeRPC, opts...))
}

// SubscribeRPC RPC接口：订阅事件流
// 说明：客户端断开或服务关闭时结束，断开期间的事件不会补发
func (h *Hub) SubscribeRPC(
	ctx context.Context, in *connect.Request[SubscribeRequest], stream *connect.ServerStream[Event],
) error {
	ch, cancel := h.Subscribe(in.Msg.Types...)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&ev); err != nil {
				return err
			}
		}
	}
}
