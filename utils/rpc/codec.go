package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec 基于encoding/json的connect编解码器
// 说明：服务消息是普通Go结构体而非protobuf生成代码，替换connect内置的protojson编解码器（同名"json"）
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		// connect允许空请求体表示零值消息
		return nil
	}
	return json.Unmarshal(data, v)
}

// HandlerOptions 所有服务共用的处理器选项
func HandlerOptions(opts ...connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
}

// ClientOptions 所有客户端共用的选项
func ClientOptions(opts ...connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
}
