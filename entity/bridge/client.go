package bridge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
)

// RequestPriorityPath 远端信控服务的优先请求路径
const RequestPriorityPath = "/greenwave.signal.v1.SignalService/RequestPriority"

// LocalClient 进程内调用Junction管理器
type LocalClient struct {
	m entity.IJunctionManager
}

func NewLocalClient(m entity.IJunctionManager) *LocalClient {
	return &LocalClient{m: m}
}

func (c *LocalClient) RequestPriority(ctx context.Context, req entity.PriorityRequest) (*entity.PriorityResult, error) {
	return c.m.RequestPriority(ctx, req)
}

// RemoteClient 通过connect调用远端信控服务
type RemoteClient struct {
	client  *connect.Client[entity.PriorityRequest, entity.PriorityResult]
	timeout time.Duration
}

// NewRemoteClient 创建远端信控客户端
// 参数：endpoint-远端服务根地址，apiKey-X-Api-Key，timeout-单次请求超时
func NewRemoteClient(endpoint, apiKey string, timeout time.Duration) *RemoteClient {
	httpClient := &http.Client{Timeout: timeout}
	return &RemoteClient{
		client: connect.NewClient[entity.PriorityRequest, entity.PriorityResult](
			httpClient,
			strings.TrimRight(endpoint, "/")+RequestPriorityPath,
			rpc.ClientOptions(connect.WithInterceptors(rpc.WithAPIKey(apiKey)))...,
		),
		timeout: timeout,
	}
}

func (c *RemoteClient) RequestPriority(ctx context.Context, req entity.PriorityRequest) (*entity.PriorityResult, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.client.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
