package task

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/bridge"
	"github.com/tsinghua-fib-lab/greenwave/entity/event"
	"github.com/tsinghua-fib-lab/greenwave/entity/junction"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/entity/route"
	"github.com/tsinghua-fib-lab/greenwave/entity/vehicle"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"github.com/tsinghua-fib-lab/greenwave/utils/input"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
	"go.mongodb.org/mongo-driver/mongo"
)

var log = logrus.WithField("module", "task")

const shutdownTimeout = 5 * time.Second

// Context 服务任务上下文
// 功能：包含一次服务运行的所有组件和状态，替代全局变量
// 说明：路网异步加载，加载完成前走廊相关接口返回Unavailable
type Context struct {
	// 关闭指令
	closed atomic.Bool
	// 路网是否加载完成
	ready atomic.Bool
	// 路网加载失败原因
	loadErr atomic.Pointer[error]
	// 后台加载协程
	loadWg sync.WaitGroup

	// 时钟
	clock clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig

	// 路径规划
	router *route.Router
	// Junction管理器
	junctionManager *junction.JunctionManager
	// 车辆管理器
	vehicleManager *vehicle.Manager
	// 信控桥接
	bridge *bridge.Bridge
	// 事件广播
	hub *event.Hub

	server *http.Server
}

var _ entity.ITaskContext = (*Context)(nil)

// NewContext 创建服务任务上下文
// 功能：校验配置并创建所有管理器
// 参数：c-配置对象，clk-时钟
// 返回：Context实例与错误信息
// 算法说明：
// 1. 补齐缺省值并校验配置
// 2. 创建事件广播、路径规划、Junction管理器、车辆管理器
// 3. 配置了bridge.endpoint时通过connect客户端访问远端信控，否则进程内直连Junction管理器
func NewContext(c config.Config, clk clock.Clock) (*Context, error) {
	rc, err := config.NewRuntimeConfig(c)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		clock:         clk,
		runtimeConfig: rc,
	}
	ctx.hub = event.NewHub(clk, rc.All.Event.SubscriberBuffer)
	ctx.router = route.New(rc.All.Routing.Engine)
	ctx.junctionManager = junction.NewManager(ctx)

	var client bridge.PriorityClient
	if b := rc.All.Bridge; b.Endpoint != "" {
		client = bridge.NewRemoteClient(b.Endpoint, b.APIKey, b.Timeout)
		log.Infof("signal bridge -> %s", b.Endpoint)
	} else {
		client = bridge.NewLocalClient(ctx.junctionManager)
	}
	ctx.bridge = bridge.New(ctx.junctionManager, client)
	ctx.vehicleManager = vehicle.NewManager(ctx)
	return ctx, nil
}

// NewContextWithData 使用内存数据创建并初始化上下文
// 功能：受控路口取自signal.intersections，g非空时直接载入路网并就绪
// 说明：用于测试与嵌入式场景，不访问文件与数据库
func NewContextWithData(c config.Config, clk clock.Clock, g *road.Graph) (*Context, error) {
	ctx, err := NewContext(c, clk)
	if err != nil {
		return nil, err
	}
	s := ctx.runtimeConfig.S
	if err := ctx.junctionManager.Init(s.Intersections, s.PrimaryIntersection); err != nil {
		ctx.Close()
		return nil, err
	}
	if g != nil {
		if err := ctx.router.Load(g); err != nil {
			ctx.Close()
			return nil, err
		}
		ctx.ready.Store(true)
	}
	return ctx, nil
}

func (ctx *Context) Clock() clock.Clock {
	return ctx.clock
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Ready() bool {
	return ctx.ready.Load()
}

func (ctx *Context) Router() entity.IRouter {
	return ctx.router
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) Bridge() entity.IBridge {
	return ctx.bridge
}

func (ctx *Context) Publisher() entity.IPublisher {
	return ctx.hub
}

// Hub 事件广播中心
func (ctx *Context) Hub() *event.Hub {
	return ctx.hub
}

// Init 加载输入数据
// 功能：同步加载并校验受控路口，异步加载路网
// 参数：c-上下文，加载路网的协程在其取消时退出
// 返回：受控路口加载或校验失败的错误
// 说明：受控路口配置非法时服务不应启动；路网加载失败时服务保持未就绪并在/healthz中报告
func (ctx *Context) Init(c context.Context) error {
	all := ctx.runtimeConfig.All
	client := input.NewClient(all.Input)

	intersections, err := input.LoadIntersections(c, client, all)
	if err != nil {
		if client != nil {
			client.Disconnect(context.Background())
		}
		return err
	}
	if err := ctx.junctionManager.Init(intersections, ctx.runtimeConfig.S.PrimaryIntersection); err != nil {
		if client != nil {
			client.Disconnect(context.Background())
		}
		return err
	}

	ctx.loadWg.Add(1)
	go func() {
		defer ctx.loadWg.Done()
		if client != nil {
			defer client.Disconnect(context.Background())
		}
		start := time.Now()
		if err := ctx.loadGraph(c, client, all.Input.Graph); err != nil {
			ctx.loadErr.Store(&err)
			log.Errorf("failed to load road graph: %v", err)
			return
		}
		ctx.ready.Store(true)
		log.Infof("road graph ready in %v", time.Since(start))
	}()
	return nil
}

// loadGraph 读取路网记录，构建图并完成路由预处理
func (ctx *Context) loadGraph(c context.Context, client *mongo.Client, gc config.GraphInput) error {
	raw, err := input.LoadGraph(c, client, gc)
	if err != nil {
		return err
	}
	g, err := road.New(raw.Nodes, raw.Edges)
	if err != nil {
		return err
	}
	log.Infof("road graph: %d nodes, %d edges, %d intersections",
		g.NumNodes(), g.NumEdges(), lo.CountBy(raw.Nodes, func(n entity.RoadNode) bool { return n.IsIntersection() }))
	return ctx.router.Load(g)
}

// LoadErr 路网加载失败原因，未失败时为nil
func (ctx *Context) LoadErr() error {
	if p := ctx.loadErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Handler 构建HTTP处理器
// 功能：注册SignalService、CorridorService、EventService与/healthz
func (ctx *Context) Handler() http.Handler {
	auth := ctx.runtimeConfig.All.Auth
	opts := []connect.HandlerOption{
		connect.WithInterceptors(rpc.NewAuthInterceptor(auth.Token, auth.Vehicles)),
	}
	mux := http.NewServeMux()
	ctx.junctionManager.Register(mux, opts...)
	ctx.vehicleManager.Register(mux, opts...)
	ctx.hub.Register(mux, opts...)
	mux.HandleFunc("GET /healthz", ctx.healthz)
	return mux
}

func (ctx *Context) healthz(w http.ResponseWriter, r *http.Request) {
	switch {
	case ctx.Ready():
		fmt.Fprintln(w, "ready")
	case ctx.LoadErr() != nil:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "failed: %v\n", ctx.LoadErr())
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "loading")
	}
}

// Serve 监听并提供服务，直到c被取消
// 功能：启动HTTP服务（h2c以支持connect/gRPC流式接口），c取消后优雅关闭所有组件
func (ctx *Context) Serve(c context.Context) error {
	addr := ctx.runtimeConfig.All.Listen
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	ctx.server = &http.Server{
		Handler:           ctx.Handler(),
		Protocols:         protocols,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("listening on %s", lis.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctx.server.Serve(lis)
	}()
	select {
	case err := <-errCh:
		ctx.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-c.Done():
		log.Info("shutting down")
		ctx.Close()
		return nil
	}
}

// Close 关闭服务
// 说明：依次停止事件订阅、HTTP服务、车辆工作协程（等待进行中的桥接调用）与延迟激活定时器
func (ctx *Context) Close() {
	if ctx.closed.Swap(true) {
		return
	}
	// 先结束事件订阅流，否则Shutdown要等到超时
	ctx.hub.Close()
	if ctx.server != nil {
		c, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctx.server.Shutdown(c); err != nil {
			log.Warnf("http shutdown: %v", err)
		}
	}
	ctx.vehicleManager.Close()
	ctx.junctionManager.Close()
	ctx.loadWg.Wait()
	log.Info("closed")
}
