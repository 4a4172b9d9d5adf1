package route

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

var (
	// 两个吸附点之间不存在路径
	ErrNoRoute = fmt.Errorf("%w: no route between nodes", entity.ErrNotFound)
	// 路网中不存在的节点ID
	ErrUnknownNode = fmt.Errorf("%w: unknown road node", entity.ErrNotFound)
)

// engine 单源最短路实现
type engine interface {
	// shortestPath 返回节点序列与总距离，ok=false表示不可达
	shortestPath(src, dst int64) (path []int64, dist float64, ok bool)
}

// loaded 加载完成的路网与对应的求解器
type loaded struct {
	graph  *road.Graph
	engine engine
}

// Router 路径规划服务
// 功能：在路网加载完成后提供单段/多段最短路查询
// 说明：路网异步加载，加载前所有查询返回ErrNotReady
type Router struct {
	engineName string
	state      atomic.Pointer[loaded]
}

// New 创建路径规划服务
// 参数：engineName-求解器名称（dijkstra|ch）
func New(engineName string) *Router {
	if engineName == "" {
		engineName = config.EngineDijkstra
	}
	return &Router{engineName: engineName}
}

// Load 载入路网并准备求解器
// 功能：根据配置的求解器类型完成预处理，之后原子地切换为就绪状态
// 参数：g-路网
// 返回：错误信息
func (r *Router) Load(g *road.Graph) error {
	var e engine
	switch r.engineName {
	case config.EngineDijkstra:
		e = &dijkstraEngine{graph: g}
	case config.EngineCH:
		ch, err := newCHEngine(g)
		if err != nil {
			return err
		}
		e = ch
	default:
		return fmt.Errorf("unknown routing engine %q", r.engineName)
	}
	r.state.Store(&loaded{graph: g, engine: e})
	log.Infof("router ready with %s engine", r.engineName)
	return nil
}

// Ready 路网是否已加载
func (r *Router) Ready() bool {
	return r.state.Load() != nil
}

// Graph 获取已加载的路网，未加载时返回nil
func (r *Router) Graph() *road.Graph {
	if s := r.state.Load(); s != nil {
		return s.graph
	}
	return nil
}

func (r *Router) get() (*loaded, error) {
	s := r.state.Load()
	if s == nil {
		return nil, fmt.Errorf("%w: road graph is still loading", entity.ErrNotReady)
	}
	return s, nil
}

// FindRoute 单段最短路
// 功能：求解两个路网节点间的最短路，并抽取途经的信控路口
// 参数：src-起点节点ID，dst-终点节点ID
// 返回：路径与错误信息
// 说明：不可达时返回ErrNoRoute，而不是零长度路径；起终点相同时返回只含一个途经点的路径
func (r *Router) FindRoute(src, dst int64) (*entity.Route, error) {
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	return s.findRoute(src, dst)
}

func (s *loaded) findRoute(src, dst int64) (*entity.Route, error) {
	if _, ok := s.graph.Node(src); !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownNode, src)
	}
	if _, ok := s.graph.Node(dst); !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownNode, dst)
	}
	if src == dst {
		return s.build([]int64{src}), nil
	}
	path, _, ok := s.engine.shortestPath(src, dst)
	if !ok {
		return nil, fmt.Errorf("%w %d -> %d", ErrNoRoute, src, dst)
	}
	return s.build(path), nil
}

// build 由节点序列构造路径
// 说明：相邻节点间取最短的平行边计算累计距离
func (s *loaded) build(path []int64) *entity.Route {
	res := &entity.Route{
		Waypoints:     make([]entity.RoadNode, 0, len(path)),
		Cumulative:    make([]float64, 0, len(path)),
		Intersections: make([]entity.RoadNode, 0),
	}
	total := 0.0
	for i, id := range path {
		n, _ := s.graph.Node(id)
		if i > 0 {
			total += s.arcLength(path[i-1], id)
		}
		res.Waypoints = append(res.Waypoints, n)
		res.Cumulative = append(res.Cumulative, total)
		if n.IsIntersection() {
			res.Intersections = append(res.Intersections, n)
		}
	}
	res.TotalDistanceMeters = total
	return res
}

func (s *loaded) arcLength(u, v int64) float64 {
	best := -1.0
	for _, a := range s.graph.Neighbors(u) {
		if a.To == v && (best < 0 || a.Length < best) {
			best = a.Length
		}
	}
	if best < 0 {
		log.Panicf("path uses missing edge %d -> %d", u, v)
	}
	return best
}

// FindMultiLeg 多段路径
// 功能：逐段独立求解后拼接，例如 当前位置 -> 事故点 -> 医院
// 参数：nodeIDs-至少2个节点ID
// 返回：拼接后的路径与错误信息
// 算法说明：
// 1. 相邻段共享的边界途经点只保留一次，避免零长度重复段
// 2. 各段的路口按路径顺序合并，同一路口只保留首次出现（每个路口只触发一次）
func (r *Router) FindMultiLeg(nodeIDs []int64) (*entity.Route, error) {
	if len(nodeIDs) < 2 {
		return nil, fmt.Errorf("%w: a route needs at least 2 waypoints, got %d", entity.ErrValidation, len(nodeIDs))
	}
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	res := &entity.Route{
		Waypoints:     make([]entity.RoadNode, 0),
		Cumulative:    make([]float64, 0),
		Intersections: make([]entity.RoadNode, 0),
	}
	seen := make(map[int64]struct{})
	for i := 0; i+1 < len(nodeIDs); i++ {
		leg, err := s.findRoute(nodeIDs[i], nodeIDs[i+1])
		if err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		offset := res.TotalDistanceMeters
		start := 0
		if len(res.Waypoints) > 0 {
			start = 1
		}
		for j := start; j < len(leg.Waypoints); j++ {
			res.Waypoints = append(res.Waypoints, leg.Waypoints[j])
			res.Cumulative = append(res.Cumulative, offset+leg.Cumulative[j])
		}
		for _, n := range leg.Intersections {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			res.Intersections = append(res.Intersections, n)
		}
		res.TotalDistanceMeters = offset + leg.TotalDistanceMeters
	}
	return res, nil
}

// FindWaypoints 坐标序列路径
// 功能：将每个坐标吸附到最近路网节点后按多段路径求解
// 参数：points-至少2个坐标（orb约定X为经度）
func (r *Router) FindWaypoints(points []orb.Point) (*entity.Route, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: a route needs at least 2 waypoints, got %d", entity.ErrValidation, len(points))
	}
	s, err := r.get()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(points))
	for i, p := range points {
		n, err := s.graph.NearestNode(p.Lat(), p.Lon())
		if err != nil {
			return nil, fmt.Errorf("waypoint %d: %w", i, err)
		}
		ids[i] = n.ID
	}
	return r.FindMultiLeg(ids)
}

// IntersectionID 路网节点作为路口时的字符串ID
func IntersectionID(n entity.RoadNode) string {
	return strconv.FormatInt(n.ID, 10)
}

// IsNoRoute 判断错误是否为不可达
func IsNoRoute(err error) bool {
	return errors.Is(err, ErrNoRoute)
}
