package road

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

var (
	ErrEmptyGraph = errors.New("road graph has no nodes")
)

// indexedNode 空间索引中的节点
// 说明：索引坐标为等距圆柱投影（经度乘以参考纬度余弦），使平面最近邻近似球面最近邻
type indexedNode struct {
	id int64
	p  orb.Point
}

func (n indexedNode) Point() orb.Point {
	return n.p
}

// Graph 内存路网，启动时加载一次后只读
// 功能：存储路网节点与双向邻接表，提供最近节点吸附
type Graph struct {
	nodes  map[int64]entity.RoadNode
	adj    map[int64][]entity.Arc
	edges  int
	cosLat float64
	index  *quadtree.Quadtree
}

// New 根据节点与边记录构建路网
// 功能：校验输入并建立双向邻接表与空间索引
// 参数：nodes-节点列表，edges-边列表
// 返回：路网与错误信息
// 算法说明：
// 1. 节点ID必须唯一，坐标必须在合法经纬度范围内
// 2. 边的端点必须存在，长度必须非负（Dijkstra前提）
// 3. 每条边在两个方向各插入一次，宁可多连也不少连
// 4. 以节点外包矩形建立四叉树
func New(nodes []entity.RoadNode, edges []entity.RoadEdge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyGraph
	}
	g := &Graph{
		nodes: make(map[int64]entity.RoadNode, len(nodes)),
		adj:   make(map[int64][]entity.Arc, len(nodes)),
	}
	for _, n := range nodes {
		if _, ok := g.nodes[n.ID]; ok {
			return nil, fmt.Errorf("duplicated node id %d", n.ID)
		}
		if n.Lat < -90 || n.Lat > 90 || n.Lon < -180 || n.Lon > 180 {
			return nil, fmt.Errorf("node %d has invalid coordinate (%v, %v)", n.ID, n.Lat, n.Lon)
		}
		g.nodes[n.ID] = n
	}
	for i, e := range edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, fmt.Errorf("edge %d references unknown source node %d", i, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, fmt.Errorf("edge %d references unknown target node %d", i, e.Target)
		}
		if e.LengthMeters < 0 || math.IsNaN(e.LengthMeters) || math.IsInf(e.LengthMeters, 0) {
			return nil, fmt.Errorf("edge %d (%d->%d) has invalid length %v", i, e.Source, e.Target, e.LengthMeters)
		}
		g.adj[e.Source] = append(g.adj[e.Source], entity.Arc{To: e.Target, Length: e.LengthMeters})
		if e.Source != e.Target {
			g.adj[e.Target] = append(g.adj[e.Target], entity.Arc{To: e.Source, Length: e.LengthMeters})
		}
		g.edges++
	}

	meanLat := lo.SumBy(nodes, func(n entity.RoadNode) float64 { return n.Lat }) / float64(len(nodes))
	g.cosLat = math.Cos(meanLat * math.Pi / 180)
	points := lo.Map(nodes, func(n entity.RoadNode, _ int) orb.Point { return g.project(n.Lat, n.Lon) })
	g.index = quadtree.New(orb.MultiPoint(points).Bound())
	for i, n := range nodes {
		if err := g.index.Add(indexedNode{id: n.ID, p: points[i]}); err != nil {
			return nil, fmt.Errorf("index node %d: %w", n.ID, err)
		}
	}
	log.Infof("road graph ready: %d nodes, %d edges, %d intersections",
		len(g.nodes), g.edges, lo.CountBy(nodes, func(n entity.RoadNode) bool { return n.IsIntersection() }))
	return g, nil
}

func (g *Graph) project(lat, lon float64) orb.Point {
	return orb.Point{lon * g.cosLat, lat}
}

// Node 根据ID查找节点
func (g *Graph) Node(id int64) (entity.RoadNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Neighbors 获取节点的邻接边
func (g *Graph) Neighbors(id int64) []entity.Arc {
	return g.adj[id]
}

func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

func (g *Graph) NumEdges() int {
	return g.edges
}

// NearestNode 将坐标吸附到最近的路网节点
// 功能：通过四叉树查找投影平面上的最近节点
// 参数：lat,lon-待吸附坐标
// 返回：最近节点与错误信息，坐标非法时返回ErrValidation
func (g *Graph) NearestNode(lat, lon float64) (entity.RoadNode, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || math.IsNaN(lat) || math.IsNaN(lon) {
		return entity.RoadNode{}, fmt.Errorf("%w: invalid coordinate (%v, %v)", entity.ErrValidation, lat, lon)
	}
	p := g.index.Find(g.project(lat, lon))
	if p == nil {
		return entity.RoadNode{}, ErrEmptyGraph
	}
	return g.nodes[p.(indexedNode).id], nil
}

// Position 节点坐标（orb约定：X为经度，Y为纬度）
func Position(n entity.RoadNode) orb.Point {
	return orb.Point{n.Lon, n.Lat}
}

// Distance 两个节点间的球面距离（米）
func Distance(a, b entity.RoadNode) float64 {
	return geo.DistanceHaversine(Position(a), Position(b))
}

// NodeIDs 按ID升序返回所有节点ID
func (g *Graph) NodeIDs() []int64 {
	ids := lo.Keys(g.nodes)
	slices.Sort(ids)
	return ids
}
