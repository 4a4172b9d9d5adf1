package route_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/entity/route"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

//	1 --4-- 2 --1-- 3
//	|       |       |
//	2       7       1
//	|       |       |
//	4 --3-- 5 --9-- 6      7 (isolated)
func testGraph(t *testing.T) *road.Graph {
	nodes := []entity.RoadNode{
		{ID: 1, Lat: 39.910, Lon: 116.400},
		{ID: 2, Lat: 39.910, Lon: 116.410, Tag: "traffic_signals"},
		{ID: 3, Lat: 39.910, Lon: 116.420},
		{ID: 4, Lat: 39.900, Lon: 116.400},
		{ID: 5, Lat: 39.900, Lon: 116.410, Tag: "traffic_signals"},
		{ID: 6, Lat: 39.900, Lon: 116.420, Tag: "traffic_signals"},
		{ID: 7, Lat: 39.800, Lon: 116.300},
	}
	edges := []entity.RoadEdge{
		{Source: 1, Target: 2, LengthMeters: 4},
		{Source: 2, Target: 3, LengthMeters: 1},
		{Source: 1, Target: 4, LengthMeters: 2},
		{Source: 2, Target: 5, LengthMeters: 7},
		{Source: 3, Target: 6, LengthMeters: 1},
		{Source: 4, Target: 5, LengthMeters: 3},
		{Source: 5, Target: 6, LengthMeters: 9},
	}
	g, err := road.New(nodes, edges)
	require.NoError(t, err)
	return g
}

func newRouter(t *testing.T, engine string) *route.Router {
	r := route.New(engine)
	require.NoError(t, r.Load(testGraph(t)))
	return r
}

// bruteForce 枚举所有简单路径求最短距离
func bruteForce(g *road.Graph, src, dst int64) float64 {
	best := math.Inf(1)
	visited := map[int64]bool{src: true}
	var dfs func(u int64, d float64)
	dfs = func(u int64, d float64) {
		if u == dst {
			best = math.Min(best, d)
			return
		}
		for _, a := range g.Neighbors(u) {
			if visited[a.To] {
				continue
			}
			visited[a.To] = true
			dfs(a.To, d+a.Length)
			visited[a.To] = false
		}
	}
	dfs(src, 0)
	return best
}

func TestShortestPathOptimality(t *testing.T) {
	for _, engine := range []string{config.EngineDijkstra, config.EngineCH} {
		t.Run(engine, func(t *testing.T) {
			r := newRouter(t, engine)
			g := r.Graph()
			for _, src := range g.NodeIDs() {
				for _, dst := range g.NodeIDs() {
					want := bruteForce(g, src, dst)
					res, err := r.FindRoute(src, dst)
					if math.IsInf(want, 1) {
						assert.ErrorIs(t, err, route.ErrNoRoute, "%d->%d", src, dst)
						assert.ErrorIs(t, err, entity.ErrNotFound)
						continue
					}
					require.NoError(t, err, "%d->%d", src, dst)
					assert.InDelta(t, want, res.TotalDistanceMeters, 1e-9, "%d->%d", src, dst)
					assert.Equal(t, src, res.Waypoints[0].ID)
					assert.Equal(t, dst, res.Waypoints[len(res.Waypoints)-1].ID)
					// 累计距离单调不减，末项等于总距离
					require.Len(t, res.Cumulative, len(res.Waypoints))
					for i := 1; i < len(res.Cumulative); i++ {
						assert.GreaterOrEqual(t, res.Cumulative[i], res.Cumulative[i-1])
					}
					assert.InDelta(t, res.TotalDistanceMeters, res.Cumulative[len(res.Cumulative)-1], 1e-9)
				}
			}
		})
	}
}

func TestIntersectionsInPathOrder(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	// 4 -> 1 -> 2 -> 3 -> 6, 距离 2+4+1+1 = 8，优于 4 -> 5 -> 6 (12)
	res, err := r.FindRoute(4, 6)
	require.NoError(t, err)
	assert.Equal(t, 8.0, res.TotalDistanceMeters)
	ids := make([]int64, 0)
	for _, w := range res.Waypoints {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []int64{4, 1, 2, 3, 6}, ids)
	require.Len(t, res.Intersections, 2)
	assert.Equal(t, int64(2), res.Intersections[0].ID)
	assert.Equal(t, int64(6), res.Intersections[1].ID)
}

func TestSameSourceAndTarget(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	res, err := r.FindRoute(5, 5)
	require.NoError(t, err)
	assert.Len(t, res.Waypoints, 1)
	assert.Equal(t, 0.0, res.TotalDistanceMeters)
	assert.Len(t, res.Intersections, 1)
}

func TestUnknownNode(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	_, err := r.FindRoute(1, 99)
	assert.ErrorIs(t, err, route.ErrUnknownNode)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestNotReady(t *testing.T) {
	r := route.New(config.EngineDijkstra)
	assert.False(t, r.Ready())
	assert.Nil(t, r.Graph())
	_, err := r.FindRoute(1, 2)
	assert.ErrorIs(t, err, entity.ErrNotReady)
	_, err = r.FindMultiLeg([]int64{1, 2})
	assert.ErrorIs(t, err, entity.ErrNotReady)
}

func TestMultiLeg(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	// 1 -> 5 (1-4-5, 5) 再 5 -> 3 (5-4-1-2-3, 10; 5-2-3 为 8)
	res, err := r.FindMultiLeg([]int64{1, 5, 3})
	require.NoError(t, err)
	ids := make([]int64, 0)
	for _, w := range res.Waypoints {
		ids = append(ids, w.ID)
	}
	// 边界途经点5只出现一次
	assert.Equal(t, []int64{1, 4, 5, 2, 3}, ids)
	assert.Equal(t, 13.0, res.TotalDistanceMeters)
	assert.Equal(t, []float64{0, 2, 5, 12, 13}, res.Cumulative)
	require.Len(t, res.Intersections, 2)
	assert.Equal(t, int64(5), res.Intersections[0].ID)
	assert.Equal(t, int64(2), res.Intersections[1].ID)
}

func TestMultiLegRevisitKeepsFirstIntersection(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	res, err := r.FindMultiLeg([]int64{1, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.TotalDistanceMeters)
	require.Len(t, res.Intersections, 1)
	assert.Equal(t, int64(2), res.Intersections[0].ID)
}

func TestMultiLegValidation(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	_, err := r.FindMultiLeg([]int64{1})
	assert.ErrorIs(t, err, entity.ErrValidation)
	_, err = r.FindMultiLeg([]int64{1, 7})
	assert.ErrorIs(t, err, route.ErrNoRoute)
	assert.True(t, route.IsNoRoute(err))
	assert.False(t, route.IsNoRoute(entity.ErrValidation))
}

func TestFindWaypoints(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	res, err := r.FindWaypoints([]orb.Point{{116.4001, 39.9001}, {116.4199, 39.9099}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Waypoints[0].ID)
	assert.Equal(t, int64(3), res.Waypoints[len(res.Waypoints)-1].ID)
	assert.Equal(t, 7.0, res.TotalDistanceMeters)

	_, err = r.FindWaypoints([]orb.Point{{116.4, 39.9}})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestGeometry(t *testing.T) {
	r := newRouter(t, config.EngineDijkstra)
	res, err := r.FindRoute(1, 2)
	require.NoError(t, err)
	raw, err := route.Geometry(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"LineString","coordinates":[[116.4,39.91],[116.41,39.91]]}`, string(raw))

	single, err := r.FindRoute(1, 1)
	require.NoError(t, err)
	raw, err = route.Geometry(single)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Point","coordinates":[116.4,39.91]}`, string(raw))
}
