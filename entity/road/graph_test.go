package road_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
)

func testNodes() []entity.RoadNode {
	return []entity.RoadNode{
		{ID: 1, Lat: 39.900, Lon: 116.400},
		{ID: 2, Lat: 39.901, Lon: 116.400, Tag: "traffic_signals"},
		{ID: 3, Lat: 39.902, Lon: 116.401},
	}
}

func TestGraphBidirectional(t *testing.T) {
	g, err := road.New(testNodes(), []entity.RoadEdge{
		{Source: 1, Target: 2, LengthMeters: 111},
		{Source: 2, Target: 3, LengthMeters: 130},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())

	assert.Equal(t, []entity.Arc{{To: 2, Length: 111}}, g.Neighbors(1))
	assert.ElementsMatch(t, []entity.Arc{{To: 1, Length: 111}, {To: 3, Length: 130}}, g.Neighbors(2))
	assert.Equal(t, []entity.Arc{{To: 2, Length: 130}}, g.Neighbors(3))

	n, ok := g.Node(2)
	require.True(t, ok)
	assert.True(t, n.IsIntersection())
	_, ok = g.Node(42)
	assert.False(t, ok)
}

func TestGraphRejectsBadInput(t *testing.T) {
	_, err := road.New(nil, nil)
	assert.ErrorIs(t, err, road.ErrEmptyGraph)

	_, err = road.New(testNodes(), []entity.RoadEdge{{Source: 1, Target: 9, LengthMeters: 1}})
	assert.Error(t, err)

	_, err = road.New(testNodes(), []entity.RoadEdge{{Source: 1, Target: 2, LengthMeters: -1}})
	assert.Error(t, err)

	dup := append(testNodes(), entity.RoadNode{ID: 1, Lat: 0, Lon: 0})
	_, err = road.New(dup, nil)
	assert.Error(t, err)

	_, err = road.New([]entity.RoadNode{{ID: 1, Lat: 91, Lon: 0}}, nil)
	assert.Error(t, err)
}

func TestNearestNode(t *testing.T) {
	g, err := road.New(testNodes(), nil)
	require.NoError(t, err)

	n, err := g.NearestNode(39.9009, 116.4001)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n.ID)

	n, err = g.NearestNode(39.95, 116.45)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.ID)

	_, err = g.NearestNode(100, 0)
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestNearestNodeSingle(t *testing.T) {
	g, err := road.New([]entity.RoadNode{{ID: 7, Lat: 10, Lon: 10}}, nil)
	require.NoError(t, err)
	n, err := g.NearestNode(10, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.ID)
}

func TestDistance(t *testing.T) {
	nodes := testNodes()
	d := road.Distance(nodes[0], nodes[1])
	// 纬度相差0.001度约111米
	assert.InDelta(t, 111.3, d, 0.5)
}
