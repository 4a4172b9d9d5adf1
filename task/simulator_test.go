package task

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

func TestSimulatorSamples(t *testing.T) {
	c := testConfig()
	c.Simulate = config.Simulate{VehicleID: "sim-1", SpeedMS: 100}
	ctx := newTestContext(t, c, testGraph(t))
	r, err := ctx.Router().FindRoute(1, 5)
	require.NoError(t, err)

	samples := NewSimulator(ctx).Samples(r, 1000)
	// 每秒100m，最后一个采样为终点
	n := int(r.TotalDistanceMeters/100) + 2
	require.Len(t, samples, n)
	for i, s := range samples {
		assert.Equal(t, "sim-1", s.VehicleID)
		assert.Equal(t, int64(1000+i), s.Timestamp)
		assert.InDelta(t, baseLon, s.Lon, 1e-9)
	}
	assert.InDelta(t, nodeLat(1), samples[0].Lat, 1e-9)
	assert.InDelta(t, nodeLat(5), lo.Must(lo.Last(samples)).Lat, 1e-9)

	// 相邻采样间距等于速度乘以间隔（最后一段除外）
	first := entity.RoadNode{Lat: samples[0].Lat, Lon: samples[0].Lon}
	second := entity.RoadNode{Lat: samples[1].Lat, Lon: samples[1].Lon}
	assert.InDelta(t, 100, road.Distance(first, second), 1e-3)
}

func TestSimulatorNoise(t *testing.T) {
	c := testConfig()
	c.Simulate = config.Simulate{SpeedMS: 100, NoiseM: 5, Seed: 7}
	ctx := newTestContext(t, c, testGraph(t))
	r, err := ctx.Router().FindRoute(1, 5)
	require.NoError(t, err)

	a := NewSimulator(ctx).Samples(r, 0)
	b := NewSimulator(ctx).Samples(r, 0)
	assert.Equal(t, a, b, "same seed must replay the same drive")
	assert.Equal(t, config.DefaultSimulateVehicle, a[0].VehicleID)
	assert.NotEqual(t, nodeLat(1), a[0].Lat)
}

func TestSimulatorRun(t *testing.T) {
	c := testConfig()
	ctx := newTestContext(t, c, testGraph(t))
	assert.ErrorIs(t, NewSimulator(ctx).Run(context.Background()), entity.ErrValidation)

	// 路网未就绪时等待，取消后退出
	c.Simulate.Waypoints = []config.Point{{Lat: nodeLat(1), Lon: baseLon}, {Lat: nodeLat(5), Lon: baseLon}}
	loading := newTestContext(t, c, nil)
	cc, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewSimulator(loading).Run(cc))
}

func TestSimulatorDrop(t *testing.T) {
	c := testConfig()
	ctx := newTestContext(t, c, testGraph(t))
	s := NewSimulator(ctx)
	for i := 0; i < 100; i++ {
		require.False(t, s.dropped())
	}

	c.Simulate = config.Simulate{DropRate: 0.5, Seed: 7}
	s = NewSimulator(newTestContext(t, c, testGraph(t)))
	n := lo.CountBy(lo.Range(1000), func(int) bool { return s.dropped() })
	assert.Greater(t, n, 350)
	assert.Less(t, n, 650)
}
