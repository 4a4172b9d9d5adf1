package task

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/junction"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/entity/vehicle"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
)

const (
	baseLat = 39.900
	baseLon = 116.400
	spacing = 0.005
)

func nodeLat(i int) float64 {
	return baseLat + float64(i-1)*spacing
}

// 1 - 2(I1) - 3 - 4(I2) - 5，自南向北
func testGraph(t *testing.T) *road.Graph {
	nodes := make([]entity.RoadNode, 0, 5)
	for i := 1; i <= 5; i++ {
		n := entity.RoadNode{ID: int64(i), Lat: nodeLat(i), Lon: baseLon}
		if i == 2 || i == 4 {
			n.Tag = "traffic_signals"
		}
		nodes = append(nodes, n)
	}
	edges := make([]entity.RoadEdge, 0, 4)
	for i := 1; i < 5; i++ {
		edges = append(edges, entity.RoadEdge{
			Source:       int64(i),
			Target:       int64(i + 1),
			LengthMeters: road.Distance(nodes[i-1], nodes[i]),
		})
	}
	g, err := road.New(nodes, edges)
	require.NoError(t, err)
	return g
}

func testConfig() config.Config {
	return config.Config{
		Corridor: config.Corridor{VelocityWindow: 1},
		Signal: config.Signal{
			Intersections: []config.Intersection{
				{ID: "I1", Lat: nodeLat(2), Lon: baseLon},
				{ID: "I2", Lat: nodeLat(4), Lon: baseLon},
			},
		},
	}
}

func newTestContext(t *testing.T, c config.Config, g *road.Graph) *Context {
	ctx, err := NewContextWithData(c, clock.NewManual(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)), g)
	require.NoError(t, err)
	t.Cleanup(ctx.Close)
	return ctx
}

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHealthz(t *testing.T) {
	ctx := newTestContext(t, testConfig(), nil)
	srv := httptest.NewServer(ctx.Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "loading\n", body)

	err := errors.New("no such file")
	ctx.loadErr.Store(&err)
	code, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "no such file")

	require.NoError(t, ctx.router.Load(testGraph(t)))
	ctx.ready.Store(true)
	code, body = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready\n", body)
}

func TestNewContextInvalidConfig(t *testing.T) {
	_, err := NewContext(config.Config{Routing: config.Routing{Engine: "astar"}}, clock.New())
	assert.Error(t, err)

	_, err = NewContextWithData(config.Config{}, clock.New(), nil)
	assert.ErrorIs(t, err, config.ErrNoIntersections)
}

func TestInitInlineIntersections(t *testing.T) {
	c := testConfig()
	c.Input.Graph.File = "testdata/missing.json"
	ctx, err := NewContext(c, clock.New())
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.Init(context.Background()))
	assert.Equal(t, "I1", ctx.JunctionManager().PrimaryID())
	// 路网加载失败时服务保持未就绪
	ctx.loadWg.Wait()
	assert.False(t, ctx.Ready())
	assert.Error(t, ctx.LoadErr())
}

func TestCorridorOverRPC(t *testing.T) {
	c := testConfig()
	c.Auth = config.Auth{Token: "secret", Vehicles: []string{"amb-1"}}
	ctx := newTestContext(t, c, testGraph(t))
	srv := httptest.NewServer(ctx.Handler())
	defer srv.Close()

	opts := rpc.ClientOptions(connect.WithInterceptors(rpc.WithAPIKey("secret")))
	setRoute := connect.NewClient[vehicle.SetRouteRequest, vehicle.SetRouteResponse](
		http.DefaultClient, srv.URL+vehicle.SetRouteProcedure, opts...,
	)
	telemetry := connect.NewClient[entity.Telemetry, entity.TelemetryDigest](
		http.DefaultClient, srv.URL+vehicle.TelemetryProcedure, opts...,
	)

	route, err := setRoute.CallUnary(context.Background(), connect.NewRequest(&vehicle.SetRouteRequest{
		Start: &vehicle.LatLon{Lat: nodeLat(1), Lon: baseLon},
		End:   &vehicle.LatLon{Lat: nodeLat(5), Lon: baseLon},
	}))
	require.NoError(t, err)
	require.Len(t, route.Msg.Intersections, 2)
	assert.Equal(t, "2", route.Msg.Intersections[0].ID)
	assert.InDelta(t, 4*road.Distance(
		entity.RoadNode{Lat: nodeLat(1), Lon: baseLon},
		entity.RoadNode{Lat: nodeLat(2), Lon: baseLon},
	), route.Msg.TotalDistanceM, 1e-3)
	assert.Len(t, route.Msg.Waypoints, 5)
	assert.NotEmpty(t, route.Msg.Geometry)

	_, err = setRoute.CallUnary(context.Background(), connect.NewRequest(&vehicle.SetRouteRequest{
		Start: &vehicle.LatLon{Lat: nodeLat(1), Lon: baseLon},
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	fired := 0
	for k := int64(0); k <= 3; k++ {
		lat := baseLat + 30*float64(k)/orb.EarthRadius*180/math.Pi
		d, err := telemetry.CallUnary(context.Background(), connect.NewRequest(&entity.Telemetry{
			VehicleID: "amb-1", Lat: lat, Lon: baseLon, Timestamp: 1000 + k,
		}))
		require.NoError(t, err)
		fired += len(d.Msg.Fired)
	}
	assert.Equal(t, 1, fired)
	ctx.vehicleManager.Wait()

	snapshot, err := ctx.JunctionManager().Snapshot("I1")
	require.NoError(t, err)
	assert.Equal(t, entity.Green, snapshot[entity.North].State)
	assert.Equal(t, junction.NotePriority, snapshot[entity.North].Note)

	// 非授权车辆
	_, err = telemetry.CallUnary(context.Background(), connect.NewRequest(&entity.Telemetry{
		VehicleID: "amb-9", Lat: baseLat, Lon: baseLon, Timestamp: 1,
	}))
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	// 缺少密钥
	anon := connect.NewClient[entity.Telemetry, entity.TelemetryDigest](
		http.DefaultClient, srv.URL+vehicle.TelemetryProcedure, rpc.ClientOptions()...,
	)
	_, err = anon.CallUnary(context.Background(), connect.NewRequest(&entity.Telemetry{
		VehicleID: "amb-1", Lat: baseLat, Lon: baseLon, Timestamp: 1,
	}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestTelemetryUnavailableWhileLoading(t *testing.T) {
	ctx := newTestContext(t, testConfig(), nil)
	srv := httptest.NewServer(ctx.Handler())
	defer srv.Close()

	telemetry := connect.NewClient[entity.Telemetry, entity.TelemetryDigest](
		http.DefaultClient, srv.URL+vehicle.TelemetryProcedure, rpc.ClientOptions()...,
	)
	_, err := telemetry.CallUnary(context.Background(), connect.NewRequest(&entity.Telemetry{
		VehicleID: "amb-1", Lat: baseLat, Lon: baseLon, Timestamp: 1,
	}))
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))

	_, err = telemetry.CallUnary(context.Background(), connect.NewRequest(&entity.Telemetry{
		Lat: baseLat, Lon: baseLon, Timestamp: 1,
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
