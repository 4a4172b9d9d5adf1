package config

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const sample = `
listen: ":8080"
input:
  graph:
    file: data/city.osm.pbf
signal:
  lead_time_s: 5
  intersections:
    - id: I1
      lat: 39.9
      lon: 116.4
      conflict_groups:
        N: [E]
        E: [N]
bridge:
  timeout: 2s
simulate:
  waypoints:
    - {lat: 39.90, lon: 116.40}
    - {lat: 39.92, lon: 116.40}
`

func TestDefaults(t *testing.T) {
	var c Config
	require.NoError(t, yaml.UnmarshalStrict([]byte(sample), &c))
	rc, err := NewRuntimeConfig(c)
	require.NoError(t, err)

	assert.Equal(t, ":8080", rc.All.Listen)
	assert.Equal(t, float64(DefaultProximityM), rc.C.ProximityM)
	assert.Equal(t, float64(DefaultTTIS), rc.C.TTIS)
	assert.Equal(t, DefaultVelocityWindow, rc.C.VelocityWindow)
	assert.Equal(t, DefaultWorkers, rc.C.Workers)
	assert.Equal(t, float64(DefaultImmediateETAS), *rc.S.ImmediateETAS)
	assert.Equal(t, 5.0, *rc.S.LeadTimeS)
	assert.Equal(t, "I1", rc.S.PrimaryIntersection)
	assert.Equal(t, []string{"E"}, rc.S.Intersections[0].ConflictGroups["N"])
	assert.Equal(t, EngineDijkstra, rc.All.Routing.Engine)
	assert.Equal(t, 2*time.Second, rc.All.Bridge.Timeout)
	assert.Equal(t, DefaultSubscriberBuffer, rc.All.Event.SubscriberBuffer)
	assert.Equal(t, DefaultSimulateVehicle, rc.All.Simulate.VehicleID)
	assert.Equal(t, DefaultSimulateInterval, rc.All.Simulate.Interval)
	assert.Len(t, rc.All.Simulate.Waypoints, 2)
}

func TestUnknownField(t *testing.T) {
	var c Config
	assert.Error(t, yaml.UnmarshalStrict([]byte("corridor:\n  proximity: 10\n"), &c))
}

func TestValidation(t *testing.T) {
	cases := map[string]Config{
		"negative proximity": {Corridor: Corridor{ProximityM: -1}},
		"negative tti":       {Corridor: Corridor{TTIS: -1}},
		"zero workers":       {Corridor: Corridor{Workers: -2}},
		"lead over eta":      {Signal: Signal{ImmediateETAS: lo.ToPtr(5.0), LeadTimeS: lo.ToPtr(10.0)}},
		"negative lead":      {Signal: Signal{LeadTimeS: lo.ToPtr(-1.0)}},
		"unknown engine":     {Routing: Routing{Engine: "astar"}},
		"short interval":     {Simulate: Simulate{Interval: 100 * time.Millisecond}},
		"negative noise":     {Simulate: Simulate{NoiseM: -1}},
		"certain drop":       {Simulate: Simulate{DropRate: 1}},
		"negative drop":      {Simulate: Simulate{DropRate: -0.1}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRuntimeConfig(c)
			assert.Error(t, err)
		})
	}
}

func TestExplicitPrimary(t *testing.T) {
	rc, err := NewRuntimeConfig(Config{
		Routing: Routing{Engine: EngineCH},
		Signal: Signal{
			PrimaryIntersection: "I2",
			Intersections:       []Intersection{{ID: "I1"}, {ID: "I2"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "I2", rc.S.PrimaryIntersection)
	assert.Equal(t, EngineCH, rc.All.Routing.Engine)
}

func TestExplicitZeroSignalTiming(t *testing.T) {
	var c Config
	require.NoError(t, yaml.UnmarshalStrict([]byte("signal:\n  immediate_eta_s: 0\n  lead_time_s: 0\n"), &c))
	rc, err := NewRuntimeConfig(c)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *rc.S.ImmediateETAS)
	assert.Equal(t, 0.0, *rc.S.LeadTimeS)
}
