package route

import (
	"encoding/json"

	geojson "github.com/paulmach/go.geojson"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// Geometry 将路径途经点导出为GeoJSON几何
// 功能：两个及以上途经点输出LineString，单个途经点输出Point，坐标顺序为[lon, lat]
func Geometry(r *entity.Route) (json.RawMessage, error) {
	if r == nil || len(r.Waypoints) == 0 {
		return nil, nil
	}
	if len(r.Waypoints) == 1 {
		w := r.Waypoints[0]
		return geojson.NewPointGeometry([]float64{w.Lon, w.Lat}).MarshalJSON()
	}
	pts := make([][]float64, len(r.Waypoints))
	for i, w := range r.Waypoints {
		pts[i] = []float64{w.Lon, w.Lat}
	}
	return geojson.NewLineStringGeometry(pts).MarshalJSON()
}
