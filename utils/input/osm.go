package input

import (
	"context"
	"io"
	"os"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// DefaultSignalTags OSM中表示信控路口的highway取值
var DefaultSignalTags = []string{"traffic_signals"}

type osmScanner interface {
	Scan() bool
	Close() error
	Err() error
	Object() osm.Object
}

func newScanner(ctx context.Context, r io.Reader, format string) osmScanner {
	if format == FormatPBF {
		return osmpbf.New(ctx, r, runtime.GOMAXPROCS(0))
	}
	return osmxml.New(ctx, r)
}

// LoadOSMFile 读取OSM路网文件（XML或PBF）
// 功能：将带highway标签的way拆分为相邻节点间的边，长度为球面距离
// 参数：ctx-上下文，file-文件路径，format-osm|pbf，signalTags-标记信控路口的highway取值
// 返回：路网与错误信息
// 算法说明：
// 1. 第一遍扫描way，记录道路节点序列与用到的节点
// 2. 回到文件开头，第二遍扫描node，只保留道路用到的节点
// 3. 节点的highway标签属于signalTags时作为信控路口
func LoadOSMFile(ctx context.Context, file, format string, signalTags []string) (*Graph, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "open osm file %s", file)
	}
	defer f.Close()

	ways := make([][]osm.NodeID, 0)
	seen := make(map[osm.NodeID]struct{})
	{
		scanner := newScanner(ctx, f, format)
		for scanner.Scan() {
			way, ok := scanner.Object().(*osm.Way)
			if !ok || way.Tags.Find("highway") == "" || len(way.Nodes) < 2 {
				continue
			}
			ids := make([]osm.NodeID, 0, len(way.Nodes))
			for _, n := range way.Nodes {
				ids = append(ids, n.ID)
				seen[n.ID] = struct{}{}
			}
			ways = append(ways, ids)
		}
		err := scanner.Err()
		scanner.Close()
		if err != nil {
			return nil, errors.Wrap(err, "scan osm ways")
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "can't repeat seeking after ways scanning")
	}

	if len(signalTags) == 0 {
		signalTags = DefaultSignalTags
	}
	nodes := make(map[osm.NodeID]entity.RoadNode, len(seen))
	{
		scanner := newScanner(ctx, f, format)
		for scanner.Scan() {
			node, ok := scanner.Object().(*osm.Node)
			if !ok {
				continue
			}
			if _, used := seen[node.ID]; !used {
				continue
			}
			tag := ""
			if hw := node.Tags.Find("highway"); lo.Contains(signalTags, hw) {
				tag = hw
			}
			nodes[node.ID] = entity.RoadNode{ID: int64(node.ID), Lat: node.Lat, Lon: node.Lon, Tag: tag}
		}
		err := scanner.Err()
		scanner.Close()
		if err != nil {
			return nil, errors.Wrap(err, "scan osm nodes")
		}
	}

	edges := make([]entity.RoadEdge, 0)
	for _, ids := range ways {
		for i := 0; i+1 < len(ids); i++ {
			a, okA := nodes[ids[i]]
			b, okB := nodes[ids[i+1]]
			if !okA || !okB || a.ID == b.ID {
				// 裁剪后的文件可能缺少边界节点
				continue
			}
			edges = append(edges, entity.RoadEdge{
				Source:       a.ID,
				Target:       b.ID,
				LengthMeters: geo.DistanceHaversine(orb.Point{a.Lon, a.Lat}, orb.Point{b.Lon, b.Lat}),
			})
		}
	}
	res := &Graph{Nodes: lo.Values(nodes), Edges: edges}
	sort.Slice(res.Nodes, func(i, j int) bool { return res.Nodes[i].ID < res.Nodes[j].ID })
	log.Infof("osm %s: %d ways, %d nodes, %d edges", file, len(ways), len(res.Nodes), len(edges))
	return res, nil
}
