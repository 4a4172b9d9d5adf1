package input

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// EmptyTag 非null的空tag替换值，保证其仍被视为信控路口
const EmptyTag = "intersection"

type jsonNode struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Tag *string `json:"tag"`
}

// jsonGraph 文件格式：{"nodes": {"<id>": {lat, lon, tag}}, "edges": [{source, target, length}]}
type jsonGraph struct {
	Nodes map[string]jsonNode `json:"nodes"`
	Edges []entity.RoadEdge   `json:"edges"`
}

// LoadJSONFile 读取JSON路网文件
func LoadJSONFile(file string) (*Graph, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrapf(err, "open graph file %s", file)
	}
	defer f.Close()
	return DecodeJSON(f)
}

// DecodeJSON 解析JSON路网
// 说明：tag为null或缺省表示形状点，非null的tag（包括空字符串）表示信控路口，节点按ID排序输出
func DecodeJSON(r io.Reader) (*Graph, error) {
	var raw jsonGraph
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode graph json")
	}
	nodes := make([]entity.RoadNode, 0, len(raw.Nodes))
	for key, n := range raw.Nodes {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "node id %q", key)
		}
		nodes = append(nodes, entity.RoadNode{
			ID:  id,
			Lat: n.Lat,
			Lon: n.Lon,
			Tag: nodeTag(id, n.Tag),
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return &Graph{Nodes: nodes, Edges: raw.Edges}, nil
}

// nodeTag 将可空的tag转换为节点标签
// 说明：nil表示形状点，非nil的空字符串替换为EmptyTag
func nodeTag(id int64, tag *string) string {
	if tag != nil && *tag == "" {
		log.Warnf("node %d has an empty tag, loaded as %q", id, EmptyTag)
		return EmptyTag
	}
	return lo.FromPtr(tag)
}
