package input

import (
	"context"
	"path/filepath"
	"strings"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"go.mongodb.org/mongo-driver/mongo"
)

var log = logrus.WithField("module", "input")

const (
	FormatJSON = "json"
	FormatOSM  = "osm"
	FormatPBF  = "pbf"
)

// Graph 路网原始数据（节点与边记录）
type Graph struct {
	Nodes []entity.RoadNode
	Edges []entity.RoadEdge
}

// NewClient 按配置创建MongoDB客户端，未配置uri时返回nil
func NewClient(c config.Input) *mongo.Client {
	if c.URI == "" {
		return nil
	}
	return mongoutil.NewClient(c.URI)
}

// LoadGraph 加载路网
// 参数：ctx-上下文，client-MongoDB客户端（可以为nil），c-路网输入配置
func LoadGraph(ctx context.Context, client *mongo.Client, c config.GraphInput) (*Graph, error) {
	if c.File != "" {
		format := c.Format
		if format == "" {
			format = guessFormat(c.File)
		}
		switch format {
		case FormatJSON:
			return LoadJSONFile(c.File)
		case FormatOSM, FormatPBF:
			return LoadOSMFile(ctx, c.File, format, c.SignalTags)
		default:
			return nil, errors.Errorf("unknown graph format %q for file %s (json|osm|pbf)", format, c.File)
		}
	}
	if c.Nodes != nil && c.Edges != nil {
		if client == nil {
			return nil, errors.New("input.uri is required to load the road graph from mongodb")
		}
		return loadGraphFromMongo(ctx, client, *c.Nodes, *c.Edges)
	}
	return nil, errors.New("input.graph requires either file or nodes+edges collections")
}

// LoadIntersections 加载受控路口配置
func LoadIntersections(ctx context.Context, client *mongo.Client, c config.Config) ([]config.Intersection, error) {
	if c.Input.Intersections == nil {
		return c.Signal.Intersections, nil
	}
	if client == nil {
		return nil, errors.New("input.uri is required to load intersections from mongodb")
	}
	return loadIntersectionsFromMongo(ctx, client, *c.Input.Intersections)
}

func guessFormat(file string) string {
	name := strings.ToLower(file)
	switch {
	case strings.HasSuffix(name, ".osm.pbf"), filepath.Ext(name) == ".pbf":
		return FormatPBF
	case filepath.Ext(name) == ".osm", filepath.Ext(name) == ".xml":
		return FormatOSM
	default:
		return FormatJSON
	}
}
