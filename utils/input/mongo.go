package input

import (
	"context"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type nodeRecord struct {
	ID  int64   `bson:"_id"`
	Lat float64 `bson:"lat"`
	Lon float64 `bson:"lon"`
	Tag *string `bson:"tag"`
}

type edgeRecord struct {
	Source int64   `bson:"source"`
	Target int64   `bson:"target"`
	Length float64 `bson:"length"`
}

func findAll[T any](ctx context.Context, client *mongo.Client, path config.InputPath) ([]T, error) {
	coll := mongoutil.GetMongoColl(client, path)
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	cur, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrapf(err, "find %s.%s", path.DB, path.Col)
	}
	defer cur.Close(ctx)
	res := make([]T, 0)
	if err := cur.All(ctx, &res); err != nil {
		return nil, errors.Wrapf(err, "decode %s.%s", path.DB, path.Col)
	}
	log.Infof("finish fetching %d records from %s.%s", len(res), path.DB, path.Col)
	return res, nil
}

func loadGraphFromMongo(ctx context.Context, client *mongo.Client, nodesPath, edgesPath config.InputPath) (*Graph, error) {
	nodes, err := findAll[nodeRecord](ctx, client, nodesPath)
	if err != nil {
		return nil, err
	}
	edges, err := findAll[edgeRecord](ctx, client, edgesPath)
	if err != nil {
		return nil, err
	}
	return &Graph{
		Nodes: lo.Map(nodes, func(n nodeRecord, _ int) entity.RoadNode {
			return entity.RoadNode{ID: n.ID, Lat: n.Lat, Lon: n.Lon, Tag: nodeTag(n.ID, n.Tag)}
		}),
		Edges: lo.Map(edges, func(e edgeRecord, _ int) entity.RoadEdge {
			return entity.RoadEdge{Source: e.Source, Target: e.Target, LengthMeters: e.Length}
		}),
	}, nil
}

func loadIntersectionsFromMongo(ctx context.Context, client *mongo.Client, path config.InputPath) ([]config.Intersection, error) {
	return findAll[config.Intersection](ctx, client, path)
}
