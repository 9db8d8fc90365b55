package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// documentKey holds the document text inside the Qdrant payload.
const documentKey = "document"

const scrollPage = 256

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named cosine collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Collection ensures the collection exists and returns an Index bound to it.
func (c *Client) Collection(ctx context.Context, name string, dimension int) (Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: collection %s needs a positive dimension", ErrInvalidConfig, name)
	}
	if err := c.EnsureCollection(ctx, name, uint64(dimension)); err != nil {
		return nil, err
	}
	return &QdrantIndex{client: c, name: name}, nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// QdrantIndex is an Index over one Qdrant collection. Get enumerates in
// point-id order, which is stable between calls.
type QdrantIndex struct {
	client *Client
	name   string
}

func (q *QdrantIndex) Insert(ctx context.Context, id string, vector []float32, document string, md Metadata) error {
	payload := toPayload(md)
	payload[documentKey] = toValue(document)
	wait := true
	_, err := q.client.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.name,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      pointID(id),
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", q.name, id, err)
	}
	return nil
}

func (q *QdrantIndex) Get(ctx context.Context, filter *Filter) ([]Record, error) {
	var out []Record
	var offset *pb.PointId
	limit := uint32(scrollPage)
	for {
		resp, err := q.client.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: q.name,
			Filter:         toFilter(filter),
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", q.name, err)
		}
		for _, p := range resp.Result {
			out = append(out, toRecord(p.Id, p.Payload, 0))
		}
		if resp.NextPageOffset == nil {
			return out, nil
		}
		offset = resp.NextPageOffset
	}
}

// Query performs a nearest-neighbor search. Qdrant reports cosine similarity
// as the score, so the distance is 1 - score.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Record, error) {
	if k <= 0 {
		k = 1
	}
	resp, err := q.client.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.name,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.name, err)
	}
	out := make([]Record, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, toRecord(r.Id, r.Payload, 1-r.Score))
	}
	return out, nil
}

// Update merges md into the point's payload.
func (q *QdrantIndex) Update(ctx context.Context, id string, md Metadata) error {
	wait := true
	_, err := q.client.points.SetPayload(ctx, &pb.SetPayloadPoints{
		CollectionName: q.name,
		Wait:           &wait,
		Payload:        toPayload(md),
		PointsSelector: selectIDs(id),
	})
	if err != nil {
		return fmt.Errorf("set payload %s/%s: %w", q.name, id, err)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	wait := true
	_, err := q.client.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.name,
		Wait:           &wait,
		Points:         selectIDs(ids...),
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", q.name, err)
	}
	return nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.client.points.Count(ctx, &pb.CountPoints{CollectionName: q.name, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func selectIDs(ids ...string) *pb.PointsSelector {
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	return &pb.PointsSelector{
		PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: pids}},
	}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func toFilter(f *Filter) *pb.Filter {
	if f == nil {
		return nil
	}
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: f.Key,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: f.In}},
					},
				},
			},
		}},
	}
}

func toPayload(md Metadata) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(md)+1)
	for k, v := range md {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v any) *pb.Value {
	switch t := v.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: t}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(t)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: t}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(t)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: t}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(t)}}
	}
}

func toRecord(id *pb.PointId, payload map[string]*pb.Value, distance float32) Record {
	md := make(Metadata, len(payload))
	var doc string
	for k, v := range payload {
		if k == documentKey {
			doc = v.GetStringValue()
			continue
		}
		switch kind := v.Kind.(type) {
		case *pb.Value_StringValue:
			md[k] = kind.StringValue
		case *pb.Value_IntegerValue:
			md[k] = kind.IntegerValue
		case *pb.Value_DoubleValue:
			md[k] = kind.DoubleValue
		case *pb.Value_BoolValue:
			md[k] = kind.BoolValue
		}
	}
	return Record{ID: id.GetUuid(), Document: doc, Metadata: md, Distance: distance}
}
