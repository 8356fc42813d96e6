package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var qdrantTracer = otel.Tracer("tutorrag.vectorstore.qdrant")

const providerQdrant = "qdrant"

// collectionNamePattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Empty means unconfigured.
	Host string

	// Port is the gRPC port (6334), not the REST port.
	Port int

	Collection string

	// VectorSize must match the embedding model's output dimension.
	VectorSize uint64

	UseTLS bool

	// MaxMessageSize bounds gRPC messages in bytes. Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "tutorrag_documents"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: QDRANT_HOST is required", ErrConfigurationMissing)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if !collectionNamePattern.MatchString(c.Collection) {
		return fmt.Errorf("%w: collection name %q must match %s", ErrInvalidConfig, c.Collection, collectionNamePattern)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore keeps chunk records as points in one collection. The payload
// carries doc_id, content and metadata; point IDs are the record UUIDs.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects, checks health and creates the collection when it
// does not exist yet.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	store := &QdrantStore{client: client, config: config, logger: logger}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.init(initCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func (s *QdrantStore) init(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.init")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("qdrant health check: %w", err)
	}

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("created qdrant collection",
		zap.String("collection", s.config.Collection),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	return nil
}

// Upsert writes all records in one request and waits for them to be indexed.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	defer observe(providerQdrant, opUpsert, time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("records", len(records)),
	)
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload, perr := recordPayload(r)
		if perr != nil {
			err = perr
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", s.config.Collection, err)
	}

	RecordsUpserted.WithLabelValues(providerQdrant).Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// SimilaritySearch queries the collection by vector. Each match carries id,
// doc_id, content, metadata and the cosine similarity.
func (s *QdrantStore) SimilaritySearch(ctx context.Context, embedding []float32, matchCount int) (matches []Match, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.SimilaritySearch")
	defer span.End()
	defer observe(providerQdrant, opSearch, time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("match_count", matchCount),
	)
	if matchCount <= 0 {
		return []Match{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(matchCount)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying %s: %w", s.config.Collection, err)
	}

	matches = make([]Match, len(points))
	for i, p := range points {
		m := Match{"similarity": float64(p.GetScore())}
		if uuid := p.GetId().GetUuid(); uuid != "" {
			m["id"] = uuid
		}
		for k, v := range p.GetPayload() {
			m[k] = fromQdrantValue(v)
		}
		matches[i] = m
	}

	MatchesReturned.WithLabelValues(providerQdrant).Add(float64(len(matches)))
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// DeleteByDocID removes points whose doc_id payload equals docID, except the
// points listed in keep.
func (s *QdrantStore) DeleteByDocID(ctx context.Context, docID string, keep ...string) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteByDocID")
	defer span.End()
	defer observe(providerQdrant, opDelete, time.Now(), &err)

	span.SetAttributes(
		attribute.String("doc_id", docID),
		attribute.Int("kept", len(keep)),
	)

	filter := docIDFilter(docID)
	if len(keep) > 0 {
		ids := make([]*qdrant.PointId, len(keep))
		for i, id := range keep {
			ids[i] = qdrant.NewIDUUID(id)
		}
		filter.MustNot = []*qdrant.Condition{qdrant.NewHasID(ids...)}
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points of %s: %w", docID, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func docIDFilter(docID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: "doc_id",
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: docID},
					},
				},
			},
		}},
	}
}

// recordPayload builds the point payload for r.
func recordPayload(r Record) (map[string]*qdrant.Value, error) {
	meta, err := normalizeJSON(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata of %s: %w", r.ID, err)
	}
	return map[string]*qdrant.Value{
		"doc_id":   {Kind: &qdrant.Value_StringValue{StringValue: r.DocID}},
		"content":  {Kind: &qdrant.Value_StringValue{StringValue: r.Content}},
		"metadata": toQdrantValue(meta),
	}, nil
}

// normalizeJSON round-trips v through JSON so only JSON-native types remain.
// Whole numbers come back as int64.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: i}}
		}
		f, _ := val.Float64()
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
	case []any:
		list := make([]*qdrant.Value, len(val))
		for i, item := range val {
			list[i] = toQdrantValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
	case map[string]any:
		fields := make(map[string]*qdrant.Value, len(val))
		for k, item := range val {
			fields[k] = toQdrantValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}

func fromQdrantValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = fromQdrantValue(item)
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = fromQdrantValue(item)
		}
		return out
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
