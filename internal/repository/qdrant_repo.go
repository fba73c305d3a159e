package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/emoreply/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 384

	payloadText      = "text"
	payloadDominant  = "dominant_emotion"
	payloadEmotions  = "emotions"
	payloadCreatedAt = "created_at"
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool
	VectorDimension int
}

// apiKeyInterceptor adds the API key to outgoing gRPC metadata.
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository stores feedback vectors in a Qdrant collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Local Qdrant uses an insecure channel; an API key or UseTLS switches to TLS.
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it doesn't
// exist. An existing collection with a different vector size is an error.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	exists, err := r.checkCollection(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// Another process may have created it between Get and Create.
		if exists, checkErr := r.checkCollection(ctx); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func (r *QdrantRepository) checkCollection(ctx context.Context) (bool, error) {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err != nil {
		return false, nil
	}
	if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
		return true, fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
	}
	return true, nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}

	for _, params := range vectors.GetParamsMap().GetMap() {
		if size := params.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

// Upsert writes a feedback record as a point keyed by its UUID.
func (r *QdrantRepository) Upsert(ctx context.Context, rec *domain.FeedbackRecord) error {
	uid, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	wait := true
	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: rec.Vector},
					},
				},
				Payload: recordPayload(rec),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}

	return nil
}

// Query returns the nearest records to vector, best first.
func (r *QdrantRepository) Query(ctx context.Context, vector []float32, limit int) ([]domain.SimilarityMatch, error) {
	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]domain.SimilarityMatch, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		text, emotion := parsePayload(scored.GetPayload())
		matches = append(matches, domain.SimilarityMatch{
			ID:      pointIDString(scored.GetId()),
			Score:   scored.GetScore(),
			Text:    text,
			Emotion: emotion,
		})
	}

	return matches, nil
}

// Delete deletes a point by ID
func (r *QdrantRepository) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}

	return nil
}

// Count returns the exact number of stored points.
func (r *QdrantRepository) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := r.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: r.collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.GetResult().GetCount(), nil
}

func pointIDString(id *pb.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func recordPayload(rec *domain.FeedbackRecord) map[string]*pb.Value {
	emotions := make(map[string]*pb.Value, len(domain.EmotionLabels))
	for _, label := range domain.EmotionLabels {
		if v, ok := rec.Emotion.Score(label); ok {
			emotions[string(label)] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}}
		} else {
			emotions[string(label)] = &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
		}
	}

	dominant := rec.Emotion.DominantEmotion
	if dominant == "" {
		dominant = domain.EmotionUnknown
	}

	return map[string]*pb.Value{
		payloadText:     {Kind: &pb.Value_StringValue{StringValue: rec.Text}},
		payloadDominant: {Kind: &pb.Value_StringValue{StringValue: string(dominant)}},
		payloadEmotions: {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: emotions}}},
		payloadCreatedAt: {Kind: &pb.Value_StringValue{
			StringValue: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}},
	}
}

func parsePayload(payload map[string]*pb.Value) (string, domain.EmotionResult) {
	if payload == nil {
		return "", domain.UnknownEmotionResult()
	}

	text := payload[payloadText].GetStringValue()

	scores := make(map[domain.Emotion]float64)
	for label, v := range payload[payloadEmotions].GetStructValue().GetFields() {
		switch kind := v.GetKind().(type) {
		case *pb.Value_DoubleValue:
			scores[domain.Emotion(label)] = kind.DoubleValue
		case *pb.Value_IntegerValue:
			scores[domain.Emotion(label)] = float64(kind.IntegerValue)
		}
	}

	return text, domain.NewEmotionResult(scores)
}
