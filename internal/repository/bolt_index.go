package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/timmy/emoreply/internal/domain"
	"go.etcd.io/bbolt"
)

var bucketCollections = []byte("collections")

// BoltIndex is a file-backed feedback index for local runs. Each collection is
// a bbolt bucket; queries are a brute-force cosine scan.
type BoltIndex struct {
	db              *bbolt.DB
	collection      []byte
	vectorDimension int
}

type storedFeedback struct {
	Text      string               `json:"text"`
	Emotion   domain.EmotionResult `json:"emotion"`
	Vector    []float32            `json:"v"`
	CreatedAt time.Time            `json:"created_at"`
}

// NewBoltIndex opens (or creates) the database at path.
func NewBoltIndex(path, collection string, vectorDimension int) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}

	return &BoltIndex{
		db:              db,
		collection:      []byte(collection),
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the underlying database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}

// EnsureCollection creates the collection bucket and records its dimension.
// An existing collection with a different dimension is an error.
func (b *BoltIndex) EnsureCollection(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketCollections)
		if existing := meta.Get(b.collection); existing != nil {
			if size := int(binary.BigEndian.Uint32(existing)); size != b.vectorDimension {
				return fmt.Errorf("collection %s has vector size %d, expected %d", b.collection, size, b.vectorDimension)
			}
		} else {
			size := make([]byte, 4)
			binary.BigEndian.PutUint32(size, uint32(b.vectorDimension))
			if err := meta.Put(b.collection, size); err != nil {
				return err
			}
		}

		_, err := tx.CreateBucketIfNotExists(b.collection)
		return err
	})
}

// Upsert writes a record keyed by its ID.
func (b *BoltIndex) Upsert(ctx context.Context, rec *domain.FeedbackRecord) error {
	if len(rec.Vector) != b.vectorDimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", b.vectorDimension, len(rec.Vector))
	}

	data, err := json.Marshal(storedFeedback{
		Text:      rec.Text,
		Emotion:   rec.Emotion,
		Vector:    rec.Vector,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.collection)
		if bucket == nil {
			return fmt.Errorf("collection %s not found", b.collection)
		}
		return bucket.Put([]byte(rec.ID), data)
	})
}

// Query returns the limit records most similar to vector, best first.
func (b *BoltIndex) Query(ctx context.Context, vector []float32, limit int) ([]domain.SimilarityMatch, error) {
	if len(vector) != b.vectorDimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", b.vectorDimension, len(vector))
	}

	var matches []domain.SimilarityMatch
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.collection)
		if bucket == nil {
			return fmt.Errorf("collection %s not found", b.collection)
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored storedFeedback
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // Skip corrupted entries
			}
			matches = append(matches, domain.SimilarityMatch{
				ID:      string(k),
				Score:   cosineSimilarity(vector, stored.Vector),
				Text:    stored.Text,
				Emotion: stored.Emotion.Normalize(),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Delete removes a record. Deleting an absent ID is not an error.
func (b *BoltIndex) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.collection)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(id))
	})
}

// Count returns the number of stored records.
func (b *BoltIndex) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.collection)
		if bucket == nil {
			return nil
		}
		n = uint64(bucket.Stats().KeyN)
		return nil
	})
	return n, err
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
