package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCachedEmbedder shares embeddings between processes through Redis.
// Keys are sha256(namespace, text); namespace should identify the model so that
// switching models never serves stale vectors.
type RedisCachedEmbedder struct {
	Embedder
	client    redis.Cmdable
	prefix    string
	namespace string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisCachedEmbedder wraps inner. A zero ttl keeps entries until evicted by Redis.
func NewRedisCachedEmbedder(inner Embedder, client redis.Cmdable, namespace string, ttl time.Duration, logger *zap.Logger) *RedisCachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCachedEmbedder{
		Embedder:  inner,
		client:    client,
		prefix:    "inqdoc:emb:",
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
	}
}

func (e *RedisCachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.namespace + "\x00" + text))
	return e.prefix + hex.EncodeToString(sum[:])
}

// Embed serves from Redis or computes and stores the vector. Redis failures are
// logged and never fail the call.
func (e *RedisCachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	raw, err := e.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if v, decErr := decodeVector(raw); decErr == nil {
			return v, nil
		}
	case !errors.Is(err, redis.Nil):
		e.logger.Warn("embedding cache get failed", zap.Error(err))
	}
	v, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.client.Set(ctx, key, encodeVector(v), e.ttl).Err(); err != nil {
		e.logger.Warn("embedding cache set failed", zap.Error(err))
	}
	return v, nil
}

// EmbedBatch looks up all texts with one MGET and embeds the misses in one inner batch.
func (e *RedisCachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.key(t)
	}
	out := make([][]float32, len(texts))
	cached, err := e.client.MGet(ctx, keys...).Result()
	if err != nil {
		e.logger.Warn("embedding cache mget failed", zap.Error(err))
		cached = make([]interface{}, len(texts))
	}
	var missIdx []int
	var missTexts []string
	for i, c := range cached {
		if s, ok := c.(string); ok {
			if v, decErr := decodeVector([]byte(s)); decErr == nil {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := e.Embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	_, err = e.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for j, i := range missIdx {
			out[i] = vecs[j]
			p.Set(ctx, keys[i], encodeVector(vecs[j]), e.ttl)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("embedding cache pipeline failed", zap.Error(err))
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector of %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
