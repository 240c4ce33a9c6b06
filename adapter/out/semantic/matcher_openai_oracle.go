// Package semantic implements the similarity oracle over the OpenAI
// embeddings API.
package semantic

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"matcher_server/core/port/out"
	"matcher_server/pkg/apperr"
	"matcher_server/pkg/logger"
	"matcher_server/pkg/resilience"
)

// OracleConfig tunes the embeddings adapter.
type OracleConfig struct {
	Model      string
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// OpenAIOracle implements out.SemanticOracle by embedding need and offer
// texts and comparing them by cosine similarity. The raw cosine is mapped
// onto [0, 1] so callers can threshold it like any other score.
type OpenAIOracle struct {
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
	cfg     OracleConfig
	log     zerolog.Logger
}

// NewOpenAIOracle creates a new OpenAIOracle.
func NewOpenAIOracle(apiKey string, cfg OracleConfig) *OpenAIOracle {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &OpenAIOracle{
		client:  openai.NewClient(apiKey),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("semantic-oracle")),
		cfg:     cfg,
		log:     logger.Component("oracle"),
	}
}

// Similarity scores each pair's need text against its offer text.
func (o *OpenAIOracle) Similarity(ctx context.Context, pairs []out.TextPair) (map[string]float64, error) {
	if len(pairs) == 0 {
		return map[string]float64{}, nil
	}

	// 1. Dedupe texts: a popular offer text appears in many pairs but is
	//    embedded once.
	index := make(map[string]int)
	var texts []string
	register := func(t string) {
		if _, ok := index[t]; !ok {
			index[t] = len(texts)
			texts = append(texts, t)
		}
	}
	for _, p := range pairs {
		register(p.Needs)
		register(p.Offer)
	}

	// 2. Embed all distinct texts in batches.
	vectors, err := o.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	// 3. Compare per pair.
	result := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		cos := cosine(vectors[index[p.Needs]], vectors[index[p.Offer]])
		result[p.Key] = clamp01((cos + 1) / 2)
	}

	return result, nil
}

func (o *OpenAIOracle) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (o *OpenAIOracle) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := o.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
			defer cancel()

			return o.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(o.cfg.Model),
				Input: texts,
			})
		})
		if err != nil {
			lastErr = err
			if resilience.IsOpen(err) {
				break
			}
			o.log.Warn().Err(err).Int("attempt", attempt+1).Msg("embedding batch failed")
			continue
		}

		resp := raw.(openai.EmbeddingResponse)
		if len(resp.Data) != len(texts) {
			return nil, apperr.OracleError(fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)))
		}

		vectors := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vectors[i] = d.Embedding
		}
		return vectors, nil
	}

	return nil, apperr.OracleError(lastErr)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ out.SemanticOracle = (*OpenAIOracle)(nil)
