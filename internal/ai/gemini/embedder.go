package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/cv-classifier/internal/logger"
	"github.com/spigell/cv-classifier/internal/utils"
)

const (
	defaultModel      = "gemini-embedding-001"
	defaultBatchSize  = 32
	defaultMaxRetries = 3
	taskType          = "CLASSIFICATION"
	provider          = "gemini"

	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
	logTextLimit   = 80
)

var (
	wait = utils.WaitFor

	retryAfter = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*(s|sec|secs|second|seconds)?\b`)
)

// embedClient is the subset of the genai models service the embedder uses.
type embedClient interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config configures the Gemini embedder.
type Config struct {
	APIKey     string
	Model      string
	BatchSize  int
	MaxRetries int
}

// Embedder turns texts into vectors with the Gemini embedding API.
type Embedder struct {
	client     embedClient
	model      string
	batchSize  int
	maxRetries int
	logger     *zap.Logger
}

// NewEmbedder creates an embedder configured for the Gemini API backend.
func NewEmbedder(ctx context.Context, cfg Config, log *zap.Logger) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newEmbedder(client.Models, cfg, log), nil
}

func newEmbedder(client embedClient, cfg Config, log *zap.Logger) *Embedder {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	return &Embedder{
		client:     client,
		model:      model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		logger:     logger.WithCommonFields(log, provider, model),
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	if e == nil {
		return ""
	}
	return e.model
}

// Embed returns one vector per text, in order. Texts are sent in batches.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e == nil || e.client == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	res := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		res = append(res, batch...)
	}
	return res, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text %d is empty", i)
		}
		contents[i] = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		}
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	count, runes := utils.TextStats(texts)

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		resp, err := e.client.EmbedContent(ctx, e.model, contents, cfg)
		if err == nil {
			return vectors(resp, len(texts))
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == e.maxRetries {
			break
		}

		e.logger.Warn("embedding request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("batch", count),
			zap.Int("text_runes", runes),
			zap.String("first_text", utils.Snippet(texts[0], logTextLimit)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embed content: %w", lastErr)
}

func vectors(resp *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if resp == nil || len(resp.Embeddings) != want {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini api returned %d embeddings for %d texts", got, want)
	}

	res := make([][]float32, want)
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini api returned empty embedding %d", i)
		}
		res[i] = emb.Values
	}
	return res, nil
}

// retryDelay decides whether err is worth retrying and how long to wait.
// Quota errors asking for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	backoff := utils.Backoff(baseRetryDelay, maxRetryDelay, attempt)

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return backoff, true
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if d, ok := parseRetryAfter(apiErr.Message); ok {
			return d, d <= maxRetryDelay
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	}
	return 0, false
}

func parseRetryAfter(message string) (time.Duration, bool) {
	m := retryAfter.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
