package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeResponse struct {
	resp *genai.EmbedContentResponse
	err  error
}

type fakeEmbedClient struct {
	mu      sync.Mutex
	queue   []fakeResponse
	batches [][]string
	configs []*genai.EmbedContentConfig
}

func (f *fakeEmbedClient) enqueue(resp *genai.EmbedContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeEmbedClient) EmbedContent(_ context.Context, _ string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var batch []string
	for _, c := range contents {
		batch = append(batch, c.Parts[0].Text)
	}
	f.batches = append(f.batches, batch)
	f.configs = append(f.configs, config)

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func embeddings(values ...[]float32) *genai.EmbedContentResponse {
	resp := &genai.EmbedContentResponse{}
	for _, v := range values {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: v})
	}
	return resp
}

func noWait(t *testing.T) {
	t.Helper()
	original := wait
	wait = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { wait = original })
}

func TestEmbedderBatchesTexts(t *testing.T) {
	client := &fakeEmbedClient{}
	client.enqueue(embeddings([]float32{1, 0}, []float32{0, 1}), nil)
	client.enqueue(embeddings([]float32{1, 1}), nil)

	e := newEmbedder(client, Config{BatchSize: 2}, zap.NewNop())
	got, err := e.Embed(context.Background(), []string{"soil", "golang", "docker"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 3 || got[2][0] != 1 {
		t.Fatalf("unexpected vectors %v", got)
	}
	if len(client.batches) != 2 || len(client.batches[0]) != 2 || client.batches[1][0] != "docker" {
		t.Fatalf("unexpected batches %v", client.batches)
	}
	if client.configs[0].TaskType != "CLASSIFICATION" {
		t.Fatalf("unexpected task type %q", client.configs[0].TaskType)
	}
	if e.Model() != "gemini-embedding-001" {
		t.Fatalf("unexpected default model %q", e.Model())
	}
}

func TestEmbedderRetriesOnTemporaryError(t *testing.T) {
	noWait(t)

	client := &fakeEmbedClient{}
	client.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	client.enqueue(embeddings([]float32{0.5, 0.5}), nil)

	e := newEmbedder(client, Config{MaxRetries: 2}, zap.NewNop())
	got, err := e.Embed(context.Background(), []string{"agronomy"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 1 || len(client.batches) != 2 {
		t.Fatalf("expected a retried call, got %d calls", len(client.batches))
	}
}

func TestEmbedderStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	client := &fakeEmbedClient{}
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	client.enqueue(nil, tempErr)
	client.enqueue(nil, tempErr)

	e := newEmbedder(client, Config{MaxRetries: 2}, zap.NewNop())
	if _, err := e.Embed(context.Background(), []string{"agronomy"}); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(client.batches) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(client.batches))
	}
}

func TestEmbedderDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	client := &fakeEmbedClient{}
	client.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	e := newEmbedder(client, Config{MaxRetries: 3}, zap.NewNop())
	if _, err := e.Embed(context.Background(), []string{"agronomy"}); err == nil {
		t.Fatal("expected error when quota delay too long")
	}
	if len(client.batches) != 1 {
		t.Fatalf("expected single call, got %d", len(client.batches))
	}
}

func TestEmbedderRejectsShortResponse(t *testing.T) {
	client := &fakeEmbedClient{}
	client.enqueue(embeddings([]float32{1}), nil)

	e := newEmbedder(client, Config{}, zap.NewNop())
	if _, err := e.Embed(context.Background(), []string{"a text", "another text"}); err == nil {
		t.Fatal("expected error for missing embeddings")
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		want  time.Duration
		retry bool
	}{
		{name: "server error backs off", err: genai.APIError{Code: 500}, want: 2 * time.Second, retry: true},
		{name: "short quota delay", err: genai.APIError{Code: 429, Message: "Please retry in 4.5s."}, want: 4500 * time.Millisecond, retry: true},
		{name: "bad request", err: genai.APIError{Code: 400}, retry: false},
		{name: "cancelled", err: context.Canceled, retry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, retry := retryDelay(tt.err, 2)
			if retry != tt.retry {
				t.Fatalf("expected retry=%v, got %v", tt.retry, retry)
			}
			if retry && got != tt.want {
				t.Fatalf("expected delay %v, got %v", tt.want, got)
			}
		})
	}
}
