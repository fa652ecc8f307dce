package embed

import "time"

// Ollama connection defaults.
const (
	// DefaultOllamaHost is where a local Ollama listens.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the code-tuned embedding model the indexer
	// prefers; the 0.6B variant keeps memory pressure workable on
	// typical dev machines.
	DefaultOllamaModel = "qwen3-embedding:0.6b"

	// OllamaConnectTimeout bounds the initial health probe only — cold
	// model loads get their own, much longer budget.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize sizes the HTTP connection pool.
	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order when the configured model
// isn't installed. Only embedding models with usable code performance
// belong here; general text embedders rank code poorly.
var FallbackOllamaModels = []string{
	"embeddinggemma",
	"mxbai-embed-large",
}

// OllamaConfig tunes the Ollama embedder.
type OllamaConfig struct {
	// Host is the API endpoint; empty means DefaultOllamaHost.
	Host string

	// Model is the embedding model; empty means DefaultOllamaModel.
	Model string

	// FallbackModels are tried in order when Model is unavailable.
	FallbackModels []string

	// Dimensions overrides auto-detection when non-zero.
	Dimensions int

	// BatchSize is texts per embed request.
	BatchSize int

	// Timeout is the per-request base; progressive scaling builds on it.
	Timeout time.Duration

	// ConnectTimeout bounds the startup health probe.
	ConnectTimeout time.Duration

	// MaxRetries bounds attempts per batch before the error surfaces.
	MaxRetries int

	// PoolSize sizes the HTTP connection pool.
	PoolSize int

	// SkipHealthCheck lets tests construct an embedder with no server.
	SkipHealthCheck bool

	// ProgressFunc, when set, receives (completed, total) after each
	// batch.
	ProgressFunc func(completed, total int)

	// InterBatchDelay pauses between batches; zero disables. With
	// TimeoutProgression and RetryTimeoutMultiplier it compensates for
	// thermal throttling on long GPU-bound runs:
	//
	//	effectiveTimeout = base * (1 + (batchIndex*BatchSize/1000) * (TimeoutProgression - 1))
	//	retryTimeout     = base * RetryTimeoutMultiplier^attempt
	InterBatchDelay        time.Duration
	TimeoutProgression     float64
	RetryTimeoutMultiplier float64
}

// DefaultOllamaConfig fills every knob with its default; inter-batch
// delay and retry-timeout scaling stay off, while timeout progression uses
// DefaultTimeoutProgression (1.5).
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:                   DefaultOllamaHost,
		Model:                  DefaultOllamaModel,
		FallbackModels:         FallbackOllamaModels,
		BatchSize:              DefaultBatchSize,
		Timeout:                DefaultTimeout,
		ConnectTimeout:         OllamaConnectTimeout,
		MaxRetries:             DefaultMaxRetries,
		PoolSize:               OllamaPoolSize,
		InterBatchDelay:        DefaultInterBatchDelay,
		TimeoutProgression:     DefaultTimeoutProgression,
		RetryTimeoutMultiplier: DefaultRetryTimeoutMultiplier,
	}
}

// OllamaEmbedRequest is the /api/embed request body.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // one string, or []string for a batch
}

// OllamaEmbedResponse is the /api/embed response body.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the /api/tags response body.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo is one installed model in the /api/tags listing.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
