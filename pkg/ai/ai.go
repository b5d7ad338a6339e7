// Package ai contains helpers shared by the model-backed parts of the
// service: generation settings, usage metrics and tolerant JSON handling.
package ai

// GenerateOptions holds the settings a model client sends with every request.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Reasoning effort, empty disables it
}

// ModelMetrics contains usage figures accumulated over model calls.
type ModelMetrics struct {
	Requests     int   `json:"requests"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// Add returns the sum of m and other.
func (m ModelMetrics) Add(other ModelMetrics) ModelMetrics {
	return ModelMetrics{
		Requests:     m.Requests + other.Requests,
		InputTokens:  m.InputTokens + other.InputTokens,
		OutputTokens: m.OutputTokens + other.OutputTokens,
		TotalTokens:  m.TotalTokens + other.TotalTokens,
		DurationMs:   m.DurationMs + other.DurationMs,
	}
}
