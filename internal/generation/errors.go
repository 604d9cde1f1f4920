package generation

// ValidationError reports a missing or empty request field. Its message is
// safe to show to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Fallback text returned in place of generated content when the backend
// cannot produce any.
const (
	FallbackDisabled     = "LLM not configured or failed to initialize. Please check your GEMINI_API_KEY."
	FallbackSummarize    = "LLM summarization failed. Check API key or model access."
	FallbackAnswer       = "LLM Q&A failed. Check API key or model access."
	FallbackLearningPath = "LLM learning path generation failed. Check API key or model access."
)
