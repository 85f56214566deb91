package schema

// Document is a retrievable unit of content with an optional relevance
// score and embedding vector. Not exercised by the call orchestrator
// itself (no retrieval requirement in this domain) but kept as part of the
// shared schema package other Beluga AI components depend on.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Score     float64
	Embedding []float32
}
