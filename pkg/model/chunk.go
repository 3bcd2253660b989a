package model

// ChunkKind classifies a piece of a streamed backend answer.
type ChunkKind string

const (
	ChunkReasoning ChunkKind = "reasoning"
	ChunkContent   ChunkKind = "content"
	ChunkMeta      ChunkKind = "meta"
)

// Chunk is one typed element of a backend stream. Text is set for reasoning
// and content chunks; meta chunks carry any of the remaining fields.
type Chunk struct {
	Kind              ChunkKind
	Text              string
	NotebookID        string
	ContinuationToken string
	FinishReason      string
}

// Query is a single question sent to the retrieval backend.
type Query struct {
	Question          string
	Notebooks         []string
	ChatID            string
	ContinuationToken string
}
