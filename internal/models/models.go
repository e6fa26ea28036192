package models

// Document is one source unit loaded from the data directory.
type Document struct {
	ID       string
	Path     string
	Sections []Section
	Metadata map[string]string
}

// Section is a page-sized span of extracted text. Formats without
// pages produce a single section numbered 1.
type Section struct {
	Text string
	Page int
}

// Text returns the document body with sections joined.
func (d Document) Text() string {
	var b []byte
	for i, s := range d.Sections {
		if i > 0 {
			b = append(b, '\n', '\n')
		}
		b = append(b, s.Text...)
	}
	return string(b)
}

// Chunk represents a split piece of a document with metadata
type Chunk struct {
	Content    string
	DocumentID string
	Source     string
	PageNumber int
	ChunkID    int
}

// ChunkEmbedding pairs a chunk with its embedding vector.
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

// ScoredChunk is one retrieval hit, score descending in a result set.
type ScoredChunk struct {
	Chunk
	Score float32
}

// Response is the synthesized answer plus the chunks it was built from.
type Response struct {
	Query   string
	Content string
	Sources []ScoredChunk
}
