package parser

import (
	"strings"

	"docquery/internal/models"
)

// Splitter cuts section text into overlapping chunks sized for
// embedding.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// Split turns a document into chunks, numbering them per document and
// carrying each section's page number through.
func (s Splitter) Split(doc models.Document) []models.Chunk {
	size := s.ChunkSize
	overlap := s.ChunkOverlap
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []models.Chunk
	for _, section := range doc.Sections {
		for _, piece := range splitText(section.Text, size, overlap) {
			chunks = append(chunks, models.Chunk{
				Content:    piece,
				DocumentID: doc.ID,
				Source:     doc.Path,
				PageNumber: section.Page,
				ChunkID:    len(chunks) + 1,
			})
		}
	}
	return chunks
}

func splitText(content string, maxChars, overlapChars int) []string {
	content = strings.TrimSpace(content)
	if len(content) == 0 {
		return nil
	}
	if len(content) <= maxChars {
		return []string{content}
	}

	var pieces []string
	start := 0
	for {
		end := min(start+maxChars, len(content))

		// Prefer breaking on a space or sentence end within the
		// last tenth of the window.
		if end < len(content) {
			lookBack := min(maxChars/10, end-start)
			for i := end - 1; i >= end-lookBack && i > start; i-- {
				if content[i] == ' ' || content[i] == '\n' || content[i] == '.' {
					end = i + 1
					break
				}
			}
		}

		if piece := strings.TrimSpace(content[start:end]); piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= len(content) {
			break
		}
		// Advance from where this chunk actually ended so a
		// pulled-back break point never skips bytes.
		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}
