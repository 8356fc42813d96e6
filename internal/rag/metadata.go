package rag

import "maps"

// Reserved metadata keys. IngestDocument always writes them, replacing any
// caller-supplied value.
const (
	KeyChunkIndex = "chunk_index"
	KeyDocTitle   = "doc_title"
)

// Metadata is caller-supplied, open-ended key-value data stored with every
// chunk of a document. Values must be JSON-encodable.
type Metadata map[string]any

// forChunk returns a copy of m with the reserved keys set for one chunk.
func (m Metadata) forChunk(index int, title string) map[string]any {
	out := make(map[string]any, len(m)+2)
	maps.Copy(out, m)
	out[KeyChunkIndex] = index
	out[KeyDocTitle] = title
	return out
}
