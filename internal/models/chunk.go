package models

// DocumentChunk is a single slice of a preprocessed source document together
// with its LLM-generated overview. Chunk IDs are deterministic:
// {doc_type}_{period_label with spaces replaced by underscores}_{index},
// where index is sequential across the whole document.
type DocumentChunk struct {
	ChunkID  string `json:"chunk_id"`
	Text     string `json:"original_text"`
	Overview string `json:"overview_text"`
}

// Supported source document types for chunked retrieval.
const (
	DocTypeFootnotes = "footnotes"
	DocTypeMDA       = "mda"
)
