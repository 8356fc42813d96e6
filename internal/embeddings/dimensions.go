package embeddings

var fastEmbedDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// FastEmbedModelDimension returns the vector size of a known local model.
func FastEmbedModelDimension(model string) (int, bool) {
	dim, ok := fastEmbedDimensions[model]
	return dim, ok
}
