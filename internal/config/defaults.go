package config

// embeddingPresets maps each provider to its default embedding model.
var embeddingPresets = map[ProviderType]struct {
	Model string
	Dims  int
}{
	ProviderOpenAI: {Model: "text-embedding-3-small", Dims: 1536},
	ProviderOllama: {Model: "nomic-embed-text", Dims: 768},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider:          ProviderOpenAI,
		Model:             "gpt-4o-mini",
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingDims:     1536,
		DataDir:           ".helpdesk",
		KBPath:            "data/kb_docs",
		Port:              8080,
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 100,
		},
		Search: SearchConfig{
			TopK: 5,
		},
		Agent: AgentConfig{
			MaxSteps: 8,
		},
	}
}

// DefaultEmbeddingModel returns the preset embedding model for a provider.
func DefaultEmbeddingModel(p ProviderType) (model string, dims int) {
	preset, ok := embeddingPresets[p]
	if !ok {
		preset = embeddingPresets[ProviderOpenAI]
	}
	return preset.Model, preset.Dims
}
