package config

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// Config is the top-level helpdesk configuration, corresponding to helpdesk.yml.
type Config struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	// EmbeddingDims is only consulted for providers that cannot report
	// their own dimensionality (ollama).
	EmbeddingDims int            `yaml:"embedding_dims" koanf:"embedding_dims"`
	DataDir       string         `yaml:"data_dir" koanf:"data_dir"`
	KBPath        string         `yaml:"kb_path" koanf:"kb_path"`
	Port          int            `yaml:"port" koanf:"port"`
	Chunking      ChunkingConfig `yaml:"chunking" koanf:"chunking"`
	Search        SearchConfig   `yaml:"search" koanf:"search"`
	Agent         AgentConfig    `yaml:"agent" koanf:"agent"`
	Ingest        IngestConfig   `yaml:"ingest" koanf:"ingest"`
}

// ChunkingConfig controls how article text is windowed into chunks.
type ChunkingConfig struct {
	Size    int `yaml:"size" koanf:"size"`
	Overlap int `yaml:"overlap" koanf:"overlap"`
}

// SearchConfig controls knowledge-base retrieval.
type SearchConfig struct {
	TopK int `yaml:"top_k" koanf:"top_k"`
}

// AgentConfig controls the agent resolution loop.
type AgentConfig struct {
	MaxSteps int `yaml:"max_steps" koanf:"max_steps"`
}

// IngestConfig holds ingestion-specific settings.
type IngestConfig struct {
	// Exclude holds doublestar glob patterns; manifest entries whose file
	// matches any pattern are skipped with a log line.
	Exclude []string `yaml:"exclude" koanf:"exclude"`
}
