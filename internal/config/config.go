package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"docquery/internal/errs"
)

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai or ollama
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	// Name of the environment variable holding the API key.
	CredentialEnv string `yaml:"credential_env"`
}

type RAGConfig struct {
	ChunkSize        int     `yaml:"chunk_size"`
	ChunkOverlap     int     `yaml:"chunk_overlap"`
	TopK             int     `yaml:"top_k"`
	SimilarityCutoff float32 `yaml:"similarity_cutoff"`
	SynthesisMode    string  `yaml:"synthesis_mode"` // compact, refine or tree
	// Character budget for one synthesis prompt in compact/tree mode.
	ContextBudget int `yaml:"context_budget"`
	EmbedWorkers  int `yaml:"embed_workers"`
	MaxRetries    int `yaml:"max_retries"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"` // memory, chromem or postgres
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DSN        string `yaml:"dsn"`
	Password   string `yaml:"password"`
	// EncryptionKey protects exported chromem collection files.
	EncryptionKey string `yaml:"encryption_key"`
	VectorSize    int    `yaml:"vector_size"`
	Debug         bool   `yaml:"debug"`
}

type Config struct {
	LLM      LLMConfig   `yaml:"llm"`
	EmbedLLM LLMConfig   `yaml:"embed_llm"`
	RAG      RAGConfig   `yaml:"rag"`
	Store    StoreConfig `yaml:"store"`
}

const (
	defaultChunkSize     = 1000
	defaultChunkOverlap  = 200
	defaultTopK          = 5
	defaultCutoff        = 0.8
	defaultContextBudget = 12000
	defaultEmbedWorkers  = 4
	defaultMaxRetries    = 3
	defaultVectorSize    = 768
)

// LoadConfig reads the YAML config at path. A missing file is not an
// error; defaults apply. A file that exists but does not parse is a
// config error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindConfig, err, "reading config %q", path)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "parsing config %q", path)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.CredentialEnv == "" {
		c.LLM.CredentialEnv = "OPENAI_API_KEY"
	}
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = c.LLM.Provider
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = "text-embedding-3-small"
	}
	if c.EmbedLLM.CredentialEnv == "" {
		c.EmbedLLM.CredentialEnv = c.LLM.CredentialEnv
	}
	if c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = c.LLM.BaseURL
	}
	if c.RAG.ChunkSize == 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = defaultTopK
	}
	if c.RAG.SimilarityCutoff == 0 {
		c.RAG.SimilarityCutoff = defaultCutoff
	}
	if c.RAG.SynthesisMode == "" {
		c.RAG.SynthesisMode = "compact"
	}
	if c.RAG.ContextBudget == 0 {
		c.RAG.ContextBudget = defaultContextBudget
	}
	if c.RAG.EmbedWorkers == 0 {
		c.RAG.EmbedWorkers = defaultEmbedWorkers
	}
	if c.RAG.MaxRetries == 0 {
		c.RAG.MaxRetries = defaultMaxRetries
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "documents"
	}
	if c.Store.VectorSize == 0 {
		c.Store.VectorSize = defaultVectorSize
	}
}

func (c *Config) validate() error {
	if c.RAG.TopK < 1 {
		return errs.New(errs.KindConfig, "top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.SimilarityCutoff < 0 || c.RAG.SimilarityCutoff > 1 {
		return errs.New(errs.KindConfig, "similarity_cutoff must be in [0,1], got %g", c.RAG.SimilarityCutoff)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return errs.New(errs.KindConfig, "chunk_overlap %d must be smaller than chunk_size %d", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	switch c.RAG.SynthesisMode {
	case "compact", "refine", "tree":
	default:
		return errs.New(errs.KindConfig, "unknown synthesis_mode %q", c.RAG.SynthesisMode)
	}
	switch c.Store.Backend {
	case "memory", "chromem", "postgres":
	default:
		return errs.New(errs.KindConfig, "unknown store backend %q", c.Store.Backend)
	}
	return nil
}
