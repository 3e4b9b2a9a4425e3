package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Storage.VectorsPath == "" {
		cfg.Storage.VectorsPath = "./data/vectors"
	}
	if cfg.Vectors.DefaultSource == "" {
		cfg.Vectors.DefaultSource = "transformers"
	}
	if cfg.Vectors.BatchSize == 0 {
		cfg.Vectors.BatchSize = 10
	}
	if cfg.Vectors.DefaultTopK == 0 {
		cfg.Vectors.DefaultTopK = 10
	}
	if cfg.Vectors.QueryConcurrency == 0 {
		cfg.Vectors.QueryConcurrency = 8
	}
	// Model scopes default to true when unset (nil).
	if cfg.Vectors.EnableModelScopes == nil {
		t := true
		cfg.Vectors.EnableModelScopes = &t
	}
	if cfg.Embedding.CacheSize == nil {
		n := 1024
		cfg.Embedding.CacheSize = &n
	}
	if cfg.Embedding.Local.ModelName == "" {
		cfg.Embedding.Local.ModelName = "all-MiniLM-L6-v2"
	}
	if cfg.Embedding.Local.Dimensions == 0 {
		cfg.Embedding.Local.Dimensions = 384
	}
	if cfg.Embedding.Local.MaxTokens == 0 {
		cfg.Embedding.Local.MaxTokens = 256
	}
	if cfg.Embedding.Providers == nil {
		cfg.Embedding.Providers = map[string]ProviderConfig{}
	}
	for name, env := range defaultKeyEnv {
		p := cfg.Embedding.Providers[name]
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = env
			cfg.Embedding.Providers[name] = p
		}
	}
}

// defaultKeyEnv names the environment variable read for each keyed source when the config names none.
var defaultKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"togetherai": "TOGETHER_API_KEY",
	"cohere":     "COHERE_API_KEY",
	"nomicai":    "NOMIC_API_KEY",
	"palm":       "GOOGLE_API_KEY",
}
