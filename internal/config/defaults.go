package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "chromem"
	}
	if cfg.Storage.ChromaPath == "" {
		cfg.Storage.ChromaPath = "/usr/local/var/kotae/data/chroma"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/kotae/data/vector_store.json"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "/usr/local/var/kotae/data/catalog.db"
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 10 * 1024 * 1024
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 50
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.BatchDelayMS == 0 {
		cfg.Embedding.BatchDelayMS = 100
	}
	if cfg.Embedding.ProbeTimeoutSeconds == 0 {
		cfg.Embedding.ProbeTimeoutSeconds = 10
	}
	if cfg.Embedding.RequestTimeoutSeconds == 0 {
		cfg.Embedding.RequestTimeoutSeconds = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.ONNXMaxTokens == 0 {
		cfg.Embedding.ONNXMaxTokens = 256
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-3.5-turbo"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 2000
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.Generation.ProbeTimeoutSeconds == 0 {
		cfg.Generation.ProbeTimeoutSeconds = 10
	}
	if cfg.Generation.RequestTimeoutSeconds == 0 {
		cfg.Generation.RequestTimeoutSeconds = 120
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 20
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = 0.7
	}
	if cfg.Retrieval.FallbackThreshold == 0 {
		cfg.Retrieval.FallbackThreshold = 0.1
	}
	if cfg.Retrieval.MaxQueryLength == 0 {
		cfg.Retrieval.MaxQueryLength = 1000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".txt", ".docx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
