package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Embedding EmbeddingConfig
	Storage   StorageConfig
	Search    SearchConfig
	Backup    BackupConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type EmbeddingConfig struct {
	// Dimension is the vector size the active model produces. All stored
	// vectors must share it; mixing dimensions breaks similarity scoring.
	Dimension int
}

type StorageConfig struct {
	DataDir string
}

type SearchConfig struct {
	TopK      int
	Threshold float64
}

type BackupConfig struct {
	OutputDir string
	Keep      int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4800,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		Embedding: EmbeddingConfig{
			Dimension: 768,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Search: SearchConfig{
			TopK:      5,
			Threshold: 0.15,
		},
		Backup: BackupConfig{
			OutputDir: filepath.Join(dataDir, "backups"),
			Keep:      10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "noted-data"
		}
	}
	return filepath.Join(dir, "noted")
}

// Load reads configuration in three layers: compiled defaults, the JSON
// config file at $XDG_CONFIG_HOME/noted/config.json, and NOTED_* environment
// variables. Later layers win.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
