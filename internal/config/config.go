package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int               `json:"port"`
	DataDir     string            `json:"data_dir"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Index       IndexConfig       `json:"index"`
	Upload      UploadConfig      `json:"upload"`
	AI          AIConfig          `json:"ai"`
	Auth        AuthConfig        `json:"auth"`
	Users       map[string]string `json:"users"`
	CORSOrigins []string          `json:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IndexConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type UploadConfig struct {
	TempDir        string `json:"temp_dir"`
	FilesDir       string `json:"files_dir"`
	MaxChunkSize   int64  `json:"max_chunk_size"`
	MaxTotalChunks int    `json:"max_total_chunks"`
	RetentionHours int    `json:"retention_hours"`
	CleanupSpec    string `json:"cleanup_spec"`
	MaxBookSize    int64  `json:"max_book_size"`
}

type AIConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	VisionModel     string      `json:"vision_model"`
	Timeout         int         `json:"timeout"`
	MaxInputChars   int         `json:"max_input_chars"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLMinutes int         `json:"cache_ttl_minutes"`
	MinIntervalMS   int         `json:"min_interval_ms"`
	Data            interface{} `json:"data"`

	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []AIFallbackConfig `json:"fallbacks"`
}

type AIFallbackConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AuthConfig struct {
	Required      bool   `json:"required"`
	JWTSecret     string `json:"jwt_secret"`
	TTLHours      int    `json:"ttl_hours"`
	StudentPIN    string `json:"student_pin"`
	StudentUserID string `json:"student_user_id"`
	AdminPINHash  string `json:"admin_pin_hash"`
	MaxFailures   int    `json:"max_failures"`
	LockMinutes   int    `json:"lock_minutes"`
}

const (
	defaultChunkSize      = 10 * 1024 * 1024
	defaultMaxTotalChunks = 10000
	defaultBookSize       = 100 * 1024 * 1024
)

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			cfg.Database.Path = filepath.Join(cfg.DataDir, "famlearn.db")
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}

	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Data == nil {
			cfg.FileStore.Data = map[string]interface{}{"dir": filepath.Join(cfg.DataDir, "store")}
		}
	case "s3":
		if cfg.FileStore.Data == nil {
			return fmt.Errorf("file_store.data is required for s3 store")
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "json"
	}
	switch cfg.Index.Type {
	case "json":
		if cfg.Index.Path == "" {
			cfg.Index.Path = filepath.Join(cfg.DataDir, "metadata.json")
		}
	case "sql":
	default:
		return fmt.Errorf("index.type must be json or sql")
	}

	up := &cfg.Upload
	if up.TempDir == "" {
		up.TempDir = filepath.Join(cfg.DataDir, "uploads", "temp")
	}
	if up.FilesDir == "" {
		up.FilesDir = filepath.Join(cfg.DataDir, "uploads", "files")
	}
	if up.MaxChunkSize <= 0 {
		up.MaxChunkSize = defaultChunkSize
	}
	if up.MaxTotalChunks <= 0 || up.MaxTotalChunks > defaultMaxTotalChunks {
		up.MaxTotalChunks = defaultMaxTotalChunks
	}
	if up.RetentionHours <= 0 {
		up.RetentionHours = 24
	}
	if up.CleanupSpec == "" {
		up.CleanupSpec = "0 * * * *"
	}
	if up.MaxBookSize <= 0 {
		up.MaxBookSize = defaultBookSize
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gemini-2.5-flash"
	}
	if cfg.AI.VisionModel == "" {
		cfg.AI.VisionModel = cfg.AI.Model
	}
	if cfg.AI.CacheSize <= 0 {
		cfg.AI.CacheSize = 1000
	}
	if cfg.AI.CacheTTLMinutes <= 0 {
		cfg.AI.CacheTTLMinutes = 120
	}
	if cfg.AI.Data == nil {
		cfg.AI.Data = map[string]interface{}{"api_key": os.Getenv("GEMINI_API_KEY")}
	}
	for i, fb := range cfg.AI.Fallbacks {
		if strings.TrimSpace(fb.Provider) == "" {
			return fmt.Errorf("ai.fallbacks[%d].provider is required", i)
		}
	}

	auth := &cfg.Auth
	if auth.Required && auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.required is set")
	}
	if auth.JWTSecret == "" {
		auth.JWTSecret = "famlearn-dev-secret"
	}
	if auth.TTLHours <= 0 {
		auth.TTLHours = 72
	}
	if auth.StudentPIN == "" {
		auth.StudentPIN = "0000"
	}
	if auth.StudentUserID == "" {
		auth.StudentUserID = "child_1"
	}
	if auth.MaxFailures <= 0 {
		auth.MaxFailures = 5
	}
	if auth.LockMinutes <= 0 {
		auth.LockMinutes = 5
	}

	if len(cfg.Users) == 0 {
		cfg.Users = map[string]string{
			"child_1": "Child 1",
			"child_2": "Child 2",
			"shared":  "Shared",
		}
	}
	origins := cfg.CORSOrigins[:0]
	for _, origin := range cfg.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORSOrigins = origins
	return nil
}
