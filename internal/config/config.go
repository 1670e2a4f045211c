package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fmuoria/resume-screener/internal/dataset"
)

// Source kinds.
const (
	SourcePublic = "public"
	SourceDrive  = "drive"
	SourceS3     = "s3"
)

// Config holds application configuration
type Config struct {
	GoogleCloudProject    string `json:"google_cloud_project" yaml:"google_cloud_project"`
	GoogleCloudLocation   string `json:"google_cloud_location" yaml:"google_cloud_location"`
	GoogleCredentialsPath string `json:"google_credentials_path" yaml:"google_credentials_path"`
	GeminiAPIKey          string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	GenerativeModel       string `json:"generative_model" yaml:"generative_model"`
	EmbeddingModel        string `json:"embedding_model" yaml:"embedding_model"`

	Port       string `json:"port" yaml:"port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	UploadsDir string `json:"uploads_dir" yaml:"uploads_dir"`

	Source  SourceConfig  `json:"source" yaml:"source"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`
}

// SourceConfig selects where the datasets are downloaded from.
type SourceConfig struct {
	Kind           string           `json:"kind" yaml:"kind"`
	DriveTokenPath string           `json:"drive_token_path,omitempty" yaml:"drive_token_path,omitempty"`
	S3             dataset.S3Config `json:"s3" yaml:"s3"`
	Datasets       []dataset.Source `json:"datasets" yaml:"datasets"`
}

// CacheConfig locates the summary artifact. MaxAge is a Go duration string;
// empty or "0" never expires.
type CacheConfig struct {
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// ScoringConfig bounds bulk scoring of dataset rows.
type ScoringConfig struct {
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
	MaxRows       int     `json:"max_rows" yaml:"max_rows"`
}

// DefaultDatasets are the publicly shared recruiting datasets.
func DefaultDatasets() []dataset.Source {
	return []dataset.Source{
		{Name: dataset.Prospects, ID: "1gggiyvLEP68yqZR20zji7d17tzUfBnib", File: "prospects.json"},
		{Name: dataset.Applicants, ID: "169owq4_yYCwbvMaep1QbC9B59KrNcRBn", File: "applicants.json"},
		{Name: dataset.Jobs, ID: "1lJTVnG9WOBpqQUsDEu9umllp3BhLR1TA", File: "vagas.json"},
	}
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		GoogleCloudLocation: "us-central1",
		GenerativeModel:     "gemini-1.5-flash",
		EmbeddingModel:      "text-embedding-004",
		Port:                "8080",
		LogLevel:            "info",
		DataDir:             "data",
		UploadsDir:          "uploads",
		Source: SourceConfig{
			Kind:     SourcePublic,
			Datasets: DefaultDatasets(),
		},
		Scoring: ScoringConfig{
			RatePerSecond: 1,
			Burst:         1,
			MaxRows:       50,
		},
	}
}

// GetConfigPath returns the path to the configuration file
// On Windows: %APPDATA%/ResumeScreener/config.json
// On Unix: ~/.config/ResumeScreener/config.json
func GetConfigPath() (string, error) {
	var configDir string

	if os.Getenv("APPDATA") != "" {
		// Windows
		configDir = filepath.Join(os.Getenv("APPDATA"), "ResumeScreener")
	} else {
		// Unix-like systems
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "ResumeScreener")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(configDir, "config.json"), nil
}

// LoadDotEnv loads variables from a .env file into the environment without
// overriding ones already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from the default config path
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path. Files ending in .yml or
// .yaml are YAML, anything else JSON. Environment overrides are applied last.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults if the file doesn't exist
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	case isYAML(path):
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := config.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return config, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"PORT":                           &c.Port,
		"LOG_LEVEL":                      &c.LogLevel,
		"DATA_DIR":                       &c.DataDir,
		"GEMINI_API_KEY":                 &c.GeminiAPIKey,
		"GOOGLE_CLOUD_PROJECT":           &c.GoogleCloudProject,
		"GOOGLE_CLOUD_LOCATION":          &c.GoogleCloudLocation,
		"GOOGLE_APPLICATION_CREDENTIALS": &c.GoogleCredentialsPath,
		"DATASET_SOURCE":                 &c.Source.Kind,
		"S3_BUCKET":                      &c.Source.S3.Bucket,
		"S3_ENDPOINT":                    &c.Source.S3.Endpoint,
		"S3_ACCESS_KEY":                  &c.Source.S3.AccessKey,
		"S3_SECRET_KEY":                  &c.Source.S3.SecretKey,
		"CACHE_MAX_AGE":                  &c.Cache.MaxAge,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SCORING_RATE_PER_SECOND"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SCORING_RATE_PER_SECOND: %w", err)
		}
		c.Scoring.RatePerSecond = rate
	}
	return nil
}

// Save saves the configuration to the default config path
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	return c.SaveTo(configPath)
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CachePath returns the summary artifact path, defaulting into DataDir.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.DataDir, "summary.db")
}

// CacheMaxAge parses Cache.MaxAge.
func (c *Config) CacheMaxAge() (time.Duration, error) {
	if c.Cache.MaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid cache max_age %q: %w", c.Cache.MaxAge, err)
	}
	return d, nil
}

// GenerativeEnabled reports whether Vertex AI is configured.
func (c *Config) GenerativeEnabled() bool { return c.GoogleCloudProject != "" }

// EmbeddingsEnabled reports whether an embeddings backend is configured.
func (c *Config) EmbeddingsEnabled() bool {
	return c.GeminiAPIKey != "" || c.GoogleCloudProject != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.GoogleCloudProject != "" && c.GoogleCloudLocation == "" {
		return fmt.Errorf("google_cloud_location is required")
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	switch c.Source.Kind {
	case SourcePublic, SourceDrive:
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket is required for the s3 source")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	seen := map[string]bool{}
	for _, s := range c.Source.Datasets {
		if s.ID == "" || s.File == "" {
			return fmt.Errorf("dataset %q needs an id and a file", s.Name)
		}
		seen[s.Name] = true
	}
	for _, name := range []string{dataset.Prospects, dataset.Applicants, dataset.Jobs} {
		if !seen[name] {
			return fmt.Errorf("dataset %q is not configured", name)
		}
	}

	if _, err := c.CacheMaxAge(); err != nil {
		return err
	}

	if c.Scoring.RatePerSecond < 0 {
		return fmt.Errorf("scoring.rate_per_second must not be negative")
	}

	return nil
}

// ApplyToEnv applies configuration values to environment variables
func (c *Config) ApplyToEnv() {
	if c.GoogleCloudProject != "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", c.GoogleCloudProject)
	}
	if c.GoogleCloudLocation != "" {
		os.Setenv("GOOGLE_CLOUD_LOCATION", c.GoogleCloudLocation)
	}
	if c.GoogleCredentialsPath != "" {
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", c.GoogleCredentialsPath)
	}
}
