package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported backend names.
const (
	BackendMemory   = "memory"
	BackendFS       = "fs"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendDynamoDB = "dynamodb"
)

var (
	blobBackends     = []string{BackendMemory, BackendFS, BackendS3}
	metadataBackends = []string{BackendMemory, BackendPostgres, BackendBadger, BackendDynamoDB}
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                "8080",
		Environment:         "development",
		LogLevel:            "info",
		BlobBackend:         BackendMemory,
		MetadataBackend:     BackendMemory,
		BucketName:          "images",
		TableName:           "images",
		SupportedImageTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp"},
		MaxUploadBytes:      10 << 20,
		FSBaseDir:           "./data/images",
		BadgerDir:           "./data/metadata",
		DBSchema:            "images",
		DBAutoMigrate:       true,
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Annotator: AnnotatorConfig{
			MaxLabels:     10,
			MinConfidence: 75,
		},
	}
}

// ServerConfig represents configuration for the simple-image service
type ServerConfig struct {
	Port         string `yaml:"port" env:"PORT" env-default:"8080"`
	Environment  string `yaml:"environment" env:"ENVIRONMENT" env-default:"development"` // development, production, testing
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	APIKeySHA256 string `yaml:"api_key_sha256" env:"API_KEY_SHA256"`

	// Backends
	BlobBackend     string `yaml:"blob_backend" env:"BLOB_BACKEND" env-default:"memory"`         // memory, fs, s3
	MetadataBackend string `yaml:"metadata_backend" env:"METADATA_BACKEND" env-default:"memory"` // memory, postgres, badger, dynamodb

	BucketName string `yaml:"bucket_name" env:"S3_BUCKET_NAME" env-default:"images"`
	TableName  string `yaml:"table_name" env:"DYNAMODB_TABLE_NAME" env-default:"images"`

	// Upload validation
	SupportedImageTypes []string `yaml:"supported_image_types" env:"SUPPORTED_IMAGE_TYPES" env-default:"image/jpeg,image/png,image/gif,image/webp" env-separator:","`
	MaxUploadBytes      int64    `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`

	// Local backends
	FSBaseDir string `yaml:"fs_base_dir" env:"FS_BASE_DIR" env-default:"./data/images"`
	BadgerDir string `yaml:"badger_dir" env:"BADGER_DIR" env-default:"./data/metadata"`

	// Database configuration
	DatabaseURL   string `yaml:"database_url" env:"DATABASE_URL"`
	DBSchema      string `yaml:"db_schema" env:"DB_SCHEMA" env-default:"images"`
	DBAutoMigrate bool   `yaml:"db_auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`

	AWS       AWSConfig       `yaml:"aws"`
	Annotator AnnotatorConfig `yaml:"annotator"`
}

// AWSConfig is shared by the S3, DynamoDB and Rekognition clients
type AWSConfig struct {
	Region          string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"AWS_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"AWS_USE_PATH_STYLE"`
}

// AnnotatorConfig holds the label detection limits
type AnnotatorConfig struct {
	MaxLabels     int32   `yaml:"max_labels" env:"ANNOTATOR_MAX_LABELS" env-default:"10"`
	MinConfidence float32 `yaml:"min_confidence" env:"ANNOTATOR_MIN_CONFIDENCE" env-default:"75"`
}

// WithEnv applies environment variable overrides. Unset variables keep the
// values already present.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML or .env configuration file, then the environment.
func WithFile(path string) Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithPort sets the HTTP port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithBlobBackend selects the blob backend
func WithBlobBackend(name string) Option {
	return func(c *ServerConfig) error {
		c.BlobBackend = name
		return nil
	}
}

// WithMetadataBackend selects the metadata backend
func WithMetadataBackend(name string) Option {
	return func(c *ServerConfig) error {
		c.MetadataBackend = name
		return nil
	}
}

// WithBucket sets the bucket name
func WithBucket(name string) Option {
	return func(c *ServerConfig) error {
		c.BucketName = name
		return nil
	}
}

// WithTable sets the DynamoDB table name
func WithTable(name string) Option {
	return func(c *ServerConfig) error {
		c.TableName = name
		return nil
	}
}

// WithDatabase selects the postgres backend at url
func WithDatabase(url, schema string) Option {
	return func(c *ServerConfig) error {
		c.MetadataBackend = BackendPostgres
		c.DatabaseURL = url
		if schema != "" {
			c.DBSchema = schema
		}
		return nil
	}
}

// WithLocalStorage selects the filesystem blob backend and the badger
// metadata backend under dir
func WithLocalStorage(dir string) Option {
	return func(c *ServerConfig) error {
		c.BlobBackend = BackendFS
		c.MetadataBackend = BackendBadger
		c.FSBaseDir = strings.TrimRight(dir, "/") + "/images"
		c.BadgerDir = strings.TrimRight(dir, "/") + "/metadata"
		return nil
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if !slices.Contains(blobBackends, c.BlobBackend) {
		return fmt.Errorf("blob_backend must be one of %s", strings.Join(blobBackends, ", "))
	}
	if !slices.Contains(metadataBackends, c.MetadataBackend) {
		return fmt.Errorf("metadata_backend must be one of %s", strings.Join(metadataBackends, ", "))
	}

	if c.BucketName == "" {
		return errors.New("bucket name is required")
	}

	switch c.MetadataBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case BackendDynamoDB:
		if c.TableName == "" {
			return errors.New("table name is required when using dynamodb")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return errors.New("badger_dir is required when using badger")
		}
	}

	if c.BlobBackend == BackendFS && c.FSBaseDir == "" {
		return errors.New("fs_base_dir is required when using fs")
	}

	if len(c.SupportedImageTypes) == 0 {
		return errors.New("at least one supported image type is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}

	if c.Annotator.MaxLabels <= 0 {
		return errors.New("annotator max_labels must be positive")
	}
	if c.Annotator.MinConfidence < 0 || c.Annotator.MinConfidence > 100 {
		return errors.New("annotator min_confidence must be between 0 and 100")
	}

	return nil
}

// IsDevelopment reports whether the server runs in the development environment
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}
