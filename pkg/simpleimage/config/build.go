package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/annotate"
	repobadger "github.com/tendant/simple-image/pkg/simpleimage/repo/badger"
	repodynamo "github.com/tendant/simple-image/pkg/simpleimage/repo/dynamodb"
	"github.com/tendant/simple-image/pkg/simpleimage/repo/memory"
	repopg "github.com/tendant/simple-image/pkg/simpleimage/repo/postgres"
	fsstorage "github.com/tendant/simple-image/pkg/simpleimage/storage/fs"
	memorystorage "github.com/tendant/simple-image/pkg/simpleimage/storage/memory"
	s3storage "github.com/tendant/simple-image/pkg/simpleimage/storage/s3"
)

// Components are the wired parts of a running service
type Components struct {
	Service       simpleimage.Service
	BlobStore     simpleimage.BlobStore
	MetadataStore simpleimage.MetadataStore
	Validator     *simpleimage.UploadValidator

	closers []func() error
}

// Close releases database handles held by the components
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService creates the stores and the Service from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comp := &Components{
		Validator: simpleimage.NewUploadValidator(c.SupportedImageTypes),
	}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob store: %w", err)
	}
	comp.BlobStore = blobs

	metadata, closer, err := c.buildMetadataStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata store: %w", err)
	}
	comp.MetadataStore = metadata
	if closer != nil {
		comp.closers = append(comp.closers, closer)
	}

	eventSink := simpleimage.NewNoopEventSink()
	if c.IsDevelopment() {
		eventSink = simpleimage.NewLoggingEventSink(logger)
	}

	svc, err := simpleimage.New(
		simpleimage.WithBlobStore(blobs),
		simpleimage.WithMetadataStore(metadata),
		simpleimage.WithEventSink(eventSink),
		simpleimage.WithLogger(logger),
	)
	if err != nil {
		comp.Close()
		return nil, err
	}
	comp.Service = svc

	logger.Info("Service configured",
		"blob_backend", c.BlobBackend,
		"metadata_backend", c.MetadataBackend,
		"bucket", c.BucketName)
	return comp, nil
}

// BuildAnnotator wires a Rekognition-backed annotator onto built components
func (c *ServerConfig) BuildAnnotator(ctx context.Context, comp *Components, logger *slog.Logger) (*annotate.Annotator, error) {
	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := rekognition.NewFromConfig(awsCfg, func(o *rekognition.Options) {
		if c.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.AWS.Endpoint)
		}
	})

	detector, err := annotate.NewRekognitionDetector(client, annotate.RekognitionConfig{
		MaxLabels:     c.Annotator.MaxLabels,
		MinConfidence: c.Annotator.MinConfidence,
	})
	if err != nil {
		return nil, err
	}
	return annotate.New(comp.BlobStore, comp.MetadataStore, detector, annotate.WithLogger(logger))
}

func (c *ServerConfig) buildBlobStore(ctx context.Context) (simpleimage.BlobStore, error) {
	switch c.BlobBackend {
	case BackendMemory:
		return memorystorage.New(), nil
	case BackendFS:
		return fsstorage.New(fsstorage.Config{
			BaseDir: c.FSBaseDir,
			Bucket:  c.BucketName,
		})
	case BackendS3:
		return s3storage.New(s3storage.Config{
			Region:          c.AWS.Region,
			Bucket:          c.BucketName,
			AccessKeyID:     c.AWS.AccessKeyID,
			SecretAccessKey: c.AWS.SecretAccessKey,
			Endpoint:        c.AWS.Endpoint,
			UsePathStyle:    c.AWS.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", c.BlobBackend)
	}
}

func (c *ServerConfig) buildMetadataStore(ctx context.Context) (simpleimage.MetadataStore, func() error, error) {
	switch c.MetadataBackend {
	case BackendMemory:
		return memory.New(), nil, nil

	case BackendBadger:
		repo, err := repobadger.Open(c.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil

	case BackendPostgres:
		pool, err := c.newPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		repo := repopg.NewWithPool(pool)
		if c.DBAutoMigrate {
			if err := repo.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repo, func() error { pool.Close(); return nil }, nil

	case BackendDynamoDB:
		awsCfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if c.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(c.AWS.Endpoint)
			}
		})
		repo, err := repodynamo.New(client, c.TableName)
		if err != nil {
			return nil, nil, err
		}
		return repo, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported metadata backend: %s", c.MetadataBackend)
	}
}

func (c *ServerConfig) awsConfig(ctx context.Context) (aws.Config, error) {
	return s3storage.LoadAWSConfig(ctx, c.AWS.Region, c.AWS.AccessKeyID, c.AWS.SecretAccessKey)
}

// newPool opens a pgx pool whose sessions use the configured schema
func (c *ServerConfig) newPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	schema := c.DBSchema
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if schema == "" {
			return nil
		}
		_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}
