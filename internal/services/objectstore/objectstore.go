package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store keeps uploaded documents and returns a URL for each
type Store interface {
	Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error)
}

// New creates the configured object store
func New(ctx context.Context, cfg *config.ObjectStoreConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	case "memory", "":
		return NewMemoryStore(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported object store type: %s", cfg.Type)
	}
}

// objectKey builds prefix/userID/uuid-unix-name
func objectKey(prefix, userID, fileName string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	key := fmt.Sprintf("%s/%s-%d-%s", userID, uuid.New().String(), now.Unix(), name)
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads documents to an S3 bucket
type S3Store struct {
	client putObjectAPI
	bucket string
	region string
	prefix string
	logger *logrus.Logger
}

func NewS3Store(ctx context.Context, cfg *config.ObjectStoreConfig, logger *logrus.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	key := objectKey(s.prefix, userID, fileName, time.Now())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"key":     key,
		"size":    len(data),
	}).Debug("Document uploaded")

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// Object is a document held by MemoryStore
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps documents in process memory
type MemoryStore struct {
	prefix  string
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		prefix:  prefix,
		objects: make(map[string]Object),
	}
}

func (m *MemoryStore) Upload(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := objectKey(m.prefix, userID, fileName, time.Now())
	m.mu.Lock()
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	m.mu.Unlock()

	return "memory://" + key, nil
}

// Get returns a stored document by the URL Upload returned
func (m *MemoryStore) Get(url string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[strings.TrimPrefix(url, "memory://")]
	return obj, ok
}

// Len reports the number of stored documents
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
