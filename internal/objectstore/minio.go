// Package objectstore fetches uploaded document payloads from object
// storage, resolving a small set of legacy locations left over from an
// earlier storage layout.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/complyassist/backend/pkg/config"
	"github.com/complyassist/backend/pkg/logger"
)

// ErrObjectNotFound is returned after every candidate location has been tried.
var ErrObjectNotFound = errors.New("object not found in any storage location")

type Store struct {
	client           *minio.Client
	bucket           string
	legacyBucket     string
	fallbackPrefixes []string
}

func New(cfg config.ObjectStoreConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	logger.Info("Object store client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
	)

	return &Store{
		client:           client,
		bucket:           cfg.Bucket,
		legacyBucket:     cfg.LegacyBucket,
		fallbackPrefixes: cfg.FallbackPrefixes,
	}, nil
}

type location struct {
	bucket string
	key    string
}

// candidates lists locations in resolution order: the primary bucket/key,
// prefixed variants in the primary bucket, then the legacy bucket. The
// prefix variants exist for documents uploaded before key layout was
// unified; once those are migrated the list collapses to the first entry.
func (s *Store) candidates(organizationID, fileName string) []location {
	primary := fmt.Sprintf("%s/%s", organizationID, fileName)

	locs := []location{{bucket: s.bucket, key: primary}}
	for _, prefix := range s.fallbackPrefixes {
		locs = append(locs, location{bucket: s.bucket, key: prefix + primary})
	}
	if s.legacyBucket != "" {
		locs = append(locs, location{bucket: s.legacyBucket, key: primary})
	}
	return locs
}

// Fetch reads a document payload, trying each candidate location in order.
func (s *Store) Fetch(ctx context.Context, organizationID, fileName string) ([]byte, error) {
	var lastErr error

	for _, loc := range s.candidates(organizationID, fileName) {
		obj, err := s.client.GetObject(ctx, loc.bucket, loc.key, minio.GetObjectOptions{})
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(obj)
		obj.Close()
		if err != nil {
			// GetObject is lazy; missing keys surface on first read.
			lastErr = err
			logger.Debug("Object location miss",
				zap.String("bucket", loc.bucket),
				zap.String("key", loc.key),
			)
			continue
		}

		if loc.bucket != s.bucket || loc.key != fmt.Sprintf("%s/%s", organizationID, fileName) {
			logger.Warn("Document resolved from legacy storage location",
				zap.String("bucket", loc.bucket),
				zap.String("key", loc.key),
			)
		}

		return data, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, lastErr)
	}
	return nil, ErrObjectNotFound
}

// Put stores a payload at the primary location. Used by upload handling and
// by tests seeding fixtures.
func (s *Store) Put(ctx context.Context, organizationID, fileName string, data io.Reader, size int64) error {
	key := fmt.Sprintf("%s/%s", organizationID, fileName)

	_, err := s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}

	return nil
}
