package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/device-share-storage/interfaces"
)

// S3FileSystem implements the secondary host filesystem on an S3 (or
// compatible) bucket. Each sandbox file is one object under prefix. Objects
// are private; credentials are required for writes.
type S3FileSystem struct {
	client     *s3.S3
	bucketName string
	prefix     string
	maxQuota   int64
	log        *slog.Logger
}

var _ interfaces.FileSystemHost = (*S3FileSystem)(nil)

// NewS3FileSystem creates an S3-backed sandbox.
// If accessKey and secretKey are empty the default credential chain is used.
func NewS3FileSystem(bucketName, prefix, region, endpoint, accessKey, secretKey string, maxQuota int64, log *slog.Logger) (*S3FileSystem, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		log.Debug("No S3 credentials provided, using default credential chain")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3FileSystem{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     strings.Trim(prefix, "/"),
		maxQuota:   maxQuota,
		log:        log,
	}, nil
}

// RequestQuota grants min(requested, maxQuota).
func (b *S3FileSystem) RequestQuota(_ context.Context, requestedBytes int64) (int64, error) {
	if b.maxQuota <= 0 {
		return 0, fmt.Errorf("%w: persistent storage refused", interfaces.ErrQuotaExceeded)
	}
	return min(requestedBytes, b.maxQuota), nil
}

// RequestFileSystem opens the bucket sandbox after checking the bucket is reachable.
func (b *S3FileSystem) RequestFileSystem(ctx context.Context, grantedBytes int64) (interfaces.FileSystem, error) {
	if b.maxQuota <= 0 || grantedBytes > b.maxQuota {
		return nil, fmt.Errorf("%w: requested %d bytes, allotment %d", interfaces.ErrQuotaExceeded, grantedBytes, b.maxQuota)
	}

	start := time.Now()
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 bucket unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to open S3 sandbox: %w", err)
	}

	return &s3Sandbox{fs: b, limit: grantedBytes}, nil
}

func (b *S3FileSystem) objectKey(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

type s3Sandbox struct {
	fs    *S3FileSystem
	limit int64
}

func (s *s3Sandbox) GetFile(ctx context.Context, name string, create bool) (interfaces.FileEntry, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid file name %q", name)
	}
	key := s.fs.objectKey(name)

	_, err := s.fs.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.fs.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if !isS3NotFound(err) {
			return nil, fmt.Errorf("failed to stat S3 object: %w", err)
		}
		if !create {
			return nil, fmt.Errorf("failed to open %s: %w", name, fs.ErrNotExist)
		}
		if err := s.put(ctx, key, nil); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
	}

	return &s3FileEntry{key: key, sandbox: s}, nil
}

func (s *s3Sandbox) put(ctx context.Context, key string, data []byte) error {
	_, err := s.fs.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.fs.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

type s3FileEntry struct {
	key     string
	sandbox *s3Sandbox
}

func (e *s3FileEntry) Text(ctx context.Context) (string, error) {
	result, err := e.sandbox.fs.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.sandbox.fs.bucketName),
		Key:    aws.String(e.key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return "", fmt.Errorf("failed to read %s: %w", e.key, fs.ErrNotExist)
		}
		return "", fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read object body: %w", err)
	}
	return string(data), nil
}

// Write uploads data in a single PutObject, which S3 applies atomically.
func (e *s3FileEntry) Write(ctx context.Context, data []byte) error {
	if int64(len(data)) > e.sandbox.limit {
		return fmt.Errorf("%w: writing %d bytes with %d granted", interfaces.ErrQuotaExceeded, len(data), e.sandbox.limit)
	}
	if err := e.sandbox.put(ctx, e.key, data); err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	e.sandbox.fs.log.Debug("Stored share object in S3",
		slog.String("bucket", e.sandbox.fs.bucketName),
		slog.String("key", e.key),
		slog.Int("size", len(data)))
	return nil
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "404")
}
