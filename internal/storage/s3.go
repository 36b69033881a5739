package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/logging"
	"github.com/redactifai/redactifai-worker/internal/security"
)

// S3Store implements Store against two AWS S3 buckets, streaming every
// object through the security package's encrypting/decrypting readers
// so objects are never held as ciphertext-free bytes outside the
// process's memory for longer than one chunk at a time.
type S3Store struct {
	logger          *zap.Logger
	client          *s3.Client
	uploader        *manager.Uploader
	encryptionKey   []byte
	phiBucketName   string
	cleanBucketName string
}

// NewS3Store dials AWS using ambient credentials (environment, shared
// config, or instance role) and the given region.
func NewS3Store(ctx context.Context, logger *zap.Logger, region, phiBucket, cleanBucket string, encryptionKey []byte) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)

	return &S3Store{
		logger:          logger.Named("storage.s3"),
		client:          client,
		uploader:        manager.NewUploader(client),
		encryptionKey:   encryptionKey,
		phiBucketName:   phiBucket,
		cleanBucketName: cleanBucket,
	}, nil
}

func (s *S3Store) bucketName(bucket Bucket) string {
	if bucket == BucketClean {
		return s.cleanBucketName
	}
	return s.phiBucketName
}

// Upload implements Store.
func (s *S3Store) Upload(ctx context.Context, bucket Bucket, key, contentType string, data io.Reader) error {
	jobID := logging.JobIDFromContext(ctx)
	bucketName := s.bucketName(bucket)

	encrypted, err := security.EncryptReader(s.encryptionKey, data)
	if err != nil {
		return apperrors.NewStorageError("encrypting object before upload", err, false, false)
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(key),
		Body:        encrypted,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("s3 upload failed", zap.String("job_id", jobID), zap.String("bucket", bucketName), zap.String("key", key), zap.Error(err))
		return apperrors.NewStorageError("s3 upload failed", err, false, true)
	}

	s.logger.Info("uploaded object", zap.String("job_id", jobID), zap.String("bucket", bucketName), zap.String("key", key))
	return nil
}

// Download implements Store.
func (s *S3Store) Download(ctx context.Context, bucket Bucket, key string) (io.ReadCloser, error) {
	bucketName := s.bucketName(bucket)

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, apperrors.NewStorageError("object not found", err, true, false)
		}
		return nil, apperrors.NewStorageError("s3 download failed", err, false, true)
	}

	decrypted, err := security.DecryptReader(s.encryptionKey, resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, apperrors.NewStorageError("decrypting downloaded object", err, false, false)
	}
	return decrypted, nil
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, bucket Bucket, key string) (bool, error) {
	bucketName := s.bucketName(bucket)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, apperrors.NewStorageError("s3 head object failed", err, false, true)
	}
	return true, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, bucket Bucket, key string) error {
	bucketName := s.bucketName(bucket)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return apperrors.NewStorageError("s3 delete failed", err, false, true)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
