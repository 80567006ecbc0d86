package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/tessera-data/tessera"
	"go.uber.org/zap"
)

// S3SnapshotStore persists collection snapshots as JSON objects under
// <prefix>/<sourceID>/<collection>/<fetchedAt-unixnano>.json. Objects are
// immutable; the latest snapshot is the lexicographically greatest key,
// which matches maximum FetchedAt because keys embed a zero-padded
// timestamp.
type S3SnapshotStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3SnapshotStore builds a store from the snapshot S3 config. Static
// credentials and a custom endpoint support MinIO-style setups; with
// neither set the default AWS credential chain applies.
func NewS3SnapshotStore(ctx context.Context, cfg tessera.S3Config) (*S3SnapshotStore, error) {
	if cfg.Bucket == "" {
		return nil, tessera.NewSnapshotStoreError("s3 snapshot store requires a bucket", nil)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, tessera.NewSnapshotStoreError("load aws config", err)
	}
	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3SnapshotStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3SnapshotStore) objectPrefix(sourceID, collection string) string {
	parts := []string{}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	parts = append(parts, sourceID, collection)
	return strings.Join(parts, "/") + "/"
}

// GetLatest lists the snapshot objects for a collection and decodes the
// newest one. A missing bucket prefix means no snapshot yet, not an error.
func (s *S3SnapshotStore) GetLatest(ctx context.Context, sourceID, collection string) (*tessera.CollectionSnapshot, error) {
	prefix := s.objectPrefix(sourceID, collection)

	var keys []string
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			if isS3NotFound(err) {
				return nil, nil
			}
			return nil, tessera.NewSnapshotStoreError(
				fmt.Sprintf("list snapshots for %s/%s", sourceID, collection), err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	latestKey := keys[len(keys)-1]

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(latestKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, tessera.NewSnapshotStoreError(fmt.Sprintf("get snapshot object %s", latestKey), err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, tessera.NewSnapshotStoreError(fmt.Sprintf("read snapshot object %s", latestKey), err)
	}
	var snapshot tessera.CollectionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, tessera.NewSnapshotStoreError(fmt.Sprintf("decode snapshot object %s", latestKey), err)
	}
	return &snapshot, nil
}

// Put uploads a new immutable snapshot object.
func (s *S3SnapshotStore) Put(ctx context.Context, snapshot *tessera.CollectionSnapshot) error {
	if snapshot == nil {
		return tessera.NewSnapshotStoreError("cannot store nil snapshot", nil)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return tessera.NewSnapshotStoreError("encode snapshot", err)
	}
	key := fmt.Sprintf("%s%020d.json",
		s.objectPrefix(snapshot.SourceID, snapshot.Collection),
		snapshot.FetchedAt.UnixNano())

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return tessera.NewSnapshotStoreError(fmt.Sprintf("upload snapshot object %s", key), err)
	}
	zap.S().Debugw("snapshot uploaded",
		"bucket", s.bucket, "key", key, "rows", len(snapshot.Rows))
	return nil
}

// isS3NotFound reports whether an S3 error means the key or bucket does not
// exist, which the store treats as snapshot-absent.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	default:
		return false
	}
}
