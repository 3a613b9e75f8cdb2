package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Options configures an S3Store. Endpoint and ForcePathStyle target
// S3-compatible services such as MinIO.
type S3Options struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	AccessKeyID    string
	SecretKey      string
}

// S3Store keeps objects in one bucket under an optional key prefix. URLs are
// s3://bucket/key.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store loads AWS configuration (static keys when given, otherwise the
// default chain) and creates the client.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket not configured")
	}
	var loaders []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretKey != "" {
		loaders = append(loaders, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Store{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   opts.Bucket,
		prefix:   strings.Trim(opts.Prefix, "/"),
	}, nil
}

func (s *S3Store) Scheme() string { return "s3" }

// Client exposes the S3 client for readiness checks.
func (s *S3Store) Client() *s3.Client { return s.client }

// Bucket is the configured bucket name.
func (s *S3Store) Bucket() string { return s.bucket }

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objKey := s.objectKey(key)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		log.Error().Err(err).Str("key", objKey).Msg("s3 upload failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("key", objKey).Int("size", len(data)).Msg("uploaded object to S3")
	return fmt.Sprintf("s3://%s/%s", s.bucket, objKey), nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.getObject(ctx, s.objectKey(key))
}

func (s *S3Store) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host != s.bucket {
		return nil, fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	return s.getObject(ctx, strings.TrimPrefix(u.Path, "/"))
}

func (s *S3Store) getObject(ctx context.Context, objKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, objKey)
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.Trim(prefix, "/") == "" {
		return 0, errors.New("refusing to delete bucket root")
	}
	return s.deleteMatching(ctx, s.objectKey(prefix), func(s3types.Object) bool { return true })
}

func (s *S3Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	root := ""
	if s.prefix != "" {
		root = s.prefix + "/"
	}
	return s.deleteMatching(ctx, root, func(o s3types.Object) bool {
		return o.LastModified != nil && o.LastModified.Before(cutoff)
	})
}

// deleteMatching lists objects under prefix and deletes the ones match
// accepts, one DeleteObjects call per listed page.
func (s *S3Store) deleteMatching(ctx context.Context, prefix string, match func(s3types.Object) bool) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("list objects failed: %w", err)
		}
		var ids []s3types.ObjectIdentifier
		for _, obj := range page.Contents {
			if obj.Key != nil && match(obj) {
				ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
			}
		}
		if len(ids) == 0 {
			continue
		}
		if _, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return deleted, fmt.Errorf("delete objects failed: %w", err)
		}
		deleted += len(ids)
	}
	if deleted > 0 {
		log.Info().Str("prefix", prefix).Int("objects", deleted).Msg("deleted S3 objects")
	}
	return deleted, nil
}

// HeadBucket checks that the bucket is reachable with the current credentials.
func (s *S3Store) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
