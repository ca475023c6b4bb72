package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// S3Config carries the connection parameters of the reports bucket.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string
	// PublicBaseURL is the base under which bucket keys resolve publicly.
	// When empty, the standard virtual-hosted S3 URL form is used.
	PublicBaseURL string
}

// S3Store implements ObjectStore on top of an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
	public string
	logger *zap.Logger
}

func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	public := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if public == "" {
		public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		public: public,
		logger: logger,
	}, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}

	var items []Object

	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/")

			items = append(items, Object{Name: name, Key: key, IsFolder: true})
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)

			// The prefix itself can come back as a zero byte marker.
			if name == "" {
				continue
			}

			items = append(items, Object{Name: name, Key: key})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return items, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader, opts UploadOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}

	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if !opts.Overwrite {
		input.IfNoneMatch = aws.String("*")
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}

		return fmt.Errorf("upload %q: %w", key, err)
	}

	return nil
}

func (s *S3Store) UploadIf(ctx context.Context, key string, body io.Reader, etag string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}

	if etag == "" {
		input.IfNoneMatch = aws.String("*")
	} else {
		input.IfMatch = aws.String(etag)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, key)
		}

		return fmt.Errorf("conditional upload %q: %w", key, err)
	}

	return nil
}

func (s *S3Store) Download(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}

		return nil, "", fmt.Errorf("download %q: %w", key, err)
	}

	defer out.Body.Close()

	data := bytes.Buffer{}
	if _, err := data.ReadFrom(out.Body); err != nil {
		return nil, "", fmt.Errorf("read %q: %w", key, err)
	}

	return data.Bytes(), aws.ToString(out.ETag), nil
}

func (s *S3Store) PublicURL(key string) string {
	return s.public + "/" + key
}

func isPreconditionFailed(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()

		return code == 412 || code == 409
	}

	return false
}

func isNotFound(err error) bool {
	var respErr *awshttp.ResponseError

	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}
