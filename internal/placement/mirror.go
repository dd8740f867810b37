package placement

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
)

// putObjectAPI is the part of the S3 client the mirror needs
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies placed files to an S3-compatible bucket
type S3Mirror struct {
	client putObjectAPI
	bucket string
	prefix string
	root   string
	logger arbor.ILogger
}

var _ interfaces.Mirror = (*S3Mirror)(nil)

// NewS3Mirror builds an S3 client from configuration. root is the placement
// root; object keys mirror the path below it.
func NewS3Mirror(ctx context.Context, config *common.MirrorConfig, root string, logger arbor.ILogger) (*S3Mirror, error) {
	awsCfg, err := buildAWSConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})

	logger.Info().Str("bucket", config.Bucket).Str("region", config.Region).Msg("S3 mirror initialized")

	return newS3Mirror(client, config.Bucket, config.Prefix, root, logger), nil
}

func newS3Mirror(client putObjectAPI, bucket, prefix, root string, logger arbor.ILogger) *S3Mirror {
	return &S3Mirror{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		root:   root,
		logger: logger,
	}
}

// Upload streams the file at filePath to the bucket
func (m *S3Mirror) Upload(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for mirroring: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file for mirroring: %w", err)
	}

	key := m.objectKey(filePath)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if contentType := mime.TypeByExtension(filepath.Ext(filePath)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	m.logger.Debug().Str("bucket", m.bucket).Str("key", key).Int64("size", info.Size()).Msg("File mirrored")
	return nil
}

// objectKey maps a local path below root to a slash-separated key under prefix
func (m *S3Mirror) objectKey(filePath string) string {
	rel, err := filepath.Rel(m.root, filePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(filePath)
	}
	return path.Join(m.prefix, filepath.ToSlash(rel))
}

func buildAWSConfig(ctx context.Context, config *common.MirrorConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if config.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(config.Region))
	}

	// Use static credentials if provided
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: 10 * time.Minute}))

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}
