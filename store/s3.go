package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/franksops/siptransfer/report"
)

// ensure interface is implemented
var _ Store = (*S3Store)(nil)

// S3Store keeps each report as a JSON object "<prefix>/<token>.json".
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	timeout  time.Duration
}

// NewS3Store creates a new S3Store using the default AWS configuration chain.
func NewS3Store(ctx context.Context, bucket string, prefix string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
		timeout:  30 * time.Second,
	}, nil
}

// buildKey constructs the object key of a report
func (s *S3Store) buildKey(token string) string {
	name := token + ".json"
	if s.prefix == "" {
		return name
	}
	// Avoid double slashes
	key := path.Join(s.prefix, name)
	return strings.TrimPrefix(key, "/")
}

// SaveReport uploads rec, replacing any previous version.
func (s *S3Store) SaveReport(rec *report.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.buildKey(rec.Token)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload report %s: %w", rec.Token, err)
	}
	return nil
}

// GetReport downloads the record stored for token.
func (s *S3Store) GetReport(token string) (*report.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(token)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report %s: %w", token, err)
	}
	defer out.Body.Close()

	var rec report.Record
	if err := json.NewDecoder(out.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &rec, nil
}

// Tokens lists the tokens of all reports under the prefix.
func (s *S3Store) Tokens() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var tokens []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.listPrefix()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		for _, obj := range page.Contents {
			if token, ok := s.tokenFromKey(aws.ToString(obj.Key)); ok {
				tokens = append(tokens, token)
			}
		}
	}
	return tokens, nil
}

func (s *S3Store) listPrefix() string {
	prefix := strings.Trim(s.prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// tokenFromKey is the inverse of buildKey. Objects in nested prefixes and
// objects that are not reports are skipped.
func (s *S3Store) tokenFromKey(key string) (string, bool) {
	name, ok := strings.CutPrefix(key, s.listPrefix())
	if !ok || strings.Contains(name, "/") {
		return "", false
	}
	token, ok := strings.CutSuffix(name, ".json")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Close is a no-op, the S3 client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}
