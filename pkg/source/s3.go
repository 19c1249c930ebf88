package source

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driverdock/driverdock/pkg/driver"
	"github.com/driverdock/driverdock/pkg/errors"
)

// S3Catalog serves candidates from an S3-hosted catalog: one JSON
// object per short hardware ID under a key prefix, e.g.
// catalog/VEN_10DE&DEV_1C82.json
type S3Catalog struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewS3Catalog creates a new S3 catalog client for anonymous access
func NewS3Catalog(ctx context.Context, bucket, region, prefix string) (*S3Catalog, error) {
	slog.Info("s3_catalog_init", "bucket", bucket, "region", region, "prefix", prefix)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Catalog{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (c *S3Catalog) Name() string { return "s3-catalog" }

func (c *S3Catalog) key(hardwareID string) string {
	return path.Join(c.prefix, shortKey(hardwareID)+".json")
}

// FetchCandidates downloads and decodes the catalog object for the
// hardware ID. A missing object means no candidates, not an error.
func (c *S3Catalog) FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error) {
	key := c.key(hardwareID)
	slog.Info("s3_catalog_fetch", "bucket", c.bucket, "key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			slog.Info("s3_catalog_entry_not_found", "key", key)
			return nil, nil
		}
		slog.Error("s3_get_object_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get catalog object")
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		slog.Error("s3_catalog_read_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to read catalog object")
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		slog.Error("s3_catalog_decode_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to decode catalog object")
	}

	candidates := file.Drivers[:0]
	for _, cand := range file.Drivers {
		if err := cand.Validate(); err != nil {
			slog.Warn("s3_catalog_candidate_skipped", "key", key, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}

	slog.Info("s3_catalog_fetch_complete", "key", key, "candidate_count", len(candidates))
	return candidates, nil
}

// List returns the catalog entry names under the prefix, for the
// catalog CLI verb
func (c *S3Catalog) List(ctx context.Context) ([]string, error) {
	slog.Info("s3_catalog_list_start", "bucket", c.bucket, "prefix", c.prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	}

	var entries []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_catalog_list_failed", "prefix", c.prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list catalog objects")
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := strings.TrimPrefix(*obj.Key, c.prefix)
			name = strings.TrimPrefix(name, "/")
			name = strings.TrimSuffix(name, ".json")
			if name != "" {
				entries = append(entries, name)
			}
		}
	}

	slog.Info("s3_catalog_list_complete", "prefix", c.prefix, "entry_count", len(entries))
	return entries, nil
}
