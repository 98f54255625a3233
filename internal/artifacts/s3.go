package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"roofalert/internal/types"
)

// S3API is the subset of the S3 client used by S3Registry.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Registry looks up artifacts under a bucket prefix.
type S3Registry struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Registry creates a registry for s3://bucket/prefix.
func NewS3Registry(client S3API, bucket, prefix string, logger *slog.Logger) *S3Registry {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Registry{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Lookup implements Registry.
func (r *S3Registry) Lookup(ctx context.Context, areaID string) (Set, error) {
	if err := validateAreaID(areaID); err != nil {
		return Set{}, err
	}
	set, err := lookupKinds(ctx, func(ctx context.Context, k Kind) (*Artifact, error) {
		return r.find(ctx, k, areaID)
	})
	if err != nil {
		return Set{}, err
	}
	r.logger.DebugContext(ctx, "artifact lookup complete",
		"area_id", areaID,
		"bucket", r.bucket,
		"found", len(set.All()),
	)
	return set, nil
}

func (r *S3Registry) find(ctx context.Context, k Kind, areaID string) (*Artifact, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(r.prefix + areaID + "_"),
		Delimiter: aws.String("/"),
	}

	var candidates []Artifact
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamStorage,
				fmt.Sprintf("failed to list s3://%s/%s", r.bucket, *input.Prefix), err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := path.Base(*obj.Key)
			if !Matches(k, areaID, name) {
				continue
			}
			candidates = append(candidates, Artifact{
				Kind:     k,
				Location: *obj.Key,
				Name:     name,
				ModTime:  aws.ToTime(obj.LastModified),
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}
	return newest(candidates), nil
}

// Open implements Registry.
func (r *S3Registry) Open(ctx context.Context, a Artifact) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(a.Location),
	})
	if err != nil {
		code := types.ErrCodeUpstreamStorage
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			code = types.ErrCodeNotFoundArtifact
		}
		return nil, types.NewAppError(code, fmt.Sprintf("failed to fetch s3://%s/%s", r.bucket, a.Location), err)
	}
	return out.Body, nil
}
