package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds construction parameters for an S3-compatible backend
// (AWS S3 or MinIO). Credentials come from the default AWS chain.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// S3Store implements Store on a single bucket. Blob metadata travels as
// object user metadata.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

const (
	mdFileName = "file-name"
	mdTenant   = "tenant"
	mdCategory = "category"
	mdHash     = "sha256"
	mdCreated  = "created-at"
)

func (s *S3Store) Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	meta, data, err := prepare(meta, content, time.Now())
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(meta.Key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata: map[string]string{
			mdFileName: meta.FileName,
			mdTenant:   meta.TenantID,
			mdCategory: meta.Category,
			mdHash:     meta.Hash,
			mdCreated:  meta.CreatedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.Key, err)
	}
	return &meta, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, *Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	meta := metadataFromObject(key, aws.ToInt64(out.ContentLength), aws.ToString(out.ContentType), out.Metadata, out.LastModified)
	return out.Body, meta, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]*Metadata, error) {
	var out []*Metadata
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			out = append(out, metadataFromObject(key, aws.ToInt64(obj.Size), "", nil, obj.LastModified))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("head object %s: %w", key, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// metadataFromObject rebuilds Metadata from an object. Listing does not
// return user metadata, so tenant, category and file name fall back to the
// key layout reports/<tenant>/<category>/<file>.
func metadataFromObject(key string, size int64, contentType string, md map[string]string, lastModified *time.Time) *Metadata {
	meta := &Metadata{Key: key, Size: size, ContentType: contentType}

	parts := strings.Split(key, "/")
	if len(parts) == 4 && parts[0] == "reports" {
		meta.TenantID, meta.Category, meta.FileName = parts[1], parts[2], parts[3]
	} else {
		meta.FileName = parts[len(parts)-1]
	}

	if v := md[mdFileName]; v != "" {
		meta.FileName = v
	}
	if v := md[mdTenant]; v != "" {
		meta.TenantID = v
	}
	if v := md[mdCategory]; v != "" {
		meta.Category = v
	}
	meta.Hash = md[mdHash]
	if ts, err := time.Parse(time.RFC3339, md[mdCreated]); err == nil {
		meta.CreatedAt = ts
	} else if lastModified != nil {
		meta.CreatedAt = lastModified.UTC()
	}
	return meta
}
