package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"robline/internal/domain"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, e.g. MinIO
	PathStyle bool
}

// S3API is the subset of *s3.Client used by the store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores documents in a single bucket, one object per handle. The
// original file name travels as user metadata.
type S3 struct {
	client S3API
	bucket string
}

const nameMetaKey = "name"

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg.Bucket), nil
}

func NewS3WithClient(client S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) Put(ctx context.Context, name, contentType string, r io.Reader) (domain.DocumentRef, error) {
	ref := domain.DocumentRef{Handle: newHandle(name), Name: sanitizeName(name), ContentType: contentType}
	// request signing needs a seekable body
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return domain.DocumentRef{}, err
		}
		body = bytes.NewReader(data)
	}
	in := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(ref.Handle),
		Body:     body,
		Metadata: map[string]string{nameMetaKey: ref.Name},
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return domain.DocumentRef{}, fmt.Errorf("put %s: %w", ref.Handle, err)
	}
	return s.Head(ctx, ref.Handle)
}

func (s *S3) Head(ctx context.Context, handle string) (domain.DocumentRef, error) {
	if err := validHandle(handle); err != nil {
		return domain.DocumentRef{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(handle)})
	if err != nil {
		return domain.DocumentRef{}, mapS3Error(err)
	}
	return refFrom(handle, out.ContentLength, out.ContentType, out.Metadata), nil
}

func (s *S3) Get(ctx context.Context, handle string) (domain.DocumentRef, io.ReadCloser, error) {
	if err := validHandle(handle); err != nil {
		return domain.DocumentRef{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(handle)})
	if err != nil {
		return domain.DocumentRef{}, nil, mapS3Error(err)
	}
	return refFrom(handle, out.ContentLength, out.ContentType, out.Metadata), out.Body, nil
}

func (s *S3) Delete(ctx context.Context, handle string) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	if _, err := s.Head(ctx, handle); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(handle)})
	return mapS3Error(err)
}

func refFrom(handle string, size *int64, contentType *string, md map[string]string) domain.DocumentRef {
	return domain.DocumentRef{
		Handle:      handle,
		Name:        md[nameMetaKey],
		Size:        aws.ToInt64(size),
		ContentType: aws.ToString(contentType),
	}
}

func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	var (
		nf  *types.NotFound
		nsk *types.NoSuchKey
	)
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return ErrNotFound
	}
	return err
}
