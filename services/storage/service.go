package storage

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailscope/internal/errors"
	"github.com/customeros/mailscope/internal/tracing"
	"github.com/customeros/mailscope/services/storage/aws_client"
)

// ObjectStorageService keeps raw RFC 822 messages in a single bucket.
type ObjectStorageService struct {
	client     aws_client.S3Client
	bucketName string
}

func NewStorageService(client aws_client.S3Client, bucketName string) *ObjectStorageService {
	return &ObjectStorageService{
		client:     client,
		bucketName: bucketName,
	}
}

func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	return s.client.Upload(ctx, s.bucketName, key, data, contentType)
}

func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	data, err := s.client.Download(ctx, s.bucketName, key)
	if err != nil {
		if aws_client.IsNotFound(err) {
			return nil, errors.ErrRawMessageNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return data, nil
}
