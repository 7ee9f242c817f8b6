// Package s3 provides the S3-backed blob store for durable multi-node
// deployments. Blobs live under a per-tenant key prefix in one bucket.
package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"antbox-backend/pkg/errors"
)

// API is the slice of the S3 client the provider needs.
type API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
}

// Provider stores blobs in an S3 bucket under prefix/key.
type Provider struct {
	client API
	bucket string
	prefix string
}

// NewProvider creates an S3 blob store scoped to bucket and prefix.
func NewProvider(client API, bucket, prefix string) *Provider {
	return &Provider{client: client, bucket: bucket, prefix: prefix}
}

func (p *Provider) objectKey(key string) string {
	return path.Join(p.prefix, key)
}

// Put uploads the blob, replacing any existing object for the key.
func (p *Provider) Put(ctx context.Context, key string, data []byte) error {
	_, err := p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.NewUnknownError("uploading blob "+key, err)
	}
	return nil
}

// Get downloads the blob stored under key.
func (p *Provider) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNodeNotFoundError(key)
		}
		return nil, errors.NewUnknownError("downloading blob "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewUnknownError("reading blob body "+key, err)
	}
	return data, nil
}

// Delete removes the blob stored under key. Deleting an absent object
// is reported as NodeNotFound to match the provider contract, which
// needs a HeadObject probe since S3 deletes are idempotent.
func (p *Provider) Delete(ctx context.Context, key string) error {
	_, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return errors.NewNodeNotFoundError(key)
		}
		return errors.NewUnknownError("probing blob "+key, err)
	}

	if _, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(key)),
	}); err != nil {
		return errors.NewUnknownError("deleting blob "+key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
