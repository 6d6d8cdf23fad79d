// Package s3backend implements apiclient.Client on top of real S3
// pre-signed URLs. The object id the rest of the module treats as opaque
// is, here, an S3 key: file state ("open" vs "closed") is derived from
// whether an in-progress multipart upload is still outstanding for that
// key, and parts are assembled into the final object on FileClose via
// UploadPartCopy rather than uploaded directly through the S3 multipart
// API, since the pre-signed-URL contract only ever hands the caller a URL
// and never sees the response (so it cannot learn an UploadPart ETag).
package s3backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/objstore/rfile/internal/apiclient"
)

// Config controls how the backend talks to S3.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
	MaxRetries     int
	URLExpiry      time.Duration

	// AccessKeyID/SecretAccessKey, when both set, pin the backend to a
	// static credential pair instead of the default AWS credential chain.
	// This is the common path for S3-compatible endpoints (MinIO,
	// localstack) that have no EC2/ECS role to assume.
	AccessKeyID     string
	SecretAccessKey string
}

// object tracks the lifecycle of one file id (an S3 key prefix).
type object struct {
	mu         sync.Mutex
	uploadID   string
	partKeys   []string // partKeys[i-1] is the temporary part object key for part i
	closed     bool
	properties map[string]string
}

// Backend is a real apiclient.Client backed by S3.
type Backend struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
	expiry  time.Duration

	mu      sync.Mutex
	objects map[string]*object
}

// New builds a Backend from the default AWS credential chain, or from the
// static AccessKeyID/SecretAccessKey pair when both are set.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3backend: bucket name cannot be empty")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.URLExpiry == 0 {
		cfg.URLExpiry = 15 * time.Minute
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3backend: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Backend{
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
		expiry:  cfg.URLExpiry,
		objects: make(map[string]*object),
	}, nil
}

var _ apiclient.Client = (*Backend)(nil)

func (b *Backend) get(id string) (*object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[id]
	if !ok {
		return nil, fmt.Errorf("s3backend: unknown object id %q", id)
	}
	return obj, nil
}

// FileNew starts a multipart upload and uses its object key as the file id.
func (b *Backend) FileNew(ctx context.Context, params apiclient.FileNewParams) (apiclient.FileNewResult, error) {
	key := newObjectKey(params.Project)
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(params.Media),
	})
	if err != nil {
		return apiclient.FileNewResult{}, fmt.Errorf("s3backend: create multipart upload: %w", err)
	}

	b.mu.Lock()
	b.objects[key] = &object{uploadID: aws.ToString(out.UploadId), properties: map[string]string{}}
	b.mu.Unlock()

	return apiclient.FileNewResult{ID: key}, nil
}

// FileUpload returns a pre-signed PUT URL for a temporary per-part object.
// Parts are assembled into the final key on FileClose.
func (b *Backend) FileUpload(ctx context.Context, id string, partIndex int) (apiclient.FileUploadResult, error) {
	obj, err := b.get(id)
	if err != nil {
		return apiclient.FileUploadResult{}, err
	}

	partKey := fmt.Sprintf("%s.part.%d", id, partIndex)
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(partKey),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return apiclient.FileUploadResult{}, fmt.Errorf("s3backend: presign part upload: %w", err)
	}

	obj.mu.Lock()
	for len(obj.partKeys) < partIndex {
		obj.partKeys = append(obj.partKeys, "")
	}
	obj.partKeys[partIndex-1] = partKey
	obj.mu.Unlock()

	return apiclient.FileUploadResult{URL: req.URL}, nil
}

// FileDownload returns a pre-signed GET URL for the whole object.
func (b *Backend) FileDownload(ctx context.Context, id string) (apiclient.FileDownloadResult, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	}, s3.WithPresignExpires(b.expiry))
	if err != nil {
		return apiclient.FileDownloadResult{}, fmt.Errorf("s3backend: presign download: %w", err)
	}
	return apiclient.FileDownloadResult{URL: req.URL}, nil
}

// FileClose assembles the uploaded parts into the final object via
// UploadPartCopy, completes the multipart upload, and deletes the
// temporary part objects.
func (b *Backend) FileClose(ctx context.Context, id string) error {
	obj, err := b.get(id)
	if err != nil {
		return err
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.closed {
		return nil
	}

	completed := make([]s3types.CompletedPart, 0, len(obj.partKeys))
	for i, partKey := range obj.partKeys {
		partNumber := int32(i + 1)
		copyOut, err := b.client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(b.bucket),
			Key:        aws.String(id),
			UploadId:   aws.String(obj.uploadID),
			PartNumber: aws.Int32(partNumber),
			CopySource: aws.String(fmt.Sprintf("%s/%s", b.bucket, partKey)),
		})
		if err != nil {
			return fmt.Errorf("s3backend: copy part %d into final object: %w", partNumber, err)
		}
		completed = append(completed, s3types.CompletedPart{
			PartNumber: aws.Int32(partNumber),
			ETag:       copyOut.CopyPartResult.ETag,
		})
	}

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(id),
		UploadId:        aws.String(obj.uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("s3backend: complete multipart upload: %w", err)
	}

	for _, partKey := range obj.partKeys {
		_, _ = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(partKey),
		})
	}

	obj.closed = true
	return nil
}

// Describe reports object size and state ("open" or "closed").
func (b *Backend) Describe(ctx context.Context, id string) (apiclient.DescribeResult, error) {
	obj, err := b.get(id)
	if err != nil {
		return apiclient.DescribeResult{}, err
	}

	obj.mu.Lock()
	closed := obj.closed
	obj.mu.Unlock()
	if !closed {
		return apiclient.DescribeResult{Size: -1, State: "open"}, nil
	}

	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return apiclient.DescribeResult{}, fmt.Errorf("s3backend: head object: %w", err)
	}
	return apiclient.DescribeResult{Size: aws.ToInt64(head.ContentLength), State: "closed"}, nil
}

// WaitOnState polls Describe until the object reaches the target state.
func (b *Backend) WaitOnState(ctx context.Context, id, target string) error {
	for {
		result, err := b.Describe(ctx, id)
		if err != nil {
			return err
		}
		if result.State == target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Clone copies a closed object to a new key under destProject; destFolder
// is not used in the key.
func (b *Backend) Clone(ctx context.Context, id, destProject, destFolder string) (apiclient.CloneResult, error) {
	destKey := newObjectKey(destProject)
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", b.bucket, id)),
	})
	if err != nil {
		return apiclient.CloneResult{}, fmt.Errorf("s3backend: clone object: %w", err)
	}

	b.mu.Lock()
	b.objects[destKey] = &object{closed: true, properties: map[string]string{}}
	b.mu.Unlock()

	return apiclient.CloneResult{ID: destKey, Project: destProject}, nil
}

// SetProperties stores key/value metadata against the tracked object. S3
// object tags would require a re-PUT to take effect on a multipart object
// still in progress, so properties are held locally and exist only for
// callers of this backend to introspect; they are not written to S3.
func (b *Backend) SetProperties(ctx context.Context, id string, properties map[string]string) error {
	obj, err := b.get(id)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	for k, v := range properties {
		obj.properties[k] = v
	}
	return nil
}

func newObjectKey(project string) string {
	if project == "" {
		project = "default"
	}
	return fmt.Sprintf("%s/%d", project, time.Now().UnixNano())
}
