package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fileshare/internal/fileshare"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps stored files as objects named <prefix><owner>_<basename>.
// Uploads go through the multipart upload manager so large files stream.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Store) key(name string) (string, error) {
	if err := fileshare.ValidateName(name); err != nil {
		return "", err
	}
	return s.prefix + name, nil
}

// Put uploads exactly size bytes. A short reader fails the upload, so no
// truncated object is ever created.
func (s *S3Store) Put(name string, r io.Reader, size int64) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}

	body := &exactReader{r: r, remaining: size}
	_, err = s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d: %w", size, size-body.remaining, fileshare.ErrShortTransfer)
		}
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Open streams the object body.
func (s *S3Store) Open(name string) (io.ReadCloser, int64, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, 0, err
	}

	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// Stat returns the object size.
func (s *S3Store) Stat(name string) (int64, error) {
	key, err := s.key(name)
	if err != nil {
		return 0, err
	}

	out, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%s: %w", name, fileshare.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report ErrNotFound.
func (s *S3Store) Delete(name string) error {
	if _, err := s.Stat(name); err != nil {
		return err
	}

	key, _ := s.key(name)
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns the names directly under the prefix.
func (s *S3Store) List() ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
				continue
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (s *S3Store) ValidateSetup() error {
	_, err := s.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// exactReader yields exactly remaining bytes from r and reports
// io.ErrUnexpectedEOF if r ends first.
type exactReader struct {
	r         io.Reader
	remaining int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if err == io.EOF {
		if e.remaining > 0 {
			return n, io.ErrUnexpectedEOF
		}
		return n, io.EOF
	}
	return n, err
}

var _ fileshare.Store = (*S3Store)(nil)
