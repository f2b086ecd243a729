package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog/log"
)

// S3Options configures the S3 backend
type S3Options struct {
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3Storage implements BlobStorage on Amazon S3 or an S3-compatible service.
// Containers map to buckets.
type S3Storage struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	opts     S3Options
}

// NewS3Storage creates a session from opts. Without static keys the default
// AWS credential chain is used.
func NewS3Storage(opts S3Options) (*S3Storage, error) {
	awsConfig := aws.NewConfig().
		WithRegion(opts.Region).
		WithS3ForcePathStyle(opts.ForcePathStyle)
	if opts.Endpoint != "" {
		awsConfig.WithEndpoint(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		awsConfig.WithCredentials(credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, ""))
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	log.Info().Str("region", opts.Region).Str("endpoint", opts.Endpoint).Msg("s3 storage initialized")
	return newS3StorageWithClient(s3.New(sess), opts), nil
}

func newS3StorageWithClient(client s3iface.S3API, opts S3Options) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		opts:     opts,
	}
}

// CreateContainerIfNotExists creates a bucket
func (s *S3Storage) CreateContainerIfNotExists(ctx context.Context, bucket string) (bool, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.opts.Region != "" && s.opts.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(s.opts.Region),
		}
	}

	if _, err := s.client.CreateBucketWithContext(ctx, input); err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
			return false, nil
		}
		return false, translateS3Error(err)
	}

	log.Info().Str("container", bucket).Msg("bucket created")
	return true, nil
}

type s3PolicyStatement struct {
	Sid       string `json:"Sid"`
	Effect    string `json:"Effect"`
	Principal string `json:"Principal"`
	Action    string `json:"Action"`
	Resource  string `json:"Resource"`
}

type s3Policy struct {
	Version   string              `json:"Version"`
	Statement []s3PolicyStatement `json:"Statement"`
}

// publicReadPolicy grants anonymous GetObject, the S3 equivalent of
// blob-level public access. Listing stays private.
func publicReadPolicy(bucket string) (string, error) {
	policy := s3Policy{
		Version: "2012-10-17",
		Statement: []s3PolicyStatement{{
			Sid:       "PublicReadGetObject",
			Effect:    "Allow",
			Principal: "*",
			Action:    "s3:GetObject",
			Resource:  "arn:aws:s3:::" + bucket + "/*",
		}},
	}
	data, err := json.Marshal(policy)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetContainerAccess installs or removes the public read bucket policy
func (s *S3Storage) SetContainerAccess(ctx context.Context, bucket string, access AccessLevel) error {
	if access == AccessPrivate {
		_, err := s.client.DeleteBucketPolicyWithContext(ctx, &s3.DeleteBucketPolicyInput{Bucket: aws.String(bucket)})
		return translateS3Error(err)
	}

	policy, err := publicReadPolicy(bucket)
	if err != nil {
		return fmt.Errorf("failed to build bucket policy: %w", err)
	}
	_, err = s.client.PutBucketPolicyWithContext(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(bucket),
		Policy: aws.String(policy),
	})
	return translateS3Error(err)
}

// DeleteContainerIfExists empties and removes the bucket. A bucket that
// HeadBucket cannot find reports false.
func (s *S3Storage) DeleteContainerIfExists(ctx context.Context, bucket string) (bool, error) {
	if _, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		err = translateS3Error(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.emptyBucket(ctx, bucket); err != nil {
		err = translateS3Error(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if _, err := s.client.DeleteBucketWithContext(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		err = translateS3Error(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	log.Info().Str("bucket", bucket).Msg("bucket deleted successfully")
	return true, nil
}

// emptyBucket deletes every object, one DeleteObjects call per listing page
func (s *S3Storage) emptyBucket(ctx context.Context, bucket string) error {
	var deleteErr error
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		if len(page.Contents) == 0 {
			return true
		}
		objects := make([]*s3.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, &s3.ObjectIdentifier{Key: obj.Key})
		}

		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			deleteErr = err
			return false
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			deleteErr = fmt.Errorf("failed to delete %d objects from %s, first %s: %s",
				len(out.Errors), bucket, aws.StringValue(first.Key), aws.StringValue(first.Message))
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return deleteErr
}

// ContainerURL returns the virtual-hosted or path-style bucket address
func (s *S3Storage) ContainerURL(bucket string) string {
	if s.opts.Endpoint != "" {
		endpoint := strings.TrimSuffix(s.opts.Endpoint, "/")
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		if s.opts.ForcePathStyle {
			return endpoint + "/" + bucket
		}
		if u, err := url.Parse(endpoint); err == nil {
			u.Host = bucket + "." + u.Host
			return u.String()
		}
	}
	if s.opts.ForcePathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s", s.opts.Region, bucket)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, s.opts.Region)
}

// BlobURL returns the object address
func (s *S3Storage) BlobURL(bucket, key string) string {
	return s.ContainerURL(bucket) + "/" + escapeBlobName(key)
}

// Upload streams content with the multipart uploader. Conditions are checked
// with a HEAD request first, so they are not atomic with the write.
func (s *S3Storage) Upload(ctx context.Context, bucket, key string, content io.Reader, cond AccessCondition) error {
	if !cond.IsZero() {
		etag, exists, err := s.currentETag(ctx, bucket, key)
		if err != nil {
			return err
		}
		if err := cond.Check(etag, exists); err != nil {
			return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
		}
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   content,
	})
	return translateS3Error(err)
}

// SetContentType copies the object onto itself with replaced metadata
func (s *S3Storage) SetContentType(ctx context.Context, bucket, key, contentType string) error {
	source := bucket + "/" + escapeBlobName(key)
	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(source),
		ContentType:       aws.String(contentType),
		MetadataDirective: aws.String(s3.MetadataDirectiveReplace),
	})
	return translateS3Error(err)
}

// GetProperties issues a HEAD request for the object
func (s *S3Storage) GetProperties(ctx context.Context, bucket, key string) (*BlobProperties, error) {
	resp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateS3Error(err)
	}

	return &BlobProperties{
		Name:          key,
		URL:           s.BlobURL(bucket, key),
		ContentType:   aws.StringValue(resp.ContentType),
		ContentLength: aws.Int64Value(resp.ContentLength),
		LastModified:  resp.LastModified,
		ETag:          aws.StringValue(resp.ETag),
	}, nil
}

// Download copies the object body to w
func (s *S3Storage) Download(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, translateS3Error(err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read object: %w", err)
	}
	return n, nil
}

// Exists checks the object with a HEAD request
func (s *S3Storage) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, exists, err := s.currentETag(ctx, bucket, key)
	return exists, err
}

// Delete removes the object
func (s *S3Storage) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return translateS3Error(err)
}

// List pages through ListObjectsV2. S3 listings carry no content type, so
// ContentType is empty on every returned blob; GetProperties has it.
func (s *S3Storage) List(ctx context.Context, bucket, prefix string) ([]BlobProperties, error) {
	startTime := time.Now()
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var blobs []BlobProperties
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			blobs = append(blobs, BlobProperties{
				Name:          key,
				URL:           s.BlobURL(bucket, key),
				ContentLength: aws.Int64Value(obj.Size),
				LastModified:  obj.LastModified,
				ETag:          aws.StringValue(obj.ETag),
			})
		}
		return true
	})
	if err != nil {
		return nil, translateS3Error(err)
	}

	log.Debug().
		Str("container", bucket).
		Str("prefix", prefix).
		Int("count", len(blobs)).
		Dur("duration", time.Since(startTime)).
		Msg("objects listed successfully")

	return blobs, nil
}

func (s *S3Storage) currentETag(ctx context.Context, bucket, key string) (string, bool, error) {
	resp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = translateS3Error(err)
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return aws.StringValue(resp.ETag), true, nil
}

// translateS3Error maps S3 error codes onto the package sentinels
func translateS3Error(err error) error {
	if err == nil {
		return nil
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return errors.Join(ErrNotFound, err)
		case "PreconditionFailed":
			return errors.Join(ErrConditionNotMet, err)
		case "InvalidBucketName", "KeyTooLongError":
			return errors.Join(ErrInvalidName, err)
		}
	}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotFound:
			return errors.Join(ErrNotFound, err)
		case http.StatusPreconditionFailed:
			return errors.Join(ErrConditionNotMet, err)
		}
	}
	return err
}
