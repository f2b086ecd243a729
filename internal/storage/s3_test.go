package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 overrides the handful of S3API calls the backend makes; anything
// else panics through the nil embedded interface.
type fakeS3 struct {
	s3iface.S3API

	createBucketErr error
	headObjects     map[string]*s3.HeadObjectOutput
	putPolicy       *s3.PutBucketPolicyInput
	copies          []*s3.CopyObjectInput
	pages           [][]*s3.Object
	missingBucket   bool
	deletedKeys     []string
	deleteBatches   int
	deletedBucket   string
}

func (f *fakeS3) CreateBucketWithContext(ctx aws.Context, in *s3.CreateBucketInput, _ ...request.Option) (*s3.CreateBucketOutput, error) {
	if f.createBucketErr != nil {
		return nil, f.createBucketErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketPolicyWithContext(ctx aws.Context, in *s3.PutBucketPolicyInput, _ ...request.Option) (*s3.PutBucketPolicyOutput, error) {
	f.putPolicy = in
	return &s3.PutBucketPolicyOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if out, ok := f.headObjects[aws.StringValue(in.Key)]; ok {
		return out, nil
	}
	return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), 404, "req-1")
}

func (f *fakeS3) CopyObjectWithContext(ctx aws.Context, in *s3.CopyObjectInput, _ ...request.Option) (*s3.CopyObjectOutput, error) {
	f.copies = append(f.copies, in)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	for i, page := range f.pages {
		if !fn(&s3.ListObjectsV2Output{Contents: page}, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) HeadBucketWithContext(ctx aws.Context, in *s3.HeadBucketInput, _ ...request.Option) (*s3.HeadBucketOutput, error) {
	if f.missingBucket {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "Not Found", nil), 404, "req-2")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.deleteBatches++
	for _, obj := range in.Delete.Objects {
		f.deletedKeys = append(f.deletedKeys, aws.StringValue(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) DeleteBucketWithContext(ctx aws.Context, in *s3.DeleteBucketInput, _ ...request.Option) (*s3.DeleteBucketOutput, error) {
	f.deletedBucket = aws.StringValue(in.Bucket)
	return &s3.DeleteBucketOutput{}, nil
}

func TestS3Storage_CreateContainerIfNotExists(t *testing.T) {
	ctx := context.Background()

	fake := &fakeS3{}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})
	created, err := storage.CreateContainerIfNotExists(ctx, "photos")
	require.NoError(t, err)
	assert.True(t, created)

	fake.createBucketErr = awserr.New(s3.ErrCodeBucketAlreadyOwnedByYou, "exists", nil)
	created, err = storage.CreateContainerIfNotExists(ctx, "photos")
	require.NoError(t, err)
	assert.False(t, created)

	fake.createBucketErr = awserr.New(s3.ErrCodeBucketAlreadyExists, "taken by someone else", nil)
	_, err = storage.CreateContainerIfNotExists(ctx, "photos")
	assert.Error(t, err)
}

func TestS3Storage_SetContainerAccessPublic(t *testing.T) {
	fake := &fakeS3{}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

	require.NoError(t, storage.SetContainerAccess(context.Background(), "photos-public", AccessBlob))
	require.NotNil(t, fake.putPolicy)
	assert.Equal(t, "photos-public", aws.StringValue(fake.putPolicy.Bucket))

	var policy s3Policy
	require.NoError(t, json.Unmarshal([]byte(aws.StringValue(fake.putPolicy.Policy)), &policy))
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, "s3:GetObject", policy.Statement[0].Action)
	assert.Equal(t, "arn:aws:s3:::photos-public/*", policy.Statement[0].Resource)
	assert.Equal(t, "*", policy.Statement[0].Principal)
}

func TestS3Storage_ExistsAndProperties(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeS3{headObjects: map[string]*s3.HeadObjectOutput{
		"docs/readme.txt": {
			ContentType:   aws.String("text/plain"),
			ContentLength: aws.Int64(42),
			LastModified:  aws.Time(modified),
			ETag:          aws.String(`"abc"`),
		},
	}}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "files", "docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = storage.Exists(ctx, "files", "missing.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	props, err := storage.GetProperties(ctx, "files", "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", props.ContentType)
	assert.Equal(t, int64(42), props.ContentLength)
	assert.Equal(t, modified, *props.LastModified)
	assert.Equal(t, "https://files.s3.eu-west-1.amazonaws.com/docs/readme.txt", props.URL)

	_, err = storage.GetProperties(ctx, "files", "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Storage_UploadAccessCondition(t *testing.T) {
	fake := &fakeS3{headObjects: map[string]*s3.HeadObjectOutput{
		"taken.txt": {ETag: aws.String(`"abc"`)},
	}}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})
	ctx := context.Background()

	err := storage.Upload(ctx, "files", "taken.txt", strings.NewReader("x"), AccessCondition{IfNoneMatch: ETagAny})
	assert.ErrorIs(t, err, ErrConditionNotMet)

	err = storage.Upload(ctx, "files", "taken.txt", strings.NewReader("x"), AccessCondition{IfMatch: `"other"`})
	assert.ErrorIs(t, err, ErrConditionNotMet)

	err = storage.Upload(ctx, "files", "missing.txt", strings.NewReader("x"), AccessCondition{IfMatch: `"abc"`})
	assert.ErrorIs(t, err, ErrConditionNotMet)
}

func TestS3Storage_SetContentType(t *testing.T) {
	fake := &fakeS3{}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

	require.NoError(t, storage.SetContentType(context.Background(), "files", "2024/my report.pdf", "application/pdf"))
	require.Len(t, fake.copies, 1)
	in := fake.copies[0]
	assert.Equal(t, "files/2024/my%20report.pdf", aws.StringValue(in.CopySource))
	assert.Equal(t, "application/pdf", aws.StringValue(in.ContentType))
	assert.Equal(t, s3.MetadataDirectiveReplace, aws.StringValue(in.MetadataDirective))
}

func TestS3Storage_List(t *testing.T) {
	fake := &fakeS3{pages: [][]*s3.Object{
		{{Key: aws.String("b.txt"), Size: aws.Int64(2)}},
		{{Key: aws.String("a.txt"), Size: aws.Int64(1)}},
	}}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

	blobs, err := storage.List(context.Background(), "files", "")
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "b.txt", blobs[0].Name)
	assert.Equal(t, int64(2), blobs[0].ContentLength)
	assert.Equal(t, "a.txt", blobs[1].Name)
}

func TestS3Storage_ListHasNoContentType(t *testing.T) {
	fake := &fakeS3{pages: [][]*s3.Object{{{Key: aws.String("2024/cat.png"), Size: aws.Int64(3)}}}}
	storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

	blobs, err := storage.List(context.Background(), "photos", "2024/")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Empty(t, blobs[0].ContentType)
	assert.Equal(t, "https://photos.s3.eu-west-1.amazonaws.com/2024/cat.png", blobs[0].URL)
}

func TestS3Storage_DeleteContainerIfExists(t *testing.T) {
	ctx := context.Background()

	t.Run("missing bucket", func(t *testing.T) {
		fake := &fakeS3{missingBucket: true}
		storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

		deleted, err := storage.DeleteContainerIfExists(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Zero(t, fake.deleteBatches)
		assert.Empty(t, fake.deletedBucket)
	})

	t.Run("bucket with objects", func(t *testing.T) {
		fake := &fakeS3{pages: [][]*s3.Object{
			{{Key: aws.String("a.txt")}, {Key: aws.String("b/c.txt")}},
			{{Key: aws.String("d.txt")}},
		}}
		storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

		deleted, err := storage.DeleteContainerIfExists(ctx, "photos")
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, 2, fake.deleteBatches)
		assert.Equal(t, []string{"a.txt", "b/c.txt", "d.txt"}, fake.deletedKeys)
		assert.Equal(t, "photos", fake.deletedBucket)
	})

	t.Run("empty bucket", func(t *testing.T) {
		fake := &fakeS3{}
		storage := newS3StorageWithClient(fake, S3Options{Region: "eu-west-1"})

		deleted, err := storage.DeleteContainerIfExists(ctx, "photos")
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Zero(t, fake.deleteBatches)
		assert.Equal(t, "photos", fake.deletedBucket)
	})
}

func TestS3Storage_ContainerURL(t *testing.T) {
	tests := []struct {
		name string
		opts S3Options
		want string
	}{
		{name: "aws virtual hosted", opts: S3Options{Region: "eu-west-1"}, want: "https://photos.s3.eu-west-1.amazonaws.com"},
		{name: "aws path style", opts: S3Options{Region: "eu-west-1", ForcePathStyle: true}, want: "https://s3.eu-west-1.amazonaws.com/photos"},
		{name: "custom endpoint path style", opts: S3Options{Endpoint: "http://minio:9000/", ForcePathStyle: true}, want: "http://minio:9000/photos"},
		{name: "custom endpoint virtual hosted", opts: S3Options{Endpoint: "storage.example.com"}, want: "https://photos.storage.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newS3StorageWithClient(&fakeS3{}, tt.opts)
			assert.Equal(t, tt.want, storage.ContainerURL("photos"))
		})
	}
}

func TestTranslateS3Error(t *testing.T) {
	assert.NoError(t, translateS3Error(nil))
	assert.ErrorIs(t, translateS3Error(awserr.New(s3.ErrCodeNoSuchKey, "gone", nil)), ErrNotFound)
	assert.ErrorIs(t, translateS3Error(awserr.New(s3.ErrCodeNoSuchBucket, "gone", nil)), ErrNotFound)
	assert.ErrorIs(t, translateS3Error(awserr.New("PreconditionFailed", "etag", nil)), ErrConditionNotMet)
	assert.ErrorIs(t, translateS3Error(awserr.NewRequestFailure(awserr.New("Unknown", "", nil), 404, "r")), ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, translateS3Error(other))
}
