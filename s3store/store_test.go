package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uploaderrors "github.com/awslabs/visual-asset-management-system-sub005/errors"
	"github.com/awslabs/visual-asset-management-system-sub005/internal/testutil"
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

var testDest = uploadtypes.Destination{Container: "assets", Key: "media/render.bin"}

func TestStore_Initiate(t *testing.T) {
	var captured *s3.CreateMultipartUploadInput
	store := NewWithClient(&testutil.MockS3Client{
		CreateMultipartUploadFunc: func(_ context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
			captured = params
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("sess-1")}, nil
		},
	})

	sessionID, err := store.Initiate(context.Background(), uploadtypes.Credentials{}, testDest, "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)

	require.NotNil(t, captured)
	assert.Equal(t, "assets", aws.ToString(captured.Bucket))
	assert.Equal(t, "media/render.bin", aws.ToString(captured.Key))
	assert.Equal(t, "video/mp4", aws.ToString(captured.ContentType))
}

func TestStore_Initiate_NoContentType(t *testing.T) {
	var captured *s3.CreateMultipartUploadInput
	store := NewWithClient(&testutil.MockS3Client{
		CreateMultipartUploadFunc: func(_ context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
			captured = params
			return &s3.CreateMultipartUploadOutput{UploadId: aws.String("sess-1")}, nil
		},
	})

	_, err := store.Initiate(context.Background(), uploadtypes.Credentials{}, testDest, "")
	require.NoError(t, err)
	assert.Nil(t, captured.ContentType, "an unknown content type is omitted, not sent empty")
}

func TestStore_UploadPart(t *testing.T) {
	var captured *s3.UploadPartInput
	var body []byte
	store := NewWithClient(&testutil.MockS3Client{
		UploadPartFunc: func(_ context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			captured = params
			data, err := io.ReadAll(params.Body)
			if err != nil {
				return nil, err
			}
			body = data
			return &s3.UploadPartOutput{ETag: aws.String(`"etag-3"`)}, nil
		},
	})

	receipt, err := store.UploadPart(context.Background(), uploadtypes.Credentials{}, testDest,
		"sess-1", 3, bytes.NewReader([]byte("part payload")), 12)
	require.NoError(t, err)
	assert.Equal(t, uploadtypes.CompletedPart{PartNumber: 3, ETag: `"etag-3"`}, receipt)

	require.NotNil(t, captured)
	assert.Equal(t, "assets", aws.ToString(captured.Bucket))
	assert.Equal(t, "media/render.bin", aws.ToString(captured.Key))
	assert.Equal(t, "sess-1", aws.ToString(captured.UploadId))
	assert.Equal(t, int32(3), aws.ToInt32(captured.PartNumber))
	assert.Equal(t, int64(12), aws.ToInt64(captured.ContentLength))
	assert.Equal(t, []byte("part payload"), body)
}

func TestStore_ListParts_Pagination(t *testing.T) {
	var markers []*string
	store := NewWithClient(&testutil.MockS3Client{
		ListPartsFunc: func(_ context.Context, params *s3.ListPartsInput, _ ...func(*s3.Options)) (*s3.ListPartsOutput, error) {
			markers = append(markers, params.PartNumberMarker)
			if params.PartNumberMarker == nil {
				return &s3.ListPartsOutput{
					Parts: []types.Part{
						{PartNumber: aws.Int32(1), ETag: aws.String(`"etag-1"`), Size: aws.Int64(100)},
						{PartNumber: aws.Int32(2), ETag: aws.String(`"etag-2"`), Size: aws.Int64(100)},
					},
					IsTruncated:          aws.Bool(true),
					NextPartNumberMarker: aws.String("2"),
				}, nil
			}
			return &s3.ListPartsOutput{
				Parts: []types.Part{
					{PartNumber: aws.Int32(3), ETag: aws.String(`"etag-3"`), Size: aws.Int64(40)},
				},
				IsTruncated: aws.Bool(false),
			}, nil
		},
	})

	summaries, err := store.ListParts(context.Background(), uploadtypes.Credentials{}, testDest, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, []uploadtypes.PartSummary{
		{PartNumber: 1, ETag: `"etag-1"`, Size: 100},
		{PartNumber: 2, ETag: `"etag-2"`, Size: 100},
		{PartNumber: 3, ETag: `"etag-3"`, Size: 40},
	}, summaries)

	require.Len(t, markers, 2, "a truncated listing must be followed up")
	assert.Nil(t, markers[0])
	assert.Equal(t, "2", aws.ToString(markers[1]))
}

func TestStore_Complete(t *testing.T) {
	var captured *s3.CompleteMultipartUploadInput
	store := NewWithClient(&testutil.MockS3Client{
		CompleteMultipartUploadFunc: func(_ context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
			captured = params
			return &s3.CompleteMultipartUploadOutput{}, nil
		},
	})

	err := store.Complete(context.Background(), uploadtypes.Credentials{}, testDest, "sess-1",
		[]uploadtypes.CompletedPart{
			{PartNumber: 1, ETag: `"etag-1"`},
			{PartNumber: 2, ETag: `"etag-2"`},
		})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "sess-1", aws.ToString(captured.UploadId))
	require.NotNil(t, captured.MultipartUpload)
	require.Len(t, captured.MultipartUpload.Parts, 2)
	assert.Equal(t, int32(1), aws.ToInt32(captured.MultipartUpload.Parts[0].PartNumber))
	assert.Equal(t, `"etag-1"`, aws.ToString(captured.MultipartUpload.Parts[0].ETag))
	assert.Equal(t, int32(2), aws.ToInt32(captured.MultipartUpload.Parts[1].PartNumber))
}

func TestStore_Put(t *testing.T) {
	var captured *s3.PutObjectInput
	store := NewWithClient(&testutil.MockS3Client{
		PutObjectFunc: func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			captured = params
			return &s3.PutObjectOutput{}, nil
		},
	})

	err := store.Put(context.Background(), uploadtypes.Credentials{}, testDest,
		strings.NewReader(""), 0, "application/octet-stream")
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "assets", aws.ToString(captured.Bucket))
	assert.Equal(t, int64(0), aws.ToInt64(captured.ContentLength))
	assert.Equal(t, "application/octet-stream", aws.ToString(captured.ContentType))
}

func TestStore_ObjectSize(t *testing.T) {
	listing := &s3.ListObjectsV2Output{
		Contents: []types.Object{
			// Prefix siblings must not be mistaken for the object itself.
			{Key: aws.String("media/render.bin.meta"), Size: aws.Int64(64)},
			{Key: aws.String("media/render.bin"), Size: aws.Int64(340)},
		},
	}

	var captured *s3.ListObjectsV2Input
	store := NewWithClient(&testutil.MockS3Client{
		ListObjectsV2Func: func(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			captured = params
			return listing, nil
		},
	})

	size, found, err := store.ObjectSize(context.Background(), uploadtypes.Credentials{}, testDest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(340), size)
	assert.Equal(t, "media/render.bin", aws.ToString(captured.Prefix))

	listing.Contents = listing.Contents[:1]
	_, found, err = store.ObjectSize(context.Background(), uploadtypes.Credentials{}, testDest)
	require.NoError(t, err)
	assert.False(t, found, "a prefix sibling alone is not a match")
}

func TestStore_ObjectSize_ListingError(t *testing.T) {
	store := NewWithClient(&testutil.MockS3Client{
		ListObjectsV2Func: func(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "listing denied"}
		},
	})

	_, _, err := store.ObjectSize(context.Background(), uploadtypes.Credentials{}, testDest)
	require.Error(t, err)
	assert.True(t, uploaderrors.IsAccessDenied(err))
}

func TestStore_ErrorTranslation(t *testing.T) {
	tests := []struct {
		name     string
		inputErr error
		check    func(error) bool
	}{
		{
			name:     "missing session",
			inputErr: &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "upload expired"},
			check:    uploaderrors.IsSessionNotFound,
		},
		{
			name:     "missing key",
			inputErr: &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"},
			check:    uploaderrors.IsObjectNotFound,
		},
		{
			name:     "not found",
			inputErr: &smithy.GenericAPIError{Code: "NotFound", Message: "not found"},
			check:    uploaderrors.IsObjectNotFound,
		},
		{
			name:     "access denied",
			inputErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"},
			check:    uploaderrors.IsAccessDenied,
		},
		{
			name:     "context cancelled",
			inputErr: context.Canceled,
			check:    uploaderrors.IsCancelled,
		},
		{
			name:     "unclassified failure",
			inputErr: errors.New("connection reset"),
			check:    uploaderrors.IsTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewWithClient(&testutil.MockS3Client{
				CreateMultipartUploadFunc: func(_ context.Context, _ *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
					return nil, tt.inputErr
				},
			})

			_, err := store.Initiate(context.Background(), uploadtypes.Credentials{}, testDest, "")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification: %v", err)

			var opErr *uploaderrors.Error
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, "initiate", opErr.Op)
			assert.Equal(t, "assets", opErr.Container)
			assert.Equal(t, "media/render.bin", opErr.Key)
		})
	}
}
