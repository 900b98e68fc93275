package files

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/storage"
)

var _ collection.FileSigner = (*S3Signer)(nil)

type fakePresigner struct {
	input *s3.PutObjectInput
	err   error
}

func (f *fakePresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://uploads.s3.amazonaws.com/" + *params.Key + "?X-Amz-Signature=abc",
		Method: "PUT",
	}, nil
}

func TestSignUpload(t *testing.T) {
	fake := &fakePresigner{}
	s := NewSigner(fake, "uploads", time.Minute)
	s.newID = func() string { return "id" }

	signed, location, err := s.SignUpload(context.Background(), "paladin", "my photo.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://uploads.s3.amazonaws.com/paladin/id-my_photo.png?X-Amz-Signature=abc", signed)
	assert.Equal(t, "https://uploads.s3.amazonaws.com/paladin/id-my_photo.png", location)
	assert.Equal(t, "uploads", *fake.input.Bucket)
	assert.Equal(t, "image/png", *fake.input.ContentType)
}

func TestSignUpload_Errors(t *testing.T) {
	s := NewSigner(&fakePresigner{}, "uploads", 0)
	_, _, err := s.SignUpload(context.Background(), "paladin", "", "image/png")
	assert.ErrorIs(t, err, apierr.ErrValidation)

	_, _, err = s.SignUpload(context.Background(), "paladin", "a.png", "")
	assert.ErrorIs(t, err, apierr.ErrValidation)

	s = NewSigner(&fakePresigner{}, "", 0)
	_, _, err = s.SignUpload(context.Background(), "paladin", "a.png", "image/png")
	assert.ErrorIs(t, err, apierr.ErrUpstream)

	s = NewSigner(&fakePresigner{err: errors.New("no credentials")}, "uploads", 0)
	_, _, err = s.SignUpload(context.Background(), "paladin", "a.png", "image/png")
	assert.ErrorIs(t, err, apierr.ErrUpstream)
}

func TestNewS3Signer_SignsLocally(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.S3Bucket = "uploads"
	cfg.S3AccessKey = "minio"
	cfg.S3SecretKey = "minio-secret"
	cfg.S3UsePathStyle = true

	client, err := storage.NewS3Client(context.Background(), cfg)
	require.NoError(t, err)

	signed, location, err := NewS3Signer(client, cfg).SignUpload(context.Background(), "paladin", "a.png", "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "http://localhost:9000/uploads/paladin/"), signed)
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.True(t, strings.HasSuffix(location, "-a.png"), location)
	assert.NotContains(t, location, "?")
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "report.pdf", cleanName("../../etc/report.pdf"))
	assert.Equal(t, "photo.png", cleanName(`C:\Users\ada\photo.png`))
	assert.Equal(t, "a_b.txt", cleanName("a b.txt"))
	assert.Equal(t, "ab.txt", cleanName("a?#%b.txt"))
	assert.Equal(t, "", cleanName(""))
}
