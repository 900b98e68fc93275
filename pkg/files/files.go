package files

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/storage"
)

// Presigner signs S3 put requests; *s3.PresignClient satisfies it
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Signer issues presigned upload urls. Objects are keyed
// "<tenant>/<uuid>-<file name>" so uploads never overwrite each other.
type S3Signer struct {
	presigner Presigner
	bucket    string
	expiry    time.Duration
	newID     func() string
}

// NewS3Signer creates a signer for the bucket of cfg
func NewS3Signer(client *s3.Client, cfg storage.Config) *S3Signer {
	return NewSigner(s3.NewPresignClient(client), cfg.S3Bucket, cfg.S3PresignExpiry)
}

// NewSigner creates a signer over any presigner
func NewSigner(presigner Presigner, bucket string, expiry time.Duration) *S3Signer {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Signer{presigner: presigner, bucket: bucket, expiry: expiry, newID: uuid.NewString}
}

// SignUpload returns the presigned PUT url and the public location of the
// object once uploaded
func (s *S3Signer) SignUpload(ctx context.Context, tenant, fileName, fileType string) (string, string, error) {
	name := cleanName(fileName)
	if name == "" {
		return "", "", apierr.Validation("fileName is required")
	}
	if fileType == "" {
		return "", "", apierr.Validation("fileType is required")
	}
	if s.bucket == "" {
		return "", "", apierr.Upstream("file storage is not configured", nil)
	}

	key := tenant + "/" + s.newID() + "-" + name
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(fileType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", "", apierr.Upstream("failed to sign upload", err)
	}

	location, err := objectLocation(req.URL)
	if err != nil {
		return "", "", apierr.Upstream("failed to sign upload", err)
	}
	return req.URL, location, nil
}

// objectLocation strips the signature from a presigned url
func objectLocation(signed string) (string, error) {
	u, err := url.Parse(signed)
	if err != nil {
		return "", err
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// cleanName keeps the base name and drops characters that need escaping
// in object keys
func cleanName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '?' || r == '#' || r == '%':
			return -1
		}
		return r
	}, base)
}
