package media

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

const (
	DefaultS3Region = "us-west-1"
)

type S3Store struct {
	bucket    string
	urlPrefix string
	uploader  *s3manager.Uploader
	svc       *s3.S3
}

// NewS3Store builds a store on bucket. urlPrefix is prepended to object keys
// to form public URLs (usually a CDN in front of the bucket).
func NewS3Store(bucket, region, urlPrefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket not provided")
	}
	if region == "" {
		region = DefaultS3Region
	}
	// AWS client session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "fail to create aws session")
	}
	if urlPrefix == "" {
		urlPrefix = "https://" + bucket + ".s3." + region + ".amazonaws.com/"
	}

	return &S3Store{
		bucket:    bucket,
		urlPrefix: urlPrefix,
		uploader:  s3manager.NewUploader(sess),
		svc:       s3.New(sess),
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, path string, data []byte) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(JpegContentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "fail to upload %s to s3", path)
	}
	return s.GetUrlFromKey(path), nil
}

// Delete is idempotent on S3: removing a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return errors.Wrapf(err, "fail to delete %s from s3", path)
	}
	return nil
}

func (s *S3Store) GetUrlFromKey(key string) string {
	return s.urlPrefix + key
}
