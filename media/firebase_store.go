package media

import (
	"context"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	downloadTokenKey = "firebaseStorageDownloadTokens"
	downloadURLBase  = "https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s"
)

// FirebaseStore writes to the Cloud Storage bucket behind a Firebase project.
// Objects get a download token so clients can fetch them without credentials.
type FirebaseStore struct {
	bucketName string
	bucket     *gcs.BucketHandle
}

func NewFirebaseStore(bucketName string, bucket *gcs.BucketHandle) *FirebaseStore {
	return &FirebaseStore{bucketName: bucketName, bucket: bucket}
}

func (s *FirebaseStore) Upload(ctx context.Context, path string, data []byte) (string, error) {
	token := uuid.NewString()

	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = JpegContentType
	w.Metadata = map[string]string{downloadTokenKey: token}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", errors.Wrapf(err, "fail to write %s", path)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "fail to finalize %s", path)
	}
	return fmt.Sprintf(downloadURLBase, s.bucketName, url.PathEscape(path), token), nil
}

func (s *FirebaseStore) Delete(ctx context.Context, path string) error {
	err := s.bucket.Object(path).Delete(ctx)
	if err == nil || errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "fail to delete %s", path)
}
