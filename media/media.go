package media

import (
	"context"
)

const JpegContentType = "image/jpeg"

// Store holds the binary side of a post: the image at
// groups/{groupId}/images/{postId}.jpg.
type Store interface {
	// Upload stores data at path and returns a URL other devices can fetch.
	Upload(ctx context.Context, path string, data []byte) (url string, err error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error
}
