package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/Luismorlan/famfeed/media"
	"github.com/Luismorlan/famfeed/model"
	"github.com/Luismorlan/famfeed/remote"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const MaxCommentLength = 500

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrOrphanedMedia means the post record is gone but its image could not
	// be deleted. Nothing cleans these up later.
	ErrOrphanedMedia = errors.New("post deleted but its image was left behind")
)

// Mirror is the widget copy of post images. Satisfied by *mirror.LocalMirror.
type Mirror interface {
	SaveBytes(ctx context.Context, day model.DateKey, postID string, data []byte) error
	Delete(day model.DateKey, postID string) error
}

type Config struct {
	Remote remote.Client
	Media  media.Store
	// Optional.
	Mirror Mirror
	// Retries of a transient write failure. Zero means a single attempt.
	MaxRetries uint64
	// Defaults to time.Now.
	Now func() time.Time
	// Defaults to random UUIDs.
	NewID func() string
}

// Gateway performs the writes a user can make. It never touches the engine's
// published state: a write becomes visible only when the group listener sees
// it come back from the remote store.
type Gateway struct {
	remote     remote.Client
	media      media.Store
	mirror     Mirror
	maxRetries uint64
	now        func() time.Time
	newID      func() string
	validate   *validator.Validate
}

func New(cfg Config) (*Gateway, error) {
	if cfg.Remote == nil || cfg.Media == nil {
		return nil, errors.New("gateway requires a remote client and a media store")
	}
	g := &Gateway{
		remote:     cfg.Remote,
		media:      cfg.Media,
		mirror:     cfg.Mirror,
		maxRetries: cfg.MaxRetries,
		now:        cfg.Now,
		newID:      cfg.NewID,
		validate:   validator.New(),
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.newID == nil {
		g.newID = func() string { return uuid.New().String() }
	}
	return g, nil
}

type UploadPostInput struct {
	GroupID string      `validate:"required"`
	Author  *model.User `validate:"required"`
	Image   []byte      `validate:"required,min=1"`
}

// UploadPost stores the image, then the post record under today's bucket,
// and returns the new post id. If the record cannot be written the image is
// deleted again.
func (g *Gateway) UploadPost(ctx context.Context, in UploadPostInput) (postID string, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "gateway.upload_post")
	defer func() { span.Finish(tracer.WithError(err)) }()

	if err := g.check(in); err != nil {
		return "", err
	}
	postID = g.newID()
	createdAt := g.now().UTC()
	day := model.DateKeyOf(createdAt)
	imagePath := model.ImagePath(in.GroupID, postID)
	span.SetTag("group_id", in.GroupID)
	span.SetTag("post_id", postID)

	var url string
	err = g.retry(ctx, func() error {
		var uploadErr error
		url, uploadErr = g.media.Upload(ctx, imagePath, in.Image)
		return uploadErr
	})
	if err != nil {
		return "", errors.Wrap(err, "fail to upload image")
	}

	post := &model.Post{
		PostID:          postID,
		UserID:          in.Author.UID,
		Nickname:        in.Author.Nickname,
		ProfileImageURL: in.Author.ProfileImageURL,
		ImageURL:        url,
		CreatedAt:       createdAt,
		Comments:        map[string]*model.Comment{},
	}
	err = g.retry(ctx, func() error {
		return g.remote.SetValue(ctx, model.PostPath(in.GroupID, day, postID), model.EncodePost(post))
	})
	if err != nil {
		if delErr := g.media.Delete(ctx, imagePath); delErr != nil {
			Logger.Log.WithField("path", imagePath).Errorf("fail to delete image of unwritten post: %v", delErr)
		}
		return "", errors.Wrap(err, "fail to write post")
	}

	if g.mirror != nil {
		if mirrorErr := g.mirror.SaveBytes(ctx, day, postID, in.Image); mirrorErr != nil {
			Logger.Log.WithField("post_id", postID).Warnf("fail to mirror uploaded image: %v", mirrorErr)
		}
	}
	Logger.Log.WithFields(logrus.Fields{
		"group_id": in.GroupID,
		"post_id":  postID,
		"day":      day,
	}).Info("post uploaded")
	return postID, nil
}

// DeletePost removes the post record, its widget copy and its image, in that
// order. ref must be the location the group snapshot delivered the post at. A
// failure after the record is gone returns ErrOrphanedMedia and is not rolled
// back.
func (g *Gateway) DeletePost(ctx context.Context, groupID string, ref model.PostRef) (err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "gateway.delete_post")
	defer func() { span.Finish(tracer.WithError(err)) }()

	if groupID == "" || !ref.IsValid() {
		return errors.Wrap(ErrInvalidInput, "delete post requires a group id and a stored post location")
	}
	span.SetTag("group_id", groupID)
	span.SetTag("post_id", ref.Key)

	err = g.retry(ctx, func() error {
		return g.remote.DeleteValue(ctx, model.PostPath(groupID, ref.Day, ref.Key))
	})
	if err != nil {
		return errors.Wrap(err, "fail to delete post")
	}

	if g.mirror != nil {
		if mirrorErr := g.mirror.Delete(ref.Day, ref.Key); mirrorErr != nil {
			Logger.Log.WithField("post_id", ref.Key).Warnf("fail to delete mirrored image: %v", mirrorErr)
		}
	}

	imagePath := model.ImagePath(groupID, ref.Key)
	mediaErr := g.retry(ctx, func() error {
		return g.media.Delete(ctx, imagePath)
	})
	if mediaErr != nil {
		Logger.Log.WithField("path", imagePath).Errorf("orphaned image: %v", mediaErr)
		return errors.Wrapf(ErrOrphanedMedia, "%s: %v", imagePath, mediaErr)
	}
	return nil
}

type AddCommentInput struct {
	GroupID string `validate:"required"`
	// Validated field by field through PostRef's own tags.
	Post   model.PostRef
	Author *model.User `validate:"required"`
	Text   string      `validate:"required,max=500"`
}

func (g *Gateway) AddComment(ctx context.Context, in AddCommentInput) (commentID string, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "gateway.add_comment")
	defer func() { span.Finish(tracer.WithError(err)) }()

	in.Text = strings.TrimSpace(in.Text)
	if err := g.check(in); err != nil {
		return "", err
	}
	if !in.Post.IsValid() {
		return "", errors.Wrapf(ErrInvalidInput, "bad post location %s/%s", in.Post.Day, in.Post.Key)
	}
	commentID = g.newID()
	comment := &model.Comment{
		CommentID:       commentID,
		UserID:          in.Author.UID,
		Nickname:        in.Author.Nickname,
		ProfileImageURL: in.Author.ProfileImageURL,
		Text:            in.Text,
		CreatedAt:       g.now().UTC(),
	}
	path := model.CommentPath(in.GroupID, in.Post.Day, in.Post.Key, commentID)
	err = g.retry(ctx, func() error {
		return g.remote.SetValue(ctx, path, model.EncodeComment(comment))
	})
	if err != nil {
		return "", errors.Wrap(err, "fail to write comment")
	}
	return commentID, nil
}

// DeleteComment removes the comment stored under commentKey of the post at ref.
func (g *Gateway) DeleteComment(ctx context.Context, groupID string, ref model.PostRef, commentKey string) (err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "gateway.delete_comment")
	defer func() { span.Finish(tracer.WithError(err)) }()

	if groupID == "" || !ref.IsValid() || commentKey == "" {
		return errors.Wrap(ErrInvalidInput, "delete comment requires a group id, a stored post location and a comment key")
	}
	path := model.CommentPath(groupID, ref.Day, ref.Key, commentKey)
	err = g.retry(ctx, func() error {
		return g.remote.DeleteValue(ctx, path)
	})
	return errors.Wrap(err, "fail to delete comment")
}

func (g *Gateway) check(in interface{}) error {
	if err := g.validate.Struct(in); err != nil {
		return errors.Wrapf(ErrInvalidInput, "%v", err)
	}
	return nil
}

func (g *Gateway) retry(ctx context.Context, op func() error) error {
	return remote.WithRetry(ctx, g.maxRetries, op)
}
