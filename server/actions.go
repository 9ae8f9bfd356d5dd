package server

import (
	"context"
	"io/ioutil"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/Luismorlan/famfeed/gateway"
	"github.com/Luismorlan/famfeed/model"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const maxImageBytes = 10 << 20

// Actions is satisfied by *gateway.Gateway.
type Actions interface {
	UploadPost(ctx context.Context, in gateway.UploadPostInput) (string, error)
	DeletePost(ctx context.Context, groupID string, ref model.PostRef) error
	AddComment(ctx context.Context, in gateway.AddCommentInput) (string, error)
	DeleteComment(ctx context.Context, groupID string, ref model.PostRef, commentKey string) error
}

type addCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

// RegisterActions adds the write routes. They answer 202 because a write
// only shows up in /state once the group listener has seen it.
func RegisterActions(router *gin.Engine, src StateSource, actions Actions) {
	router.POST("/posts", uploadPostHandler(src, actions))
	router.DELETE("/posts/:postId", deletePostHandler(src, actions))
	router.POST("/posts/:postId/comments", addCommentHandler(src, actions))
	router.DELETE("/posts/:postId/comments/:commentId", deleteCommentHandler(src, actions))
}

// signedIn returns the current user and group, or aborts the request.
func signedIn(c *gin.Context, src StateSource) (*model.User, *model.Group, bool) {
	s := src.Current()
	if s.User == nil || s.Group == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no signed-in user with a group"})
		return nil, nil, false
	}
	return s.User, s.Group, true
}

// findPost resolves the postId route param against the published group and
// returns the post with the location it is stored at.
func findPost(c *gin.Context, group *model.Group) (*model.Post, model.PostRef, bool) {
	post, ref, ok := model.FindPost(group, c.Param("postId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return nil, model.PostRef{}, false
	}
	return post, ref, true
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, gateway.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	Logger.Log.Errorf("write failed: %v", err)
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func uploadPostHandler(src StateSource, actions Actions) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, group, ok := signedIn(c, src)
		if !ok {
			return
		}
		file, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()
		image, err := ioutil.ReadAll(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		postID, err := actions.UploadPost(c.Request.Context(), gateway.UploadPostInput{
			GroupID: group.GroupID,
			Author:  user,
			Image:   image,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"postId": postID})
	}
}

func deletePostHandler(src StateSource, actions Actions) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, group, ok := signedIn(c, src)
		if !ok {
			return
		}
		post, ref, ok := findPost(c, group)
		if !ok {
			return
		}
		if post.UserID != user.UID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a post"})
			return
		}
		err := actions.DeletePost(c.Request.Context(), group.GroupID, ref)
		if errors.Is(err, gateway.ErrOrphanedMedia) {
			c.JSON(http.StatusAccepted, gin.H{"postId": ref.Key, "orphanedMedia": true})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"postId": ref.Key})
	}
}

func addCommentHandler(src StateSource, actions Actions) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, group, ok := signedIn(c, src)
		if !ok {
			return
		}
		_, ref, ok := findPost(c, group)
		if !ok {
			return
		}
		var req addCommentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		commentID, err := actions.AddComment(c.Request.Context(), gateway.AddCommentInput{
			GroupID: group.GroupID,
			Post:    ref,
			Author:  user,
			Text:    req.Text,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"commentId": commentID})
	}
}

func deleteCommentHandler(src StateSource, actions Actions) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, group, ok := signedIn(c, src)
		if !ok {
			return
		}
		post, ref, ok := findPost(c, group)
		if !ok {
			return
		}
		commentKey := c.Param("commentId")
		comment, ok := post.Comments[commentKey]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
			return
		}
		if comment.UserID != user.UID {
			c.JSON(http.StatusForbidden, gin.H{"error": "only the author can delete a comment"})
			return
		}
		if err := actions.DeleteComment(c.Request.Context(), group.GroupID, ref, commentKey); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"commentId": commentKey})
	}
}
