package model

import (
	"sort"
	"time"
)

type Post struct {
	PostID          string
	UserID          string
	Nickname        string
	ProfileImageURL *string
	ImageURL        string
	CreatedAt       time.Time
	LikeCount       int
	Comments        map[string]*Comment
}

// PostRef locates a post record: the date bucket it is stored in and its key
// inside that bucket. A bucket is not always DateKeyOf(CreatedAt), so writes
// must use the location a snapshot delivered.
type PostRef struct {
	Day DateKey `validate:"required"`
	Key string  `validate:"required"`
}

func (r PostRef) IsValid() bool {
	return r.Key != "" && r.Day.IsValid()
}

// SortedComments returns the comments oldest first.
func (p *Post) SortedComments() []*Comment {
	comments := make([]*Comment, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].CommentID < comments[j].CommentID
	})
	return comments
}

type Comment struct {
	CommentID       string
	UserID          string
	Nickname        string
	ProfileImageURL *string
	Text            string
	CreatedAt       time.Time
}
