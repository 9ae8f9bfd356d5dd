package model

import "path"

// Remote store layout. All writes and subscriptions go through these so the
// engine and the gateway can never disagree on where a record lives.
const (
	usersRoot  = "users"
	groupsRoot = "groups"
)

func UserPath(uid string) string {
	return path.Join(usersRoot, uid)
}

func GroupPath(groupID string) string {
	return path.Join(groupsRoot, groupID)
}

func DateBucketPath(groupID string, day DateKey) string {
	return path.Join(GroupPath(groupID), "postsByDate", string(day))
}

func PostPath(groupID string, day DateKey, postID string) string {
	return path.Join(DateBucketPath(groupID, day), postID)
}

func CommentPath(groupID string, day DateKey, postID, commentID string) string {
	return path.Join(PostPath(groupID, day, postID), "comments", commentID)
}

func ImagePath(groupID, postID string) string {
	return path.Join(GroupPath(groupID), "images", postID+".jpg")
}
