package model

import (
	"sort"
	"time"
)

// Group is the shared family unit. Members maps uid to the joined-at
// timestamp string exactly as stored remotely; its keys are the roster.
type Group struct {
	GroupID     string
	GroupName   string
	HostUserID  string
	InviteCode  string
	Members     map[string]string
	PostsByDate map[DateKey]map[string]*Post
}

// Roster returns the member uids ordered by join time, then uid.
func (g *Group) Roster() []string {
	if g == nil {
		return nil
	}
	uids := make([]string, 0, len(g.Members))
	for uid := range g.Members {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool {
		ti, tj := g.Members[uids[i]], g.Members[uids[j]]
		if ti != tj {
			return ti < tj
		}
		return uids[i] < uids[j]
	})
	return uids
}

// RosterSet returns the roster as a set.
func (g *Group) RosterSet() map[string]struct{} {
	set := make(map[string]struct{})
	if g == nil {
		return set
	}
	for uid := range g.Members {
		set[uid] = struct{}{}
	}
	return set
}

// FlattenPosts returns every post of the group sorted ascending by CreatedAt.
// Ties are broken by PostID so the order is stable across snapshots.
func FlattenPosts(g *Group) []*Post {
	if g == nil {
		return []*Post{}
	}
	posts := []*Post{}
	for _, bucket := range g.PostsByDate {
		for _, p := range bucket {
			posts = append(posts, p)
		}
	}
	SortPosts(posts)
	return posts
}

func SortPosts(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].PostID < posts[j].PostID
	})
}

// PostsOn returns the posts uid made on the given day, oldest first. An empty
// uid matches every author.
func PostsOn(g *Group, day DateKey, uid string) []*Post {
	posts := []*Post{}
	if g == nil {
		return posts
	}
	for _, p := range g.PostsByDate[day] {
		if uid == "" || p.UserID == uid {
			posts = append(posts, p)
		}
	}
	SortPosts(posts)
	return posts
}

// HasPostedOn backs the one-post-per-day rule enforced by the UI.
func HasPostedOn(g *Group, day DateKey, uid string) bool {
	return len(PostsOn(g, day, uid)) > 0
}

// FindPost looks a post up by its key across all date buckets and returns
// where it is stored.
func FindPost(g *Group, key string) (*Post, PostRef, bool) {
	if g == nil {
		return nil, PostRef{}, false
	}
	for day, bucket := range g.PostsByDate {
		if p, ok := bucket[key]; ok {
			return p, PostRef{Day: day, Key: key}, true
		}
	}
	return nil, PostRef{}, false
}

// JoinedAt parses a member's joined-at string, if it is a timestamp.
func (g *Group) JoinedAt(uid string) (time.Time, bool) {
	if g == nil {
		return time.Time{}, false
	}
	raw, ok := g.Members[uid]
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
