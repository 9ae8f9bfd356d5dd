package model

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Record is the wire shape of a single remote node after JSON decoding.
type Record = map[string]interface{}

// Wire field names, shared by every client of the remote store.
const (
	fieldUID             = "uid"
	fieldNickname        = "nickname"
	fieldProfileImageURL = "profileImageURL"
	fieldBirthdayDate    = "birthdayDate"
	fieldGender          = "gender"
	fieldGroupID         = "groupId"
	fieldRegisterDate    = "registerDate"
	fieldPushToken       = "pushToken"

	fieldGroupName   = "groupName"
	fieldHostUserID  = "hostUserId"
	fieldInviteCode  = "inviteCode"
	fieldMembers     = "members"
	fieldPostsByDate = "postsByDate"

	fieldPostID    = "postId"
	fieldUserID    = "userId"
	fieldImageURL  = "imageURL"
	fieldCreatedAt = "createdAt"
	fieldLikeCount = "likeCount"
	fieldComments  = "comments"

	fieldCommentID = "commentId"
	fieldText      = "text"
)

// FormatTimestamp is the single timestamp encoding used on the wire and in
// the local cache.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func EncodeUser(u *User) Record {
	rec := Record{
		fieldUID:          u.UID,
		fieldNickname:     u.Nickname,
		fieldBirthdayDate: FormatTimestamp(u.BirthdayDate),
		fieldGender:       u.Gender.String(),
		fieldRegisterDate: FormatTimestamp(u.RegisterDate),
	}
	putOptional(rec, fieldProfileImageURL, u.ProfileImageURL)
	putOptional(rec, fieldGroupID, u.GroupID)
	putOptional(rec, fieldPushToken, u.PushToken)
	return rec
}

func DecodeUser(v interface{}) (*User, bool) {
	rec, ok := v.(Record)
	if !ok {
		return nil, false
	}
	uid, ok := requiredID(rec, fieldUID)
	if !ok {
		return nil, false
	}
	nickname, ok := requiredString(rec, fieldNickname)
	if !ok {
		return nil, false
	}
	birthday, ok := requiredTime(rec, fieldBirthdayDate)
	if !ok {
		return nil, false
	}
	registered, ok := requiredTime(rec, fieldRegisterDate)
	if !ok {
		return nil, false
	}
	genderRaw, ok := requiredString(rec, fieldGender)
	if !ok {
		return nil, false
	}
	gender := Gender(genderRaw)
	if !gender.IsValid() {
		return nil, false
	}
	return &User{
		UID:             uid,
		Nickname:        nickname,
		ProfileImageURL: optionalString(rec, fieldProfileImageURL),
		BirthdayDate:    birthday,
		Gender:          gender,
		GroupID:         optionalString(rec, fieldGroupID),
		RegisterDate:    registered,
		PushToken:       optionalString(rec, fieldPushToken),
	}, true
}

func EncodeComment(c *Comment) Record {
	rec := Record{
		fieldCommentID: c.CommentID,
		fieldUserID:    c.UserID,
		fieldNickname:  c.Nickname,
		fieldText:      c.Text,
		fieldCreatedAt: FormatTimestamp(c.CreatedAt),
	}
	putOptional(rec, fieldProfileImageURL, c.ProfileImageURL)
	return rec
}

func DecodeComment(v interface{}) (*Comment, bool) {
	rec, ok := v.(Record)
	if !ok {
		return nil, false
	}
	id, ok := requiredID(rec, fieldCommentID)
	if !ok {
		return nil, false
	}
	uid, ok := requiredID(rec, fieldUserID)
	if !ok {
		return nil, false
	}
	nickname, ok := requiredString(rec, fieldNickname)
	if !ok {
		return nil, false
	}
	text, ok := requiredString(rec, fieldText)
	if !ok {
		return nil, false
	}
	createdAt, ok := requiredTime(rec, fieldCreatedAt)
	if !ok {
		return nil, false
	}
	return &Comment{
		CommentID:       id,
		UserID:          uid,
		Nickname:        nickname,
		ProfileImageURL: optionalString(rec, fieldProfileImageURL),
		Text:            text,
		CreatedAt:       createdAt,
	}, true
}

func EncodePost(p *Post) Record {
	rec := Record{
		fieldPostID:    p.PostID,
		fieldUserID:    p.UserID,
		fieldNickname:  p.Nickname,
		fieldImageURL:  p.ImageURL,
		fieldCreatedAt: FormatTimestamp(p.CreatedAt),
		fieldLikeCount: p.LikeCount,
	}
	putOptional(rec, fieldProfileImageURL, p.ProfileImageURL)
	if len(p.Comments) > 0 {
		comments := Record{}
		for id, c := range p.Comments {
			comments[id] = EncodeComment(c)
		}
		rec[fieldComments] = comments
	}
	return rec
}

func DecodePost(v interface{}) (*Post, bool) {
	rec, ok := v.(Record)
	if !ok {
		return nil, false
	}
	id, ok := requiredID(rec, fieldPostID)
	if !ok {
		return nil, false
	}
	uid, ok := requiredID(rec, fieldUserID)
	if !ok {
		return nil, false
	}
	nickname, ok := requiredString(rec, fieldNickname)
	if !ok {
		return nil, false
	}
	imageURL, ok := requiredString(rec, fieldImageURL)
	if !ok {
		return nil, false
	}
	createdAt, ok := requiredTime(rec, fieldCreatedAt)
	if !ok {
		return nil, false
	}
	likes := 0
	if raw, present := rec[fieldLikeCount]; present {
		if likes, ok = toInt(raw); !ok {
			return nil, false
		}
	}

	comments := map[string]*Comment{}
	if children, ok := rec[fieldComments].(Record); ok {
		for key, child := range children {
			if c, ok := DecodeComment(child); ok {
				comments[key] = c
			}
		}
	}

	return &Post{
		PostID:          id,
		UserID:          uid,
		Nickname:        nickname,
		ProfileImageURL: optionalString(rec, fieldProfileImageURL),
		ImageURL:        imageURL,
		CreatedAt:       createdAt,
		LikeCount:       likes,
		Comments:        comments,
	}, true
}

func EncodeGroup(g *Group) Record {
	members := Record{}
	for uid, joined := range g.Members {
		members[uid] = joined
	}
	rec := Record{
		fieldGroupID:    g.GroupID,
		fieldGroupName:  g.GroupName,
		fieldHostUserID: g.HostUserID,
		fieldInviteCode: g.InviteCode,
		fieldMembers:    members,
	}
	if len(g.PostsByDate) > 0 {
		byDate := Record{}
		for day, bucket := range g.PostsByDate {
			posts := Record{}
			for id, p := range bucket {
				posts[id] = EncodePost(p)
			}
			byDate[string(day)] = posts
		}
		rec[fieldPostsByDate] = byDate
	}
	return rec
}

// DecodeGroup decodes a group snapshot. Members with a non-string join time,
// malformed date buckets and malformed posts are dropped one by one; only a
// problem with the group's own fields rejects the snapshot.
func DecodeGroup(v interface{}) (*Group, bool) {
	rec, ok := v.(Record)
	if !ok {
		return nil, false
	}
	id, ok := requiredID(rec, fieldGroupID)
	if !ok {
		return nil, false
	}
	name, ok := requiredString(rec, fieldGroupName)
	if !ok {
		return nil, false
	}
	host, ok := requiredID(rec, fieldHostUserID)
	if !ok {
		return nil, false
	}
	invite, ok := requiredString(rec, fieldInviteCode)
	if !ok {
		return nil, false
	}

	members := map[string]string{}
	if raw, ok := rec[fieldMembers].(Record); ok {
		for uid, joined := range raw {
			if s, ok := joined.(string); ok && uid != "" {
				members[uid] = s
			}
		}
	}

	postsByDate := map[DateKey]map[string]*Post{}
	if raw, ok := rec[fieldPostsByDate].(Record); ok {
		for dayRaw, bucketRaw := range raw {
			day, ok := ParseDateKey(dayRaw)
			if !ok {
				continue
			}
			bucket, ok := bucketRaw.(Record)
			if !ok {
				continue
			}
			posts := map[string]*Post{}
			for key, child := range bucket {
				if p, ok := DecodePost(child); ok {
					posts[key] = p
				}
			}
			if len(posts) > 0 {
				postsByDate[day] = posts
			}
		}
	}

	return &Group{
		GroupID:     id,
		GroupName:   name,
		HostUserID:  host,
		InviteCode:  invite,
		Members:     members,
		PostsByDate: postsByDate,
	}, true
}

// MarshalUser and friends serialize a snapshot through the wire codec so the
// cache and the remote store share one format.
func MarshalUser(u *User) ([]byte, error) {
	return json.Marshal(EncodeUser(u))
}

func UnmarshalUser(data []byte) (*User, bool) {
	rec, ok := unmarshalRecord(data)
	if !ok {
		return nil, false
	}
	return DecodeUser(rec)
}

func MarshalGroup(g *Group) ([]byte, error) {
	return json.Marshal(EncodeGroup(g))
}

func UnmarshalGroup(data []byte) (*Group, bool) {
	rec, ok := unmarshalRecord(data)
	if !ok {
		return nil, false
	}
	return DecodeGroup(rec)
}

func unmarshalRecord(data []byte) (Record, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

func putOptional(rec Record, key string, v *string) {
	if v != nil {
		rec[key] = *v
	}
}

func requiredString(rec Record, key string) (string, bool) {
	s, ok := rec[key].(string)
	return s, ok
}

func requiredID(rec Record, key string) (string, bool) {
	s, ok := requiredString(rec, key)
	return s, ok && s != ""
}

func optionalString(rec Record, key string) *string {
	s, ok := rec[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func requiredTime(rec Record, key string) (time.Time, bool) {
	s, ok := requiredString(rec, key)
	if !ok {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
