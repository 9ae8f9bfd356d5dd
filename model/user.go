package model

import (
	"fmt"
	"time"
)

type User struct {
	UID             string
	Nickname        string
	ProfileImageURL *string
	BirthdayDate    time.Time
	Gender          Gender
	GroupID         *string
	RegisterDate    time.Time
	PushToken       *string
}

// HasGroup reports whether the user points at a group.
func (u *User) HasGroup() bool {
	return u != nil && u.GroupID != nil && *u.GroupID != ""
}

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

var AllGender = []Gender{
	GenderMale,
	GenderFemale,
	GenderOther,
}

func (e Gender) IsValid() bool {
	switch e {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

func (e Gender) String() string {
	return string(e)
}

func (e *Gender) UnmarshalText(text []byte) error {
	*e = Gender(text)
	if !e.IsValid() {
		return fmt.Errorf("%s is not a valid Gender", string(text))
	}
	return nil
}

func (e Gender) MarshalText() ([]byte, error) {
	return []byte(e), nil
}
