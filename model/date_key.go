package model

import (
	"time"
)

const dateKeyLayout = "2006-01-02"

// DateKeyLocation is the fixed zone every DateKey is computed in. All devices
// of a group must agree on it, otherwise a post made just after midnight lands
// in different buckets on different phones.
var DateKeyLocation = time.FixedZone("KST", 9*60*60)

// DateKey is a canonical YYYY-MM-DD day used to bucket posts and mirror files.
type DateKey string

func DateKeyOf(t time.Time) DateKey {
	return DateKey(t.In(DateKeyLocation).Format(dateKeyLayout))
}

func ParseDateKey(s string) (DateKey, bool) {
	t, err := time.ParseInLocation(dateKeyLayout, s, DateKeyLocation)
	if err != nil {
		return "", false
	}
	// Reject non-canonical spellings such as "2025-5-6".
	if t.Format(dateKeyLayout) != s {
		return "", false
	}
	return DateKey(s), true
}

func (d DateKey) IsValid() bool {
	_, ok := ParseDateKey(string(d))
	return ok
}

func (d DateKey) String() string {
	return string(d)
}

// Time returns midnight of the day in DateKeyLocation.
func (d DateKey) Time() (time.Time, bool) {
	t, err := time.ParseInLocation(dateKeyLayout, string(d), DateKeyLocation)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AddDays shifts the key by n calendar days.
func (d DateKey) AddDays(n int) DateKey {
	t, ok := d.Time()
	if !ok {
		return d
	}
	return DateKeyOf(t.AddDate(0, 0, n))
}
