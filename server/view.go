package server

import (
	"github.com/Luismorlan/famfeed/engine"
	"github.com/Luismorlan/famfeed/model"
)

// StateView is the JSON shape of a published State. Records use the same
// field names as the remote store.
type StateView struct {
	Version uint64         `json:"version"`
	Status  string         `json:"status"`
	User    model.Record   `json:"user"`
	Group   model.Record   `json:"group"`
	Posts   []model.Record `json:"posts"`
	Members []model.Record `json:"members"`
}

func NewStateView(s *engine.State) *StateView {
	view := &StateView{
		Version: s.Version,
		Status:  s.Status.String(),
		Posts:   make([]model.Record, 0, len(s.Posts)),
		Members: make([]model.Record, 0, len(s.Members)),
	}
	if s.User != nil {
		view.User = model.EncodeUser(s.User)
	}
	if s.Group != nil {
		view.Group = model.EncodeGroup(s.Group)
		// Posts are listed flat, in order, below.
		delete(view.Group, "postsByDate")
	}
	for _, p := range s.Posts {
		view.Posts = append(view.Posts, model.EncodePost(p))
	}
	for _, u := range s.Members {
		view.Members = append(view.Members, model.EncodeUser(u))
	}
	return view
}
