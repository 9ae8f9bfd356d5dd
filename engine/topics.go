package engine

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"

	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const (
	// Emitted once when the signed-in account or its group no longer exists
	// remotely. The composition root ends the session on it.
	TopicSessionEnded = "session.ended"
	// A remote snapshot was merged into the published state.
	TopicSnapshotApplied = "sync.applied"
	// A remote snapshot could not be decoded and was ignored.
	TopicDecodeDropped = "sync.decode_dropped"
	// Mirroring an image for the widget failed.
	TopicMirrorFailed = "mirror.failed"
)

// Sources of remote snapshots.
const (
	SourceUser   = "user"
	SourceGroup  = "group"
	SourceMember = "member"
)

type SessionEnded struct {
	UID    string    `json:"uid"`
	Source string    `json:"source"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type SnapshotApplied struct {
	Source  string `json:"source"`
	Key     string `json:"key"`
	Posts   int    `json:"posts"`
	Members int    `json:"members"`
}

type DecodeDropped struct {
	Source string `json:"source"`
	Key    string `json:"key"`
}

type MirrorFailed struct {
	Day    string `json:"day"`
	PostID string `json:"post_id"`
	Error  string `json:"error"`
}

// emit publishes payload as JSON on topic. Publishing is best-effort: a
// missing bus or a failed publish never affects synchronization.
func emit(bus message.Publisher, topic string, payload interface{}) {
	if bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		Logger.Log.WithFields(logrus.Fields{"topic": topic}).Errorf("fail to encode event: %v", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := bus.Publish(topic, msg); err != nil {
		Logger.Log.WithFields(logrus.Fields{"topic": topic}).Errorf("fail to publish event: %v", err)
	}
}

// DecodeSessionEnded parses a TopicSessionEnded payload.
func DecodeSessionEnded(msg *message.Message) (SessionEnded, error) {
	var ev SessionEnded
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}
