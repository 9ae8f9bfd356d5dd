package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/Luismorlan/famfeed/engine"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const (
	DDOG_SESSION_ENDED_COUNTER  = "famfeed.session.ended"
	DDOG_SNAPSHOT_COUNTER       = "famfeed.sync.applied"
	DDOG_DECODE_DROPPED_COUNTER = "famfeed.sync.decode_dropped"
	DDOG_MIRROR_FAILURE_COUNTER = "famfeed.mirror.failed"
)

// Counter is the part of *statsd.Client the reporter needs.
type Counter interface {
	Incr(name string, tags []string, rate float64) error
}

type ReporterConfig struct {
	Name string
}

// Reporter listens to the engine topics and counts them in Datadog.
type Reporter struct {
	Module

	Config ReporterConfig

	Statsd Counter

	EventBus *gochannel.GoChannel
}

func NewReporter(config ReporterConfig, statsd Counter, e *gochannel.GoChannel) *Reporter {
	return &Reporter{
		Config:   config,
		Statsd:   statsd,
		EventBus: e,
	}
}

var reportedTopics = map[string]string{
	engine.TopicSessionEnded:    DDOG_SESSION_ENDED_COUNTER,
	engine.TopicSnapshotApplied: DDOG_SNAPSHOT_COUNTER,
	engine.TopicDecodeDropped:   DDOG_DECODE_DROPPED_COUNTER,
	engine.TopicMirrorFailed:    DDOG_MIRROR_FAILURE_COUNTER,
}

// eventTags picks the low-cardinality fields of an engine event.
type eventTags struct {
	Source string `json:"source"`
}

func (r *Reporter) count(metric string, payload []byte) {
	tags := []string{}
	var t eventTags
	if err := json.Unmarshal(payload, &t); err == nil && t.Source != "" {
		tags = append(tags, "source:"+t.Source)
	}
	if err := r.Statsd.Incr(metric, tags, 1); err != nil {
		Logger.Log.Infoln("cannot report metric", metric)
	}
}

func (r *Reporter) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for topic, metric := range reportedTopics {
		messages, err := r.EventBus.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(metric string) {
			defer wg.Done()
			for msg := range messages {
				msg.Ack()
				r.count(metric, msg.Payload)
			}
		}(metric)
	}

	wg.Wait()
	return nil
}

func (r *Reporter) Name() string {
	return r.Config.Name
}

func (r *Reporter) Shutdown() {}
