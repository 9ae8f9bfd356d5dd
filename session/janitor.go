package session

import (
	"context"
	"time"

	"github.com/Luismorlan/famfeed/model"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

// Pruner is satisfied by *mirror.LocalMirror.
type Pruner interface {
	PruneBefore(day model.DateKey) error
}

// Janitor keeps the widget mirror from growing forever: every Interval it
// removes the day folders older than KeepDays.
type Janitor struct {
	Module

	Mirror   Pruner
	KeepDays int
	Interval time.Duration

	now func() time.Time
}

func NewJanitor(m Pruner, keepDays int, interval time.Duration) *Janitor {
	return &Janitor{Mirror: m, KeepDays: keepDays, Interval: interval, now: time.Now}
}

func (j *Janitor) prune() error {
	cutoff := model.DateKeyOf(j.now()).AddDays(-j.KeepDays)
	if err := j.Mirror.PruneBefore(cutoff); err != nil {
		return err
	}
	Logger.Log.WithField("cutoff", cutoff).Debug("mirror pruned")
	return nil
}

func (j *Janitor) RunModule(ctx context.Context) error {
	if err := j.prune(); err != nil {
		return err
	}
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.prune(); err != nil {
				return err
			}
		}
	}
}

func (j *Janitor) Name() string {
	return "janitor"
}

func (j *Janitor) Shutdown() {}
