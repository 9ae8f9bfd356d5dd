package session

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	Logger "github.com/Luismorlan/famfeed/utils/log"
)

// Runner manages the execution lifecycle of the session modules and the event
// bus they share with the sync engine.
type Runner struct {
	// Each Module runs in its own goroutine; its lifetime is bound to the
	// Runner's.
	Modules []Module

	// Root context the modules run on.
	ctx context.Context

	// Cancel function for root context, used for graceful shutdown
	cancel context.CancelFunc

	EventBus *gochannel.GoChannel
}

func NewRunner(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Runner {
	return &Runner{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
	}
}

// Run executes all modules and blocks until every one of them has finished.
func (r *Runner) Run() {
	var wg sync.WaitGroup

	for idx := range r.Modules {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			Logger.Log.Infof("start session module %s", r.Modules[index].Name())
			RunModuleWithGracefulRestart(r.ctx, r.Modules[index])
			Logger.Log.Infof("module %s finished execution", r.Modules[index].Name())
		}(idx)
	}

	wg.Wait()
}

func (r *Runner) Shutdown() {
	Logger.Log.Infoln("starting graceful shutdown process")
	r.cancel()

	var wg sync.WaitGroup
	for idx := range r.Modules {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			r.Modules[index].Shutdown()
			Logger.Log.Infof("module %s shut down", r.Modules[index].Name())
		}(idx)
	}

	wg.Wait()
}
