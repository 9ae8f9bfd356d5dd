package session

import (
	"context"
	"time"

	Logger "github.com/Luismorlan/famfeed/utils/log"
)

var GracefulRetryDelay = 3 * time.Second

// RunModuleWithGracefulRestart runs module until it returns without error or
// ctx is done, restarting it after GracefulRetryDelay whenever it fails.
func RunModuleWithGracefulRestart(ctx context.Context, module Module) {
	for {
		err := module.RunModule(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		Logger.Log.Errorf(
			"module %s exited with error %v, retry in %s",
			module.Name(),
			err,
			GracefulRetryDelay)

		// Wait for a small amount of time and restart.
		select {
		case <-ctx.Done():
			return
		case <-time.After(GracefulRetryDelay):
		}
	}
}

type Module interface {
	// RunModule contains the customized logic of the module. It takes in a
	// context object by which its lifecycle is managed. Return error if
	// encountered any error during execution.
	RunModule(ctx context.Context) error

	// Return name of the Module. Uniquely identifies the module instance.
	Name() string

	// Shutdown releases whatever the module holds after RunModule returned.
	Shutdown()
}
