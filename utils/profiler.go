package utils

import (
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"

	"github.com/Luismorlan/famfeed/utils/dotenv"
)

func InitProfiler(service string) error {
	// Datadog profiler
	return profiler.Start(
		profiler.WithService(service),
		profiler.WithEnv(dotenv.Env()),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	)
}

// Stop profiler, OK to be closed multiple times
func CloseProfiler() {
	// Datadog profiler
	profiler.Stop()
}
