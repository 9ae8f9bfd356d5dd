package utils

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/Luismorlan/famfeed/utils/dotenv"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

func InitTracer(service string) {
	// Datadog tracer
	tracer.Start(
		tracer.WithService(service),
		tracer.WithEnv(dotenv.Env()),
	)

	Logger.Log.WithFields(
		logrus.Fields{"service": service, "env": dotenv.Env()},
	).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	// Datadog tracer
	tracer.Stop()
}
