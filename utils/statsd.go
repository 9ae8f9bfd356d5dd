package utils

import (
	"github.com/DataDog/datadog-go/statsd"
	"github.com/pkg/errors"
)

func NewDogStatsdClient(addr string) (*statsd.Client, error) {
	client, err := statsd.New(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to create statsd client for %s", addr)
	}
	return client, nil
}
