package app_config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"

	MediaBackendFirebase = "firebase"
	MediaBackendS3       = "s3"
)

// This is the famfeed config for one sync process. Secrets stay in the
// environment; everything here is safe to commit.
type FamfeedAppConfig struct {
	// How often each remote listener polls for a new snapshot.
	POLL_INTERVAL_MS int64 `yaml:"POLL_INTERVAL_MS"`
	// Root of the widget mirror, shared with the widget process.
	MIRROR_ROOT string `yaml:"MIRROR_ROOT"`
	// Day folders older than this are pruned from the mirror.
	MIRROR_KEEP_DAYS int `yaml:"MIRROR_KEEP_DAYS"`
	// "file" or "redis".
	CACHE_BACKEND string `yaml:"CACHE_BACKEND"`
	CACHE_DIR     string `yaml:"CACHE_DIR"`
	// Key namespace when CACHE_BACKEND is redis.
	CACHE_NAMESPACE string `yaml:"CACHE_NAMESPACE"`
	// "firebase" or "s3".
	MEDIA_BACKEND   string `yaml:"MEDIA_BACKEND"`
	S3_BUCKET       string `yaml:"S3_BUCKET"`
	S3_REGION       string `yaml:"S3_REGION"`
	S3_URL_PREFIX   string `yaml:"S3_URL_PREFIX"`
	FIREBASE_DB_URL string `yaml:"FIREBASE_DB_URL"`
	FIREBASE_BUCKET string `yaml:"FIREBASE_BUCKET"`
	// Retries of a transient write failure in the gateway.
	WRITE_MAX_RETRIES uint64 `yaml:"WRITE_MAX_RETRIES"`
	// Empty disables metrics.
	STATSD_ADDR string `yaml:"STATSD_ADDR"`
}

func DefaultFamfeedAppConfig() FamfeedAppConfig {
	return FamfeedAppConfig{
		POLL_INTERVAL_MS:  1000,
		MIRROR_ROOT:       "mirror",
		MIRROR_KEEP_DAYS:  7,
		CACHE_BACKEND:     CacheBackendFile,
		CACHE_DIR:         "cache",
		CACHE_NAMESPACE:   "famfeed",
		MEDIA_BACKEND:     MediaBackendFirebase,
		S3_REGION:         "us-west-1",
		WRITE_MAX_RETRIES: 3,
	}
}

// ParseFamfeedAppConfig reads the YAML file at path on top of the defaults.
func ParseFamfeedAppConfig(path string) (FamfeedAppConfig, error) {
	c := DefaultFamfeedAppConfig()
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "fail to read app config %s", path)
	}
	if err := yaml.Unmarshal(yamlFile, &c); err != nil {
		return c, errors.Wrapf(err, "fail to parse app config %s", path)
	}
	return c, c.Validate()
}

func (c FamfeedAppConfig) Validate() error {
	if c.POLL_INTERVAL_MS <= 0 {
		return errors.New("POLL_INTERVAL_MS must be positive")
	}
	if c.MIRROR_ROOT == "" {
		return errors.New("MIRROR_ROOT is required")
	}
	if c.MIRROR_KEEP_DAYS < 1 {
		return errors.New("MIRROR_KEEP_DAYS must be at least 1")
	}
	switch c.CACHE_BACKEND {
	case CacheBackendFile:
		if c.CACHE_DIR == "" {
			return errors.New("CACHE_DIR is required for the file cache")
		}
	case CacheBackendRedis:
	default:
		return errors.Errorf("unknown CACHE_BACKEND %q", c.CACHE_BACKEND)
	}
	switch c.MEDIA_BACKEND {
	case MediaBackendFirebase:
		if c.FIREBASE_BUCKET == "" {
			return errors.New("FIREBASE_BUCKET is required for firebase media")
		}
	case MediaBackendS3:
		if c.S3_BUCKET == "" {
			return errors.New("S3_BUCKET is required for s3 media")
		}
	default:
		return errors.Errorf("unknown MEDIA_BACKEND %q", c.MEDIA_BACKEND)
	}
	if c.FIREBASE_DB_URL == "" {
		return errors.New("FIREBASE_DB_URL is required")
	}
	return nil
}
