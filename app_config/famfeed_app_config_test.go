package app_config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFamfeedAppConfig(t *testing.T) {
	path := writeConfig(t, `
POLL_INTERVAL_MS: 250
CACHE_BACKEND: redis
MEDIA_BACKEND: s3
S3_BUCKET: famfeed-images
FIREBASE_DB_URL: https://famfeed.firebaseio.com
WRITE_MAX_RETRIES: 5
`)
	c, err := ParseFamfeedAppConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(250), c.POLL_INTERVAL_MS)
	assert.Equal(t, CacheBackendRedis, c.CACHE_BACKEND)
	assert.Equal(t, MediaBackendS3, c.MEDIA_BACKEND)
	assert.Equal(t, uint64(5), c.WRITE_MAX_RETRIES)
	// Untouched keys keep their defaults.
	assert.Equal(t, 7, c.MIRROR_KEEP_DAYS)
	assert.Equal(t, "mirror", c.MIRROR_ROOT)
}

func TestParseFamfeedAppConfig_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"no database":   "FIREBASE_BUCKET: b\n",
		"bad cache":     "CACHE_BACKEND: sqlite\nFIREBASE_BUCKET: b\nFIREBASE_DB_URL: u\n",
		"bad media":     "MEDIA_BACKEND: ftp\nFIREBASE_DB_URL: u\n",
		"no bucket":     "FIREBASE_DB_URL: u\n",
		"no s3 bucket":  "MEDIA_BACKEND: s3\nFIREBASE_DB_URL: u\n",
		"zero interval": "POLL_INTERVAL_MS: 0\nFIREBASE_BUCKET: b\nFIREBASE_DB_URL: u\n",
		"not yaml":      "POLL_INTERVAL_MS: [",
	} {
		_, err := ParseFamfeedAppConfig(writeConfig(t, content))
		assert.Error(t, err, name)
	}
}

func TestParseFamfeedAppConfig_MissingFile(t *testing.T) {
	_, err := ParseFamfeedAppConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
