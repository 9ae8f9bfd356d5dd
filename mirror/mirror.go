package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/Luismorlan/famfeed/model"
)

const (
	imageExt = ".jpg"
	// Files starting with this prefix are in-flight writes and never count as
	// mirrored images.
	tmpPrefix = "."

	DefaultFetchTimeout = 30 * time.Second
	maxImageBytes       = 32 << 20
)

// Fetcher downloads the bytes behind an image URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "bad image url %s", url)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to download %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fail to download %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// LocalMirror is the widget's copy of recent images, in a directory both
// processes can read: <root>/<dateKey>/<unixMillis>-<postId>.jpg.
//
// A post is mirrored at most once per date folder; concurrent saves of the
// same post share a single download.
type LocalMirror struct {
	root    string
	fetcher Fetcher
	now     func() time.Time
	flight  singleflight.Group
}

func NewLocalMirror(root string, fetcher Fetcher) (*LocalMirror, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, errors.Wrapf(err, "fail to create mirror root %s", root)
	}
	return &LocalMirror{root: root, fetcher: fetcher, now: time.Now}, nil
}

func (m *LocalMirror) Root() string {
	return m.root
}

// SaveFromURL mirrors the image behind url unless the post is already there.
func (m *LocalMirror) SaveFromURL(ctx context.Context, day model.DateKey, postID, url string) error {
	return m.save(day, postID, func() ([]byte, error) {
		return m.fetcher.Fetch(ctx, url)
	})
}

// SaveBytes mirrors data the caller already holds.
func (m *LocalMirror) SaveBytes(ctx context.Context, day model.DateKey, postID string, data []byte) error {
	return m.save(day, postID, func() ([]byte, error) {
		return data, nil
	})
}

func (m *LocalMirror) save(day model.DateKey, postID string, load func() ([]byte, error)) error {
	if err := validate(day, postID); err != nil {
		return err
	}
	_, err, _ := m.flight.Do(string(day)+"/"+postID, func() (interface{}, error) {
		dir := m.dayDir(day)
		found, err := matching(dir, postID)
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return nil, nil
		}

		data, err := load()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "fail to create %s", dir)
		}
		name := strconv.FormatInt(m.now().UnixMilli(), 10) + "-" + postID + imageExt
		return nil, writeAtomic(dir, name, data)
	})
	return err
}

// Delete removes every mirrored file of postID in the day's folder.
func (m *LocalMirror) Delete(day model.DateKey, postID string) error {
	if err := validate(day, postID); err != nil {
		return err
	}
	dir := m.dayDir(day)
	found, err := matching(dir, postID)
	if err != nil {
		return err
	}
	for _, name := range found {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "fail to remove %s", name)
		}
	}
	return nil
}

// Latest returns the newest mirrored image: the latest date folder, then the
// largest timestamp prefix inside it.
func (m *LocalMirror) Latest() (string, bool, error) {
	days, err := m.days()
	if err != nil {
		return "", false, err
	}
	for i := len(days) - 1; i >= 0; i-- {
		dir := m.dayDir(days[i])
		names, err := images(dir)
		if err != nil {
			return "", false, err
		}
		if len(names) == 0 {
			continue
		}
		sort.Slice(names, func(a, b int) bool {
			return stamp(names[a]) < stamp(names[b])
		})
		return filepath.Join(dir, names[len(names)-1]), true, nil
	}
	return "", false, nil
}

// PruneBefore removes date folders strictly older than day.
func (m *LocalMirror) PruneBefore(day model.DateKey) error {
	days, err := m.days()
	if err != nil {
		return err
	}
	for _, d := range days {
		if d >= day {
			break
		}
		if err := os.RemoveAll(m.dayDir(d)); err != nil {
			return errors.Wrapf(err, "fail to prune %s", d)
		}
	}
	return nil
}

// Files lists the mirrored file names of a day.
func (m *LocalMirror) Files(day model.DateKey) ([]string, error) {
	return images(m.dayDir(day))
}

func (m *LocalMirror) dayDir(day model.DateKey) string {
	return filepath.Join(m.root, string(day))
}

// days returns the valid date folders, oldest first.
func (m *LocalMirror) days() ([]model.DateKey, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to list %s", m.root)
	}
	days := []model.DateKey{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if d, ok := model.ParseDateKey(e.Name()); ok {
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

func validate(day model.DateKey, postID string) error {
	if !day.IsValid() {
		return fmt.Errorf("invalid date key %q", day)
	}
	if postID == "" || strings.ContainsAny(postID, `/\`) || strings.HasPrefix(postID, tmpPrefix) {
		return fmt.Errorf("invalid post id %q", postID)
	}
	return nil
}

func images(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fail to list %s", dir)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func matching(dir, postID string) ([]string, error) {
	names, err := images(dir)
	if err != nil {
		return nil, err
	}
	found := []string{}
	for _, n := range names {
		if strings.Contains(n, postID) {
			found = append(found, n)
		}
	}
	return found, nil
}

func stamp(name string) int64 {
	prefix := strings.SplitN(name, "-", 2)[0]
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tmpPrefix+"mirror-*")
	if err != nil {
		return errors.Wrap(err, "fail to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "fail to write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "fail to close %s", name)
	}
	// Readable by the widget process.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "fail to chmod %s", name)
	}
	return errors.Wrapf(os.Rename(tmpName, filepath.Join(dir, name)), "fail to commit %s", name)
}
