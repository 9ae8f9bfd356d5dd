package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Luismorlan/famfeed/model"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const slotFileExt = ".json"

// FileStore keeps each slot as a JSON file in dir. Writes land in a temp file
// first and are renamed into place, so a crash never leaves a torn slot.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "fail to create cache dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) SaveUser(ctx context.Context, u *model.User) error {
	data, err := model.MarshalUser(u)
	if err != nil {
		return errors.Wrap(err, "fail to encode user")
	}
	return s.write(userSlot, data)
}

func (s *FileStore) LoadUser(ctx context.Context) (*model.User, error) {
	data, err := s.read(userSlot)
	if err != nil || data == nil {
		return nil, err
	}
	u, ok := model.UnmarshalUser(data)
	if !ok {
		Logger.Log.WithFields(logrus.Fields{"slot": userSlot}).Warn("discarding undecodable cache slot")
		return nil, nil
	}
	return u, nil
}

func (s *FileStore) RemoveUser(ctx context.Context) error {
	return s.remove(userSlot)
}

func (s *FileStore) SaveGroup(ctx context.Context, g *model.Group) error {
	data, err := model.MarshalGroup(g)
	if err != nil {
		return errors.Wrap(err, "fail to encode group")
	}
	return s.write(groupSlot, data)
}

func (s *FileStore) LoadGroup(ctx context.Context) (*model.Group, error) {
	data, err := s.read(groupSlot)
	if err != nil || data == nil {
		return nil, err
	}
	g, ok := model.UnmarshalGroup(data)
	if !ok {
		Logger.Log.WithFields(logrus.Fields{"slot": groupSlot}).Warn("discarding undecodable cache slot")
		return nil, nil
	}
	return g, nil
}

func (s *FileStore) RemoveGroup(ctx context.Context) error {
	return s.remove(groupSlot)
}

func (s *FileStore) slotPath(slot string) string {
	return filepath.Join(s.dir, slot+slotFileExt)
}

func (s *FileStore) write(slot string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+slot+"-*")
	if err != nil {
		return errors.Wrapf(err, "fail to create temp file for %s", slot)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "fail to write %s", slot)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "fail to sync %s", slot)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "fail to close %s", slot)
	}
	return errors.Wrapf(os.Rename(tmpName, s.slotPath(slot)), "fail to commit %s", slot)
}

func (s *FileStore) read(slot string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.slotPath(slot))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fail to read %s", slot)
	}
	return data, nil
}

func (s *FileStore) remove(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.slotPath(slot))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "fail to remove %s", slot)
	}
	return nil
}
