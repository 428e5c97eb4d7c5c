package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Repo = (*FileRepo)(nil)

// FileRepo persists credentials as a single JSON document on disk so they
// survive process restarts. Every mutation rewrites the whole document via
// a temp file and rename, which keeps Clear atomic as observed by readers.
type FileRepo struct {
	path string
	lock sync.Mutex
}

// NewFileRepo creates a FileRepo backed by the file at path, creating the
// parent directory if needed. The file itself is created lazily on the
// first Set.
func NewFileRepo(path string) (*FileRepo, error) {
	if path == "" {
		return nil, errors.New("[NewFileRepo] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileRepo] create parent directory")
	}
	return &FileRepo{path: path}, nil
}

// Path returns the location of the backing file.
func (r *FileRepo) Path() string {
	return r.path
}

func (r *FileRepo) Set(key Key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	values, err := r.load()
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Set] load")
	}
	values[string(key)] = value
	return errors.Wrap(r.save(values), "[FileRepo.Set] save")
}

func (r *FileRepo) Get(key Key) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	values, err := r.load()
	if err != nil {
		return "", errors.Wrap(err, "[FileRepo.Get] load")
	}
	return values[string(key)], nil
}

func (r *FileRepo) Delete(key Key) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	values, err := r.load()
	if err != nil {
		return errors.Wrap(err, "[FileRepo.Delete] load")
	}
	if _, ok := values[string(key)]; !ok {
		return nil
	}
	delete(values, string(key))
	return errors.Wrap(r.save(values), "[FileRepo.Delete] save")
}

func (r *FileRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	return errors.Wrap(r.save(map[string]string{}), "[FileRepo.Clear] save")
}

func (r *FileRepo) load() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		// A corrupt store reads as empty rather than wedging the client.
		return map[string]string{}, nil
	}
	return values, nil
}

func (r *FileRepo) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}
