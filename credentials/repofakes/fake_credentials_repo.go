package repofakes

import (
	"sync"

	"github.com/ecotrack-io/go-ecotrack/credentials"
)

var _ credentials.Repo = (*FakeCredentialsRepo)(nil)

// FakeCredentialsRepo is an in-memory credentials.Repo for tests.
type FakeCredentialsRepo struct {
	values map[credentials.Key]string
	lock   sync.RWMutex
}

func NewFakeCredentialsRepo() *FakeCredentialsRepo {
	return &FakeCredentialsRepo{
		values: make(map[credentials.Key]string),
	}
}

func (r *FakeCredentialsRepo) Set(key credentials.Key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values[key] = value
	return nil
}

func (r *FakeCredentialsRepo) Get(key credentials.Key) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.values[key], nil
}

func (r *FakeCredentialsRepo) Delete(key credentials.Key) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.values, key)
	return nil
}

func (r *FakeCredentialsRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.values = make(map[credentials.Key]string)
	return nil
}

// Len reports how many keys are currently stored.
func (r *FakeCredentialsRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}
