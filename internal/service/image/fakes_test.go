package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/aliskhannn/image-storage/internal/model"
	imagerepo "github.com/aliskhannn/image-storage/internal/repository/image"
	"github.com/aliskhannn/image-storage/internal/storage/file"
)

// journal records the order of side effects across fakes.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type storedObject struct {
	data        []byte
	contentType string
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]storedObject
	journal   *journal
	putErr    error
	deleteErr error
	existsErr error
}

func newFakeStore(j *journal) *fakeStore {
	return &fakeStore{objects: map[string]storedObject{}, journal: j}
}

func objectID(container, key string) string { return container + "/" + key }

func (f *fakeStore) Put(_ context.Context, container, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[objectID(container, key)] = storedObject{data: data, contentType: contentType}
	f.journal.add("put " + objectID(container, key))
	return nil
}

func (f *fakeStore) Delete(_ context.Context, container, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, objectID(container, key))
	f.journal.add("delete object " + objectID(container, key))
	return nil
}

func (f *fakeStore) Exists(_ context.Context, container, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.objects[objectID(container, key)]
	return ok, nil
}

func (f *fakeStore) Get(_ context.Context, container, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[objectID(container, key)]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, file.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (f *fakeStore) get(container, key string) (storedObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.objects[objectID(container, key)]
	return o, ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeRecords struct {
	mu        sync.Mutex
	nextID    int64
	rows      map[int64]model.Image
	journal   *journal
	createErr error
	deleteErr error
	getErr    error
}

func newFakeRecords(j *journal) *fakeRecords {
	return &fakeRecords{rows: map[int64]model.Image{}, journal: j}
}

func (f *fakeRecords) Create(_ context.Context, container, key string) (model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.Image{}, f.createErr
	}
	for _, r := range f.rows {
		if r.Key == key {
			return model.Image{}, errors.New("duplicate key value violates unique constraint")
		}
	}
	f.nextID++
	img := model.Image{ID: f.nextID, Container: container, Key: key, CreatedAt: time.Now()}
	f.rows[img.ID] = img
	f.journal.add("insert record " + objectID(container, key))
	return img, nil
}

func (f *fakeRecords) GetByID(_ context.Context, id int64) (model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return model.Image{}, f.getErr
	}
	img, ok := f.rows[id]
	if !ok {
		return model.Image{}, imagerepo.ErrImageNotFound
	}
	return img, nil
}

func (f *fakeRecords) GetByKey(_ context.Context, key string) (model.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return model.Image{}, f.getErr
	}
	for _, r := range f.rows {
		if r.Key == key {
			return r, nil
		}
	}
	return model.Image{}, imagerepo.ErrImageNotFound
}

func (f *fakeRecords) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	img, ok := f.rows[id]
	if !ok {
		return imagerepo.ErrImageNotFound
	}
	delete(f.rows, id)
	f.journal.add("delete record " + objectID(img.Container, img.Key))
	return nil
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeSigner struct {
	err error
}

func (f *fakeSigner) Sign(_ context.Context, container, key string, ttl time.Duration) (*url.URL, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &url.URL{Scheme: "https", Host: "cdn.test", Path: "/" + container + "/" + key,
		RawQuery: url.Values{"ttl": {ttl.String()}}.Encode()}, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	orphans []model.Orphan
	err     error
}

func (f *fakeReporter) ReportOrphan(_ context.Context, o model.Orphan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans = append(f.orphans, o)
	return f.err
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	orphans  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{outcomes: map[string]int{}, orphans: map[string]int{}}
}

func (f *fakeMetrics) Observe(domain, operation, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[domain+" "+operation+" "+outcome]++
}

func (f *fakeMetrics) Orphan(domain, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans[domain+" "+reason]++
}
