package mesh

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Buffers identifies uploaded vertex and index data.
type Buffers struct {
	ID          uint64
	VertexBytes int
	IndexBytes  int
}

// Uploader hands packed geometry to the GPU. It is called concurrently from
// every worker.
type Uploader interface {
	Upload(vertices, indices []byte) (Buffers, error)
}

// Releaser frees buffers that are no longer rendered.
type Releaser interface {
	Release(b Buffers)
}

var ErrEmptyUpload = errors.New("empty upload")

// MemoryUploader keeps uploads in process memory. It stands in for a GPU
// device in headless runs, replays and tests.
type MemoryUploader struct {
	next atomic.Uint64

	mu    sync.Mutex
	live  map[uint64]int
	bytes int64
	total uint64
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{live: map[uint64]int{}}
}

func (u *MemoryUploader) Upload(vertices, indices []byte) (Buffers, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return Buffers{}, ErrEmptyUpload
	}
	b := Buffers{ID: u.next.Add(1), VertexBytes: len(vertices), IndexBytes: len(indices)}
	u.mu.Lock()
	u.live[b.ID] = b.VertexBytes + b.IndexBytes
	u.bytes += int64(b.VertexBytes + b.IndexBytes)
	u.total++
	u.mu.Unlock()
	return b, nil
}

func (u *MemoryUploader) Release(b Buffers) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n, ok := u.live[b.ID]; ok {
		delete(u.live, b.ID)
		u.bytes -= int64(n)
	}
}

// Live returns the number of unreleased buffers and their total size.
func (u *MemoryUploader) Live() (count int, bytes int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.live), u.bytes
}

// Uploads returns the number of successful uploads so far.
func (u *MemoryUploader) Uploads() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}
