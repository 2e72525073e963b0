package media

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"cubetonic.app/internal/persistence/indexdb"
	"cubetonic.app/internal/protocol"
)

// Recorder receives every resolution attempt. *indexdb.SQLiteIndex
// implements it.
type Recorder interface {
	RecordMedia(rec indexdb.MediaRecord)
}

// Cache resolves media against a local directory where each file is named
// by the lowercase hex sha1 of its content.
type Cache struct {
	dir    string
	rec    Recorder
	logger *log.Logger
}

// NewCache returns a cache rooted at dir. rec may be nil.
func NewCache(dir string, rec Recorder, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Cache{dir: dir, rec: rec, logger: logger}
}

func (c *Cache) Dir() string { return c.dir }

// PathFor maps a base64 sha1 (padding optional) to its cache path.
func (c *Cache) PathFor(sha1b64 string) (string, error) {
	raw, err := protocol.DecodeBase64(sha1b64)
	if err != nil {
		return "", fmt.Errorf("sha1 %q: %w", sha1b64, err)
	}
	if len(raw) != 20 {
		return "", fmt.Errorf("sha1 %q: %d bytes, want 20", sha1b64, len(raw))
	}
	return filepath.Join(c.dir, hex.EncodeToString(raw)), nil
}

// Resolve returns the local path of name when its content is cached.
func (c *Cache) Resolve(name, sha1b64 string) (string, bool) {
	p, err := c.PathFor(sha1b64)
	if err != nil {
		c.logger.Printf("media %s: %v", name, err)
		return "", false
	}
	st, err := os.Stat(p)
	found := err == nil && st.Mode().IsRegular()
	if c.rec != nil {
		c.rec.RecordMedia(indexdb.MediaRecord{
			Name:    name,
			SHA1Hex: filepath.Base(p),
			Path:    p,
			Found:   found,
		})
	}
	if !found {
		return "", false
	}
	return p, true
}

// Manifest is the outcome of resolving a MEDIA_MANIFEST.
type Manifest struct {
	Paths   map[string]string
	Missing []string
	Bytes   int64
}

// ResolveManifest resolves every file. Missing files are listed, not fatal;
// downloading them is not supported.
func (c *Cache) ResolveManifest(files []protocol.MediaFile) Manifest {
	m := Manifest{Paths: make(map[string]string, len(files))}
	for _, f := range files {
		p, ok := c.Resolve(f.Name, f.SHA1)
		if !ok {
			m.Missing = append(m.Missing, f.Name)
			continue
		}
		m.Paths[f.Name] = p
		if st, err := os.Stat(p); err == nil {
			m.Bytes += st.Size()
		}
	}
	return m
}
