package domain

import (
	"fmt"
	"io"
	"sync"
)

// StreamKind enumerates the sources a stream handle can point at.
type StreamKind string

const (
	// StreamFs reads from a file system path.
	StreamFs StreamKind = "fs"

	// StreamCas reads from content-addressed storage by key.
	StreamCas StreamKind = "cas"
)

// StreamHandle is an opaque, copyable reference to byte content. It is
// materialized at most once per use by the layer that serves it, through
// the process-global resolver.
type StreamHandle struct {
	Kind StreamKind
	Path string
	Key  string
}

// FsStream returns a handle backed by a file path.
func FsStream(path string) StreamHandle {
	return StreamHandle{Kind: StreamFs, Path: path}
}

// CasStream returns a handle backed by a content-addressed key.
func CasStream(key string) StreamHandle {
	return StreamHandle{Kind: StreamCas, Key: key}
}

// StreamResolver converts handles into readable streams.
type StreamResolver interface {
	Resolve(h StreamHandle) (io.ReadCloser, error)
}

var (
	resolverMu sync.RWMutex
	resolver   StreamResolver
)

// SetStreamResolver installs the process-global resolver. It is called
// exactly once at startup; a second call errors.
func SetStreamResolver(r StreamResolver) error {
	resolverMu.Lock()
	defer resolverMu.Unlock()
	if resolver != nil {
		return fmt.Errorf("installing stream resolver: already set")
	}
	resolver = r
	return nil
}

// Open materializes the handle into a byte stream via the installed
// resolver.
func (h StreamHandle) Open() (io.ReadCloser, error) {
	resolverMu.RLock()
	r := resolver
	resolverMu.RUnlock()
	if r == nil {
		return nil, ErrResolverUnset
	}
	return r.Resolve(h)
}

// resetStreamResolver clears the global slot. Tests only.
func resetStreamResolver() {
	resolverMu.Lock()
	resolver = nil
	resolverMu.Unlock()
}
