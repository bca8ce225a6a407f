// Package hostfile implements the Host File Server: one HTTP origin
// server per bound network interface serving a small catalog of
// hosted local files to UPnP renderers, reference-counted across
// concurrent clients and in-flight responses.
package hostfile

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const hostServiceRoot = "/rendererserviceupnp"

// File is a single hosted file: its source path, guessed MIME type,
// the set of bus clients that asked for it to be hosted, and its
// reference-counted in-memory mapping.
//
// Go has no equivalent of GMappedFile that's worth reaching for here;
// mappedData plays the same role (valid memory while mappedCount>0,
// released at zero) using a plain byte slice read once and shared by
// reference across concurrent responses.
type File struct {
	ID      uint64
	Path    string // absolute source path
	MIME    string
	URLPath string // e.g. /rendererserviceupnp/3.png

	mu          sync.Mutex
	clients     map[string]struct{}
	mappedData  []byte
	mappedCount int
}

func newFile(path string, id uint64, mime string) *File {
	ext := filepath.Ext(path)
	return &File{
		ID:      id,
		Path:    path,
		MIME:    mime,
		URLPath: hostServiceRoot + "/" + strconv.FormatUint(id, 10) + ext,
		clients: make(map[string]struct{}),
	}
}

func (f *File) addClient(client string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[client] = struct{}{}
}

// removeClient removes client from the set and reports whether the
// client was present. Matches set semantics: a duplicate add is a
// no-op and removing an absent client is reported as false.
func (f *File) removeClient(client string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[client]; !ok {
		return false
	}
	delete(f.clients, client)
	return true
}

func (f *File) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// acquire returns the mapped bytes, reading the source file on first
// reference and incrementing the reference count on every call after.
func (f *File) acquire() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mappedCount > 0 {
		f.mappedCount++
		return f.mappedData, nil
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	f.mappedData = data
	f.mappedCount = 1
	return data, nil
}

// release decrements the reference count, freeing the mapped bytes at
// zero. Installed as the HTTP response's "finished" hook.
func (f *File) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mappedCount == 0 {
		return
	}
	f.mappedCount--
	if f.mappedCount == 0 {
		f.mappedData = nil
	}
}

// mappedCountForTest exposes the reference count for white-box tests.
func (f *File) mappedCountForTest() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mappedCount
}
