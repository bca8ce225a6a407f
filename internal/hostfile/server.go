package hostfile

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/apperrors"
	"github.com/rendererserviceupnp/rendererserviceupnp/internal/mimeguess"
)

// server is one per-interface HTTP origin, the Go analogue of
// rsu_host_server_t. It binds to an ephemeral port on the given
// interface and serves every File registered under files.
type server struct {
	interfaceIP string
	mu          sync.RWMutex
	files       map[string]*File // keyed by source path
	counter     uint64

	listener net.Listener
	port     int
	http     *http.Server
	guesser  mimeguess.Guesser
}

func newServer(interfaceIP string, guesser mimeguess.Guesser) (*server, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(interfaceIP, "0"))
	if err != nil {
		return nil, apperrors.NewHostFailed("unable to bind host server on " + interfaceIP + ": " + err.Error())
	}

	port := listener.Addr().(*net.TCPAddr).Port
	s := &server{
		interfaceIP: interfaceIP,
		files:       make(map[string]*File),
		listener:    listener,
		port:        port,
		guesser:     guesser,
	}

	// Registered against every method, not just GET: non-GET requests
	// must reach serveFile so it can answer 501, matching the original
	// prv_soup_server_cb rather than chi's default 405.
	router := chi.NewRouter()
	router.HandleFunc(hostServiceRoot+"/*", s.serveFile)
	s.http = &http.Server{Handler: router}

	go func() {
		_ = s.http.Serve(listener)
	}()

	return s, nil
}

// serveFile is the Go analogue of prv_soup_server_cb: GET-only,
// exact-path lookup, reference-counted mapping, response-finished
// release.
func (s *server) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	f := s.findByURLPath(r.URL.Path)
	if f == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, err := f.acquire()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.release()

	w.Header().Set("Content-Type", f.MIME)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *server) findByURLPath(urlPath string) *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.URLPath == urlPath {
			return f
		}
	}
	return nil
}

// addFile creates or reuses the File for path and registers client on
// it, returning the externally reachable URL.
func (s *server) addFile(client, path string) (string, error) {
	s.mu.Lock()
	f, ok := s.files[path]
	if !ok {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			s.mu.Unlock()
			return "", apperrors.NewObjectNotFound("file does not exist or is not a regular file: "+path, nil)
		}

		mime, err := s.guesser.Guess(path)
		if err != nil || mime == "" {
			s.mu.Unlock()
			return "", apperrors.NewBadMime("unable to determine content type for " + path)
		}

		f = newFile(path, s.counter, mime)
		s.counter++
		s.files[path] = f
	}
	s.mu.Unlock()

	f.addClient(client)
	return "http://" + net.JoinHostPort(s.interfaceIP, strconv.Itoa(s.port)) + f.URLPath, nil
}

// removeFile removes client from path's File, cascading removal of
// the File when its client set becomes empty. Returns whether the
// client was actually registered, and whether the server's file set
// is now empty (so the caller can tear the server down).
func (s *server) removeFile(client, path string) (removed bool, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		return false, len(s.files) == 0
	}

	if !f.removeClient(client) {
		return false, len(s.files) == 0
	}

	if f.clientCount() == 0 {
		delete(s.files, path)
	}

	return true, len(s.files) == 0
}

// lostClient sweeps every File on this server, removing client from
// each, cascading as removeFile does. Returns whether the server's
// file set is now empty.
func (s *server) lostClient(client string) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, f := range s.files {
		if !f.removeClient(client) {
			continue
		}
		if f.clientCount() == 0 {
			delete(s.files, path)
		}
	}
	return len(s.files) == 0
}

func (s *server) close() {
	_ = s.http.Shutdown(context.Background())
}
