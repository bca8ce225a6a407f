package hostfile

import (
	"sync"

	"github.com/rendererserviceupnp/rendererserviceupnp/internal/mimeguess"
)

// Service is the Go analogue of rsu_host_service_t: a map from
// interface IP to server, created on demand and torn down when empty.
type Service struct {
	mu      sync.Mutex
	servers map[string]*server
	guesser mimeguess.Guesser
}

// NewService constructs an empty Host Service.
func NewService(guesser mimeguess.Guesser) *Service {
	return &Service{
		servers: make(map[string]*server),
		guesser: guesser,
	}
}

// Add hosts file on interfaceIP for client, creating the per-interface
// server on first use. Returns the URL a renderer on that interface
// can fetch the file from.
func (s *Service) Add(interfaceIP, client, filePath string) (string, error) {
	s.mu.Lock()
	srv, ok := s.servers[interfaceIP]
	if !ok {
		var err error
		srv, err = newServer(interfaceIP, s.guesser)
		if err != nil {
			s.mu.Unlock()
			return "", err
		}
		s.servers[interfaceIP] = srv
	}
	s.mu.Unlock()

	return srv.addFile(client, filePath)
}

// Remove drops client's hold on filePath, cascading removal of the
// file and, if the server's catalog becomes empty, the server itself.
// Reports false if the server, file, or client registration wasn't
// found.
func (s *Service) Remove(interfaceIP, client, filePath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[interfaceIP]
	if !ok {
		return false
	}

	removed, empty := srv.removeFile(client, filePath)
	if empty {
		srv.close()
		delete(s.servers, interfaceIP)
	}
	return removed
}

// LostClient sweeps every server for client, cascading removal the
// same way Remove does, for every file client held anywhere.
func (s *Service) LostClient(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, srv := range s.servers {
		if srv.lostClient(client) {
			srv.close()
			delete(s.servers, ip)
		}
	}
}

// Delete tears every server down.
func (s *Service) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ip, srv := range s.servers {
		srv.close()
		delete(s.servers, ip)
	}
}

// ServerCount reports the number of active per-interface servers, for
// tests asserting cascading teardown.
func (s *Service) ServerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.servers)
}
