// Package mimeguess guesses a content type for a hosted file, the Go
// counterpart of host-service.c's g_content_type_guess call.
package mimeguess

import (
	"github.com/gabriel-vasile/mimetype"
)

// Guesser resolves a MIME type for a local file path. It is kept
// narrow so the Host File Server never imports mimetype directly.
type Guesser interface {
	Guess(path string) (string, error)
}

// SniffingGuesser content-sniffs the file's leading bytes with
// gabriel-vasile/mimetype. The file's extension is not consulted;
// inconclusive sniffing yields a generic type such as
// "application/octet-stream".
type SniffingGuesser struct{}

// NewSniffingGuesser returns the default Guesser.
func NewSniffingGuesser() SniffingGuesser {
	return SniffingGuesser{}
}

// Guess returns the detected MIME type string, or an error if the
// file cannot be read. A generic "application/octet-stream" result
// from mimetype is still a valid guess, not a BadMime condition — only
// a read failure is.
func (SniffingGuesser) Guess(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}
