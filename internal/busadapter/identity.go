package busadapter

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity reports a request with no usable bearer token.
var ErrNoIdentity = errors.New("no client identity token")

// ClientIdentity is the stable subject string derived from an opaque
// bearer token the bus transport hands the façade. The daemon never
// authenticates this token — that is the transport's job, per the
// spec's Non-goals — it only decodes the claims into a stable key,
// unlike the teacher's auth.VerifyToken which also checks signature,
// audience, issuer and expiry before trusting a token.
type ClientIdentity struct {
	Subject    string
	DeviceName string
}

type identityClaims struct {
	DeviceName string `json:"deviceName"`
	jwt.RegisteredClaims
}

// DecodeClientIdentity parses bearerToken's claims without verifying
// its signature.
func DecodeClientIdentity(bearerToken string) (ClientIdentity, error) {
	bearerToken = strings.TrimPrefix(bearerToken, "Bearer ")
	if bearerToken == "" {
		return ClientIdentity{}, ErrNoIdentity
	}

	claims := &identityClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(bearerToken, claims); err != nil {
		return ClientIdentity{}, err
	}
	if claims.Subject == "" {
		return ClientIdentity{}, ErrNoIdentity
	}
	return ClientIdentity{Subject: claims.Subject, DeviceName: claims.DeviceName}, nil
}

// Key is the string used as the Host File Server's client key: stable
// per caller so a client's file/server bookkeeping in hostfile
// behaves consistently across repeated calls.
func (id ClientIdentity) Key() string {
	if id.Subject == "" {
		return ""
	}
	if id.DeviceName != "" {
		return id.Subject + "/" + id.DeviceName
	}
	return id.Subject
}
