package presigned

import (
	"strings"
	"time"
)

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
// The key should be at least 32 bytes
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithBaseURL prefixes signed URLs with scheme and host,
// e.g. "https://img.example.com"
func WithBaseURL(baseURL string) Option {
	return func(s *Signer) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithPathPrefix sets the path the download handler is mounted under
func WithPathPrefix(prefix string) Option {
	return func(s *Signer) {
		if prefix == "" {
			return
		}
		s.pathPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}
