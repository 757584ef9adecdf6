package presigned

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

// DefaultPathPrefix is where the download handler is mounted unless
// WithPathPrefix overrides it.
const DefaultPathPrefix = "/blobs"

// Query parameters carried by a signed URL
const (
	paramSignature   = "signature"
	paramExpires     = "expires"
	paramDisposition = "disposition"
	paramFilename    = "filename"
)

// Signing and validation failures. The download handler maps each to a status.
var (
	ErrNoSecretKey       = errors.New("presigned: signing key not set")
	ErrMissingSignature  = errors.New("presigned: signature missing from URL")
	ErrMissingExpiration = errors.New("presigned: expiry missing from URL")
	ErrInvalidExpiration = errors.New("presigned: expiry is not a unix timestamp")
	ErrExpired           = errors.New("presigned: download URL expired")
	ErrInvalidSignature  = errors.New("presigned: signature does not match")
)

// Signer generates and validates HMAC-signed download URLs for objects
// held in a blob store that cannot sign URLs itself.
type Signer struct {
	secretKey  []byte
	baseURL    string
	pathPrefix string
	now        func() time.Time
}

var _ simpleimage.URLSigner = (*Signer)(nil)

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		pathPrefix: DefaultPathPrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// PathPrefix returns the path the download handler is expected under
func (s *Signer) PathPrefix() string {
	return s.pathPrefix
}

// SignGetURL returns a URL for key that the Handler accepts until ttl
// elapses.
//
// Example:
//
//	url, _ := signer.SignGetURL(ctx, "u1/0b6c.../cat.png", time.Hour, simpleimage.SignOptions{})
//	// https://img.example.com/blobs/u1/0b6c.../cat.png?disposition=inline&expires=1709294400&signature=...
func (s *Signer) SignGetURL(ctx context.Context, key string, ttl time.Duration, opts simpleimage.SignOptions) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}
	if key == "" {
		return "", fmt.Errorf("presigned: object key is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("presigned: ttl must be positive")
	}

	expiresAt := s.now().Add(ttl).Unix()

	query := url.Values{}
	if opts.Attachment {
		query.Set(paramDisposition, "attachment")
		if opts.Filename != "" {
			query.Set(paramFilename, opts.Filename)
		}
	} else {
		query.Set(paramDisposition, "inline")
	}

	path := s.pathPrefix + "/" + escapeKey(key)
	signature := s.generateSignature(createPayload(http.MethodGet, path, query, expiresAt))

	query.Set(paramExpires, strconv.FormatInt(expiresAt, 10))
	query.Set(paramSignature, signature)
	return s.baseURL + path + "?" + query.Encode(), nil
}

// ValidateRequest checks the signature and expiry carried by r
func (s *Signer) ValidateRequest(r *http.Request) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}

	query := r.URL.Query()
	signature := query.Get(paramSignature)
	expiresStr := query.Get(paramExpires)
	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	signed := url.Values{}
	for k, v := range query {
		if k != paramSignature && k != paramExpires {
			signed[k] = v
		}
	}
	path := r.URL.EscapedPath()
	return s.Validate(r.Method, path, signed, signature, expiresAt)
}

// Validate checks signature against the payload rebuilt from its parts
func (s *Signer) Validate(method, path string, query url.Values, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	expected := s.generateSignature(createPayload(method, path, query, expiresAt))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ExtractObjectKey returns the object key addressed by a request path
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	prefix := s.pathPrefix + "/"
	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path does not match prefix %s", s.pathPrefix)
	}
	key := strings.TrimPrefix(path, prefix)
	if key == "" {
		return "", fmt.Errorf("path has no object key")
	}
	return key, nil
}

// createPayload builds METHOD|PATH?QUERY|EXPIRES. url.Values.Encode sorts
// by key so both sides agree on the query text.
func createPayload(method, path string, query url.Values, expiresAt int64) string {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// escapeKey escapes each path segment so the signed path matches what the
// server sees in URL.EscapedPath.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
