package simpleimage

import (
	"context"
	"fmt"
	"time"
)

// AccessDescriptorGenerator turns an object key into a time-limited URL.
// It holds no state beyond the signer and clock, and every call signs anew
// so expiry is measured from the request.
type AccessDescriptorGenerator struct {
	signer URLSigner
	now    func() time.Time
}

// NewAccessDescriptorGenerator wraps signer. A nil clock uses time.Now.
func NewAccessDescriptorGenerator(signer URLSigner, now func() time.Time) *AccessDescriptorGenerator {
	if now == nil {
		now = time.Now
	}
	return &AccessDescriptorGenerator{signer: signer, now: now}
}

// Generate signs a GET URL for objectKey valid for ttl. A non-empty
// filename requests an attachment disposition.
func (g *AccessDescriptorGenerator) Generate(ctx context.Context, objectKey string, ttl time.Duration, filename string) (*AccessDescriptor, error) {
	if g == nil || g.signer == nil {
		return nil, ErrSigningUnavailable
	}
	if ttl <= 0 {
		return nil, &ValidationError{Field: "expires", Reason: "must be positive"}
	}
	issued := g.now().UTC()
	url, err := g.signer.SignGetURL(ctx, objectKey, ttl, SignOptions{
		Filename:   filename,
		Attachment: filename != "",
	})
	if err != nil {
		return nil, fmt.Errorf("sign url for %s: %w", objectKey, err)
	}
	return &AccessDescriptor{
		URL:       url,
		ExpiresAt: issued.Add(ttl),
	}, nil
}
