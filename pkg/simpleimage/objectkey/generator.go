package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Generator defines the interface for object key generation strategies.
// Every key embeds the image ID so a key is never reused.
type Generator interface {
	GenerateKey(ownerID, imageID, filename string) string
}

// OwnerScopedGenerator lays objects out per owner:
// {owner}/{image_id}/{filename}
type OwnerScopedGenerator struct {
	// Prefix is prepended with a slash when set, e.g. "images"
	Prefix string
}

func NewOwnerScopedGenerator() *OwnerScopedGenerator {
	return &OwnerScopedGenerator{}
}

func (g *OwnerScopedGenerator) GenerateKey(ownerID, imageID, filename string) string {
	key := fmt.Sprintf("%s/%s", sanitizePathComponent(ownerID), imageID)
	if filename != "" {
		key = fmt.Sprintf("%s/%s", key, sanitizeFilename(filename))
	}
	if g.Prefix != "" {
		key = fmt.Sprintf("%s/%s", strings.Trim(g.Prefix, "/"), key)
	}
	return key
}

// ShardedGenerator spreads objects across Git-style shard directories
// derived from a hash of the owner and image ID:
// objects/ab/cd1234ef5678abcd_filename
type ShardedGenerator struct {
	// ShardLength controls how many hex characters name the shard (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{
		ShardLength: 2,
	}
}

func (g *ShardedGenerator) GenerateKey(ownerID, imageID, filename string) string {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(ownerID+"/"+imageID)))

	shard := g.ShardLength
	if shard <= 0 {
		shard = 2
	}
	if shard > 8 {
		shard = 8
	}

	// The image ID keeps keys unique even if two hashes share a prefix.
	name := fmt.Sprintf("%s%s", hash[shard:16], strings.ReplaceAll(imageID, "-", ""))
	if filename != "" {
		name = fmt.Sprintf("%s_%s", name, sanitizeFilename(filename))
	}
	return fmt.Sprintf("objects/%s/%s", hash[:shard], name)
}

// FuncGenerator allows callers to provide their own key function
type FuncGenerator func(ownerID, imageID, filename string) string

func (f FuncGenerator) GenerateKey(ownerID, imageID, filename string) string {
	return f(ownerID, imageID, filename)
}

// ByName returns the generator registered under name: "owner" (default) or
// "sharded".
func ByName(name string) (Generator, error) {
	switch strings.ToLower(name) {
	case "", "owner":
		return NewOwnerScopedGenerator(), nil
	case "sharded":
		return NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key generator %q", name)
	}
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

func sanitizeFilename(filename string) string {
	return unsafeChars.Replace(filename)
}

func sanitizePathComponent(component string) string {
	c := unsafeChars.Replace(component)
	if c == "" || c == "." || c == ".." {
		return "_"
	}
	return c
}
