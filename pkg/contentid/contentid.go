// Package contentid derives stable graph node identifiers from content.
//
// ID Format: <type:2>-<base62_digest:12> (15 chars total including dash)
//
// Node Types:
//   - dc = document
//   - pg = paragraph
//
// IDs are deterministic: the digest component is a truncated SHA-256 of the
// identifying content, so re-ingesting the same document produces the same
// node IDs and writes merge idempotently instead of duplicating the graph.
// The base62 alphabet keeps IDs free of the "|" separator edge keys use.
package contentid

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// Node type constants
const (
	TypeDocument  = "dc"
	TypeParagraph = "pg"
)

// base62 alphabet: 0-9, a-z, A-Z
const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// digestLen is the number of base62 characters kept from the hash.
const digestLen = 12

var validTypes = map[string]bool{
	TypeDocument:  true,
	TypeParagraph: true,
}

// Errors
var (
	ErrInvalidFormat = errors.New("invalid content ID format")
	ErrInvalidType   = errors.New("invalid content type")
)

// ContentID represents a parsed content identifier.
type ContentID struct {
	Type   string // Node type prefix (dc, pg)
	Digest string // Base62 encoded content digest (12 chars)
	Raw    string // Original ID string
}

// String returns the string representation of the ContentID.
func (c ContentID) String() string {
	return c.Raw
}

// ForDocument derives the document node ID from its title and body. Two
// documents with identical title and body are the same document.
func ForDocument(title, body string) string {
	return derive(TypeDocument, title+"\x00"+body)
}

// ForParagraph derives a paragraph node ID from its owning document ID and
// zero-based position within the document.
func ForParagraph(docID string, index int) string {
	return derive(TypeParagraph, docID+"\x00"+strconv.Itoa(index))
}

// derive hashes the identifying content and renders a typed ID.
func derive(nodeType, content string) string {
	if !validTypes[nodeType] {
		panic(fmt.Sprintf("contentid: invalid node type: %q", nodeType))
	}
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%s", nodeType, encodeBase62(sum[:], digestLen))
}

// Parse validates and parses a content ID string.
// Returns an error if the ID format is invalid or the type is unknown.
func Parse(id string) (ContentID, error) {
	if len(id) != digestLen+3 {
		return ContentID{}, fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidFormat, digestLen+3, len(id))
	}

	if id[2] != '-' {
		return ContentID{}, fmt.Errorf("%w: missing dash at position 2", ErrInvalidFormat)
	}

	prefix := id[:2]
	if !validTypes[prefix] {
		return ContentID{}, fmt.Errorf("%w: unknown type %q", ErrInvalidType, prefix)
	}

	suffix := id[3:]
	if !isValidBase62(suffix) {
		return ContentID{}, fmt.Errorf("%w: digest contains invalid characters", ErrInvalidFormat)
	}

	return ContentID{
		Type:   prefix,
		Digest: suffix,
		Raw:    id,
	}, nil
}

// IsValid checks if a string is a valid content ID.
// This is a convenience function for quick validation without parsing.
func IsValid(id string) bool {
	_, err := Parse(id)
	return err == nil
}

// TypeFromID extracts the node type from an ID string.
// Returns empty string if the ID is invalid.
func TypeFromID(id string) string {
	if _, err := Parse(id); err != nil {
		return ""
	}
	return id[:2]
}

// ValidTypes returns a slice of all valid node type prefixes.
func ValidTypes() []string {
	return []string{TypeDocument, TypeParagraph}
}

// IsValidType checks if the given string is a valid node type prefix.
func IsValidType(typ string) bool {
	return validTypes[typ]
}

// encodeBase62 renders the first 8 bytes of the digest as a fixed-length
// base62 string.
func encodeBase62(digest []byte, length int) string {
	n := binary.BigEndian.Uint64(digest[:8])
	result := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		result[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(result)
}

// isValidBase62 checks if a string contains only base62 characters.
func isValidBase62(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}
