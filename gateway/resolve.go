package gateway

import (
	"strings"

	"github.com/ipfs/go-cid"
)

// Scheme is the content-identifier prefix stripped by Resolve.
const Scheme = "ipfs://"

// DefaultBase is the gateway path content identifiers are appended to.
const DefaultBase = "https://gateway.pinata.cloud/ipfs/"

// Resolve maps a content-identifier URI to a fetchable gateway URL.
//
// The literal Scheme prefix is removed when present and the remainder is
// trimmed of surrounding whitespace. Identifiers without the prefix are
// accepted as bare identifiers. The remainder is not validated; a malformed
// identifier surfaces as a fetch error.
func Resolve(base, uri string) string {
	if base == "" {
		base = DefaultBase
	}
	return base + Identifier(uri)
}

// Identifier returns the trimmed identifier part of uri.
func Identifier(uri string) string {
	return strings.TrimSpace(strings.TrimPrefix(uri, Scheme))
}

// Pointer is a parsed content-identifier URI.
type Pointer struct {
	// Identifier is the trimmed identifier, possibly with a path ("<cid>/meta.json").
	Identifier string
	// CID is the decoded root CID, or cid.Undef when the first segment is not a CID.
	CID cid.Cid
	// Path is whatever follows the root CID, without the leading slash.
	Path string
}

// ParsePointer splits uri into its root CID and path. It never fails; an
// undecodable root leaves CID undefined.
func ParsePointer(uri string) Pointer {
	p := Pointer{Identifier: Identifier(uri)}
	root, rest, _ := strings.Cut(p.Identifier, "/")
	p.Path = rest
	if id, err := cid.Decode(root); err == nil {
		p.CID = id
	}
	return p
}

// Block reports whether the pointer addresses a single raw block whose bytes
// are exactly what the gateway returns.
func (p Pointer) Block() bool {
	return p.CID.Defined() && p.CID.Type() == cid.Raw && p.Path == ""
}
