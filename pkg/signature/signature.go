// Package signature produces canonical operation signatures for request
// deduplication.
//
// Two operations are duplicates when their operation name and logical
// parameters match, regardless of map iteration order or which Go type
// carried the parameters. Canonical serialization goes through a JSON
// round trip into a generic tree, where object keys re-marshal sorted and
// numeric literals are preserved exactly, then the bytes are digested
// with BLAKE3 in keyed mode for domain separation.
package signature

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// sigDomainKey is a 32-byte key for BLAKE3 keyed hashing. The byte values
// are the ASCII encoding of the domain name, zero-padded to 32 bytes, so
// the key is inspectable in hex dumps without sacrificing any property of
// keyed mode.
var sigDomainKey = [32]byte{
	'a', 'u', 't', 'h', 's', 'y', 'n', 'c', '.', 'o', 'p', '.',
	's', 'i', 'g', 'n', 'a', 't', 'u', 'r', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Canonical returns the canonical JSON serialization of v: object keys
// sorted at every depth, numeric literals preserved. Values that encode
// to the same logical JSON document canonicalize to identical bytes.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signature: marshal payload: %w", err)
	}

	// Round trip through a generic tree. encoding/json sorts map keys on
	// marshal, and json.Number keeps 64-bit values exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("signature: normalize payload: %w", err)
	}

	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("signature: marshal canonical form: %w", err)
	}
	return canonical, nil
}

// Of returns the signature for an operation: the operation name, a colon,
// and the hex digest of the canonical parameters. The operation name is
// mixed into the digest as well, so distinct operations with identical
// parameters never share a digest.
func Of(op string, v any) (string, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}

	// NewKeyed requires exactly 32 bytes, which sigDomainKey guarantees.
	hasher, err := blake3.NewKeyed(sigDomainKey[:])
	if err != nil {
		panic("signature: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(op))
	hasher.Write([]byte{0})
	hasher.Write(canonical)

	sum := hasher.Sum(nil)
	return op + ":" + hex.EncodeToString(sum[:16]), nil
}
