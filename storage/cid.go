package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// ComputeContentID returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeContentID(data []byte) (interfaces.ContentID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return interfaces.ContentID(cid.NewCidV1(cid.Raw, mh).String()), nil
}

// ParseContentID validates a CID string. Both CIDv0 and CIDv1 are accepted and
// returned in their canonical string form.
func ParseContentID(s string) (interfaces.ContentID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid content id %q: %v", interfaces.ErrInvalidArgument, s, err)
	}
	return interfaces.ContentID(c.String()), nil
}

// shortID trims a content id for log lines.
func shortID(id interfaces.ContentID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
