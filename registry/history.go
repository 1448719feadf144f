package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/bioledger/bioregistry/canonical"
	"github.com/bioledger/bioregistry/interfaces"
)

// historyDigest computes the 32-byte history entry for one event: the
// canonical hash of (event_tag, actor, salient subject digest, timestamp).
func historyDigest(ev interfaces.Event) common.Hash {
	salient := canonical.HashBytes([]byte(ev.Subject))
	digest, err := canonical.Hash(map[string]any{
		"tag":     ev.Tag,
		"actor":   ev.Actor.Hex(),
		"salient": salient.Hex(),
		"time":    ev.Time,
	})
	if err != nil {
		// The input is a fixed-shape map of strings and an int64; canonical
		// marshalling cannot fail on it.
		panic(err)
	}
	return digest
}
