package registry

import (
	"github.com/bioledger/bioregistry/interfaces"
)

// minter owns the three monotonic identifier counters. It is touched only by
// the writer goroutine, so no locking is needed. Counters start at zero and
// the first minted sequence number is 1; numbers are never reused.
type minter struct {
	materials   uint64
	credentials uint64
	transfers   uint64
}

func (m *minter) nextMaterialID(t interfaces.MaterialType) string {
	m.materials++
	return interfaces.FormatMaterialID(t, m.materials)
}

func (m *minter) nextCredentialID() string {
	m.credentials++
	return interfaces.FormatCredentialID(m.credentials)
}

func (m *minter) nextTransferID() string {
	m.transfers++
	return interfaces.FormatTransferID(m.transfers)
}
