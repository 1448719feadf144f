package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/bioledger/bioregistry/interfaces"
)

// Snapshot returns a consistent view of a material, its credentials and
// transfers, and the permissions of every issuer referenced by a credential,
// all under one read lock.
func (r *Registry) Snapshot(materialID string) (interfaces.MaterialSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return interfaces.MaterialSnapshot{}, interfaces.ErrMaterialNotFound
	}

	snap := interfaces.MaterialSnapshot{
		Material:    state.record,
		Credentials: make([]interfaces.Credential, 0, len(state.credentials)),
		Transfers:   make([]interfaces.Transfer, len(state.transfers)),
		Issuers:     make(map[common.Address]interfaces.IssuerPermission),
	}
	copy(snap.Transfers, state.transfers)
	for _, id := range state.credentials {
		cred := *r.credentials[id]
		snap.Credentials = append(snap.Credentials, cred)
		if _, seen := snap.Issuers[cred.IssuerAddress]; !seen {
			snap.Issuers[cred.IssuerAddress] = r.issuers[cred.IssuerAddress]
		}
	}
	return snap, nil
}

// Material returns a copy of the material record.
func (r *Registry) Material(materialID string) (interfaces.Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return interfaces.Material{}, interfaces.ErrMaterialNotFound
	}
	return state.record, nil
}

// Credentials returns all credentials on a material in insertion order.
func (r *Registry) Credentials(materialID string) ([]interfaces.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return nil, interfaces.ErrMaterialNotFound
	}

	creds := make([]interfaces.Credential, 0, len(state.credentials))
	for _, id := range state.credentials {
		creds = append(creds, *r.credentials[id])
	}
	return creds, nil
}

// Transfers returns all transfers on a material in insertion order.
func (r *Registry) Transfers(materialID string) ([]interfaces.Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return nil, interfaces.ErrMaterialNotFound
	}

	transfers := make([]interfaces.Transfer, len(state.transfers))
	copy(transfers, state.transfers)
	return transfers, nil
}

// IssuerPermission returns the permission record for an issuer. An issuer
// that was never authorized yields the zero permission.
func (r *Registry) IssuerPermission(issuer common.Address) (interfaces.IssuerPermission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.issuers[issuer], nil
}

// HistoryCount returns the length of a material's history log.
func (r *Registry) HistoryCount(materialID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return 0, interfaces.ErrMaterialNotFound
	}
	return len(state.history), nil
}

// HistoryAt returns the i-th history digest of a material.
func (r *Registry) HistoryAt(materialID string, i int) (common.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return common.Hash{}, interfaces.ErrMaterialNotFound
	}
	if i < 0 || i >= len(state.history) {
		return common.Hash{}, interfaces.ErrNotFound
	}
	return state.history[i], nil
}

// HistorySlice returns up to limit history digests starting at offset. This
// is the supported paginated read; unpaginated history dumps are a
// deprecated convenience built on top of it.
func (r *Registry) HistorySlice(materialID string, offset, limit int) ([]common.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.materials[materialID]
	if !ok {
		return nil, interfaces.ErrMaterialNotFound
	}
	return sliceHistory(state.history, offset, limit), nil
}

// History returns a material's full history log.
//
// Deprecated: unpaginated history reads do not scale with material age; use
// HistoryCount and HistorySlice instead.
func (r *Registry) History(materialID string) ([]common.Hash, error) {
	count, err := r.HistoryCount(materialID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []common.Hash{}, nil
	}
	return r.HistorySlice(materialID, 0, count)
}

// GlobalHistoryCount returns the length of the registry-wide serial log.
func (r *Registry) GlobalHistoryCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.globalLog)
}

// GlobalHistorySlice returns up to limit entries of the registry-wide serial
// log starting at offset.
func (r *Registry) GlobalHistorySlice(offset, limit int) []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sliceHistory(r.globalLog, offset, limit)
}

func sliceHistory(entries []common.Hash, offset, limit int) []common.Hash {
	if offset < 0 || offset >= len(entries) || limit <= 0 {
		return []common.Hash{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	out := make([]common.Hash, end-offset)
	copy(out, entries[offset:end])
	return out
}

// BlockHeight returns the current height of the serial log.
func (r *Registry) BlockHeight() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blockHeight
}
