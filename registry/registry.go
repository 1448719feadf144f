// Package registry implements the authoritative state machine over materials,
// credentials, transfers and issuer permissions.
//
// The registry models an append-only serial log: all state-changing
// operations funnel through a single writer goroutine and are totally
// ordered, each committed mutation advancing the block height by one. Reads
// execute concurrently against the committed snapshot under a read lock.
// Every mutation appends one history digest per affected material plus one
// entry to the registry-wide serial log; failed operations mutate nothing
// and append nothing.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/metrics"
)

// Config carries the construction parameters for a Registry.
type Config struct {
	// Admin is the address allowed to manage issuers and force status
	// changes.
	Admin common.Address

	// Clock returns the current time in Unix seconds. Defaults to wall time.
	Clock func() int64

	// Log receives operational logging. Defaults to slog.Default.
	Log *slog.Logger

	// Metrics instruments operations when set.
	Metrics *metrics.Collector

	// QueueDepth bounds the writer queue. Defaults to 256.
	QueueDepth int
}

// materialState groups a material record with its per-material collections.
type materialState struct {
	record      interfaces.Material
	credentials []string
	transfers   []interfaces.Transfer
	history     []common.Hash
}

// Registry is the in-process implementation of interfaces.MaterialRegistry.
type Registry struct {
	log   *slog.Logger
	admin common.Address
	clock func() int64
	met   *metrics.Collector

	mu          sync.RWMutex
	materials   map[string]*materialState
	credentials map[string]*interfaces.Credential
	issuers     map[common.Address]interfaces.IssuerPermission
	globalLog   []common.Hash
	blockHeight uint64

	minter minter

	writeCh   chan writeReq
	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
}

type writeReq struct {
	op    string
	apply func(now int64) (any, []interfaces.Event, error)
	resp  chan writeResp
}

type writeResp struct {
	result  any
	receipt interfaces.Receipt
	err     error
}

var _ interfaces.MaterialRegistry = (*Registry)(nil)

// New creates a registry and starts its writer goroutine.
func New(cfg Config) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}

	r := &Registry{
		log:         log,
		admin:       cfg.Admin,
		clock:       clock,
		met:         cfg.Metrics,
		materials:   make(map[string]*materialState),
		credentials: make(map[string]*interfaces.Credential),
		issuers:     make(map[common.Address]interfaces.IssuerPermission),
		writeCh:     make(chan writeReq, depth),
		closed:      make(chan struct{}),
		drained:     make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Close stops the writer. Writes admitted before Close run to completion;
// later submissions fail with a transport error.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
	<-r.drained
}

// Draining reports whether the writer has been stopped. A draining registry
// still serves reads but rejects new writes.
func (r *Registry) Draining() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

// Admin returns the configured admin address.
func (r *Registry) Admin() common.Address {
	return r.admin
}

// writeLoop is the single writer. It owns the identifier counters and is the
// only goroutine that takes the write lock.
func (r *Registry) writeLoop() {
	defer close(r.drained)
	for {
		select {
		case <-r.closed:
			// Drain whatever was admitted before shutdown.
			for {
				select {
				case req := <-r.writeCh:
					req.resp <- r.commit(req)
				default:
					return
				}
			}
		case req := <-r.writeCh:
			req.resp <- r.commit(req)
		}
	}
}

// commit executes one mutation under the write lock and, on success, seals
// it with a receipt and the history appends.
func (r *Registry) commit(req writeReq) writeResp {
	start := time.Now()
	now := r.clock()

	r.mu.Lock()
	result, events, err := req.apply(now)
	if err == nil {
		r.blockHeight++
		for _, ev := range events {
			digest := historyDigest(ev)
			r.globalLog = append(r.globalLog, digest)
			if ev.MaterialID != "" {
				r.materials[ev.MaterialID].history = append(r.materials[ev.MaterialID].history, digest)
			}
		}
	}
	height := r.blockHeight
	r.mu.Unlock()

	if r.met != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.met.OperationsTotal.WithLabelValues(req.op, outcome).Inc()
		r.met.OperationDuration.WithLabelValues(req.op).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		r.log.Debug("Registry operation rejected", slog.String("op", req.op), "err", err)
		return writeResp{err: err}
	}

	receipt := interfaces.Receipt{
		TxID:        uuid.NewString(),
		BlockHeight: height,
		Logs:        events,
	}
	return writeResp{result: result, receipt: receipt}
}

// submit routes a mutation through the writer queue. Cancellation is honored
// before admission only; an admitted write always runs to completion.
func (r *Registry) submit(ctx context.Context, op string, apply func(now int64) (any, []interfaces.Event, error)) (any, interfaces.Receipt, error) {
	req := writeReq{op: op, apply: apply, resp: make(chan writeResp, 1)}

	// A cancelled caller never enters the queue.
	if err := ctx.Err(); err != nil {
		return nil, interfaces.Receipt{}, err
	}

	select {
	case <-ctx.Done():
		return nil, interfaces.Receipt{}, ctx.Err()
	case <-r.closed:
		return nil, interfaces.Receipt{}, fmt.Errorf("%w: registry closed", interfaces.ErrTransport)
	case r.writeCh <- req:
	}

	select {
	case resp := <-req.resp:
		return resp.result, resp.receipt, resp.err
	case <-r.drained:
		// The writer may have committed this request on its way out.
		select {
		case resp := <-req.resp:
			return resp.result, resp.receipt, resp.err
		default:
			return nil, interfaces.Receipt{}, fmt.Errorf("%w: registry closed", interfaces.ErrTransport)
		}
	}
}

// AuthorizeIssuer sets capability flags for an issuer and clears any
// revocation. Admin only; idempotent in content.
func (r *Registry) AuthorizeIssuer(ctx context.Context, caller, issuer common.Address, canIdentity, canQC, canUsage bool) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "authorize_issuer", func(now int64) (any, []interfaces.Event, error) {
		if caller != r.admin {
			return nil, nil, interfaces.ErrNotAdmin
		}
		r.issuers[issuer] = interfaces.IssuerPermission{
			Approved:            true,
			CanIssueIdentity:    canIdentity,
			CanIssueQC:          canQC,
			CanIssueUsageRights: canUsage,
		}
		ev := interfaces.Event{Tag: "issuer_authorized", Actor: caller, Subject: issuer.Hex(), Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}

// RevokeIssuer marks an issuer revoked as of now. Admin only. Credentials
// issued strictly before the revocation timestamp remain valid.
func (r *Registry) RevokeIssuer(ctx context.Context, caller, issuer common.Address) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "revoke_issuer", func(now int64) (any, []interfaces.Event, error) {
		if caller != r.admin {
			return nil, nil, interfaces.ErrNotAdmin
		}
		perm := r.issuers[issuer]
		perm.Approved = false
		perm.RevokedAt = now
		r.issuers[issuer] = perm

		ev := interfaces.Event{Tag: "issuer_revoked", Actor: caller, Subject: issuer.Hex(), Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}

// RegisterMaterial mints a new material owned by the caller.
func (r *Registry) RegisterMaterial(ctx context.Context, caller common.Address, materialType interfaces.MaterialType, metadataHash common.Hash, ownerOrg string) (string, interfaces.Receipt, error) {
	result, receipt, err := r.submit(ctx, "register_material", func(now int64) (any, []interfaces.Event, error) {
		if !materialType.Valid() {
			return nil, nil, interfaces.ErrInvalidMaterialType
		}
		if metadataHash == (common.Hash{}) {
			return nil, nil, interfaces.ErrInvalidCommitmentHash
		}

		id := r.minter.nextMaterialID(materialType)
		if _, exists := r.materials[id]; exists {
			return nil, nil, fmt.Errorf("%w: material id %s already minted", interfaces.ErrStateConflict, id)
		}

		r.materials[id] = &materialState{
			record: interfaces.Material{
				ID:           id,
				MaterialType: materialType,
				MetadataHash: metadataHash,
				OwnerAddress: caller,
				OwnerOrg:     ownerOrg,
				Status:       interfaces.StatusActive,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		}

		ev := interfaces.Event{Tag: "material_registered", MaterialID: id, Actor: caller, Subject: metadataHash.Hex(), Time: now}
		return id, []interfaces.Event{ev}, nil
	})
	if err != nil {
		return "", interfaces.Receipt{}, err
	}
	return result.(string), receipt, nil
}

// IssueCredential admits a new credential after issuer authorization and
// input validation.
func (r *Registry) IssueCredential(ctx context.Context, caller common.Address, params interfaces.IssueCredentialParams) (string, interfaces.Receipt, error) {
	result, receipt, err := r.submit(ctx, "issue_credential", func(now int64) (any, []interfaces.Event, error) {
		perm := r.issuers[caller]
		if !perm.Approved && perm.RevokedAt == 0 {
			return nil, nil, interfaces.ErrNotApprovedIssuer
		}
		if perm.RevokedAt != 0 {
			return nil, nil, interfaces.ErrIssuerRevoked
		}
		if !params.CredentialType.Valid() {
			return nil, nil, interfaces.ErrInvalidCredentialType
		}
		if !perm.CanIssue(params.CredentialType) {
			return nil, nil, interfaces.ErrNotAuthorizedForCredentialType
		}

		state, ok := r.materials[params.MaterialID]
		if !ok {
			return nil, nil, interfaces.ErrMaterialNotFound
		}
		if params.CommitmentHash == (common.Hash{}) {
			return nil, nil, interfaces.ErrInvalidCommitmentHash
		}
		if params.ArtifactHash == (common.Hash{}) {
			return nil, nil, interfaces.ErrInvalidArtifactHash
		}
		if params.ValidUntil != 0 && params.ValidUntil <= now {
			return nil, nil, interfaces.ErrInvalidValidUntil
		}

		// Admission order and issuance time must agree per material.
		issuedAt := now
		if n := len(state.credentials); n > 0 {
			if last := r.credentials[state.credentials[n-1]]; issuedAt < last.IssuedAt {
				issuedAt = last.IssuedAt
			}
		}

		id := r.minter.nextCredentialID()
		if _, exists := r.credentials[id]; exists {
			return nil, nil, fmt.Errorf("%w: credential id %s already minted", interfaces.ErrStateConflict, id)
		}

		r.credentials[id] = &interfaces.Credential{
			ID:             id,
			MaterialID:     params.MaterialID,
			CredentialType: params.CredentialType,
			CommitmentHash: params.CommitmentHash,
			IssuerAddress:  caller,
			IssuerOrg:      params.IssuerOrg,
			IssuedAt:       issuedAt,
			ValidUntil:     params.ValidUntil,
			ArtifactCID:    params.ArtifactCID,
			ArtifactHash:   params.ArtifactHash,
		}
		state.credentials = append(state.credentials, id)

		ev := interfaces.Event{Tag: "credential_issued", MaterialID: params.MaterialID, Actor: caller, Subject: id, Time: now}
		return id, []interfaces.Event{ev}, nil
	})
	if err != nil {
		return "", interfaces.Receipt{}, err
	}
	return result.(string), receipt, nil
}

// RevokeCredential marks a credential revoked. Only the original issuer or
// the admin may revoke; revocation happens exactly once.
func (r *Registry) RevokeCredential(ctx context.Context, caller common.Address, credentialID string) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "revoke_credential", func(now int64) (any, []interfaces.Event, error) {
		cred, ok := r.credentials[credentialID]
		if !ok {
			return nil, nil, interfaces.ErrCredentialNotFound
		}
		if caller != cred.IssuerAddress && caller != r.admin {
			return nil, nil, interfaces.ErrNotCredentialIssuer
		}
		if cred.Revoked {
			return nil, nil, interfaces.ErrCredentialAlreadyRevoked
		}
		cred.Revoked = true

		ev := interfaces.Event{Tag: "credential_revoked", MaterialID: cred.MaterialID, Actor: caller, Subject: credentialID, Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}

// SetStatusByOwner transitions a material between ACTIVE and QUARANTINED.
func (r *Registry) SetStatusByOwner(ctx context.Context, caller common.Address, materialID string, status interfaces.MaterialStatus, reasonHash common.Hash) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "set_status_by_owner", func(now int64) (any, []interfaces.Event, error) {
		state, ok := r.materials[materialID]
		if !ok {
			return nil, nil, interfaces.ErrMaterialNotFound
		}
		if caller != state.record.OwnerAddress {
			return nil, nil, interfaces.ErrNotOwner
		}
		if !status.Valid() {
			return nil, nil, interfaces.ErrInvalidStatus
		}
		if status == interfaces.StatusRevoked {
			return nil, nil, interfaces.ErrNotAuthorizedForStatus
		}
		if state.record.Status == interfaces.StatusRevoked {
			return nil, nil, interfaces.ErrMaterialTerminal
		}

		state.record.Status = status
		state.record.UpdatedAt = now

		ev := interfaces.Event{Tag: "status_set_by_owner", MaterialID: materialID, Actor: caller, Subject: string(status), Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}

// SetStatusByAuthority sets any status including terminal REVOKED. The caller
// must be the admin or a currently-approved, non-revoked, QC-capable issuer.
func (r *Registry) SetStatusByAuthority(ctx context.Context, caller common.Address, materialID string, status interfaces.MaterialStatus, reasonHash common.Hash) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "set_status_by_authority", func(now int64) (any, []interfaces.Event, error) {
		if caller != r.admin {
			perm := r.issuers[caller]
			if !perm.Approved || perm.RevokedAt != 0 || !perm.CanIssueQC {
				return nil, nil, interfaces.ErrNotAuthorizedForStatus
			}
		}

		state, ok := r.materials[materialID]
		if !ok {
			return nil, nil, interfaces.ErrMaterialNotFound
		}
		if !status.Valid() {
			return nil, nil, interfaces.ErrInvalidStatus
		}
		if state.record.Status == interfaces.StatusRevoked {
			return nil, nil, interfaces.ErrMaterialTerminal
		}

		state.record.Status = status
		state.record.UpdatedAt = now

		ev := interfaces.Event{Tag: "status_set_by_authority", MaterialID: materialID, Actor: caller, Subject: string(status), Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}

// InitiateTransfer opens a custody handoff on an active material.
func (r *Registry) InitiateTransfer(ctx context.Context, caller common.Address, materialID string, to common.Address, toOrg string, shipmentHash common.Hash) (string, interfaces.Receipt, error) {
	result, receipt, err := r.submit(ctx, "initiate_transfer", func(now int64) (any, []interfaces.Event, error) {
		state, ok := r.materials[materialID]
		if !ok {
			return nil, nil, interfaces.ErrMaterialNotFound
		}
		if caller != state.record.OwnerAddress {
			return nil, nil, interfaces.ErrNotOwner
		}
		if state.record.Status != interfaces.StatusActive {
			return nil, nil, interfaces.ErrMaterialNotActive
		}
		if n := len(state.transfers); n > 0 && !state.transfers[n-1].Accepted {
			return nil, nil, interfaces.ErrPendingTransferExists
		}

		id := r.minter.nextTransferID()
		state.transfers = append(state.transfers, interfaces.Transfer{
			ID:           id,
			MaterialID:   materialID,
			FromAddress:  state.record.OwnerAddress,
			FromOrg:      state.record.OwnerOrg,
			ToAddress:    to,
			ToOrg:        toOrg,
			ShipmentHash: shipmentHash,
			Timestamp:    now,
		})

		ev := interfaces.Event{Tag: "transfer_initiated", MaterialID: materialID, Actor: caller, Subject: id, Time: now}
		return id, []interfaces.Event{ev}, nil
	})
	if err != nil {
		return "", interfaces.Receipt{}, err
	}
	return result.(string), receipt, nil
}

// AcceptTransfer completes the latest pending transfer and moves ownership
// to the recipient.
func (r *Registry) AcceptTransfer(ctx context.Context, caller common.Address, materialID string) (interfaces.Receipt, error) {
	_, receipt, err := r.submit(ctx, "accept_transfer", func(now int64) (any, []interfaces.Event, error) {
		state, ok := r.materials[materialID]
		if !ok {
			return nil, nil, interfaces.ErrMaterialNotFound
		}
		n := len(state.transfers)
		if n == 0 || state.transfers[n-1].Accepted {
			return nil, nil, interfaces.ErrNoPendingTransfer
		}
		pending := &state.transfers[n-1]
		if caller != pending.ToAddress {
			return nil, nil, interfaces.ErrNotTransferRecipient
		}

		pending.Accepted = true
		state.record.OwnerAddress = pending.ToAddress
		state.record.OwnerOrg = pending.ToOrg
		state.record.UpdatedAt = now

		ev := interfaces.Event{Tag: "transfer_accepted", MaterialID: materialID, Actor: caller, Subject: pending.ID, Time: now}
		return nil, []interfaces.Event{ev}, nil
	})
	return receipt, err
}
