package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/verifier"
)

// Handler serves the read-only registry API: material lookups, credential
// and transfer listings, paginated history, and verification.
type Handler struct {
	reg interfaces.RegistryReader
	ver *verifier.Verifier
	log *slog.Logger
}

// NewHandler creates a handler over a registry reader and verifier.
func NewHandler(reg interfaces.RegistryReader, ver *verifier.Verifier, log *slog.Logger) *Handler {
	return &Handler{reg: reg, ver: ver, log: log}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAuthorization):
		status = http.StatusForbidden
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// HandleGetMaterial serves GET /api/v1/materials/{material_id}.
func (h *Handler) HandleGetMaterial(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "material_id")
	material, err := h.reg.Material(materialID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, material)
}

// HandleGetCredentials serves GET /api/v1/materials/{material_id}/credentials.
func (h *Handler) HandleGetCredentials(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "material_id")
	creds, err := h.reg.Credentials(materialID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, creds)
}

// HandleGetTransfers serves GET /api/v1/materials/{material_id}/transfers.
func (h *Handler) HandleGetTransfers(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "material_id")
	transfers, err := h.reg.Transfers(materialID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transfers)
}

type historyResponse struct {
	MaterialID string   `json:"material_id"`
	Count      int      `json:"count"`
	Offset     int      `json:"offset"`
	Entries    []string `json:"entries"`
}

// HandleGetHistory serves GET /api/v1/materials/{material_id}/history with
// offset/limit pagination.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "material_id")

	offset := 0
	limit := 100
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, interfaces.ErrInvalidInput)
			return
		}
		offset = parsed
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 1000 {
			h.writeError(w, interfaces.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	count, err := h.reg.HistoryCount(materialID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	entries, err := h.reg.HistorySlice(materialID, offset, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	hexEntries := make([]string, len(entries))
	for i, e := range entries {
		hexEntries[i] = e.Hex()
	}
	h.writeJSON(w, http.StatusOK, historyResponse{
		MaterialID: materialID,
		Count:      count,
		Offset:     offset,
		Entries:    hexEntries,
	})
}

// HandleVerify serves GET /api/v1/materials/{material_id}/verify. The
// optional query parameters: full=true extends verification with artifact
// checks; at=<unix-seconds> evaluates the on-chain predicate at a given
// time (ignored with full=true).
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "material_id")
	query := r.URL.Query()

	var (
		res verifier.Result
		err error
	)
	switch {
	case query.Get("full") == "true":
		res, err = h.ver.VerifyMaterialFull(r.Context(), materialID)
	case query.Get("at") != "":
		at, parseErr := strconv.ParseInt(query.Get("at"), 10, 64)
		if parseErr != nil {
			h.writeError(w, interfaces.ErrInvalidInput)
			return
		}
		res, err = h.ver.VerifyMaterialAt(materialID, at)
	default:
		res, err = h.ver.VerifyMaterial(materialID)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	if res.Reasons == nil {
		res.Reasons = []interfaces.ReasonCode{}
	}
	h.writeJSON(w, http.StatusOK, res)
}
