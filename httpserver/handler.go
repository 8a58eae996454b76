package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/ruteri/device-share-storage/permissions"
)

const (
	// DeviceInfoHeader carries optional JSON device metadata for writes.
	DeviceInfoHeader = "X-Device-Info"

	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// ShareService is the storage module as seen by the HTTP surface.
type ShareService interface {
	Read(ctx context.Context, key interfaces.StorageKey) (interfaces.ShareRecord, error)
	Write(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord, deviceInfo map[string]any) error
	ExportToSecondaryStore(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord) error
	IsSecondaryStoreUsable() bool
}

// CapabilityReporter exposes the secondary store capability state.
type CapabilityReporter interface {
	State() interfaces.CapabilityState
}

// errorResponse is the JSON body of every failed share request.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// capabilityResponse reports whether the secondary store may be used.
type capabilityResponse struct {
	Usable bool   `json:"usable"`
	State  string `json:"state"`
}

type permissionRequest struct {
	State string `json:"state"`
}

// Handler serves share reads, writes, exports and capability changes.
type Handler struct {
	shares      ShareService
	capability  CapabilityReporter
	permissions *permissions.ManualQuerier
	log         *slog.Logger
}

// NewHandler creates a share API handler. capability and querier may be nil;
// without a querier permission changes are rejected.
func NewHandler(shares ShareService, capability CapabilityReporter, querier *permissions.ManualQuerier, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		shares:      shares,
		capability:  capability,
		permissions: querier,
		log:         log,
	}
}

// HandleReadShare returns the stored share record.
//
// URL format: GET /api/share/{key}
func (h *Handler) HandleReadShare(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing share key in URL", http.StatusBadRequest)
		return
	}

	record, err := h.shares.Read(r.Context(), key)
	if err != nil {
		h.log.Warn("Failed to read share", "err", err, slog.String("key", key))
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(record)
}

// HandleWriteShare stores the share record in the request body.
//
// URL format: PUT /api/share/{key}
// Optional header: X-Device-Info with a JSON object of device metadata.
func (h *Handler) HandleWriteShare(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing share key in URL", http.StatusBadRequest)
		return
	}

	record, ok := h.readRecord(w, r)
	if !ok {
		return
	}
	if len(record) == 0 {
		http.Error(w, "Empty share record in request body", http.StatusBadRequest)
		return
	}

	var deviceInfo map[string]any
	if raw := r.Header.Get(DeviceInfoHeader); raw != "" {
		if err := json.Unmarshal([]byte(raw), &deviceInfo); err != nil {
			http.Error(w, "Invalid device info header", http.StatusBadRequest)
			return
		}
	}

	if err := h.shares.Write(r.Context(), key, record, deviceInfo); err != nil {
		h.log.Error("Failed to write share", "err", err, slog.String("key", key))
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleExportShare writes a share record to the secondary store. Without a
// request body the currently stored record is exported.
//
// URL format: POST /api/share/{key}/export
func (h *Handler) HandleExportShare(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "Missing share key in URL", http.StatusBadRequest)
		return
	}

	record, ok := h.readRecord(w, r)
	if !ok {
		return
	}
	if len(record) == 0 {
		stored, err := h.shares.Read(r.Context(), key)
		if err != nil {
			h.writeError(w, err)
			return
		}
		record = stored
	}

	if err := h.shares.ExportToSecondaryStore(r.Context(), key, record); err != nil {
		h.log.Error("Failed to export share", "err", err, slog.String("key", key))
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetCapability reports the secondary store capability.
//
// URL format: GET /api/capability
func (h *Handler) HandleGetCapability(w http.ResponseWriter, r *http.Request) {
	resp := capabilityResponse{
		Usable: h.shares.IsSecondaryStoreUsable(),
		State:  interfaces.CapabilityUnknown.String(),
	}
	if h.capability != nil {
		resp.State = h.capability.State().String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSetPermission delivers a host permission change.
//
// URL format: POST /api/capability
// Request body: {"state":"granted|denied|prompt"}
func (h *Handler) HandleSetPermission(w http.ResponseWriter, r *http.Request) {
	if h.permissions == nil {
		http.Error(w, "Permission changes are not supported", http.StatusNotImplemented)
		return
	}

	var req permissionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	state, err := permissions.ParsePermissionState(req.State)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.permissions.Set(state)
	h.log.Info("Permission state set", slog.String("state", string(state)))
	h.HandleGetCapability(w, r)
}

// readRecord reads an optional JSON share record from the body.
func (h *Handler) readRecord(w http.ResponseWriter, r *http.Request) (interfaces.ShareRecord, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.log.Error("Failed to read request body", "err", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) == 0 {
		return nil, true
	}
	record, err := interfaces.ParseShareRecord(body)
	if err != nil {
		http.Error(w, "Invalid share record", http.StatusBadRequest)
		return nil, false
	}
	return record, true
}

// writeError maps taxonomy errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var storageErr *interfaces.StorageError
	if !errors.As(err, &storageErr) {
		storageErr = interfaces.DefaultError(": " + err.Error())
	}

	status := http.StatusInternalServerError
	switch storageErr.Code {
	case interfaces.CodeUnableToReadFromStorage,
		interfaces.CodeShareUnavailableInPrimaryStore,
		interfaces.CodeShareUnavailableInSecondaryStore:
		status = http.StatusNotFound
	case interfaces.CodePrimaryStoreUnavailable,
		interfaces.CodeSecondaryStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, errorResponse{Code: storageErr.Code, Message: storageErr.Message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
