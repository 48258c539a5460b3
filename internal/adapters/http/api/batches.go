package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/grader/internal/domain/model"
	"github.com/okian/grader/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var errBadLimit = errors.New("limit must be a positive integer")

// BatchHandler handles batch submission and reads.
type BatchHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(deps Dependencies, log logger.Logger) *BatchHandler {
	return &BatchHandler{deps: deps, logger: log}
}

// HandleSubmit handles POST /batches requests.
func (h *BatchHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_batch"
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sreq, err := req.submitRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	b, duplicate, err := h.deps.Submit(r.Context(), sreq)
	if err != nil {
		h.logger.Warn(r.Context(), "batch rejected", logger.Error(err))
		writeServiceError(w, op, err)
		return
	}
	status := http.StatusAccepted
	if duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{BatchID: b.ID, Status: b.Status, Duplicate: duplicate})
}

// HandleGet handles GET /batches/{id} requests.
func (h *BatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_batch"
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	b, err := h.deps.Batch(r.Context(), id)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type listResponse struct {
	Batches []*model.Batch `json:"batches"`
}

// HandleList handles GET /batches?limit=N requests. Results are omitted.
func (h *BatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_batches"
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errBadLimit))
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := h.deps.Batches(r.Context(), limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if list == nil {
		list = []*model.Batch{}
	}
	writeJSON(w, http.StatusOK, listResponse{Batches: list})
}
