package api

import (
	"net/http"

	service "github.com/okian/grader/internal/app"
	"github.com/okian/grader/pkg/logger"
)

// GradeHandler handles synchronous single-submission grading.
type GradeHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewGradeHandler creates a new grade handler.
func NewGradeHandler(deps Dependencies, log logger.Logger) *GradeHandler {
	return &GradeHandler{deps: deps, logger: log}
}

// HandleGrade handles POST /grade requests. Grading failures still answer
// 200 with a degraded response whose general comment carries the reason.
func (h *GradeHandler) HandleGrade(w http.ResponseWriter, r *http.Request) {
	const op = "api.grade"
	var req gradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	pages, err := decodePages(req.Pages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	resp := h.deps.Grade(r.Context(), service.GradeRequest{
		Pages:    pages,
		Rubric:   rubricText(req.Rubric),
		Settings: req.Settings.settings(),
	})
	h.logger.Debug(r.Context(), "graded submission",
		logger.Int("pages", len(pages)),
		logger.Float64("total", resp.TotalScore.Float()),
		logger.Float64("cost_usd", resp.CostUSD),
	)
	writeJSON(w, http.StatusOK, resp)
}
