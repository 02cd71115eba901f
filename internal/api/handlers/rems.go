package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/workflow"
)

// REMSHandler handles REMS workflow endpoints
type REMSHandler struct {
	session *app.Session
	logger  *zap.Logger
}

// NewREMSHandler creates a new handler
func NewREMSHandler(session *app.Session, logger *zap.Logger) *REMSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &REMSHandler{session: session, logger: logger}
}

// Routes returns the handler routes
func (h *REMSHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/workflow", h.Workflow)
	r.Post("/workflow/steps/{ordinal}/complete", h.CompleteStep)
	r.Get("/timeline", h.Timeline)
	r.Get("/monitoring", h.Monitoring)
	return r
}

// Workflow handles GET /workflow
func (h *REMSHandler) Workflow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Workflow())
}

// CompleteStepRequest is the optional body of a step completion.
type CompleteStepRequest struct {
	CompletedOn string `json:"completed_on"`
}

// CompleteStep handles POST /workflow/steps/{ordinal}/complete
func (h *REMSHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		jsonError(w, "step ordinal must be an integer", http.StatusBadRequest)
		return
	}

	cmd := app.CompleteStep{Meta: requestMeta(r), Ordinal: ordinal}
	if r.ContentLength != 0 {
		var req CompleteStepRequest
		if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, h.logger, err)
			return
		}
		if req.CompletedOn != "" {
			if cmd.On, err = domain.ParseDate(req.CompletedOn); err != nil {
				writeError(w, h.logger, err)
				return
			}
		}
	}

	res, err := h.session.Handle(r.Context(), cmd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TimelineResponse lists completed steps.
type TimelineResponse struct {
	Completions []workflow.Completion `json:"completions"`
}

// Timeline handles GET /timeline
func (h *REMSHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TimelineResponse{Completions: h.session.Timeline()})
}

// Monitoring handles GET /monitoring
func (h *REMSHandler) Monitoring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Monitoring())
}
