package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/api/middleware"
	"github.com/drfirst/go-flowsheet/internal/app"
	"github.com/drfirst/go-flowsheet/internal/domain"
	"github.com/drfirst/go-flowsheet/internal/domain/clinical"
	"github.com/drfirst/go-flowsheet/internal/domain/dosing"
	"github.com/drfirst/go-flowsheet/internal/domain/ledger"
	"github.com/drfirst/go-flowsheet/internal/fhir/mapper"
	"github.com/drfirst/go-flowsheet/pkg/idempotency"
)

// FlowsheetHandler handles infusion flowsheet endpoints
type FlowsheetHandler struct {
	session *app.Session
	mapper  *mapper.LedgerToFHIRMapper
	logger  *zap.Logger
}

// NewFlowsheetHandler creates a new handler
func NewFlowsheetHandler(session *app.Session, logger *zap.Logger) *FlowsheetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowsheetHandler{
		session: session,
		mapper:  mapper.NewLedgerToFHIRMapper(),
		logger:  logger,
	}
}

// Routes returns the handler routes
func (h *FlowsheetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/infusions", h.SubmitInfusion)
	r.Get("/infusions", h.history(ledger.KindInfusion))
	r.Post("/mri", h.SubmitImaging)
	r.Get("/mri", h.history(ledger.KindImaging))
	r.Post("/aria", h.SubmitAssessment)
	r.Get("/aria", h.history(ledger.KindAssessment))
	r.Get("/summary", h.Summary)
	r.Get("/export", h.Export)
	return r
}

// DoseRequest is the request body of a dose preview.
type DoseRequest struct {
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit"`
}

// DoseResponse is a computed dose.
type DoseResponse struct {
	Weight float64 `json:"weight"`
	Unit   string  `json:"unit"`
	dosing.Dose
}

// PreviewDose handles POST /dose. Nothing is recorded.
func (h *FlowsheetHandler) PreviewDose(w http.ResponseWriter, r *http.Request) {
	var req DoseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	unit, err := dosing.ParseUnit(req.Unit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	dose, err := h.session.PreviewDose(req.Weight, unit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DoseResponse{Weight: req.Weight, Unit: string(unit), Dose: dose})
}

// InfusionRequest is the request body for recording an infusion. The dose
// is computed server side.
type InfusionRequest struct {
	Date       string  `json:"date"`
	Weight     float64 `json:"weight"`
	Unit       string  `json:"unit"`
	Notes      string  `json:"notes"`
	Status     string  `json:"status"`
	CorrectsID int64   `json:"corrects_id"`
}

// SubmitInfusion handles POST /infusions
func (h *FlowsheetHandler) SubmitInfusion(w http.ResponseWriter, r *http.Request) {
	var req InfusionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd.Meta = requestMeta(r)
	h.handle(w, r, cmd)
}

func (req InfusionRequest) command() (app.SubmitInfusion, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return app.SubmitInfusion{}, err
	}
	unit, err := dosing.ParseUnit(req.Unit)
	if err != nil {
		return app.SubmitInfusion{}, err
	}
	status, err := clinical.ParseInfusionStatus(req.Status)
	if err != nil {
		return app.SubmitInfusion{}, err
	}
	return app.SubmitInfusion{
		Date:       date,
		Weight:     req.Weight,
		Unit:       unit,
		Notes:      req.Notes,
		Status:     status,
		CorrectsID: req.CorrectsID,
	}, nil
}

// ImagingRequest is the request body for recording an MRI result.
type ImagingRequest struct {
	Date       string `json:"date"`
	StudyType  string `json:"type"`
	AriaE      string `json:"aria_e"`
	AriaH      string `json:"aria_h"`
	Notes      string `json:"notes"`
	CorrectsID int64  `json:"corrects_id"`
}

// SubmitImaging handles POST /mri
func (h *FlowsheetHandler) SubmitImaging(w http.ResponseWriter, r *http.Request) {
	var req ImagingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd.Meta = requestMeta(r)
	h.handle(w, r, cmd)
}

func (req ImagingRequest) command() (app.SubmitImaging, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return app.SubmitImaging{}, err
	}
	study, err := clinical.ParseStudyType(req.StudyType)
	if err != nil {
		return app.SubmitImaging{}, err
	}
	ariaE, err := clinical.ParseSeverity(req.AriaE)
	if err != nil {
		return app.SubmitImaging{}, err
	}
	ariaH, err := clinical.ParseSeverity(req.AriaH)
	if err != nil {
		return app.SubmitImaging{}, err
	}
	return app.SubmitImaging{
		Date:       date,
		StudyType:  study,
		AriaE:      ariaE,
		AriaH:      ariaH,
		Notes:      req.Notes,
		CorrectsID: req.CorrectsID,
	}, nil
}

// AssessmentRequest is the request body for recording an ARIA assessment.
// Grades may be given as labels or as raw counts.
type AssessmentRequest struct {
	Date                 string   `json:"date"`
	AriaEStatus          string   `json:"aria_e_status"`
	Microhemorrhages     string   `json:"microhemorrhages"`
	MicrohemorrhageCount *int     `json:"microhemorrhage_count"`
	Siderosis            string   `json:"siderosis"`
	SiderosisAreas       *int     `json:"siderosis_areas"`
	Symptoms             []string `json:"symptoms"`
	ClinicalSeverity     string   `json:"clinical_severity"`
	CorrectsID           int64    `json:"corrects_id"`
}

// SubmitAssessment handles POST /aria
func (h *FlowsheetHandler) SubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req AssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd, err := req.command()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cmd.Meta = requestMeta(r)
	h.handle(w, r, cmd)
}

func (req AssessmentRequest) command() (app.SubmitAssessment, error) {
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return app.SubmitAssessment{}, err
	}
	ariaE, err := clinical.ParseSeverity(req.AriaEStatus)
	if err != nil {
		return app.SubmitAssessment{}, err
	}

	var micro clinical.MicrohemorrhageGrade
	if req.MicrohemorrhageCount != nil {
		micro, err = clinical.GradeMicrohemorrhages(*req.MicrohemorrhageCount)
	} else {
		micro, err = clinical.ParseMicrohemorrhageGrade(req.Microhemorrhages)
	}
	if err != nil {
		return app.SubmitAssessment{}, err
	}

	var siderosis clinical.SiderosisGrade
	if req.SiderosisAreas != nil {
		siderosis, err = clinical.GradeSiderosis(*req.SiderosisAreas)
	} else {
		siderosis, err = clinical.ParseSiderosisGrade(req.Siderosis)
	}
	if err != nil {
		return app.SubmitAssessment{}, err
	}

	severity, err := clinical.ParseClinicalSeverity(req.ClinicalSeverity)
	if err != nil {
		return app.SubmitAssessment{}, err
	}
	symptoms := make([]clinical.Symptom, 0, len(req.Symptoms))
	for _, s := range req.Symptoms {
		symptoms = append(symptoms, clinical.Symptom(s))
	}
	return app.SubmitAssessment{
		Date:             date,
		AriaEStatus:      ariaE,
		Microhemorrhages: micro,
		Siderosis:        siderosis,
		Symptoms:         symptoms,
		ClinicalSeverity: severity,
		CorrectsID:       req.CorrectsID,
	}, nil
}

// handle runs cmd and writes 201 for a new record or 200 for a retry that
// matched an earlier submission.
func (h *FlowsheetHandler) handle(w http.ResponseWriter, r *http.Request, cmd app.Command) {
	ctx, span := otel.Tracer("flowsheet-handler").Start(r.Context(), "submit_record")
	defer span.End()

	res, err := h.session.Handle(ctx, cmd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	span.SetAttributes(
		attribute.String("kind", string(res.Kind)),
		attribute.Int64("entry_id", res.EntryID),
	)

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// HistoryResponse lists the entries of one kind.
type HistoryResponse struct {
	Kind    ledger.Kind     `json:"kind"`
	Count   int             `json:"count"`
	Entries []*ledger.Entry `json:"entries"`
}

func (h *FlowsheetHandler) history(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.session.History(r.Context(), kind)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Kind: kind, Count: len(entries), Entries: entries})
	}
}

// Summary handles GET /summary
func (h *FlowsheetHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.session.Summary(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Export handles GET /export. ?format=fhir returns a FHIR R5 Bundle, and
// FHIR requests get their errors as an OperationOutcome.
func (h *FlowsheetHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "fhir":
	default:
		jsonError(w, "unknown export format "+format, http.StatusBadRequest)
		return
	}

	doc, err := h.session.Export(r.Context())
	if err != nil {
		if format == "fhir" {
			writeOutcome(w, h.logger, err)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	if format != "fhir" {
		w.Header().Set("Content-Disposition", `attachment; filename="flowsheet_export.json"`)
		w.Header().Set("Content-Type", "application/json")
		if err := doc.WriteJSON(w); err != nil {
			h.logger.Error("export write failed", zap.Error(err))
		}
		return
	}

	bundle, err := h.mapper.MapDocument(doc, time.Now())
	if err != nil {
		writeOutcome(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(http.StatusOK)
	if err := jsonEncoder(w).Encode(bundle); err != nil {
		h.logger.Error("export write failed", zap.Error(err))
	}
}

func requestMeta(r *http.Request) app.Meta {
	return app.Meta{
		IdempotencyKey: r.Header.Get(idempotency.HeaderName),
		CorrelationID:  middleware.GetRequestID(r.Context()),
	}
}
