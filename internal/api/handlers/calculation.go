// Package handlers provides HTTP handlers for the calculation API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/drfirst/go-sigcalc/internal/api/middleware"
	"github.com/drfirst/go-sigcalc/internal/calculator"
	"github.com/drfirst/go-sigcalc/internal/domain/dispense"
	"github.com/drfirst/go-sigcalc/internal/infrastructure/postgres"
	"github.com/drfirst/go-sigcalc/internal/quantity"
)

// PackageDirectory resolves candidate packages for an NDC when the
// caller does not supply them inline.
type PackageDirectory interface {
	IsConfigured() bool
	LookupPackages(ctx context.Context, ndc string) ([]dispense.Package, error)
}

// CalculationHandler handles calculation endpoints
type CalculationHandler struct {
	calc      *calculator.Calculator
	directory PackageDirectory
	audit     *postgres.AuditStore
	logger    *zap.Logger
}

// NewCalculationHandler creates a new handler. directory and audit may
// be nil; the handler then requires inline packages and skips auditing.
func NewCalculationHandler(calc *calculator.Calculator, directory PackageDirectory, audit *postgres.AuditStore, logger *zap.Logger) *CalculationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalculationHandler{
		calc:      calc,
		directory: directory,
		audit:     audit,
		logger:    logger,
	}
}

// Routes returns the handler routes
func (h *CalculationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Calculate)
	r.Post("/batch", h.CalculateBatch)
	r.Get("/", h.ListRecent)
	r.Get("/{id}", h.GetAudit)
	return r
}

// Calculate handles POST /calculations
func (h *CalculationHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("calculation-handler")
	ctx, span := tracer.Start(ctx, "calculate")
	defer span.End()

	var req calculator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, status, err := h.runCalculation(ctx, &req)
	if err != nil {
		h.jsonError(w, err.Error(), status)
		return
	}

	h.logger.Info("calculation completed",
		zap.String("calculation_id", result.CalculationID),
		zap.Float64("total_quantity", result.TotalQuantity),
		zap.Int("warnings", len(result.Warnings)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// BatchRequest is the request body for batch calculations
type BatchRequest struct {
	Calculations []calculator.Request `json:"calculations"`
}

// BatchItem is one entry in a batch response. Failed items carry an
// error instead of a result so one bad SIG does not sink the batch.
type BatchItem struct {
	Index  int                `json:"index"`
	Result *calculator.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// BatchResponse is the response for batch calculations
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// maxBatchSize bounds a single batch request
const maxBatchSize = 100

// CalculateBatch handles POST /calculations/batch
func (h *CalculationHandler) CalculateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("calculation-handler")
	ctx, span := tracer.Start(ctx, "calculate_batch")
	defer span.End()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Calculations) == 0 {
		h.jsonError(w, "calculations is required", http.StatusBadRequest)
		return
	}
	if len(req.Calculations) > maxBatchSize {
		h.jsonError(w, "batch too large", http.StatusRequestEntityTooLarge)
		return
	}

	span.SetAttributes(attribute.Int("batch_size", len(req.Calculations)))

	resp := BatchResponse{Items: make([]BatchItem, 0, len(req.Calculations))}
	for i := range req.Calculations {
		item := BatchItem{Index: i}
		result, _, err := h.runCalculation(ctx, &req.Calculations[i])
		if err != nil {
			item.Error = err.Error()
			resp.Failed++
		} else {
			item.Result = result
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, item)
	}

	h.logger.Info("batch completed",
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetAudit handles GET /calculations/{id}
func (h *CalculationHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.audit == nil {
		h.jsonError(w, "audit trail not available", http.StatusNotFound)
		return
	}

	rec, err := h.audit.GetByCalculationID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrAuditNotFound) {
			h.jsonError(w, "calculation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("audit lookup failed", zap.Error(err))
		h.jsonError(w, "failed to fetch calculation", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"calculation_id": rec.CalculationID,
		"drug_name":      rec.DrugName,
		"ndc":            rec.NDC,
		"sig_text":       rec.SIGText,
		"days_supply":    rec.DaysSupply,
		"total_quantity": rec.TotalQuantity,
		"warning_count":  rec.WarningCount,
		"result":         rec.Result,
		"created_at":     rec.CreatedAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListRecent handles GET /calculations, newest first. The limit query
// parameter caps the page; the store default applies when absent.
func (h *CalculationHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	if h.audit == nil {
		h.jsonError(w, "audit trail not available", http.StatusNotFound)
		return
	}

	records, err := h.audit.Recent(ctx, limit)
	if err != nil {
		h.logger.Error("audit list failed", zap.Error(err))
		h.jsonError(w, "failed to list calculations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"calculations": records,
		"count":        len(records),
	})
}

// runCalculation resolves packages, runs the pipeline, and records the
// audit entry. Returns an HTTP status alongside any error.
func (h *CalculationHandler) runCalculation(ctx context.Context, req *calculator.Request) (*calculator.Result, int, error) {
	// Resolve packages from the directory when none were supplied inline
	if len(req.Packages) == 0 && req.NDC != "" && h.directory != nil && h.directory.IsConfigured() {
		packages, err := h.directory.LookupPackages(ctx, req.NDC)
		if err != nil {
			// A directory miss is not fatal; the calculation proceeds
			// without a dispense plan
			h.logger.Warn("package lookup failed",
				zap.String("ndc", req.NDC),
				zap.Error(err))
		} else {
			req.Packages = packages
		}
	}

	result, err := h.calc.Calculate(ctx, req)
	if err != nil {
		var validationErr *calculator.ValidationError
		var daysErr *quantity.InvalidDaysSupplyError
		if errors.As(err, &validationErr) || errors.As(err, &daysErr) {
			return nil, http.StatusBadRequest, err
		}
		h.logger.Error("calculation failed", zap.Error(err))
		return nil, http.StatusInternalServerError, errors.New("calculation failed")
	}

	h.recordAudit(ctx, req, result)

	return result, http.StatusOK, nil
}

// recordAudit persists the calculation. Audit failures are logged and
// swallowed; the caller already has a valid result.
func (h *CalculationHandler) recordAudit(ctx context.Context, req *calculator.Request, result *calculator.Result) {
	if h.audit == nil {
		return
	}

	reqJSON, _ := json.Marshal(req)
	resultJSON, _ := json.Marshal(result)

	rec := &postgres.AuditRecord{
		CalculationID: result.CalculationID,
		PatientID:     req.PatientID,
		DrugName:      req.DrugName,
		NDC:           req.NDC,
		SIGText:       req.SIGText,
		DaysSupply:    req.DaysSupply,
		TotalQuantity: result.TotalQuantity,
		Request:       reqJSON,
		Result:        resultJSON,
		WarningCount:  len(result.Warnings),
	}

	if err := h.audit.Record(ctx, rec); err != nil {
		h.logger.Error("failed to record audit entry",
			zap.String("calculation_id", result.CalculationID),
			zap.Error(err))
	}
}

func (h *CalculationHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
