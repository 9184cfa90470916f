package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kindred/internal/batch"
	"kindred/internal/domain"
	"kindred/internal/engine"
	"kindred/internal/identity"
	"kindred/internal/reconcile"
	"kindred/pkg/platform/sentinel"
)

// HealthChecker is anything with a pingable backing connection.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler is the thin HTTP layer over the resolution engine. It decodes,
// delegates, and encodes; resolution semantics stay in the engine.
type Handler struct {
	engine      *engine.Service
	identities  identity.Store
	runner      *batch.Orchestrator
	checkpoints batch.CheckpointStore
	health      map[string]HealthChecker
	logger      *slog.Logger
}

func New(
	eng *engine.Service,
	identities identity.Store,
	runner *batch.Orchestrator,
	checkpoints batch.CheckpointStore,
	health map[string]HealthChecker,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		engine:      eng,
		identities:  identities,
		runner:      runner,
		checkpoints: checkpoints,
		health:      health,
		logger:      logger,
	}
}

type signalRequest struct {
	Kind            string `json:"kind"`
	SignalID        string `json:"signal_id"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Zip             string `json:"zip"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	EmailHash       string `json:"email_hash"`
	IPHash          string `json:"ip_hash"`
	FingerprintHash string `json:"fingerprint_hash"`
	IPRegion        string `json:"ip_region"`
	AccountID       string `json:"account_id"`
	CommitteeID     string `json:"committee_id"`
	TransactionID   string `json:"transaction_id"`
	SourceTag       string `json:"source_tag"`
	AmountCents     int64  `json:"amount_cents"`
}

func (req signalRequest) toSignal() domain.Signal {
	return domain.Signal{
		Kind:            domain.SignalKind(req.Kind),
		SignalID:        req.SignalID,
		RawName:         req.Name,
		RawAddress:      req.Address,
		RawCity:         req.City,
		RawState:        req.State,
		RawZip:          req.Zip,
		Email:           req.Email,
		Phone:           req.Phone,
		EmailHash:       req.EmailHash,
		IPHash:          req.IPHash,
		FingerprintHash: req.FingerprintHash,
		IPRegion:        req.IPRegion,
		AccountID:       req.AccountID,
		CommitteeID:     req.CommitteeID,
		TransactionID:   req.TransactionID,
		SourceTag:       req.SourceTag,
		AmountCents:     req.AmountCents,
	}
}

type resolveResponse struct {
	IdentityID *uuid.UUID     `json:"identity_id,omitempty"`
	Method     domain.Method  `json:"method"`
	Confidence float64        `json:"confidence"`
	Region     string         `json:"region,omitempty"`
	Decision   reconcile.Kind `json:"decision"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewInputError("decode signal", err))
		return
	}
	sig := req.toSignal()
	if sig.Kind != domain.SignalLiveVisitor && sig.Kind != domain.SignalImportRecord {
		writeError(w, domain.NewInputError("decode signal", errors.New("unknown signal kind")))
		return
	}

	result, decision, err := h.engine.Process(ctx, sig)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve failed", "signal_id", sig.SignalID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		IdentityID: result.IdentityID,
		Method:     result.Method,
		Confidence: result.Confidence,
		Region:     result.Region,
		Decision:   decision.Kind,
	})
}

type batchRunRequest struct {
	RunID     string          `json:"run_id"`
	SourceTag string          `json:"source_tag"`
	Records   []signalRequest `json:"records"`
}

type batchRunResponse struct {
	RunID    string `json:"run_id"`
	Chunks   int    `json:"chunks"`
	Attached int    `json:"attached"`
	Created  int    `json:"created"`
	Deferred int    `json:"deferred"`
}

// handleBatchRun drives an import run synchronously. Re-posting the same
// run id resumes from the last committed checkpoint.
func (h *Handler) handleBatchRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewInputError("decode batch run", err))
		return
	}
	if req.RunID == "" {
		writeError(w, domain.NewInputError("decode batch run", errors.New("run_id required")))
		return
	}

	signals := make(chan domain.Signal)
	go func() {
		defer close(signals)
		for _, rec := range req.Records {
			rec.Kind = string(domain.SignalImportRecord)
			if rec.SourceTag == "" {
				rec.SourceTag = req.SourceTag
			}
			select {
			case signals <- rec.toSignal():
			case <-ctx.Done():
				return
			}
		}
	}()

	report, err := h.runner.Run(ctx, req.RunID, req.SourceTag, signals)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch run failed", "run_id", req.RunID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchRunResponse{
		RunID:    report.RunID,
		Chunks:   report.Chunks,
		Attached: report.Attached,
		Created:  report.Created,
		Deferred: report.Deferred,
	})
}

func (h *Handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")

	cp, err := h.checkpoints.Get(ctx, runID)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run"})
		return
	}
	if err != nil {
		writeError(w, domain.NewDependencyError("load checkpoint", err))
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

type identityResponse struct {
	ID                  uuid.UUID `json:"id"`
	LastName            string    `json:"last_name"`
	FirstName           string    `json:"first_name"`
	MiddleName          string    `json:"middle_name,omitempty"`
	Suffix              string    `json:"suffix,omitempty"`
	City                string    `json:"city,omitempty"`
	State               string    `json:"state,omitempty"`
	Zip5                string    `json:"zip5,omitempty"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	LifetimeAmountCents int64     `json:"lifetime_amount_cents"`
	GiftCount           int       `json:"gift_count"`
}

func (h *Handler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "identityID"))
	if err != nil {
		writeError(w, domain.NewInputError("parse identity id", err))
		return
	}
	ident, err := h.identities.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown identity"})
		return
	}
	if err != nil {
		writeError(w, domain.NewDependencyError("load identity", err))
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{
		ID:                  ident.ID,
		LastName:            ident.LastName,
		FirstName:           ident.FirstName,
		MiddleName:          ident.MiddleName,
		Suffix:              ident.Suffix,
		City:                ident.City,
		State:               ident.State,
		Zip5:                ident.Zip5,
		Email:               ident.Email,
		Phone:               ident.Phone,
		LifetimeAmountCents: ident.LifetimeAmountCents,
		GiftCount:           ident.GiftCount,
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, hc := range h.health {
		if err := hc.Health(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, checks)
}
