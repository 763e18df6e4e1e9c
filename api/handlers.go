package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

type scanRequest struct {
	Region string `json:"region"`
}

type purchaseRequest struct {
	PartID    string `json:"part_id"`
	Quantity  int    `json:"quantity"`
	RiskLevel string `json:"risk_level,omitempty"`
	Region    string `json:"region,omitempty"`
}

type resolveRequest struct {
	Decision string `json:"decision"`
	Actor    string `json:"actor"`
}

type reliabilityResponse struct {
	contractx.SupplierRecord
	History []contractx.ScoreAdjustment `json:"history"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "sentinell",
		"version": s.version,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	region := strings.TrimSpace(req.Region)
	if region == "" {
		writeError(r.Context(), w, fmt.Errorf("%w: region is required", contractx.ErrValidation), "")
		return
	}
	report, err := s.scanner.Scan(r.Context(), region)
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	req := contractx.PurchaseRequest{
		PartID:   body.PartID,
		Quantity: body.Quantity,
		Region:   body.Region,
	}
	if strings.TrimSpace(body.RiskLevel) != "" {
		lvl, err := contractx.ParseRiskLevel(body.RiskLevel)
		if err != nil {
			writeError(r.Context(), w, err, "")
			return
		}
		req.RiskLevel = lvl
	}

	out, err := s.procurement.Purchase(r.Context(), req)
	if err != nil {
		writeError(r.Context(), w, err, out.WorkflowID)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	decision, err := contractx.ParseDecision(body.Decision)
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	out, err := s.procurement.Resolve(r.Context(), r.PathValue("id"), decision, body.Actor)
	if err != nil {
		writeError(r.Context(), w, err, out.WorkflowID)
		return
	}
	writeOutcome(w, out)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.procurement.Pending(r.Context())
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": pending})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.procurement.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleReliability(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	rec, err := s.memory.GetReliability(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	history, err := s.memory.History(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, err, "")
		return
	}
	if history == nil {
		history = []contractx.ScoreAdjustment{}
	}
	writeJSON(w, http.StatusOK, reliabilityResponse{SupplierRecord: rec, History: history})
}

// writeOutcome answers 202 while a human still has to decide.
func writeOutcome(w http.ResponseWriter, out contractx.PurchaseOutcome) {
	status := http.StatusOK
	if out.Step == string(statex.StepAwaitApproval) {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", contractx.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error, workflowID string) {
	status := contractx.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(ctx).Error().Err(err).Str("workflow_id", workflowID).Msg("request failed")
	}
	writeJSON(w, status, errorBody{
		Code:       contractx.Code(err),
		Message:    err.Error(),
		WorkflowID: workflowID,
	})
}
