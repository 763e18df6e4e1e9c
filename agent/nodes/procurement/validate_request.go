package procurementnode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
	statex "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/state"
)

func ValidateRequest(in StartInput, d *Deps) (*GraphState, error) {
	req := in.Request
	req.PartID = strings.TrimSpace(req.PartID)
	req.Region = strings.TrimSpace(req.Region)
	if req.RiskLevel != "" {
		lvl, err := contractx.ParseRiskLevel(string(req.RiskLevel))
		if err != nil {
			return nil, err
		}
		req.RiskLevel = lvl
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(d.NewID())
	if id == "" {
		return nil, fmt.Errorf("%w: empty workflow id", contractx.ErrValidation)
	}
	return &GraphState{
		Workflow: statex.NewWorkflow("WF-"+id, req, d.now()),
	}, nil
}
