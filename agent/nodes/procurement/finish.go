package procurementnode

import (
	"fmt"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

func Finish(st *GraphState) (GraphOutput, error) {
	if st == nil || st.Workflow == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph workflow is nil", contractx.ErrValidation)
	}
	return GraphOutput{Outcome: st.Workflow.Result()}, nil
}
