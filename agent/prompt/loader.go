package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/investigator.txt
	investigatorRaw string

	//go:embed template/investigator_strict.txt
	investigatorStrictRaw string

	//go:embed template/compactor.txt
	compactorRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Investigator       string
	InvestigatorStrict string
	Compactor          string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Investigator:       strings.TrimSpace(investigatorRaw),
		InvestigatorStrict: strings.TrimSpace(investigatorStrictRaw),
		Compactor:          strings.TrimSpace(compactorRaw),
	}
}
