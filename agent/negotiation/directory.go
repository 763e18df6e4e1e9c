package negotiation

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

// Directory maps supplier ids to their transports and knows which suppliers
// carry which parts.
type Directory struct {
	mu        sync.RWMutex
	suppliers map[string]contractx.Supplier
	// parts lists the catalog of a supplier; nil means every part.
	parts map[string]map[string]bool
}

func NewDirectory() *Directory {
	return &Directory{
		suppliers: map[string]contractx.Supplier{},
		parts:     map[string]map[string]bool{},
	}
}

// Register adds or replaces a supplier. With no parts the supplier is a
// candidate for every part.
func (d *Directory) Register(s contractx.Supplier, parts ...string) error {
	if s == nil || strings.TrimSpace(s.ID()) == "" {
		return fmt.Errorf("%w: supplier with id is required", contractx.ErrValidation)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppliers[s.ID()] = s
	if len(parts) == 0 {
		d.parts[s.ID()] = nil
		return nil
	}
	set := make(map[string]bool, len(parts))
	for _, p := range parts {
		set[strings.TrimSpace(p)] = true
	}
	d.parts[s.ID()] = set
	return nil
}

func (d *Directory) Get(supplierID string) (contractx.Supplier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.suppliers[supplierID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown supplier %s", contractx.ErrValidation, supplierID)
	}
	return s, nil
}

// Candidates returns the suppliers carrying partID in id order.
func (d *Directory) Candidates(partID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for id, parts := range d.parts {
		if parts == nil || parts[partID] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
