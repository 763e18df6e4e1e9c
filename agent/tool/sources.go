package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

type NewsSource interface {
	Search(ctx context.Context, query string) ([]string, error)
}

type InventorySource interface {
	Query(ctx context.Context, q InventoryQuery) ([]InventoryItem, error)
}

// RateSource reports how many units of currency one USD buys.
type RateSource interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

type InventoryQuery struct {
	Region       string `json:"region,omitempty"`
	PartID       string `json:"part_id,omitempty"`
	LowStockOnly bool   `json:"low_stock_only,omitempty"`
}

type InventoryItem struct {
	PartID       string `json:"part_id"`
	Name         string `json:"name"`
	Region       string `json:"region"`
	Stock        int    `json:"stock"`
	ReorderPoint int    `json:"reorder_point"`
}

func (i InventoryItem) LowStock() bool { return i.Stock <= i.ReorderPoint }

func (i InventoryItem) String() string {
	status := "OK"
	if i.LowStock() {
		status = "LOW_STOCK"
	}
	return fmt.Sprintf("%s stock=%d reorder_point=%d region=%s %s", i.PartID, i.Stock, i.ReorderPoint, i.Region, status)
}

func (q InventoryQuery) matches(item InventoryItem) bool {
	if q.Region != "" && !strings.EqualFold(q.Region, item.Region) {
		return false
	}
	if q.PartID != "" && !strings.EqualFold(q.PartID, item.PartID) {
		return false
	}
	if q.LowStockOnly && !item.LowStock() {
		return false
	}
	return true
}

// GoldenNews serves a fixed set of headlines keyed by topic so demos and
// tests always see the same disruption picture.
type GoldenNews struct {
	topics map[string][]string
	// order in which topics are matched against a query
	order []string
}

var goldenHeadlines = map[string][]string{
	"taiwan": {
		"BREAKING: Magnitude 7.4 Earthquake strikes off east coast of Taiwan.",
		"Taiwan Semiconductor Manufacturing Co (TSMC) evacuates factory areas due to safety protocols.",
		"Global supply chain analysts predict 2-week delays in semiconductor shipments.",
	},
	"vietnam": {
		"Vietnam Port Authority reports normal operations despite heavy rains.",
		"Tech manufacturing exports from Hanoi see 5% growth this quarter.",
	},
	"logistics": {
		"Global container shipping rates stabilize after last month's spike.",
		"Air freight capacity increases on trans-pacific routes.",
	},
}

func NewGoldenNews() *GoldenNews {
	return NewGoldenNewsWith(goldenHeadlines, "taiwan", "vietnam", "logistics")
}

func NewGoldenNewsWith(topics map[string][]string, order ...string) *GoldenNews {
	if len(order) == 0 {
		for k := range topics {
			order = append(order, k)
		}
		sort.Strings(order)
	}
	return &GoldenNews{topics: topics, order: order}
}

// Search returns the headlines of the first topic mentioned in the query.
// Region topics win over the generic logistics feed.
func (g *GoldenNews) Search(_ context.Context, query string) ([]string, error) {
	q := strings.ToLower(query)
	for _, topic := range g.order {
		if strings.Contains(q, topic) {
			return append([]string(nil), g.topics[topic]...), nil
		}
	}
	if strings.Contains(q, "shipping") {
		if items, ok := g.topics["logistics"]; ok {
			return append([]string(nil), items...), nil
		}
	}
	return nil, nil
}

// StaticInventory is an in-memory InventorySource.
type StaticInventory struct {
	mu    sync.RWMutex
	items []InventoryItem
}

func NewStaticInventory(items ...InventoryItem) *StaticInventory {
	return &StaticInventory{items: append([]InventoryItem(nil), items...)}
}

func (s *StaticInventory) Query(_ context.Context, q InventoryQuery) ([]InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []InventoryItem
	for _, item := range s.items {
		if q.matches(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *StaticInventory) SetStock(partID string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].PartID == partID {
			s.items[i].Stock = stock
		}
	}
}

// SeedInventory is the demo warehouse: the Taiwan-made CPU is under its
// reorder point, everything else is healthy.
func SeedInventory() []InventoryItem {
	return []InventoryItem{
		{PartID: "Logic-Core-CPU", Name: "Logic Core CPU X1", Region: "Taiwan", Stock: 40, ReorderPoint: 100},
		{PartID: "Memory-DDR5", Name: "DDR5 Memory Module", Region: "Taiwan", Stock: 600, ReorderPoint: 200},
		{PartID: "Power-Board", Name: "Power Regulation Board", Region: "Vietnam", Stock: 350, ReorderPoint: 150},
		{PartID: "Sensor-Array", Name: "Optical Sensor Array", Region: "Vietnam", Stock: 220, ReorderPoint: 120},
	}
}

// StaticRates is a fixed USD exchange table.
type StaticRates map[string]float64

func DefaultRates() StaticRates {
	return StaticRates{
		"USD": 1,
		"EUR": 0.92,
		"TWD": 31.5,
		"JPY": 150.2,
		"VND": 24500,
		"GBP": 0.79,
	}
}

func (r StaticRates) Rate(_ context.Context, currency string) (float64, error) {
	rate, ok := r[strings.ToUpper(strings.TrimSpace(currency))]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: currency %q not supported", contractx.ErrValidation, currency)
	}
	return rate, nil
}
