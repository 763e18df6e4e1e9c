package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

type inventoryRow struct {
	bun.BaseModel `bun:"table:inventory_items"`

	PartID       string `bun:"part_id,pk"`
	Name         string `bun:"name,notnull"`
	Region       string `bun:"region,notnull"`
	Stock        int    `bun:"stock,notnull"`
	ReorderPoint int    `bun:"reorder_point,notnull"`
}

var _ InventorySource = (*BunInventory)(nil)

// BunInventory reads part stock from the inventory_items table.
type BunInventory struct {
	db *bun.DB
}

func NewBunInventory(ctx context.Context, db *bun.DB) (*BunInventory, error) {
	if db == nil {
		return nil, errors.New("inventory: db is required")
	}
	if _, err := db.NewCreateTable().Model((*inventoryRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("inventory: create table: %w", err)
	}
	return &BunInventory{db: db}, nil
}

// Seed inserts items, leaving existing rows untouched.
func (b *BunInventory) Seed(ctx context.Context, items []InventoryItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]inventoryRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, inventoryRow{
			PartID:       it.PartID,
			Name:         it.Name,
			Region:       it.Region,
			Stock:        it.Stock,
			ReorderPoint: it.ReorderPoint,
		})
	}
	if _, err := b.db.NewInsert().Model(&rows).On("CONFLICT (part_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("inventory: seed: %w", err)
	}
	return nil
}

func (b *BunInventory) SetStock(ctx context.Context, partID string, stock int) error {
	_, err := b.db.NewUpdate().
		Model((*inventoryRow)(nil)).
		Set("stock = ?", stock).
		Where("part_id = ?", partID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("inventory: set stock %s: %w", partID, err)
	}
	return nil
}

func (b *BunInventory) Query(ctx context.Context, q InventoryQuery) ([]InventoryItem, error) {
	var rows []inventoryRow
	sel := b.db.NewSelect().Model(&rows).Order("part_id ASC")
	if r := strings.TrimSpace(q.Region); r != "" {
		sel = sel.Where("LOWER(region) = ?", strings.ToLower(r))
	}
	if p := strings.TrimSpace(q.PartID); p != "" {
		sel = sel.Where("LOWER(part_id) = ?", strings.ToLower(p))
	}
	if q.LowStockOnly {
		sel = sel.Where("stock <= reorder_point")
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("inventory: query: %w", err)
	}

	out := make([]InventoryItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, InventoryItem{
			PartID:       r.PartID,
			Name:         r.Name,
			Region:       r.Region,
			Stock:        r.Stock,
			ReorderPoint: r.ReorderPoint,
		})
	}
	return out, nil
}
