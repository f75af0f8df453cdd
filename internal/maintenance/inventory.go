package maintenance

import (
	"sort"
	"sync"
)

// PartStatus is a read-only view of one inventory entry.
type PartStatus struct {
	Name           string   `bson:"name" json:"name"`
	Stock          int      `bson:"stock" json:"stock"`
	Minimum        int      `bson:"minimum" json:"minimum"`
	FitsComponents []string `bson:"fits_components" json:"fits_components"`
}

type stockLevel struct {
	current int
	minimum int
}

// Inventory is the stock ledger for spare parts. Parts are referenced by
// name only; no equipment or work order owns inventory state.
type Inventory struct {
	mu    sync.Mutex
	stock map[string]stockLevel
	fits  map[string][]string
}

// NewInventory creates an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{
		stock: make(map[string]stockLevel),
		fits:  make(map[string][]string),
	}
}

// AddPart registers a part with its initial stock, minimum level and the
// component names it fits. Adding an existing part replaces its entry.
func (inv *Inventory) AddPart(name string, initialStock, minStock int, fitsComponents []string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.stock[name] = stockLevel{current: initialStock, minimum: minStock}
	inv.fits[name] = append([]string(nil), fitsComponents...)
}

// AdjustStock changes a part's stock by delta (restock or correction).
// Returns false for an unknown part or when the adjustment would make the
// stock negative.
func (inv *Inventory) AdjustStock(name string, delta int) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	level, ok := inv.stock[name]
	if !ok || level.current+delta < 0 {
		return false
	}
	level.current += delta
	inv.stock[name] = level
	return true
}

// ReservePart atomically checks and decrements stock for a part. Returns
// false, leaving stock untouched, when there is not enough on hand.
func (inv *Inventory) ReservePart(name string, quantity int) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	level, ok := inv.stock[name]
	if !ok || level.current < quantity {
		return false
	}
	level.current -= quantity
	inv.stock[name] = level
	return true
}

// GetStock returns the current quantity for a part, 0 if unknown.
func (inv *Inventory) GetStock(name string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stock[name].current
}

// PartsForComponent returns the names of parts that fit the given component.
func (inv *Inventory) PartsForComponent(componentName string) []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var parts []string
	for part, components := range inv.fits {
		for _, c := range components {
			if c == componentName {
				parts = append(parts, part)
				break
			}
		}
	}
	sort.Strings(parts)
	return parts
}

// LowStockAlerts returns the parts whose stock is at or below their minimum.
func (inv *Inventory) LowStockAlerts() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	var alerts []string
	for part, level := range inv.stock {
		if level.current <= level.minimum {
			alerts = append(alerts, part)
		}
	}
	sort.Strings(alerts)
	return alerts
}

// Parts returns a snapshot of every inventory entry, sorted by name.
func (inv *Inventory) Parts() []PartStatus {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	parts := make([]PartStatus, 0, len(inv.stock))
	for name, level := range inv.stock {
		parts = append(parts, PartStatus{
			Name:           name,
			Stock:          level.current,
			Minimum:        level.minimum,
			FitsComponents: append([]string(nil), inv.fits[name]...),
		})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Name < parts[j].Name })
	return parts
}
