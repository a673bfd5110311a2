// Package bazaar is the shared marketplace: purchasable items, the
// purchase transaction, and equip/unequip.
package bazaar

import (
	"strconv"
	"strings"
)

// Collection is the document store collection holding item documents.
const Collection = "items"

const (
	VisibilityAll     = "all"
	VisibilityCustom  = "custom"
	VisibilityPrivate = "private"
)

type Item struct {
	ID           string     `json:"id,omitempty"`
	General      General    `json:"General"`
	ItemType     string     `json:"item_type,omitempty"`
	Parametri    ItemParams `json:"Parametri,omitempty"`
	Visibility   string     `json:"visibility,omitempty"`
	AllowedUsers []string   `json:"allowed_users,omitempty"`
}

type General struct {
	Nome string `json:"Nome,omitempty"`
	// Prezzo is loosely typed in stored data (number or numeric string);
	// coercePrice normalizes it.
	Prezzo any    `json:"prezzo,omitempty"`
	Slot   string `json:"slot,omitempty"`
}

// ItemParams are the item's leveled stat tables: section -> stat name ->
// level key -> value. A value is either a numeric literal or a formula
// evaluated against the wearer's attribute totals.
type ItemParams struct {
	Base          map[string]LevelTable `json:"Base,omitempty"`
	Combattimento map[string]LevelTable `json:"Combattimento,omitempty"`
	Special       map[string]LevelTable `json:"Special,omitempty"`
}

type LevelTable map[string]string

// At returns the value string for a level, falling back to the highest
// listed level below it.
func (t LevelTable) At(level int) string {
	if v, ok := t[strconv.Itoa(level)]; ok {
		return v
	}
	best := ""
	bestLevel := 0
	for k, v := range t {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if n <= level && n > bestLevel {
			best, bestLevel = v, n
		}
	}
	return best
}

// VisibleTo reports whether a user sees this item in the marketplace.
// Private items never list; DM tooling reads the collection directly.
func (it Item) VisibleTo(userID string) bool {
	switch it.Visibility {
	case "", VisibilityAll:
		return true
	case VisibilityCustom:
		for _, u := range it.AllowedUsers {
			if u == userID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// coercePrice normalizes General.prezzo to a non-negative integer.
// Non-numeric or negative values are rejected.
func coercePrice(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		if n < 0 {
			return 0, false
		}
		return int(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return n, true
	case string:
		p, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || p < 0 {
			return 0, false
		}
		return p, true
	default:
		return 0, false
	}
}
