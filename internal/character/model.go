// Package character models the user document: stats, the Parametri
// attribute tables, the inventory and the equipped slots.
package character

import (
	"encoding/json"
	"fmt"
)

// Collection is the document store collection holding user documents,
// keyed by user id.
const Collection = "users"

const (
	RoleDM     = "dm"
	RolePlayer = "player"
)

// Doc is the user document. Unknown top-level fields written by other
// flows are not modeled here; all mutation in this codebase goes through
// field-path updates, which leave them untouched.
type Doc struct {
	Role           string            `json:"role,omitempty"`
	CharacterID    string            `json:"characterId,omitempty"`
	Stats          Stats             `json:"stats"`
	Parametri      Parametri         `json:"Parametri,omitempty"`
	AltriParametri map[string]string `json:"AltriParametri,omitempty"`
	Inventory      []InventoryEntry  `json:"inventory,omitempty"`
	Equipped       map[string]any    `json:"equipped,omitempty"`
	TurnEffects    *TurnEffects      `json:"active_turn_effect,omitempty"`
}

type Stats struct {
	Gold                  int `json:"gold"`
	Level                 int `json:"level"`
	HPCurrent             int `json:"hpCurrent"`
	HPTotal               int `json:"hpTotal"`
	ManaCurrent           int `json:"manaCurrent"`
	ManaTotal             int `json:"manaTotal"`
	BarrieraCurrent       int `json:"barrieraCurrent"`
	BarrieraTotal         int `json:"barrieraTotal"`
	BasePointsAvailable   int `json:"basePointsAvailable"`
	BasePointsSpent       int `json:"basePointsSpent"`
	CombatTokensAvailable int `json:"combatTokensAvailable"`
	CombatTokensSpent     int `json:"combatTokensSpent"`
}

// ParamRecord is one stat line. Tot must equal the sum of the other four
// whenever the record changes; the derive triggers enforce that.
type ParamRecord struct {
	Base  float64 `json:"Base"`
	Anima float64 `json:"Anima"`
	Equip float64 `json:"Equip"`
	Mod   float64 `json:"Mod"`
	Tot   float64 `json:"Tot"`
}

func (r ParamRecord) Total() float64 {
	return r.Base + r.Anima + r.Equip + r.Mod
}

type ParamTable map[string]ParamRecord

type Parametri struct {
	Base          ParamTable `json:"Base,omitempty"`
	Combattimento ParamTable `json:"Combattimento,omitempty"`
	Special       ParamTable `json:"Special,omitempty"`
}

// Resolve is the formula-evaluator binding: an identifier is the sum of
// the same-named Base and Combattimento totals; unknown names are 0.
func (p Parametri) Resolve(name string) float64 {
	return p.Base[name].Tot + p.Combattimento[name].Tot
}

type TurnEffects struct {
	Barriera *Barriera `json:"barriera,omitempty"`
}

type Barriera struct {
	RemainingTurns int `json:"remainingTurns"`
	TotalTurns     int `json:"totalTurns"`
}

type EntryKind int

const (
	// EntryLegacyID is the legacy inventory shape: a bare item-id string,
	// counting as one implicit unit.
	EntryLegacyID EntryKind = iota
	// EntryStack is the canonical shape: {id, qty, ...optional item copy}.
	EntryStack
)

// InventoryEntry is the tagged union behind the inventory's two on-disk
// shapes. The Kind is preserved through marshal/unmarshal so untouched
// legacy entries stay legacy at rest.
type InventoryEntry struct {
	Kind EntryKind
	ID   string
	Qty  int
	// Extra carries the optional full item copy stored alongside id/qty.
	Extra map[string]any
}

func LegacyEntry(id string) InventoryEntry {
	return InventoryEntry{Kind: EntryLegacyID, ID: id, Qty: 1}
}

func StackEntry(id string, qty int) InventoryEntry {
	return InventoryEntry{Kind: EntryStack, ID: id, Qty: qty}
}

func (e InventoryEntry) MarshalJSON() ([]byte, error) {
	if e.Kind == EntryLegacyID {
		return json.Marshal(e.ID)
	}
	obj := make(map[string]any, len(e.Extra)+2)
	for k, v := range e.Extra {
		obj[k] = v
	}
	obj["id"] = e.ID
	obj["qty"] = e.Qty
	return json.Marshal(obj)
}

func (e *InventoryEntry) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*e = LegacyEntry(id)
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("inventory entry is neither string nor object: %w", err)
	}
	out := InventoryEntry{Kind: EntryStack, Qty: 1}
	if v, ok := obj["id"].(string); ok {
		out.ID = v
	}
	if v, ok := obj["qty"].(float64); ok && v >= 1 {
		out.Qty = int(v)
	}
	delete(obj, "id")
	delete(obj, "qty")
	if len(obj) > 0 {
		out.Extra = obj
	}
	*e = out
	return nil
}

// FindEntry returns the index of the first entry matching id, or -1.
func FindEntry(inv []InventoryEntry, id string) int {
	for i, e := range inv {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// NormalizeInventory converts every legacy entry to the canonical stack
// shape and merges duplicate ids by summing quantities. Order follows the
// first occurrence of each id. The second return reports whether anything
// changed.
func NormalizeInventory(inv []InventoryEntry) ([]InventoryEntry, bool) {
	changed := false
	var out []InventoryEntry
	index := map[string]int{}
	for _, e := range inv {
		if i, ok := index[e.ID]; ok {
			out[i].Qty += e.Qty
			changed = true
			continue
		}
		if e.Kind == EntryLegacyID {
			e = StackEntry(e.ID, e.Qty)
			changed = true
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out, changed
}
