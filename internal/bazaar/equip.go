package bazaar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"scheda/internal/character"
	"scheda/internal/docstore"
	"scheda/internal/formula"
)

// ErrBadSlot marks slot names the document model cannot hold.
var ErrBadSlot = errors.New("invalid slot name")

// Equip puts an item into a named slot on the user document and
// recomputes every Equip contribution from the full equipped set. Unequip
// runs the same recompute with the slot emptied, so Equip values never
// drift: they are always a pure function of what is worn.
func (s *Service) Equip(ctx context.Context, userID, slot string, item Item) error {
	if slot == "" {
		slot = item.General.Slot
	}
	if slot == "" {
		return fmt.Errorf("equip %s: no slot", item.ID)
	}
	return s.reslot(ctx, userID, slot, &item)
}

func (s *Service) Unequip(ctx context.Context, userID, slot string) error {
	if slot == "" {
		return fmt.Errorf("unequip: no slot")
	}
	return s.reslot(ctx, userID, slot, nil)
}

func (s *Service) reslot(ctx context.Context, userID, slot string, item *Item) error {
	// A dot would be read as a nested field path by the store's update.
	if strings.Contains(slot, ".") {
		return fmt.Errorf("slot %q: %w", slot, ErrBadSlot)
	}
	return s.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		snap, err := tx.Get(character.Collection, userID)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return fmt.Errorf("user %s: %w", userID, docstore.ErrNotFound)
		}
		var doc character.Doc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}

		if doc.Equipped == nil {
			doc.Equipped = map[string]any{}
		}
		if item == nil {
			doc.Equipped[slot] = nil
		} else {
			copyData, err := docstore.DataFrom(*item)
			if err != nil {
				return err
			}
			copyData["id"] = item.ID
			doc.Equipped[slot] = copyData
		}

		fields := map[string]any{"equipped." + slot: doc.Equipped[slot]}
		for path, v := range equipTotals(doc) {
			fields[path] = v
		}
		tx.Update(character.Collection, userID, fields)
		return nil
	})
}

// equipTotals computes the Equip component of every stat the user's
// Parametri tables know, as field-path updates. Contributions come from
// each equipped item's leveled tables at the wearer's level; formula
// values resolve against the wearer's attribute totals.
func equipTotals(doc character.Doc) map[string]any {
	level := doc.Stats.Level
	if level <= 0 {
		level = 1
	}

	base := map[string]float64{}
	combat := map[string]float64{}
	for _, raw := range doc.Equipped {
		it, ok := decodeEquipped(raw)
		if !ok {
			continue
		}
		addContributions(base, it.Parametri.Base, level, doc.Parametri)
		addContributions(combat, it.Parametri.Combattimento, level, doc.Parametri)
	}

	fields := map[string]any{}
	for name := range doc.Parametri.Base {
		fields["Parametri.Base."+name+".Equip"] = base[name]
	}
	for name := range doc.Parametri.Combattimento {
		fields["Parametri.Combattimento."+name+".Equip"] = combat[name]
	}
	return fields
}

func addContributions(acc map[string]float64, tables map[string]LevelTable, level int, params character.Parametri) {
	for name, table := range tables {
		raw := strings.TrimSpace(table.At(level))
		if raw == "" {
			continue
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			acc[name] += n
			continue
		}
		if v, ok := formula.Eval(raw, params.Resolve); ok {
			acc[name] += v
		}
		// Unparsable values contribute nothing.
	}
}

func decodeEquipped(raw any) (Item, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Item{}, false
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Item{}, false
	}
	var it Item
	if err := json.Unmarshal(b, &it); err != nil {
		return Item{}, false
	}
	return it, true
}
