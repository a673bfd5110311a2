package dm

import (
	"context"
	"fmt"

	"scheda/internal/character"
	"scheda/internal/docstore"
)

// minStatBase is the floor a stat's Base component can be reduced to.
const minStatBase = 0

type StatType string

const (
	StatTypeBase   StatType = "Base"
	StatTypeCombat StatType = "Combat"
)

// SpendRequest changes one stat's Base component by one step, paying with
// the matching point pool: base stats cost one character point each,
// combat stats cost the per-stat token price from utils/varie.
type SpendRequest struct {
	StatName string   `json:"statName"`
	StatType StatType `json:"statType"`
	Change   int      `json:"change"`
}

// SpendResult reports the applied change.
type SpendResult struct {
	StatName  string   `json:"statName"`
	StatType  StatType `json:"statType"`
	NewBase   float64  `json:"newBase"`
	Cost      int      `json:"cost"`
	Available int      `json:"available"`
}

// SpendPoint applies one +1/-1 step to Parametri.<table>.<stat>.Base in a
// transaction. A decrease refunds the cost. Only the Base component is
// written; the totals triggers bring Tot, hpTotal and manaTotal along.
func (s *Service) SpendPoint(ctx context.Context, userID string, req SpendRequest) (SpendResult, error) {
	if userID == "" || req.StatName == "" {
		return SpendResult{}, fmt.Errorf("%w: userId and statName are required", ErrInvalidArgument)
	}
	if req.StatType != StatTypeBase && req.StatType != StatTypeCombat {
		return SpendResult{}, fmt.Errorf("%w: statType must be Base or Combat", ErrInvalidArgument)
	}
	if req.Change != 1 && req.Change != -1 {
		return SpendResult{}, fmt.Errorf("%w: change must be 1 or -1", ErrInvalidArgument)
	}

	cost := 1
	if req.StatType == StatTypeCombat {
		cfg, err := s.varie.Get(ctx)
		if err != nil {
			return SpendResult{}, fmt.Errorf("load combat costs: %w", err)
		}
		var ok bool
		cost, ok = cfg.CostParamsCombat[req.StatName]
		if !ok {
			return SpendResult{}, fmt.Errorf("%w: no combat cost for %s", ErrUnknownStat, req.StatName)
		}
	}

	var result SpendResult
	err := s.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
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

		// The wire name "Combat" selects the Combattimento table.
		table, tablePath := doc.Parametri.Base, "Parametri.Base."
		availField, spentField := "stats.basePointsAvailable", "stats.basePointsSpent"
		available, spent := doc.Stats.BasePointsAvailable, doc.Stats.BasePointsSpent
		if req.StatType == StatTypeCombat {
			table, tablePath = doc.Parametri.Combattimento, "Parametri.Combattimento."
			availField, spentField = "stats.combatTokensAvailable", "stats.combatTokensSpent"
			available, spent = doc.Stats.CombatTokensAvailable, doc.Stats.CombatTokensSpent
		}
		rec, ok := table[req.StatName]
		if !ok {
			return fmt.Errorf("%w: %s%s is not on the sheet", ErrUnknownStat, tablePath, req.StatName)
		}

		if req.Change == 1 && available < cost {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientPoints, cost, available)
		}
		if req.Change == -1 && rec.Base <= minStatBase {
			return fmt.Errorf("%w: %s base is %v", ErrMinimumValue, req.StatName, rec.Base)
		}

		delta := cost * req.Change // paid on increase, refunded on decrease
		newBase := rec.Base + float64(req.Change)
		tx.Update(character.Collection, userID, map[string]any{
			tablePath + req.StatName + ".Base": newBase,
			availField:                         available - delta,
			spentField:                         spent + delta,
		})
		result = SpendResult{
			StatName:  req.StatName,
			StatType:  req.StatType,
			NewBase:   newBase,
			Cost:      cost,
			Available: available - delta,
		}
		return nil
	})
	if err != nil {
		return SpendResult{}, err
	}
	return result, nil
}
