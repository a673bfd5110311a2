package bazaar

import (
	"context"
	"encoding/json"
	"fmt"

	"scheda/internal/character"
	"scheda/internal/docstore"
)

type PurchaseStatus string

const (
	StatusSuccess      PurchaseStatus = "success"
	StatusInsufficient PurchaseStatus = "insufficient"
	StatusInvalidUser  PurchaseStatus = "invalid_user"
	StatusInvalidItem  PurchaseStatus = "invalid_item"
	StatusInvalidPrice PurchaseStatus = "invalid_price"
	StatusUserNotFound PurchaseStatus = "user_not_found"
	// StatusError covers unexpected store/transport failures only; every
	// business-rule outcome has its own status above.
	StatusError PurchaseStatus = "error"
)

// PurchaseResult is the structured outcome of AcquireItem. Business-rule
// failures are values here, never Go errors.
type PurchaseResult struct {
	Status PurchaseStatus `json:"status"`
	// newGold and newQty stay on the wire even at zero: an exact-gold
	// purchase legitimately leaves newGold at 0.
	NewGold int    `json:"newGold"`
	NewQty  int    `json:"newQty"`
	Price   int    `json:"price"`
	Gold    int    `json:"gold"`
	Err     string `json:"error,omitempty"`
}

func (r PurchaseResult) OK() bool { return r.Status == StatusSuccess }

// AcquireItem transfers one unit of item into the user's inventory,
// charging stats.gold, inside a single optimistic transaction. Two
// concurrent purchases by the same user serialize on the store's retry
// loop: the later one observes the debited balance.
func (s *Service) AcquireItem(ctx context.Context, userID string, item Item) PurchaseResult {
	if userID == "" {
		return PurchaseResult{Status: StatusInvalidUser}
	}
	if item.ID == "" {
		return PurchaseResult{Status: StatusInvalidItem}
	}
	price, ok := coercePrice(item.General.Prezzo)
	if !ok {
		return PurchaseResult{Status: StatusInvalidPrice}
	}

	var result PurchaseResult
	err := s.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		snap, err := tx.Get(character.Collection, userID)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			result = PurchaseResult{Status: StatusUserNotFound, Price: price}
			return nil
		}
		var doc character.Doc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}

		gold := doc.Stats.Gold
		if price > gold {
			// Normal business outcome: abort with no writes.
			result = PurchaseResult{Status: StatusInsufficient, Price: price, Gold: gold}
			return nil
		}

		inv := doc.Inventory
		newQty := 1
		switch i := character.FindEntry(inv, item.ID); {
		case i < 0:
			inv = append(inv, character.StackEntry(item.ID, 1))
		case inv[i].Kind == character.EntryLegacyID:
			// The pre-existing bare entry counted as one implicit unit.
			inv[i] = character.StackEntry(item.ID, 2)
			newQty = 2
		default:
			inv[i].Qty++
			newQty = inv[i].Qty
		}

		invData, err := inventoryData(inv)
		if err != nil {
			return err
		}
		newGold := gold - price
		tx.Update(character.Collection, userID, map[string]any{
			"stats.gold": newGold,
			"inventory":  invData,
		})
		result = PurchaseResult{
			Status:  StatusSuccess,
			NewGold: newGold,
			NewQty:  newQty,
			Price:   price,
			Gold:    gold,
		}
		return nil
	})
	if err != nil {
		s.logger.Printf("bazaar: purchase %s for %s: %v", item.ID, userID, err)
		return PurchaseResult{Status: StatusError, Price: price, Err: err.Error()}
	}
	return result
}

// inventoryData converts entries to their plain JSON shape for a
// field-path update.
func inventoryData(inv []character.InventoryEntry) ([]any, error) {
	b, err := json.Marshal(inv)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}
