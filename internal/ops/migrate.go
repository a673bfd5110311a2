package ops

import (
	"context"
	"encoding/json"
	"log"

	"scheda/internal/character"
	"scheda/internal/docstore"
)

// MigrateInventories rewrites every user document whose inventory still
// carries legacy bare-string entries into the canonical {id, qty} shape,
// merging duplicate ids. Already-canonical documents are left untouched.
// Returns the number of documents rewritten.
func MigrateInventories(ctx context.Context, store *docstore.Store, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	snaps, err := store.List(ctx, character.Collection)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, snap := range snaps {
		var doc character.Doc
		if err := snap.DataTo(&doc); err != nil {
			logger.Printf("ops: migrate: skip malformed user %s: %v", snap.ID, err)
			continue
		}
		norm, changed := character.NormalizeInventory(doc.Inventory)
		if !changed {
			continue
		}
		invData, err := entriesData(norm)
		if err != nil {
			return migrated, err
		}
		if err := store.Update(ctx, character.Collection, snap.ID, map[string]any{
			"inventory": invData,
		}); err != nil {
			return migrated, err
		}
		logger.Printf("ops: migrate: normalized inventory of %s (%d entries)", snap.ID, len(norm))
		migrated++
	}
	return migrated, nil
}

func entriesData(inv []character.InventoryEntry) ([]any, error) {
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
