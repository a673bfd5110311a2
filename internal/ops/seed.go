package ops

import (
	"context"

	"scheda/internal/docstore"
	"scheda/internal/varie"
)

// SeedVarie writes the shared utility document with the standard
// multiplier tables and combat costs, unless one already exists.
// Returns true when a document was written.
func SeedVarie(ctx context.Context, store *docstore.Store) (bool, error) {
	snap, err := store.Get(ctx, varie.Collection, varie.DocID)
	if err != nil {
		return false, err
	}
	if snap.Exists() {
		return false, nil
	}
	err = store.Set(ctx, varie.Collection, varie.DocID, map[string]any{
		"hpMultByLevel": map[string]any{
			"1": 5, "2": 5, "3": 6, "4": 6, "5": 6,
			"6": 7, "7": 7, "8": 7, "9": 8, "10": 8,
		},
		"manaMultByLevel": map[string]any{
			"1": 7, "2": 7, "3": 8, "4": 8, "5": 8,
			"6": 9, "7": 9, "8": 9, "9": 10, "10": 10,
		},
		"cost_params_combat": map[string]any{
			"Salute": 2, "Mira": 2, "Attacco": 3, "Critico": 3,
			"Difesa": 2, "RiduzioneDanni": 3, "Disciplina": 2,
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
