package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"scheda/internal/bazaar"
	"scheda/internal/character"
	"scheda/internal/config"
	"scheda/internal/docstore"
	"scheda/internal/serverapp"
	"scheda/internal/varie"
)

// Dev entrypoint: in-memory store, demo data. Production runs cmd/server.
func main() {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Store.Backend = "memory"
	cfg.ApplyDefaults()
	cfg = config.FromEnv(cfg)

	handler, app, err := serverapp.NewHandler(serverapp.Options{
		Config: cfg,
		Logger: log.Default(),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	if err := seedDemo(ctx, app.Store); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("scheda listening on %s\n", cfg.Server.Addr)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, handler))
}

func seedDemo(ctx context.Context, store *docstore.Store) error {
	if err := store.Set(ctx, varie.Collection, varie.DocID, map[string]any{
		"hpMultByLevel":   map[string]any{"1": 5, "2": 5, "3": 6, "4": 6},
		"manaMultByLevel": map[string]any{"1": 7, "2": 7, "3": 8, "4": 8},
		"cost_params_combat": map[string]any{
			"Salute": 2, "Mira": 2, "Attacco": 3, "Critico": 3,
			"Difesa": 2, "RiduzioneDanni": 3, "Disciplina": 2,
		},
	}); err != nil {
		return err
	}

	users := map[string]character.Doc{
		"dm": {Role: character.RoleDM},
		"aria": {
			Role:        character.RolePlayer,
			CharacterID: "aria",
			Stats: character.Stats{
				Gold: 120, Level: 1,
				BasePointsAvailable: 3,
			},
			Parametri: character.Parametri{
				Base: character.ParamTable{
					"Forza":     {Base: 2, Tot: 2},
					"Destrezza": {Base: 3, Tot: 3},
				},
				Combattimento: character.ParamTable{
					"Salute":     {Base: 8, Tot: 8},
					"Disciplina": {Base: 6, Tot: 6},
				},
			},
		},
	}
	for id, doc := range users {
		data, err := docstore.DataFrom(doc)
		if err != nil {
			return err
		}
		if err := store.Set(ctx, character.Collection, id, data); err != nil {
			return err
		}
	}

	items := map[string]bazaar.Item{
		"pozione": {General: bazaar.General{Nome: "Pozione", Prezzo: 15}},
		"spada_lunga": {
			General: bazaar.General{Nome: "Spada lunga", Prezzo: 60, Slot: "arma"},
			Parametri: bazaar.ItemParams{
				Base: map[string]bazaar.LevelTable{
					"Forza": {"1": "1", "3": "2"},
				},
			},
		},
	}
	for id, it := range items {
		data, err := docstore.DataFrom(it)
		if err != nil {
			return err
		}
		if err := store.Set(ctx, bazaar.Collection, id, data); err != nil {
			return err
		}
	}
	return nil
}
