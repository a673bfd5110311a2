package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"scheda/internal/bazaar"
	"scheda/internal/character"
	"scheda/internal/config"
	"scheda/internal/dm"
	"scheda/internal/docstore"
	"scheda/internal/varie"
)

// App holds the wired services the handlers depend on.
type App struct {
	Store  *docstore.Store
	Config *config.Config
	Bazaar *bazaar.Service
	DM     *dm.Service
	Varie  *varie.Source
	Logger *log.Logger

	BootNow time.Time
}

// Close releases the underlying document store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the service sentinels onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		http.Error(w, err.Error(), 404)
	case errors.Is(err, dm.ErrInvalidArgument), errors.Is(err, dm.ErrUnknownStat),
		errors.Is(err, bazaar.ErrBadSlot):
		http.Error(w, err.Error(), 400)
	case errors.Is(err, dm.ErrInsufficientPoints), errors.Is(err, dm.ErrMinimumValue),
		errors.Is(err, dm.ErrNotPlayer):
		http.Error(w, err.Error(), 409)
	default:
		http.Error(w, err.Error(), 500)
	}
}

// callerID identifies the requesting user. Auth proper is out of scope;
// the id travels in a header the same way the UI would send a session.
func callerID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// requireDM loads the caller's sheet and checks the dm role. It writes
// the response itself on failure.
func (app *App) requireDM(w http.ResponseWriter, r *http.Request) bool {
	id := callerID(r)
	if id == "" {
		http.Error(w, "X-User-Id header is required", 401)
		return false
	}
	snap, err := app.Store.Get(r.Context(), character.Collection, id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return false
	}
	var doc character.Doc
	if !snap.Exists() || snap.DataTo(&doc) != nil || doc.Role != character.RoleDM {
		http.Error(w, "dm role required", 403)
		return false
	}
	return true
}

func RegisterAPIRoutes(mux *http.ServeMux, rr *RouteRegistry, app *App) {
	store := app.Store

	// Marketplace as one user sees it
	Handle(mux, rr, "GET /api/items", "List visible items", "", func(w http.ResponseWriter, r *http.Request) {
		items, err := app.Bazaar.ListVisible(r.Context(), r.URL.Query().Get("userId"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, items)
	})

	Handle(mux, rr, "GET /api/items/{id}", "Read one item", "", func(w http.ResponseWriter, r *http.Request) {
		it, err := app.Bazaar.GetItem(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, it)
	})

	// Item authoring (DM only)
	Handle(mux, rr, "POST /api/items", "Create or replace an item", `{"General":{"Nome":"Spada","prezzo":40,"slot":"arma"}}`, func(w http.ResponseWriter, r *http.Request) {
		if !app.requireDM(w, r) {
			return
		}
		var it bazaar.Item
		if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		id, err := app.Bazaar.SaveItem(r.Context(), it)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, map[string]string{"id": id})
	})

	Handle(mux, rr, "DELETE /api/items/{id}", "Delete an item", "", func(w http.ResponseWriter, r *http.Request) {
		if !app.requireDM(w, r) {
			return
		}
		if err := app.Bazaar.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	// Purchase: one unit of an item into the caller's inventory
	Handle(mux, rr, "POST /api/bazaar/acquire", "Purchase one item unit", `{"userId":"u1","itemId":"pozione"}`, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"userId"`
			ItemID string `json:"itemId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		item, err := app.Bazaar.GetItem(r.Context(), body.ItemID)
		if err != nil {
			writeError(w, err)
			return
		}
		res := app.Bazaar.AcquireItem(r.Context(), body.UserID, item)
		switch res.Status {
		case bazaar.StatusInvalidUser, bazaar.StatusInvalidItem, bazaar.StatusInvalidPrice:
			w.WriteHeader(400)
		case bazaar.StatusUserNotFound:
			w.WriteHeader(404)
		case bazaar.StatusError:
			w.WriteHeader(500)
		}
		writeJSON(w, res)
	})

	// Character sheets
	Handle(mux, rr, "GET /api/users/{id}", "Read a character sheet", "", func(w http.ResponseWriter, r *http.Request) {
		snap, err := store.Get(r.Context(), character.Collection, r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !snap.Exists() {
			http.Error(w, "user not found", 404)
			return
		}
		writeJSON(w, snap.Data())
	})

	Handle(mux, rr, "PATCH /api/users/{id}", "Apply field-path updates to a sheet", `{"stats.hpCurrent":12}`, func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		if len(fields) == 0 {
			http.Error(w, "no fields to update", 400)
			return
		}
		if err := store.Update(r.Context(), character.Collection, r.PathValue("id"), fields); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	Handle(mux, rr, "POST /api/users/{id}/equip", "Equip an item into a slot", `{"itemId":"spada","slot":"arma"}`, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ItemID string `json:"itemId"`
			Slot   string `json:"slot"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		item, err := app.Bazaar.GetItem(r.Context(), body.ItemID)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := app.Bazaar.Equip(r.Context(), r.PathValue("id"), body.Slot, item); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	Handle(mux, rr, "POST /api/users/{id}/unequip", "Empty an equipment slot", `{"slot":"arma"}`, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Slot string `json:"slot"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		if err := app.Bazaar.Unequip(r.Context(), r.PathValue("id"), body.Slot); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"ok": true})
	})

	Handle(mux, rr, "POST /api/users/{id}/spend-point", "Spend or refund a character point", `{"statName":"Forza","statType":"Base","change":1}`, func(w http.ResponseWriter, r *http.Request) {
		var req dm.SpendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		res, err := app.DM.SpendPoint(r.Context(), r.PathValue("id"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	// DM operations
	Handle(mux, rr, "POST /api/dm/level-up", "Level one player up", `{"userId":"u1"}`, func(w http.ResponseWriter, r *http.Request) {
		if !app.requireDM(w, r) {
			return
		}
		var body struct {
			UserID string `json:"userId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		res, err := app.DM.LevelUpUser(r.Context(), body.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	Handle(mux, rr, "POST /api/dm/level-up-all", "Level every player up", "", func(w http.ResponseWriter, r *http.Request) {
		if !app.requireDM(w, r) {
			return
		}
		results, err := app.DM.LevelUpAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "updated": results})
	})

	// Shared utility document
	Handle(mux, rr, "GET /api/utils/varie", "Read the shared utility document", "", func(w http.ResponseWriter, r *http.Request) {
		doc, err := app.Varie.Get(r.Context())
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		writeJSON(w, doc)
	})

	Handle(mux, rr, "PUT /api/utils/varie", "Replace the shared utility document", `{"hpMultByLevel":{"1":5}}`, func(w http.ResponseWriter, r *http.Request) {
		if !app.requireDM(w, r) {
			return
		}
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			http.Error(w, "invalid json body", 400)
			return
		}
		if err := store.Set(r.Context(), varie.Collection, varie.DocID, data); err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		app.Varie.Invalidate()
		writeJSON(w, map[string]bool{"ok": true})
	})
}
