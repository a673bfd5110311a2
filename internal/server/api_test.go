package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheda/internal/bazaar"
	"scheda/internal/character"
	"scheda/internal/config"
	"scheda/internal/derive"
	"scheda/internal/dm"
	"scheda/internal/docstore"
	"scheda/internal/varie"
)

func newTestApp(t *testing.T) (*App, http.Handler) {
	t.Helper()
	store := docstore.NewMemoryStore()
	logger := log.Default()
	src := varie.NewSource(store, varie.NewCache[string, varie.Doc](time.Hour))
	derive.NewTriggers(store, src, logger).Register()

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	app := &App{
		Store:   store,
		Config:  cfg,
		Bazaar:  bazaar.NewService(store, logger),
		DM:      dm.NewService(store, src, cfg.Leveling.MaxLevel, logger),
		Varie:   src,
		Logger:  logger,
		BootNow: time.Now().UTC(),
	}
	mux := http.NewServeMux()
	rr := &RouteRegistry{}
	RegisterAPIRoutes(mux, rr, app)
	RegisterLiveRoutes(mux, rr, app)
	RegisterAdminUI(mux, rr)
	return app, mux
}

func seedUserDoc(t *testing.T, app *App, id string, doc character.Doc) {
	t.Helper()
	data, err := docstore.DataFrom(doc)
	require.NoError(t, err)
	require.NoError(t, app.Store.Set(context.Background(), character.Collection, id, data))
}

func seedItemDoc(t *testing.T, app *App, id string, it bazaar.Item) {
	t.Helper()
	data, err := docstore.DataFrom(it)
	require.NoError(t, err)
	require.NoError(t, app.Store.Set(context.Background(), bazaar.Collection, id, data))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_AcquireItem(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "u1", character.Doc{Stats: character.Stats{Gold: 100}})
	seedItemDoc(t, app, "pozione", bazaar.Item{General: bazaar.General{Nome: "Pozione", Prezzo: 40}})

	rec := doJSON(t, h, "POST", "/api/bazaar/acquire", map[string]string{
		"userId": "u1", "itemId": "pozione",
	}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	var res bazaar.PurchaseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, bazaar.StatusSuccess, res.Status)
	assert.Equal(t, 60, res.NewGold)

	// Insufficient is a business outcome, still 200
	seedItemDoc(t, app, "corazza", bazaar.Item{General: bazaar.General{Prezzo: 500}})
	rec = doJSON(t, h, "POST", "/api/bazaar/acquire", map[string]string{
		"userId": "u1", "itemId": "corazza",
	}, nil)
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, bazaar.StatusInsufficient, res.Status)

	// Exact-gold purchase: newGold is 0 and must still appear on the wire
	seedItemDoc(t, app, "elisir", bazaar.Item{General: bazaar.General{Nome: "Elisir", Prezzo: 60}})
	rec = doJSON(t, h, "POST", "/api/bazaar/acquire", map[string]string{
		"userId": "u1", "itemId": "elisir",
	}, nil)
	require.Equal(t, 200, rec.Code)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "success", raw["status"])
	newGold, present := raw["newGold"]
	require.True(t, present)
	assert.Equal(t, float64(0), newGold)
	_, present = raw["newQty"]
	assert.True(t, present)

	// Unknown item
	rec = doJSON(t, h, "POST", "/api/bazaar/acquire", map[string]string{
		"userId": "u1", "itemId": "niente",
	}, nil)
	assert.Equal(t, 404, rec.Code)

	// Unknown user
	rec = doJSON(t, h, "POST", "/api/bazaar/acquire", map[string]string{
		"userId": "nessuno", "itemId": "pozione",
	}, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestAPI_ListVisibleItems(t *testing.T) {
	app, h := newTestApp(t)
	seedItemDoc(t, app, "a", bazaar.Item{General: bazaar.General{Nome: "Arco"}})
	seedItemDoc(t, app, "p", bazaar.Item{General: bazaar.General{Nome: "Pugnale"}, Visibility: bazaar.VisibilityPrivate})

	rec := doJSON(t, h, "GET", "/api/items?userId=u1", nil, nil)
	require.Equal(t, 200, rec.Code)
	var items []bazaar.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Arco", items[0].General.Nome)
}

func TestAPI_PatchSheetRunsDerivation(t *testing.T) {
	app, h := newTestApp(t)
	require.NoError(t, app.Store.Set(context.Background(), varie.Collection, varie.DocID, map[string]any{
		"hpMultByLevel": map[string]any{"4": 6},
	}))
	seedUserDoc(t, app, "u1", character.Doc{
		Stats: character.Stats{Level: 4, HPTotal: 1},
		Parametri: character.Parametri{
			Combattimento: character.ParamTable{"Salute": {Base: 8, Tot: 8}},
		},
	})

	rec := doJSON(t, h, "PATCH", "/api/users/u1", map[string]any{
		"Parametri.Combattimento.Salute.Base": 10,
		"Parametri.Combattimento.Salute.Tot":  10,
	}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = doJSON(t, h, "GET", "/api/users/u1", nil, nil)
	require.Equal(t, 200, rec.Code)
	var doc character.Doc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 68, doc.Stats.HPTotal, "6*10+8 via the pool trigger")
}

func TestAPI_LevelUpRequiresDMRole(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "boss", character.Doc{Role: character.RoleDM})
	seedUserDoc(t, app, "p1", character.Doc{Role: character.RolePlayer, Stats: character.Stats{Level: 1}})

	body := map[string]string{"userId": "p1"}

	rec := doJSON(t, h, "POST", "/api/dm/level-up", body, nil)
	assert.Equal(t, 401, rec.Code)

	rec = doJSON(t, h, "POST", "/api/dm/level-up", body, map[string]string{"X-User-Id": "p1"})
	assert.Equal(t, 403, rec.Code)

	rec = doJSON(t, h, "POST", "/api/dm/level-up", body, map[string]string{"X-User-Id": "boss"})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var res dm.LevelUpResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.ToLevel)
}

func TestAPI_SpendPoint(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "u1", character.Doc{
		Stats: character.Stats{BasePointsAvailable: 1},
		Parametri: character.Parametri{
			Base: character.ParamTable{"Forza": {Base: 2, Tot: 2}},
		},
	})

	rec := doJSON(t, h, "POST", "/api/users/u1/spend-point", dm.SpendRequest{
		StatName: "Forza", StatType: dm.StatTypeBase, Change: 1,
	}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var res dm.SpendResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, float64(3), res.NewBase)

	// Pool exhausted now
	rec = doJSON(t, h, "POST", "/api/users/u1/spend-point", dm.SpendRequest{
		StatName: "Forza", StatType: dm.StatTypeBase, Change: 1,
	}, nil)
	assert.Equal(t, 409, rec.Code)

	rec = doJSON(t, h, "POST", "/api/users/u1/spend-point", dm.SpendRequest{
		StatName: "Forza", StatType: "Special", Change: 1,
	}, nil)
	assert.Equal(t, 400, rec.Code)
}

func TestAPI_EquipAndUnequip(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "u1", character.Doc{
		Stats: character.Stats{Level: 1},
		Parametri: character.Parametri{
			Base: character.ParamTable{"Forza": {Base: 2, Tot: 2}},
		},
	})
	seedItemDoc(t, app, "spada", bazaar.Item{
		General: bazaar.General{Nome: "Spada", Slot: "arma"},
		Parametri: bazaar.ItemParams{
			Base: map[string]bazaar.LevelTable{"Forza": {"1": "3"}},
		},
	})

	rec := doJSON(t, h, "POST", "/api/users/u1/equip", map[string]string{"itemId": "spada"}, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = doJSON(t, h, "GET", "/api/users/u1", nil, nil)
	var doc character.Doc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, float64(3), doc.Parametri.Base["Forza"].Equip)
	assert.Equal(t, float64(5), doc.Parametri.Base["Forza"].Tot, "totals trigger follows the equip write")

	rec = doJSON(t, h, "POST", "/api/users/u1/equip",
		map[string]string{"itemId": "spada", "slot": "arma.destra"}, nil)
	assert.Equal(t, 400, rec.Code, "dotted slot names are rejected")

	rec = doJSON(t, h, "POST", "/api/users/u1/unequip", map[string]string{"slot": "arma"}, nil)
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, h, "GET", "/api/users/u1", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, float64(0), doc.Parametri.Base["Forza"].Equip)
	assert.Equal(t, float64(2), doc.Parametri.Base["Forza"].Tot)
}

func TestAPI_ItemAuthoring(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "boss", character.Doc{Role: character.RoleDM})

	rec := doJSON(t, h, "POST", "/api/items", bazaar.Item{
		General: bazaar.General{Nome: "Scudo", Prezzo: 30},
	}, map[string]string{"X-User-Id": "boss"})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created["id"])

	rec = doJSON(t, h, "GET", "/api/items/"+created["id"], nil, nil)
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, h, "DELETE", "/api/items/"+created["id"], nil, map[string]string{"X-User-Id": "boss"})
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, h, "GET", "/api/items/"+created["id"], nil, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestAPI_VarieRoundTripInvalidatesCache(t *testing.T) {
	app, h := newTestApp(t)
	seedUserDoc(t, app, "boss", character.Doc{Role: character.RoleDM})

	rec := doJSON(t, h, "GET", "/api/utils/varie", nil, nil)
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, h, "PUT", "/api/utils/varie", map[string]any{
		"hpMultByLevel": map[string]any{"1": 9},
	}, map[string]string{"X-User-Id": "boss"})
	require.Equal(t, 200, rec.Code)

	rec = doJSON(t, h, "GET", "/api/utils/varie", nil, nil)
	require.Equal(t, 200, rec.Code)
	var doc varie.Doc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, float64(9), doc.HPMult(1), "cache invalidated on write")
}

func TestAdminUI_ListsRoutes(t *testing.T) {
	_, h := newTestApp(t)

	rec := doJSON(t, h, "GET", "/_/admin/routes.json", nil, nil)
	require.Equal(t, 200, rec.Code)
	var routes []RouteDoc
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &routes))
	assert.NotEmpty(t, routes)

	rec = doJSON(t, h, "GET", "/_/admin", nil, nil)
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/bazaar/acquire")
}
