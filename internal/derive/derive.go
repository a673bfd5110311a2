// Package derive keeps the derived numeric fields of a user document
// consistent with their inputs. It registers change triggers on the
// users collection: the Tot recompute for every Parametri record, the
// HP/Mana pool recompute, and the barrier expiry. All handlers are
// idempotent and write only when something actually changed, which is
// also what stops them from retriggering themselves forever.
package derive

import (
	"context"
	"log"

	"scheda/internal/character"
	"scheda/internal/docstore"
	"scheda/internal/varie"
)

// Fixed policy constants of the pool formulas.
const (
	hpFlatBonus   = 8
	manaFlatBonus = 5
)

type Triggers struct {
	store  *docstore.Store
	varie  *varie.Source
	logger *log.Logger
}

func NewTriggers(store *docstore.Store, src *varie.Source, logger *log.Logger) *Triggers {
	if logger == nil {
		logger = log.Default()
	}
	return &Triggers{store: store, varie: src, logger: logger}
}

// Register binds every derivation trigger to the users collection.
func (t *Triggers) Register() {
	t.store.OnWrite("users/{userId}", t.recomputeTotals)
	t.store.OnUpdate("users/{userId}", t.recomputeHP)
	t.store.OnUpdate("users/{userId}", t.recomputeMana)
	t.store.OnUpdate("users/{userId}", t.expireBarriera)
}

// RecomputeTotals returns p with every Tot set to Base+Anima+Equip+Mod
// and reports whether any record changed. Missing fields count as 0.
func RecomputeTotals(p character.Parametri) (character.Parametri, bool) {
	changed := false
	recompute := func(table character.ParamTable) character.ParamTable {
		if table == nil {
			return nil
		}
		out := make(character.ParamTable, len(table))
		for name, rec := range table {
			if tot := rec.Total(); rec.Tot != tot {
				rec.Tot = tot
				changed = true
			}
			out[name] = rec
		}
		return out
	}
	p.Base = recompute(p.Base)
	p.Combattimento = recompute(p.Combattimento)
	p.Special = recompute(p.Special)
	return p, changed
}

func (t *Triggers) recomputeTotals(ctx context.Context, ev docstore.Event) {
	if !ev.After.Exists() {
		return
	}
	userID := ev.Params["userId"]

	var doc character.Doc
	if err := ev.After.DataTo(&doc); err != nil {
		t.logger.Printf("derive: decode user %s: %v", userID, err)
		return
	}
	updated, changed := RecomputeTotals(doc.Parametri)
	if !changed {
		return
	}
	params, err := docstore.DataFrom(updated)
	if err != nil {
		t.logger.Printf("derive: encode Parametri for %s: %v", userID, err)
		return
	}
	if err := t.store.Update(ctx, character.Collection, userID, map[string]any{
		"Parametri": params,
	}); err != nil {
		t.logger.Printf("derive: update Tot values for %s: %v", userID, err)
		return
	}
	t.logger.Printf("derive: updated Tot values for user %s", userID)
}

// HPTotal and ManaTotal are the pool formulas.
func HPTotal(mult, salute float64) float64 { return mult*salute + hpFlatBonus }

func ManaTotal(mult, disciplina float64) float64 { return mult*disciplina + manaFlatBonus }

func (t *Triggers) recomputeHP(ctx context.Context, ev docstore.Event) {
	t.recomputePool(ctx, ev, poolSpec{
		name:     "hpTotal",
		statPath: "Parametri.Combattimento.Salute.Tot",
		field:    "stats.hpTotal",
		mult:     func(d varie.Doc, level int) float64 { return d.HPMult(level) },
		formula:  HPTotal,
	})
}

func (t *Triggers) recomputeMana(ctx context.Context, ev docstore.Event) {
	t.recomputePool(ctx, ev, poolSpec{
		name:     "manaTotal",
		statPath: "Parametri.Combattimento.Disciplina.Tot",
		field:    "stats.manaTotal",
		mult:     func(d varie.Doc, level int) float64 { return d.ManaMult(level) },
		formula:  ManaTotal,
	})
}

type poolSpec struct {
	name     string
	statPath string
	field    string
	mult     func(varie.Doc, int) float64
	formula  func(mult, stat float64) float64
}

func (t *Triggers) recomputePool(ctx context.Context, ev docstore.Event, spec poolSpec) {
	userID := ev.Params["userId"]

	oldStat := numAt(ev.Before, spec.statPath)
	newStat := numAt(ev.After, spec.statPath)
	oldLevel := numAt(ev.Before, "stats.level")
	newLevel := numAt(ev.After, "stats.level")

	// Fires only when an input changed; everything else is a no-op.
	if oldStat == newStat && oldLevel == newLevel {
		return
	}

	// Prefer the after-value; a falsy after-value (deleted field) falls
	// back to the before-value for that one input only.
	stat := newStat
	if stat == 0 {
		stat = oldStat
	}
	level := newLevel
	if level == 0 {
		level = oldLevel
	}
	if stat == 0 || level == 0 {
		t.logger.Printf("derive: %s for %s: missing inputs (stat=%v level=%v), skipping", spec.name, userID, stat, level)
		return
	}

	d, err := t.varie.Get(ctx)
	if err != nil {
		t.logger.Printf("derive: %s for %s: fetch utils/varie: %v", spec.name, userID, err)
		return
	}
	total := spec.formula(spec.mult(d, int(level)), stat)

	if err := t.store.Update(ctx, character.Collection, userID, map[string]any{
		spec.field: total,
	}); err != nil {
		t.logger.Printf("derive: %s for %s: write: %v", spec.name, userID, err)
	}
}

// expireBarriera zeros the barrier fields once its remaining turns
// counter reaches 0 (or goes negative) while a barrier was up.
func (t *Triggers) expireBarriera(ctx context.Context, ev docstore.Event) {
	userID := ev.Params["userId"]

	oldRemaining := numAt(ev.Before, "active_turn_effect.barriera.remainingTurns")
	newRemaining := numAt(ev.After, "active_turn_effect.barriera.remainingTurns")
	totalTurns := numAt(ev.After, "active_turn_effect.barriera.totalTurns")

	if oldRemaining == newRemaining {
		return
	}
	if newRemaining > 0 || totalTurns <= 0 {
		return
	}

	if err := t.store.Update(ctx, character.Collection, userID, map[string]any{
		"stats.barrieraCurrent":                      0,
		"stats.barrieraTotal":                        0,
		"active_turn_effect.barriera.remainingTurns": 0,
		"active_turn_effect.barriera.totalTurns":     0,
	}); err != nil {
		t.logger.Printf("derive: expire barriera for %s: %v", userID, err)
		return
	}
	t.logger.Printf("derive: barriera expired for user %s", userID)
}

// numAt reads a numeric field from a snapshot; missing or non-numeric
// fields read as 0.
func numAt(s *docstore.Snapshot, path string) float64 {
	v, ok := s.Get(path)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
