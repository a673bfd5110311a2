// Package varie reads the shared utils/varie utility document: level
// multiplier tables, anima dice, and combat stat point costs. Reads go
// through an explicit read-through cache with a fixed TTL; the document
// changes rarely (DM edits) and triggers tolerate slightly stale tables.
package varie

import (
	"context"
	"strconv"

	"scheda/internal/docstore"
)

const (
	Collection = "utils"
	DocID      = "varie"
)

// Policy defaults when a level key is absent from the tables.
const (
	DefaultHPMult   = 5
	DefaultManaMult = 7
)

type Doc struct {
	HPMultByLevel     map[string]float64            `json:"hpMultByLevel,omitempty"`
	ManaMultByLevel   map[string]float64            `json:"manaMultByLevel,omitempty"`
	DadiAnimaByLevel  []string                      `json:"dadiAnimaByLevel,omitempty"`
	CostParamsCombat  map[string]int                `json:"cost_params_combat,omitempty"`
	LevelUpAnimaBonus map[string]map[string]float64 `json:"levelUpAnimaBonus,omitempty"`
	ModAnima          map[string]map[string]float64 `json:"modAnima,omitempty"`
}

// HPMult returns the HP multiplier for a level, keyed by its decimal
// string form in the table.
func (d Doc) HPMult(level int) float64 {
	if m, ok := d.HPMultByLevel[strconv.Itoa(level)]; ok {
		return m
	}
	return DefaultHPMult
}

func (d Doc) ManaMult(level int) float64 {
	if m, ok := d.ManaMultByLevel[strconv.Itoa(level)]; ok {
		return m
	}
	return DefaultManaMult
}

// Source fetches the varie document through a TTL cache.
type Source struct {
	store *docstore.Store
	cache *Cache[string, Doc]
}

func NewSource(store *docstore.Store, cache *Cache[string, Doc]) *Source {
	return &Source{store: store, cache: cache}
}

// Get returns the current varie document. A missing document is not an
// error: all lookups fall back to their policy defaults.
func (s *Source) Get(ctx context.Context) (Doc, error) {
	return s.cache.Get(DocID, func() (Doc, error) {
		snap, err := s.store.Get(ctx, Collection, DocID)
		if err != nil {
			return Doc{}, err
		}
		if !snap.Exists() {
			return Doc{}, nil
		}
		var d Doc
		if err := snap.DataTo(&d); err != nil {
			return Doc{}, err
		}
		return d, nil
	})
}

// Invalidate drops the cached document, forcing the next Get to refetch.
func (s *Source) Invalidate() {
	s.cache.Invalidate(DocID)
}
