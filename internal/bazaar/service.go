package bazaar

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"scheda/internal/docstore"
)

type Service struct {
	store  *docstore.Store
	logger *log.Logger
}

func NewService(store *docstore.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, logger: logger}
}

// GetItem reads one item document.
func (s *Service) GetItem(ctx context.Context, id string) (Item, error) {
	snap, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return Item{}, err
	}
	if !snap.Exists() {
		return Item{}, fmt.Errorf("item %s: %w", id, docstore.ErrNotFound)
	}
	var it Item
	if err := snap.DataTo(&it); err != nil {
		return Item{}, err
	}
	it.ID = id
	return it, nil
}

// ListVisible returns the marketplace as one user sees it, sorted by name.
func (s *Service) ListVisible(ctx context.Context, userID string) ([]Item, error) {
	snaps, err := s.store.List(ctx, Collection)
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(snaps))
	for _, snap := range snaps {
		var it Item
		if err := snap.DataTo(&it); err != nil {
			s.logger.Printf("bazaar: skip malformed item %s: %v", snap.ID, err)
			continue
		}
		it.ID = snap.ID
		if it.VisibleTo(userID) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].General.Nome < out[j].General.Nome })
	return out, nil
}

// SaveItem creates or replaces an item document (DM authoring). A missing
// id is assigned.
func (s *Service) SaveItem(ctx context.Context, it Item) (string, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	id := it.ID
	it.ID = "" // the id is the document key, not part of the body
	data, err := docstore.DataFrom(it)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, Collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.store.Delete(ctx, Collection, id)
}
