package dm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scheda/internal/character"
	"scheda/internal/docstore"
)

// LevelUpResult reports one user's outcome; Skipped carries the reason
// when no level was applied.
type LevelUpResult struct {
	UserID        string `json:"userId"`
	CharacterID   string `json:"characterId,omitempty"`
	FromLevel     int    `json:"fromLevel"`
	ToLevel       int    `json:"toLevel,omitempty"`
	TokensGranted int    `json:"tokensGranted,omitempty"`
	Skipped       string `json:"skipped,omitempty"`
}

// tokenGrant is the combat-token award for reaching a level.
func tokenGrant(level int) int {
	switch {
	case level >= 2 && level <= 4:
		return 4
	case level >= 5 && level <= 7:
		return 6
	case level >= 8 && level <= 10:
		return 8
	default:
		return 0
	}
}

// LevelUpUser raises one player's level by one, grants combat tokens for
// the new level and records an audit document, all in one transaction.
// An already-maxed player is a skip, not an error.
func (s *Service) LevelUpUser(ctx context.Context, userID string) (LevelUpResult, error) {
	if userID == "" {
		return LevelUpResult{}, fmt.Errorf("%w: userId is required", ErrInvalidArgument)
	}
	var result LevelUpResult
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
		if doc.Role == character.RoleDM {
			return fmt.Errorf("user %s: %w", userID, ErrNotPlayer)
		}
		var ok bool
		result, ok = s.levelUpInTx(tx, userID, doc)
		if ok {
			s.logger.Printf("dm: level up %s: %d -> %d (+%d tokens)",
				userID, result.FromLevel, result.ToLevel, result.TokensGranted)
		}
		return nil
	})
	if err != nil {
		return LevelUpResult{}, err
	}
	return result, nil
}

// LevelUpAll levels every player at once, in a single transaction so a
// concurrent edit to any sheet restarts the whole batch. DM accounts and
// maxed players are reported as skips.
func (s *Service) LevelUpAll(ctx context.Context) ([]LevelUpResult, error) {
	snaps, err := s.store.List(ctx, character.Collection)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		ids = append(ids, snap.ID)
	}

	var results []LevelUpResult
	err = s.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		results = results[:0] // retry restarts the batch
		for _, id := range ids {
			snap, err := tx.Get(character.Collection, id)
			if err != nil {
				return err
			}
			if !snap.Exists() {
				continue // removed since the listing
			}
			var doc character.Doc
			if err := snap.DataTo(&doc); err != nil {
				s.logger.Printf("dm: level up all: skip malformed user %s: %v", id, err)
				continue
			}
			if doc.Role == character.RoleDM {
				results = append(results, LevelUpResult{
					UserID:      id,
					CharacterID: doc.CharacterID,
					FromLevel:   levelOrOne(doc.Stats.Level),
					Skipped:     "DM account",
				})
				continue
			}
			r, _ := s.levelUpInTx(tx, id, doc)
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Printf("dm: level up all: %d users processed", len(results))
	return results, nil
}

// levelUpInTx buffers one player's level-up writes. The second return is
// false when the player was skipped.
func (s *Service) levelUpInTx(tx *docstore.Tx, userID string, doc character.Doc) (LevelUpResult, bool) {
	fromLevel := levelOrOne(doc.Stats.Level)
	result := LevelUpResult{
		UserID:      userID,
		CharacterID: doc.CharacterID,
		FromLevel:   fromLevel,
	}
	if fromLevel >= s.maxLevel {
		result.ToLevel = fromLevel
		result.Skipped = "already at max level"
		return result, false
	}

	toLevel := fromLevel + 1
	granted := tokenGrant(toLevel)
	tx.Update(character.Collection, userID, map[string]any{
		"stats.level":                 toLevel,
		"stats.combatTokensAvailable": doc.Stats.CombatTokensAvailable + granted,
	})
	tx.Set(EventsCollection, uuid.NewString(), map[string]any{
		"user_id":        userID,
		"from_level":     fromLevel,
		"to_level":       toLevel,
		"tokens_granted": granted,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})

	result.ToLevel = toLevel
	result.TokensGranted = granted
	return result, true
}

func levelOrOne(level int) int {
	if level < 1 {
		return 1
	}
	return level
}
