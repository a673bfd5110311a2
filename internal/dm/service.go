// Package dm implements the privileged DM operations: leveling players
// up and spending character points.
package dm

import (
	"errors"
	"log"

	"scheda/internal/docstore"
	"scheda/internal/varie"
)

// EventsCollection holds level-up audit records, keyed by a random id.
const EventsCollection = "level_events"

var (
	ErrNotPlayer          = errors.New("dm: target is not a player account")
	ErrInvalidArgument    = errors.New("dm: invalid argument")
	ErrUnknownStat        = errors.New("dm: unknown stat")
	ErrInsufficientPoints = errors.New("dm: insufficient points")
	ErrMinimumValue       = errors.New("dm: stat already at minimum")
)

type Service struct {
	store    *docstore.Store
	varie    *varie.Source
	maxLevel int
	logger   *log.Logger
}

// NewService wires the DM operations. maxLevel caps LevelUpUser and
// LevelUpAll; values below 1 fall back to 10.
func NewService(store *docstore.Store, src *varie.Source, maxLevel int, logger *log.Logger) *Service {
	if maxLevel < 1 {
		maxLevel = 10
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, varie: src, maxLevel: maxLevel, logger: logger}
}
