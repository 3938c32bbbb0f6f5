package journal

import (
	"fmt"

	"github.com/danpasecinic/podfleet/internal/config"
)

// Open returns the journal selected by the configured journal type
func Open(cfg *config.Config) (Journal, error) {
	switch cfg.JournalType {
	case config.JournalMemory:
		return NewInMemoryJournal(), nil
	case config.JournalPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database_url is required when journal_type=%s", config.JournalPostgres)
		}
		return NewPostgresJournal(cfg.DatabaseURL)
	case config.JournalNone, "":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf(
			"unknown journal type: %s (valid options: %s, %s, %s)",
			cfg.JournalType, config.JournalMemory, config.JournalPostgres, config.JournalNone,
		)
	}
}
