// Package bench implements the benchmark routes served by benchd: plaintext,
// JSON, world queries, cached queries, updates and fortunes for every
// configured store.
package bench

import (
	"strconv"

	"arc-framework/benchd/internal/config"
)

const (
	MinQueries = 1
	MaxQueries = 500

	defaultWorldRows = 10000
)

// Settings control the benchmark routes.
type Settings struct {
	TextMessage        string
	WorldRows          int
	QueriesParam       string
	CachedQueriesParam string
	Templates          []string
}

// SettingsFrom maps the bench config section to Settings, filling blanks
// with the benchmark defaults.
func SettingsFrom(cfg config.BenchConfig) Settings {
	s := Settings{
		TextMessage:        cfg.TextMessage,
		WorldRows:          cfg.WorldRows,
		QueriesParam:       cfg.QueriesParam,
		CachedQueriesParam: cfg.CachedQueriesParam,
		Templates:          append([]string(nil), cfg.Templates...),
	}
	if s.TextMessage == "" {
		s.TextMessage = "Hello, World!"
	}
	if s.WorldRows < 1 {
		s.WorldRows = defaultWorldRows
	}
	if s.QueriesParam == "" {
		s.QueriesParam = "queries"
	}
	if s.CachedQueriesParam == "" {
		s.CachedQueriesParam = "count"
	}
	if len(s.Templates) == 0 {
		s.Templates = []string{HTMLTemplate}
	}
	return s
}

// WorldsCount parses a count query parameter. Missing or malformed values
// yield MinQueries; the result is clamped to [MinQueries, MaxQueries].
func WorldsCount(raw string) int {
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil, n < MinQueries:
		return MinQueries
	case n > MaxQueries:
		return MaxQueries
	default:
		return n
	}
}
