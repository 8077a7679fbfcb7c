// Package grouping finds potential duplicate records by bucketing them on
// normalized grouping keys.
package grouping

import (
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/biximilien/Radiant-Sands/pkg/models"
	"github.com/biximilien/Radiant-Sands/pkg/normalizers"
)

// Strategy names the set of fields a grouping key is built from
type Strategy string

const (
	StrategyTitle        Strategy = "title"
	StrategyTitleAddress Strategy = "title_address"
	StrategyTitleTime    Strategy = "title_time"
	StrategyAddress      Strategy = "address"
	StrategyWebURL       Strategy = "web_url"
	StrategyEmail        Strategy = "email"
	StrategyTelephone    Strategy = "telephone"
)

// strategyFields maps each strategy to the record fields its key is built from.
// A composite key is blank if any of its component fields normalizes to blank.
var strategyFields = map[Strategy][]string{
	StrategyTitle:        {"title"},
	StrategyTitleAddress: {"title", "address"},
	StrategyTitleTime:    {"title", "start_time"},
	StrategyAddress:      {"address"},
	StrategyWebURL:       {"url"},
	StrategyEmail:        {"email"},
	StrategyTelephone:    {"telephone"},
}

// fieldNormalizers maps each field to its normalizer chain
var fieldNormalizers = map[string][]string{
	"title":      {"ntitle"},
	"address":    {"naddress"},
	"url":        {"nurl"},
	"email":      {"nemail"},
	"telephone":  {"nphone"},
	"start_time": {"trim"},
}

// kindStrategies lists which strategies apply to each record kind
var kindStrategies = map[models.RecordKind][]Strategy{
	models.RecordKindVenue: {
		StrategyTitle,
		StrategyTitleAddress,
		StrategyAddress,
		StrategyWebURL,
		StrategyEmail,
		StrategyTelephone,
	},
	models.RecordKindEvent: {
		StrategyTitle,
		StrategyTitleTime,
		StrategyWebURL,
	},
}

// ParseStrategy validates a strategy name for the given record kind. A blank
// name falls back to the title strategy.
func ParseStrategy(kind models.RecordKind, name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		s = StrategyTitle
	}

	valid, ok := kindStrategies[kind]
	if !ok {
		return "", httperror.NewHTTPErrorf(400, "unknown record kind '%s'", kind)
	}

	for _, v := range valid {
		if s == v {
			return s, nil
		}
	}

	return "", httperror.NewHTTPErrorf(400, "unknown grouping strategy '%s' for %s records", name, kind)
}

// StrategiesFor returns the strategies available for a record kind
func StrategiesFor(kind models.RecordKind) []Strategy {
	return kindStrategies[kind]
}

// KeyFor builds the grouping key for a candidate under the given strategy.
// Returns "" when the candidate cannot be keyed: any component field that is
// missing or normalizes to blank makes the whole key blank.
func KeyFor(strategy Strategy, candidate models.GroupCandidate) string {
	fields, ok := strategyFields[strategy]
	if !ok {
		return ""
	}

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		var raw string
		if field == "title" {
			raw = candidate.Title
		} else {
			raw = candidate.Fields[field]
		}

		chain := fieldNormalizers[field]
		normalized := normalizers.ApplyChain(raw, chain...)
		if normalized == "" {
			return ""
		}
		parts = append(parts, normalized)
	}

	return strings.Join(parts, "|")
}
