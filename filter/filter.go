package filter

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/scipunch/campusfeed/config"
	"github.com/scipunch/campusfeed/event"
)

// FilterPipeline applies a series of named filters to extracted events
type FilterPipeline struct {
	filters map[string]*CompiledFilter
}

// CompiledFilter contains compiled regex patterns for efficient matching
type CompiledFilter struct {
	config          config.Filter
	includePatterns []*regexp.Regexp
	excludePatterns []*regexp.Regexp
}

// NewFilterPipeline creates a new filter pipeline from config
func NewFilterPipeline(filtersConfig map[string]config.Filter) (*FilterPipeline, error) {
	compiled := make(map[string]*CompiledFilter)

	for name, filterCfg := range filtersConfig {
		compiled[name] = &CompiledFilter{
			config:          filterCfg,
			includePatterns: compilePatterns(name, filterCfg.IncludePatterns),
			excludePatterns: compilePatterns(name, filterCfg.ExcludePatterns),
		}
	}

	return &FilterPipeline{filters: compiled}, nil
}

// compilePatterns skips patterns that fail to compile
func compilePatterns(filterName string, patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			slog.Warn("invalid regex pattern in filter", "filter", filterName, "pattern", pattern, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Apply keeps the events passing every named filter, in order, and
// returns how many were dropped
func (fp *FilterPipeline) Apply(events []event.Event, filterNames []string) ([]event.Event, int) {
	if len(filterNames) == 0 {
		return events, 0
	}

	kept := make([]event.Event, 0, len(events))
	for _, e := range events {
		if ok, reason := fp.ShouldInclude(e, filterNames); !ok {
			slog.Debug("event filtered out", "title", e.Title, "reason", reason, "url", e.Link)
			continue
		}
		kept = append(kept, e)
	}
	return kept, len(events) - len(kept)
}

// ShouldInclude returns true if the event passes all filters in the pipeline
// filterNames is a list of filter names to apply in order
func (fp *FilterPipeline) ShouldInclude(e event.Event, filterNames []string) (bool, string) {
	if len(filterNames) == 0 {
		return true, "" // No filters = include everything
	}

	for _, filterName := range filterNames {
		filter, exists := fp.filters[filterName]
		if !exists {
			slog.Warn("filter not found, skipping", "filter_name", filterName)
			continue
		}

		if shouldInclude, reason := fp.applyFilter(e, filter, filterName); !shouldInclude {
			return false, reason
		}
	}

	return true, ""
}

// applyFilter applies a single filter to an event
func (fp *FilterPipeline) applyFilter(e event.Event, filter *CompiledFilter, filterName string) (bool, string) {
	// Get the text to analyze (title + description)
	text := e.Title + " " + e.Description

	// 1. Check required fields
	for _, f := range filter.config.RequireFields {
		if v, ok := e.Get(f); ok && strings.TrimSpace(v) == "" {
			return false, filterName + ":require_fields[" + f + "]"
		}
	}

	// 2. Check minimum length
	if filter.config.MinLength > 0 && len(text) < filter.config.MinLength {
		return false, filterName + ":min_length"
	}

	// 3. Check minimum word count
	if filter.config.MinWords > 0 {
		wordCount := countWords(text)
		if wordCount < filter.config.MinWords {
			return false, filterName + ":min_words"
		}
	}

	// 4. Check include patterns, any match is enough
	if len(filter.includePatterns) > 0 {
		matched := false
		for _, pattern := range filter.includePatterns {
			if pattern.MatchString(text) {
				matched = true
				break
			}
		}
		if !matched {
			return false, filterName + ":include_patterns"
		}
	}

	// 5. Check exclude patterns
	for _, pattern := range filter.excludePatterns {
		if pattern.MatchString(text) {
			return false, filterName + ":exclude_pattern[" + pattern.String() + "]"
		}
	}

	// 6. Check paragraph requirement
	if filter.config.RequireParagraphs {
		if !hasMultipleParagraphs(e.Description) {
			return false, filterName + ":require_paragraphs"
		}
	}

	return true, ""
}

// countWords counts the number of words in text
func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}

// hasMultipleParagraphs checks if text has multiple paragraphs
func hasMultipleParagraphs(text string) bool {
	lines := strings.Split(text, "\n")
	nonEmptyLines := 0

	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmptyLines++
		}
	}

	return nonEmptyLines >= 2
}
