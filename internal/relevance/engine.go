// Package relevance decides the operating mode of a search and selects the
// catalog cards that fit the entities found in the query.
package relevance

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/extractor"
	"github.com/pbaille/osintdeck/internal/metrics"
)

// ToolRepository provides a full catalog snapshot per call
type ToolRepository interface {
	AllTools(ctx context.Context) ([]domain.Tool, error)
}

// EntityParser extracts typed entities from free text
type EntityParser interface {
	Parse(text string) []domain.Entity
}

// IntentPredictor labels free text; false means no model is available
type IntentPredictor interface {
	Predict(text string) (domain.Intent, bool)
}

// Engine runs the query pipeline. It keeps no per-call state.
type Engine struct {
	parser EntityParser
	tools  ToolRepository
	intent IntentPredictor
	logger *slog.Logger
}

// Option customises an Engine
type Option func(*Engine)

// WithIntent attaches an intent predictor used for catalog-mode queries
func WithIntent(p IntentPredictor) Option {
	return func(e *Engine) { e.intent = p }
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine
func New(parser EntityParser, tools ToolRepository, opts ...Option) *Engine {
	e := &Engine{parser: parser, tools: tools, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessSearch extracts entities from query, picks the mode and filters the
// catalog. Catalog failures degrade to an empty match list.
func (e *Engine) ProcessSearch(ctx context.Context, query string) domain.SearchResult {
	entities := e.parser.Parse(query)
	for _, ent := range entities {
		metrics.EntitiesTotal.WithLabelValues(string(ent.Kind)).Inc()
	}

	res := domain.SearchResult{
		Mode:     domain.ModeCatalog,
		Entities: entities,
		Matches:  []domain.ToolMatch{},
	}
	if len(entities) > 0 {
		res.Mode = domain.ModeInvestigation
	}
	metrics.SearchesTotal.WithLabelValues(string(res.Mode)).Inc()

	tools := e.allTools(ctx)

	if res.Mode == domain.ModeInvestigation {
		res.Matches = matchKinds(tools, extractor.Kinds(entities))
		return res
	}

	res.Matches = matchCatalog(tools, strings.TrimSpace(query))
	if e.intent != nil && strings.TrimSpace(query) != "" {
		if intent, ok := e.intent.Predict(query); ok {
			res.Intent = &intent
		}
	}
	return res
}

// RelevantTools returns, in catalog order, the tools with at least one card
// usable for any of kinds, each limited to those cards
func (e *Engine) RelevantTools(ctx context.Context, kinds []domain.Kind) []domain.ToolMatch {
	return matchKinds(e.allTools(ctx), kinds)
}

// RelevantCards returns the cards usable for any of kinds, in catalog order
func (e *Engine) RelevantCards(ctx context.Context, kinds []domain.Kind) []domain.Card {
	cards := []domain.Card{}
	for _, m := range matchKinds(e.allTools(ctx), kinds) {
		cards = append(cards, m.Cards...)
	}
	return cards
}

func (e *Engine) allTools(ctx context.Context) []domain.Tool {
	tools, err := e.tools.AllTools(ctx)
	if err != nil {
		metrics.CatalogErrorsTotal.Inc()
		e.logger.Warn("catalog unavailable, returning no tools", "error", err)
		return nil
	}
	return tools
}

// matchKinds keeps cards whose input types intersect kinds and do not
// include the none sentinel
func matchKinds(tools []domain.Tool, kinds []domain.Kind) []domain.ToolMatch {
	matches := []domain.ToolMatch{}
	if len(kinds) == 0 {
		return matches
	}
	for _, t := range tools {
		var cards []domain.Card
		for _, c := range t.Cards {
			if c.Accepts(domain.KindNone) {
				continue
			}
			for _, k := range kinds {
				if c.Accepts(k) {
					cards = append(cards, c)
					break
				}
			}
		}
		if len(cards) > 0 {
			matches = append(matches, domain.ToolMatch{Tool: t, Cards: cards})
		}
	}
	return matches
}

// matchCatalog keeps the browse-only cards of tools matching query. With an
// empty query every tool is listed, even one without browse cards.
func matchCatalog(tools []domain.Tool, query string) []domain.ToolMatch {
	matches := []domain.ToolMatch{}
	q := strings.ToLower(query)
	for _, t := range tools {
		if q != "" && !toolMentions(t, q) {
			continue
		}
		cards := []domain.Card{}
		for _, c := range t.Cards {
			if c.Accepts(domain.KindNone) {
				cards = append(cards, c)
			}
		}
		if q != "" && len(cards) == 0 {
			continue
		}
		matches = append(matches, domain.ToolMatch{Tool: t, Cards: cards})
	}
	return matches
}

// toolMentions reports whether the tool's name, description, tags, or any
// card's category, title, description or tags contain q (already lowercased)
func toolMentions(t domain.Tool, q string) bool {
	fields := []string{t.Name, t.Description}
	fields = append(fields, t.Tags...)
	for _, c := range t.Cards {
		fields = append(fields, c.Category, c.Title, c.Desc)
		fields = append(fields, c.Tags...)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
