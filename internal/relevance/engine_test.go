package relevance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/osintdeck/internal/domain"
	"github.com/pbaille/osintdeck/internal/extractor"
)

type staticTools struct {
	tools []domain.Tool
	err   error
}

func (s staticTools) AllTools(context.Context) ([]domain.Tool, error) { return s.tools, s.err }

type tldSet map[string]bool

func (s tldSet) IsValid(label string) bool { return s[label] }

type fixedIntent struct{ intent *domain.Intent }

func (f fixedIntent) Predict(string) (domain.Intent, bool) {
	if f.intent == nil {
		return domain.Intent{}, false
	}
	return *f.intent, true
}

var (
	browseCard = domain.Card{Title: "Explore", InputTypes: []domain.Kind{domain.KindNone}}
	domainCard = domain.Card{Title: "Domain report", InputTypes: []domain.Kind{domain.KindDomain}}
	ipCard     = domain.Card{Title: "Host lookup", Category: "network", InputTypes: []domain.Kind{domain.KindIP}}
	emailCard  = domain.Card{Title: "Breach check", InputTypes: []domain.Kind{domain.KindEmail}}
	mixedCard  = domain.Card{Title: "Anything", InputTypes: []domain.Kind{domain.KindNone, domain.KindEmail}}
)

func newEngine(tools []domain.Tool, opts ...Option) *Engine {
	x := extractor.New(tldSet{"com": true})
	return New(x, staticTools{tools: tools}, opts...)
}

func toolNames(ms []domain.ToolMatch) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Tool.Name)
	}
	return out
}

func TestBrowseVersusDomainTool(t *testing.T) {
	tools := []domain.Tool{
		{ID: "a", Name: "Browser", Cards: []domain.Card{browseCard}},
		{ID: "b", Name: "Whois", Cards: []domain.Card{domainCard}},
	}
	e := newEngine(tools)

	res := e.ProcessSearch(context.Background(), "look at example.com")
	assert.Equal(t, domain.ModeInvestigation, res.Mode)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "Whois", res.Matches[0].Tool.Name)
	assert.Equal(t, []domain.Card{domainCard}, res.Matches[0].Cards)

	res = e.ProcessSearch(context.Background(), "")
	assert.Equal(t, domain.ModeCatalog, res.Mode)
	assert.Empty(t, res.Entities)
	var cards []domain.Card
	for _, m := range res.Matches {
		cards = append(cards, m.Cards...)
	}
	assert.Equal(t, []domain.Card{browseCard}, cards)
	assert.Equal(t, "Browser", res.Matches[0].Tool.Name)
}

func TestInvestigationExcludesNoneCards(t *testing.T) {
	tools := []domain.Tool{
		{ID: "hibp", Name: "HIBP", Cards: []domain.Card{emailCard, browseCard}},
		{ID: "mixed", Name: "Mixed", Cards: []domain.Card{mixedCard}},
		{ID: "shodan", Name: "Shodan", Cards: []domain.Card{ipCard}},
	}
	e := newEngine(tools)

	res := e.ProcessSearch(context.Background(), "user@example.com")
	assert.Equal(t, domain.ModeInvestigation, res.Mode)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, domain.KindEmail, res.Entities[0].Kind)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "HIBP", res.Matches[0].Tool.Name)
	assert.Equal(t, []domain.Card{emailCard}, res.Matches[0].Cards)
}

func TestInvestigationKeepsCatalogOrder(t *testing.T) {
	tools := []domain.Tool{
		{ID: "shodan", Name: "Shodan", Cards: []domain.Card{ipCard}},
		{ID: "whois", Name: "Whois", Cards: []domain.Card{domainCard}},
		{ID: "hibp", Name: "HIBP", Cards: []domain.Card{emailCard}},
	}
	e := newEngine(tools)

	res := e.ProcessSearch(context.Background(), "evil.com resolved to 10.1.2.3")
	assert.Equal(t, []string{"Shodan", "Whois"}, toolNames(res.Matches))
}

func TestCatalogModeTextMatching(t *testing.T) {
	tools := []domain.Tool{
		{ID: "shodan", Name: "Shodan", Tags: []string{"IoT"}, Cards: []domain.Card{ipCard, browseCard}},
		{ID: "hibp", Name: "Have I Been Pwned", Description: "breach lookups", Cards: []domain.Card{emailCard}},
		{ID: "wmn", Name: "WhatsMyName", Cards: []domain.Card{{Title: "Sites", Category: "Social", InputTypes: []domain.Kind{domain.KindNone}}}},
	}
	e := newEngine(tools)
	ctx := context.Background()

	assert.Equal(t, []string{"Shodan"}, toolNames(e.ProcessSearch(ctx, "shodan").Matches))
	assert.Equal(t, []string{"Shodan"}, toolNames(e.ProcessSearch(ctx, "iot").Matches), "tags")
	assert.Equal(t, []string{"Shodan"}, toolNames(e.ProcessSearch(ctx, "NETWORK").Matches), "card category")
	assert.Equal(t, []string{"WhatsMyName"}, toolNames(e.ProcessSearch(ctx, "social").Matches))
	assert.Empty(t, e.ProcessSearch(ctx, "breach").Matches, "matching tool without browse cards is dropped")
	assert.Empty(t, e.ProcessSearch(ctx, "nothing like this").Matches)

	// an empty query lists every tool
	res := e.ProcessSearch(ctx, "   ")
	assert.Equal(t, domain.ModeCatalog, res.Mode)
	assert.Equal(t, []string{"Shodan", "Have I Been Pwned", "WhatsMyName"}, toolNames(res.Matches))
	assert.Empty(t, res.Matches[1].Cards)
}

func TestCatalogUnavailable(t *testing.T) {
	x := extractor.New(tldSet{"com": true})
	e := New(x, staticTools{err: errors.New("db down")})
	ctx := context.Background()

	res := e.ProcessSearch(ctx, "8.8.8.8")
	assert.Equal(t, domain.ModeInvestigation, res.Mode)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
	assert.Len(t, res.Entities, 1)

	res = e.ProcessSearch(ctx, "")
	assert.Empty(t, res.Matches)
	assert.Empty(t, e.RelevantCards(ctx, []domain.Kind{domain.KindIP}))
}

func TestIntentOnlyInCatalogMode(t *testing.T) {
	intent := &domain.Intent{Category: "ipv4", Scores: map[string]float64{"ipv4": -1}}
	tools := []domain.Tool{{ID: "shodan", Name: "Shodan", Cards: []domain.Card{ipCard, browseCard}}}
	ctx := context.Background()

	e := newEngine(tools, WithIntent(fixedIntent{intent: intent}))
	res := e.ProcessSearch(ctx, "quiero la ip de un host")
	assert.Equal(t, domain.ModeCatalog, res.Mode)
	require.NotNil(t, res.Intent)
	assert.Equal(t, "ipv4", res.Intent.Category)

	res = e.ProcessSearch(ctx, "8.8.8.8")
	assert.Nil(t, res.Intent)

	e = newEngine(tools, WithIntent(fixedIntent{}))
	assert.Nil(t, e.ProcessSearch(ctx, "quiero la ip").Intent)
}

func TestRelevantToolsAndCards(t *testing.T) {
	tools := []domain.Tool{
		{ID: "shodan", Name: "Shodan", Cards: []domain.Card{ipCard, domainCard, browseCard}},
		{ID: "hibp", Name: "HIBP", Cards: []domain.Card{emailCard, mixedCard}},
	}
	e := newEngine(tools)
	ctx := context.Background()

	got := e.RelevantTools(ctx, []domain.Kind{domain.KindIP})
	require.Len(t, got, 1)
	assert.Equal(t, []domain.Card{ipCard}, got[0].Cards)

	assert.Equal(t, []domain.Card{ipCard, domainCard}, e.RelevantCards(ctx, []domain.Kind{domain.KindDomain, domain.KindIP}))
	assert.Equal(t, []domain.Card{emailCard}, e.RelevantCards(ctx, []domain.Kind{domain.KindEmail}))
	assert.Empty(t, e.RelevantCards(ctx, []domain.Kind{domain.KindNone}))
	assert.Empty(t, e.RelevantTools(ctx, nil))
}
