// Package extractor finds typed entities (domains, IPs, emails, hashes...) in
// free text.
//
// Every kind is matched against the whole text independently, validated,
// normalized, deduplicated on (kind, value), and finally filtered so that an
// entity whose raw text is contained in the raw text of a higher-priority
// entity is dropped. The containment check is textual: a short token that
// also appears verbatim inside an unrelated higher-priority match is
// suppressed too.
package extractor

import (
	"sort"
	"strings"

	"github.com/pbaille/osintdeck/internal/domain"
)

// TLDValidator answers whether a top-level label is valid
type TLDValidator interface {
	IsValid(label string) bool
}

// Extractor runs the pattern table over text. It holds no mutable state and
// is safe for concurrent use.
type Extractor struct {
	tlds TLDValidator
}

// New creates an Extractor that checks domain candidates against tlds
func New(tlds TLDValidator) *Extractor {
	return &Extractor{tlds: tlds}
}

// Parse returns the entities found in text, highest priority first.
// Malformed input yields no entities, never an error.
func (e *Extractor) Parse(text string) []domain.Entity {
	if strings.TrimSpace(text) == "" {
		return []domain.Entity{}
	}

	var found []domain.Entity
	seen := make(map[string]bool)

	for _, p := range patterns {
		for _, raw := range p.find(text) {
			if !p.validate(e.tlds, raw) {
				continue
			}
			value := p.normalize(raw)
			key := string(p.kind) + "|" + value
			if seen[key] {
				continue
			}
			seen[key] = true
			found = append(found, domain.Entity{Kind: p.kind, Raw: raw, Value: value})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return priorityOf(found[i].Kind) < priorityOf(found[j].Kind)
	})

	kept := make([]domain.Entity, 0, len(found))
	for _, ent := range found {
		if containedIn(ent.Raw, kept) {
			continue
		}
		kept = append(kept, ent)
	}
	return kept
}

func containedIn(raw string, kept []domain.Entity) bool {
	for _, k := range kept {
		if strings.Contains(k.Raw, raw) {
			return true
		}
	}
	return false
}

// DetectType classifies a single value: the first kind, in table order,
// whose pattern matches and whose validator accepts the whole value.
func (e *Extractor) DetectType(value string) (domain.Kind, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}
	for _, p := range patterns {
		if p.exact.MatchString(v) && p.validate(e.tlds, v) {
			return p.kind, true
		}
	}
	return "", false
}

// Kinds returns the distinct kinds of entities, in order of first appearance
func Kinds(entities []domain.Entity) []domain.Kind {
	var kinds []domain.Kind
	seen := make(map[domain.Kind]bool)
	for _, ent := range entities {
		if !seen[ent.Kind] {
			seen[ent.Kind] = true
			kinds = append(kinds, ent.Kind)
		}
	}
	return kinds
}
