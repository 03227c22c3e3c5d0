package sar

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// factGroup collects every sighting of one fact identity across providers.
type factGroup struct {
	fact     screening.Fact
	infoType screening.InformationType
	sources  map[string]struct{}
	maxConf  float64
}

// KnowledgeBase accumulates facts for one screening. All SAR iterations of
// every information type feed the same base, so enrichment in later phases
// can draw on everything learned earlier.
type KnowledgeBase struct {
	mu     sync.RWMutex
	groups map[screening.FactKey]*factGroup
	byType map[screening.InformationType][]screening.FactKey
}

// NewKnowledgeBase creates an empty knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		groups: make(map[screening.FactKey]*factGroup),
		byType: make(map[screening.InformationType][]screening.FactKey),
	}
}

// Add merges facts into the base and returns the subset that was novel.
// A repeated identity from a new provider corroborates the existing group
// instead of counting as new.
func (kb *KnowledgeBase) Add(infoType screening.InformationType, facts []screening.Fact) []screening.Fact {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	var novel []screening.Fact
	for _, f := range facts {
		if f.Value == "" {
			continue
		}
		if f.DiscoveredAt.IsZero() {
			f.DiscoveredAt = time.Now().UTC()
		}
		key := f.Key()
		g, ok := kb.groups[key]
		if !ok {
			g = &factGroup{
				fact:     f,
				infoType: infoType,
				sources:  make(map[string]struct{}),
				maxConf:  f.Confidence,
			}
			kb.groups[key] = g
			kb.byType[infoType] = append(kb.byType[infoType], key)
			novel = append(novel, f)
		}
		if f.Source != "" {
			g.sources[f.Source] = struct{}{}
		}
		if f.Confidence > g.maxConf {
			g.maxConf = f.Confidence
		}
	}
	return novel
}

// Corroborated reports whether a fact identity was seen from at least two
// distinct providers.
func (kb *KnowledgeBase) Corroborated(key screening.FactKey) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	g, ok := kb.groups[key]
	return ok && len(g.sources) >= 2
}

// Sources returns the distinct providers that reported a fact identity.
func (kb *KnowledgeBase) Sources(key screening.FactKey) []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	g, ok := kb.groups[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.sources))
	for s := range g.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CountForType returns how many distinct fact identities an information
// type has contributed.
func (kb *KnowledgeBase) CountForType(infoType screening.InformationType) int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.byType[infoType])
}

// TypeStats summarizes corroboration and confidence for one information
// type's facts, for the assessor's confidence formula.
func (kb *KnowledgeBase) TypeStats(infoType screening.InformationType) (total, corroborated int, avgConfidence float64) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	keys := kb.byType[infoType]
	if len(keys) == 0 {
		return 0, 0, 0
	}
	var confSum float64
	for _, key := range keys {
		g := kb.groups[key]
		confSum += g.maxConf
		if len(g.sources) >= 2 {
			corroborated++
		}
	}
	return len(keys), corroborated, confSum / float64(len(keys))
}

// FactsOfType returns the current value set for one fact type, in first
// discovery order.
func (kb *KnowledgeBase) FactsOfType(t screening.FactType) []string {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, keys := range kb.byType {
		for _, key := range keys {
			if key.Type != t {
				continue
			}
			g := kb.groups[key]
			if _, dup := seen[key.Canonical]; dup {
				continue
			}
			seen[key.Canonical] = struct{}{}
			out = append(out, g.fact.Value)
		}
	}
	sort.Strings(out)
	return out
}

// InfoTypeOf returns the information type that first recorded a fact key.
func (kb *KnowledgeBase) InfoTypeOf(key screening.FactKey) (screening.InformationType, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	g, ok := kb.groups[key]
	if !ok {
		return "", false
	}
	return g.infoType, true
}

// HasFactType reports whether any fact of the given type exists.
func (kb *KnowledgeBase) HasFactType(t screening.FactType) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	for key := range kb.groups {
		if key.Type == t {
			return true
		}
	}
	return false
}

// Snapshot is an immutable view of the confirmed knowledge used by the
// planner for enriched queries. Counties and States are derived from the
// confirmed address values.
type Snapshot struct {
	Names         []string
	DatesOfBirth  []string
	Addresses     []string
	Counties      []string
	States        []string
	Employers     []string
	Schools       []string
	Emails        []string
	Usernames     []string
	People        []string
	Organizations []string
}

// Snapshot derives the planner's view from the current base.
func (kb *KnowledgeBase) Snapshot() Snapshot {
	addresses := kb.FactsOfType(screening.FactAddress)
	counties, states := localities(addresses)
	return Snapshot{
		Names:         kb.FactsOfType(screening.FactNameVariant),
		DatesOfBirth:  kb.FactsOfType(screening.FactDateOfBirth),
		Addresses:     addresses,
		Counties:      counties,
		States:        states,
		Employers:     kb.FactsOfType(screening.FactEmployer),
		Schools:       kb.FactsOfType(screening.FactSchool),
		Emails:        kb.FactsOfType(screening.FactEmail),
		Usernames:     kb.FactsOfType(screening.FactUsername),
		People:        kb.FactsOfType(screening.FactAssociate),
		Organizations: kb.FactsOfType(screening.FactOrganization),
	}
}

// localities extracts county and state markers from free-form address
// values: "<name> County" names a county, and a trailing two-letter
// alphabetic token is read as a state code.
func localities(addresses []string) (counties, states []string) {
	seenCounty := make(map[string]struct{})
	seenState := make(map[string]struct{})
	for _, addr := range addresses {
		fields := strings.Fields(strings.ReplaceAll(addr, ",", " "))
		for i, tok := range fields {
			if i == 0 || !strings.EqualFold(tok, "county") {
				continue
			}
			name := fields[i-1]
			canon := screening.CanonicalValue(name)
			if canon == "" {
				continue
			}
			if _, dup := seenCounty[canon]; dup {
				continue
			}
			seenCounty[canon] = struct{}{}
			counties = append(counties, name)
		}
		idx := len(fields) - 1
		if idx < 0 {
			continue
		}
		// Skip a trailing postal code.
		if isDigits(fields[idx]) && idx > 0 {
			idx--
		}
		code := fields[idx]
		if !looksLikeStateCode(code) {
			continue
		}
		if _, dup := seenState[code]; dup {
			continue
		}
		seenState[code] = struct{}{}
		states = append(states, code)
	}
	return counties, states
}

// looksLikeStateCode reports whether a token has the shape of a US state
// abbreviation: exactly two uppercase letters.
func looksLikeStateCode(tok string) bool {
	if len(tok) != 2 {
		return false
	}
	for _, r := range tok {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// AllFacts returns every accumulated fact, for profile assembly.
func (kb *KnowledgeBase) AllFacts() []screening.Fact {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]screening.Fact, 0, len(kb.groups))
	for _, g := range kb.groups {
		f := g.fact
		f.Confidence = g.maxConf
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Value < out[j].Value
	})
	return out
}
