package sar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

func TestKnowledgeBase_AddDeduplicatesByIdentity(t *testing.T) {
	kb := NewKnowledgeBase()

	novel := kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactNameVariant, Value: "Jordan Smith", Source: "acme", Confidence: 0.9},
		{Type: screening.FactNameVariant, Value: "jordan  smith", Source: "globex", Confidence: 0.8},
		{Type: screening.FactDateOfBirth, Value: "1985-03-14", Source: "acme", Confidence: 0.95},
	})

	// The second name is the same identity after canonicalization.
	require.Len(t, novel, 2)
	assert.Equal(t, 2, kb.CountForType(screening.TypeIdentity))
}

func TestKnowledgeBase_CorroborationAcrossProviders(t *testing.T) {
	kb := NewKnowledgeBase()

	fact := screening.Fact{Type: screening.FactDateOfBirth, Value: "1985-03-14", Source: "acme", Confidence: 0.9}
	kb.Add(screening.TypeIdentity, []screening.Fact{fact})
	assert.False(t, kb.Corroborated(fact.Key()), "single source is not corroborated")

	fact.Source = "globex"
	novel := kb.Add(screening.TypeIdentity, []screening.Fact{fact})
	assert.Empty(t, novel, "a corroborating sighting is not a new fact")
	assert.True(t, kb.Corroborated(fact.Key()))
	assert.Equal(t, []string{"acme", "globex"}, kb.Sources(fact.Key()))
}

func TestKnowledgeBase_TypeStats(t *testing.T) {
	kb := NewKnowledgeBase()

	kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactNameVariant, Value: "Jordan Smith", Source: "acme", Confidence: 0.8},
		{Type: screening.FactDateOfBirth, Value: "1985-03-14", Source: "acme", Confidence: 0.6},
	})
	kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactDateOfBirth, Value: "1985-03-14", Source: "globex", Confidence: 0.9},
	})

	total, corroborated, avgConf := kb.TypeStats(screening.TypeIdentity)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, corroborated)
	// DOB max confidence rose to 0.9 from the second sighting.
	assert.InDelta(t, (0.8+0.9)/2, avgConf, 1e-9)
}

func TestKnowledgeBase_SnapshotDerivedViews(t *testing.T) {
	kb := NewKnowledgeBase()

	kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactNameVariant, Value: "J. Smith", Source: "acme", Confidence: 0.9},
		{Type: screening.FactAddress, Value: "12 Oak St, Springfield", Source: "acme", Confidence: 0.9},
	})
	kb.Add(screening.TypeEmployment, []screening.Fact{
		{Type: screening.FactEmployer, Value: "Initech", Source: "globex", Confidence: 0.85},
	})

	snap := kb.Snapshot()
	assert.Equal(t, []string{"J. Smith"}, snap.Names)
	assert.Equal(t, []string{"12 Oak St, Springfield"}, snap.Addresses)
	assert.Equal(t, []string{"Initech"}, snap.Employers)
	assert.Empty(t, snap.Emails)
}

func TestKnowledgeBase_SnapshotLocalities(t *testing.T) {
	kb := NewKnowledgeBase()

	kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactAddress, Value: "12 Court St, Kings County, NY 11201", Source: "acme", Confidence: 0.9},
		{Type: screening.FactAddress, Value: "900 Lake Shore Dr, Cook County, IL", Source: "globex", Confidence: 0.85},
		{Type: screening.FactAddress, Value: "5 Elm St, Springfield", Source: "acme", Confidence: 0.7},
	})

	snap := kb.Snapshot()
	assert.ElementsMatch(t, []string{"Kings", "Cook"}, snap.Counties)
	assert.ElementsMatch(t, []string{"NY", "IL"}, snap.States)
}

func TestKnowledgeBase_LocalitiesIgnoresNonStateTails(t *testing.T) {
	counties, states := localities([]string{
		"221B Baker Street, London",
		"12 Oak St Apt 4B",
		"PO Box 77",
	})
	assert.Empty(t, counties)
	assert.Empty(t, states)
}

func TestKnowledgeBase_EmptyValuesIgnored(t *testing.T) {
	kb := NewKnowledgeBase()
	novel := kb.Add(screening.TypeIdentity, []screening.Fact{
		{Type: screening.FactNameVariant, Value: "", Source: "acme"},
	})
	assert.Empty(t, novel)
	assert.Zero(t, kb.CountForType(screening.TypeIdentity))
}
