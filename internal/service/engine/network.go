package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/service/sar"
)

// relationFor maps a discovered fact type onto the relation and entity
// kind it represents.
func relationFor(t screening.FactType) (relation string, kind screening.SubjectKind, ok bool) {
	switch t {
	case screening.FactAssociate:
		return "associate", screening.SubjectIndividual, true
	case screening.FactEmployer:
		return "employer", screening.SubjectOrganization, true
	case screening.FactOrganization:
		return "affiliated_organization", screening.SubjectOrganization, true
	default:
		return "", "", false
	}
}

// expandNetwork materializes the discovered people and organizations as
// entity relations and returns the connection set carried on the profile
// version. D2 records direct connections; D3 walks one hop further
// through previously persisted relations.
func (e *Engine) expandNetwork(ctx context.Context, scr *screening.Screening, kb *sar.KnowledgeBase) ([]profile.Connection, error) {
	subjectEntity := &profile.Entity{
		ID:   scr.SubjectID,
		Kind: screening.SubjectIndividual,
		Name: "",
	}
	if subj, err := e.subjects.Get(ctx, scr.SubjectID); err == nil && subj != nil {
		subjectEntity.Kind = subj.Kind
		subjectEntity.Name = subj.FullName
	}
	if err := e.relations.SaveEntity(ctx, subjectEntity); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var connections []profile.Connection
	firstHop := make(map[uuid.UUID]struct{})

	for _, fact := range kb.AllFacts() {
		relation, kind, ok := relationFor(fact.Type)
		if !ok {
			continue
		}

		entity, err := e.relations.FindEntityByName(ctx, fact.Value)
		if err != nil {
			return connections, err
		}
		if entity == nil {
			entity = &profile.Entity{ID: uuid.New(), Kind: kind, Name: fact.Value}
			if err := e.relations.SaveEntity(ctx, entity); err != nil {
				return connections, err
			}
		}

		if err := e.relations.SaveRelation(ctx, &profile.Relation{
			From:         scr.SubjectID,
			To:           entity.ID,
			RelationType: relation,
			Confidence:   fact.Confidence,
			DiscoveredIn: scr.ID,
			DiscoveredAt: now,
		}); err != nil {
			return connections, err
		}
		firstHop[entity.ID] = struct{}{}

		connections = append(connections, profile.Connection{
			EntityName: fact.Value,
			Relation:   relation,
			RiskLevel:  e.connectionRisk(fact, kb),
			Confidence: fact.Confidence,
		})
	}

	if scr.Config.Degree == screening.DegreeD3 {
		extended, err := e.extendedHop(ctx, firstHop)
		if err != nil {
			return connections, err
		}
		connections = append(connections, extended...)
	}

	sort.Slice(connections, func(i, j int) bool {
		if connections[i].Relation != connections[j].Relation {
			return connections[i].Relation < connections[j].Relation
		}
		return connections[i].EntityName < connections[j].EntityName
	})
	return connections, nil
}

// extendedHop follows relations already known for the first-hop entities.
// Confidence decays per hop so second-degree connections never outrank
// direct ones.
func (e *Engine) extendedHop(ctx context.Context, firstHop map[uuid.UUID]struct{}) ([]profile.Connection, error) {
	var out []profile.Connection
	for entityID := range firstHop {
		rels, err := e.relations.RelationsFrom(ctx, entityID)
		if err != nil {
			return out, err
		}
		for _, rel := range rels {
			if _, direct := firstHop[rel.To]; direct {
				continue
			}
			target, err := e.relations.GetEntity(ctx, rel.To)
			if err != nil {
				return out, err
			}
			if target == nil {
				continue
			}
			out = append(out, profile.Connection{
				EntityName: target.Name,
				Relation:   "extended:" + rel.RelationType,
				RiskLevel:  screening.RiskLow,
				Confidence: rel.Confidence * 0.8,
			})
		}
	}
	return out, nil
}

// connectionRisk grades a discovered connection: HIGH when the entity name
// surfaces in sanction or adverse-media facts, MODERATE when the relation
// itself is corroborated, LOW otherwise.
func (e *Engine) connectionRisk(fact screening.Fact, kb *sar.KnowledgeBase) screening.RiskLevel {
	canonical := screening.CanonicalValue(fact.Value)
	if canonical != "" {
		adverse := append(kb.FactsOfType(screening.FactSanctionMatch), kb.FactsOfType(screening.FactMediaMention)...)
		for _, v := range adverse {
			if strings.Contains(screening.CanonicalValue(v), canonical) {
				e.logger.Info("high-risk connection discovered",
					zap.String("entity", fact.Value),
					zap.String("matched", v))
				return screening.RiskHigh
			}
		}
	}
	if kb.Corroborated(fact.Key()) {
		return screening.RiskModerate
	}
	return screening.RiskLow
}
