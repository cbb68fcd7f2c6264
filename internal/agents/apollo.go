package agents

import (
	"context"
	"fmt"
	"strings"

	"olympus/internal/logging"
	"olympus/internal/types"
)

// =============================================================================
// APOLLO: GRAPH-RAG
// =============================================================================

// GraphStore is the knowledge-graph slice Apollo needs.
type GraphStore interface {
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	GetEntityByName(ctx context.Context, name string) (*types.Entity, error)
	ExpandEntities(ctx context.Context, seedIDs []string, maxHops, maxNodes int) ([]string, error)
	DocumentsForEntities(ctx context.Context, entityIDs []string) ([]string, error)
}

// GraphExpansion is the result of expanding a query through the graph.
type GraphExpansion struct {
	MatchedEntities []string `json:"matched_entities"`
	RelatedEntities []string `json:"related_entities"`
	DocumentIDs     []string `json:"document_ids"`
	ExpandedQuery   string   `json:"expanded_query"`
	ContextBlock    string   `json:"context_block"`
	Confidence      float64  `json:"confidence"`
}

// Apollo expands queries through the knowledge graph: query entities are
// matched to nodes, edges are followed, and the related entities and their
// documents enrich retrieval.
type Apollo struct {
	graph        GraphStore
	maxHops      int
	maxExpansion int
}

// NewApollo wires the graph expander. graph may be nil; expansion then
// degrades to a no-op.
func NewApollo(graph GraphStore, maxHops, maxExpansion int) *Apollo {
	if maxHops <= 0 {
		maxHops = 2
	}
	if maxExpansion <= 0 {
		maxExpansion = 10
	}
	return &Apollo{graph: graph, maxHops: maxHops, maxExpansion: maxExpansion}
}

// ExpandQuery matches the extracted entities against graph nodes, walks
// edges in both directions, and collects related entities plus their
// document ids. A nil return means nothing matched.
func (a *Apollo) ExpandQuery(ctx context.Context, query string, entities []string) *GraphExpansion {
	if a.graph == nil || len(entities) == 0 {
		return nil
	}

	exp := &GraphExpansion{ExpandedQuery: query}
	var seedIDs []string

	for _, name := range entities {
		node, err := a.graph.GetEntityByName(ctx, name)
		if err != nil || node == nil {
			continue
		}
		seedIDs = append(seedIDs, node.ID)
		exp.MatchedEntities = append(exp.MatchedEntities, node.Name)
		exp.DocumentIDs = append(exp.DocumentIDs, node.DocumentIDs...)
	}
	if len(seedIDs) == 0 {
		return nil
	}

	relatedIDs, err := a.graph.ExpandEntities(ctx, seedIDs, a.maxHops, a.maxExpansion)
	if err != nil {
		logging.Agents("apollo expansion failed: %v", err)
		relatedIDs = nil
	}

	var relatedNames []string
	for _, id := range relatedIDs {
		node, err := a.graph.GetEntity(ctx, id)
		if err != nil || node == nil {
			continue
		}
		relatedNames = append(relatedNames, node.Name)
	}
	exp.RelatedEntities = relatedNames

	if docs, err := a.graph.DocumentsForEntities(ctx, relatedIDs); err == nil {
		exp.DocumentIDs = append(exp.DocumentIDs, docs...)
	}
	exp.DocumentIDs = dedupeFold(exp.DocumentIDs)

	if len(exp.MatchedEntities) > 0 {
		exp.ExpandedQuery = query + " " + strings.Join(exp.MatchedEntities, " ")
	}
	exp.ContextBlock = buildContextBlock(exp)
	return exp
}

// EnhanceConfidence composes the expansion with the upstream search results:
// 0.5 base + 0.3 * graph coverage of query entities + 0.2 * overlap between
// graph documents and retrieved documents.
func (a *Apollo) EnhanceConfidence(exp *GraphExpansion, queryEntities []string, results []types.SearchResult) float64 {
	if exp == nil {
		return 0.5
	}

	coverage := 0.0
	if len(queryEntities) > 0 {
		coverage = float64(len(exp.MatchedEntities)) / float64(len(queryEntities))
		if coverage > 1 {
			coverage = 1
		}
	}

	overlap := 0.0
	if len(results) > 0 && len(exp.DocumentIDs) > 0 {
		graphDocs := make(map[string]bool, len(exp.DocumentIDs))
		for _, id := range exp.DocumentIDs {
			graphDocs[id] = true
		}
		hits := 0
		for _, r := range results {
			if graphDocs[r.ID] {
				hits++
			}
		}
		overlap = float64(hits) / float64(len(results))
	}

	return 0.5 + 0.3*coverage + 0.2*overlap
}

func buildContextBlock(exp *GraphExpansion) string {
	var sb strings.Builder
	if len(exp.MatchedEntities) > 0 {
		fmt.Fprintf(&sb, "Known entities: %s\n", strings.Join(exp.MatchedEntities, ", "))
	}
	if len(exp.RelatedEntities) > 0 {
		fmt.Fprintf(&sb, "Related entities from the knowledge graph: %s\n", strings.Join(exp.RelatedEntities, ", "))
	}
	if len(exp.DocumentIDs) > 0 {
		fmt.Fprintf(&sb, "%d documents reference these entities.\n", len(exp.DocumentIDs))
	}
	return sb.String()
}
