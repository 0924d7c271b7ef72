package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// EntityStore is the relationship-graph retrieval track over :Entity nodes
// produced by ingestion. Search goes through the fulltext index with a
// CONTAINS fallback for stores that lack it.
type EntityStore struct {
	client *Client
}

func NewEntityStore(client *Client) *EntityStore {
	return &EntityStore{client: client}
}

func (s *EntityStore) SearchEntities(ctx context.Context, query, datasetID string, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		limit = 10
	}

	results, err := s.fulltextSearch(ctx, query, datasetID, limit)
	if err == nil {
		return results, nil
	}

	return s.containsSearch(ctx, query, datasetID, limit)
}

func (s *EntityStore) fulltextSearch(ctx context.Context, query, datasetID string, limit int) ([]domain.RetrievalResult, error) {
	cypher := `
		CALL db.index.fulltext.queryNodes('entity_text', $query) YIELD node, score
		WHERE $dataset_id = '' OR node.dataset_id = $dataset_id
		RETURN node.id AS id, node.type AS type, node.name AS name,
		       node.description AS description, score
		ORDER BY score DESC
		LIMIT $limit`

	result, err := s.client.run(ctx, cypher, map[string]any{
		"query":      sanitizeLucene(query),
		"dataset_id": datasetID,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return entityResults(result), nil
}

func (s *EntityStore) containsSearch(ctx context.Context, query, datasetID string, limit int) ([]domain.RetrievalResult, error) {
	cypher := `
		MATCH (node:Entity)
		WHERE ($dataset_id = '' OR node.dataset_id = $dataset_id)
		  AND (toLower(node.name) CONTAINS $needle OR toLower(node.description) CONTAINS $needle)
		RETURN node.id AS id, node.type AS type, node.name AS name,
		       node.description AS description, 1.0 AS score
		ORDER BY node.name
		LIMIT $limit`

	result, err := s.client.run(ctx, cypher, map[string]any{
		"needle":     strings.ToLower(strings.TrimSpace(query)),
		"dataset_id": datasetID,
		"limit":      limit,
	})
	if err != nil {
		return nil, err
	}
	return entityResults(result), nil
}

// Neighborhood expands the subgraph around one entity up to depth hops,
// capped at limit relationships.
func (s *EntityStore) Neighborhood(ctx context.Context, entityID string, depth, limit int) (*domain.GraphData, error) {
	if depth <= 0 {
		depth = 2
	}
	if limit <= 0 {
		limit = 50
	}

	// Path length cannot be parameterized in Cypher.
	cypher := fmt.Sprintf(`
		MATCH (center:Entity {id: $id})
		OPTIONAL MATCH path = (center)-[*1..%d]-(other:Entity)
		WITH center, relationships(path) AS rels, nodes(path) AS ns
		LIMIT $limit
		RETURN center, rels, ns`, depth)

	result, err := s.client.run(ctx, cypher, map[string]any{"id": entityID, "limit": limit})
	if err != nil {
		return nil, err
	}

	graph := &domain.GraphData{}
	seenNodes := make(map[string]bool)
	seenEdges := make(map[string]bool)

	addNode := func(node neo4j.Node) {
		id := asString(node.Props["id"])
		if id == "" || seenNodes[id] {
			return
		}
		seenNodes[id] = true
		graph.Nodes = append(graph.Nodes, domain.GraphNode{
			ID:         id,
			Label:      asString(node.Props["name"]),
			Type:       asString(node.Props["type"]),
			Properties: node.Props,
		})
	}

	nodeByElement := make(map[string]string)
	for _, record := range result.Records {
		if raw, ok := record.Get("center"); ok {
			if node, ok := raw.(neo4j.Node); ok {
				addNode(node)
				nodeByElement[node.ElementId] = asString(node.Props["id"])
			}
		}
		if raw, ok := record.Get("ns"); ok {
			if ns, ok := raw.([]any); ok {
				for _, item := range ns {
					if node, ok := item.(neo4j.Node); ok {
						addNode(node)
						nodeByElement[node.ElementId] = asString(node.Props["id"])
					}
				}
			}
		}
		if raw, ok := record.Get("rels"); ok {
			if rels, ok := raw.([]any); ok {
				for _, item := range rels {
					rel, ok := item.(neo4j.Relationship)
					if !ok || seenEdges[rel.ElementId] {
						continue
					}
					seenEdges[rel.ElementId] = true
					graph.Edges = append(graph.Edges, domain.GraphEdge{
						ID:     rel.ElementId,
						Source: nodeByElement[rel.StartElementId],
						Target: nodeByElement[rel.EndElementId],
						Label:  asString(rel.Props["label"]),
						Type:   rel.Type,
						Weight: asFloat(rel.Props["weight"]),
					})
				}
			}
		}
	}
	return graph, nil
}

func entityResults(result *neo4j.EagerResult) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(result.Records))
	for _, record := range result.Records {
		id, _ := record.Get("id")
		if asString(id) == "" {
			continue
		}
		entityType, _ := record.Get("type")
		name, _ := record.Get("name")
		description, _ := record.Get("description")
		score, _ := record.Get("score")
		out = append(out, domain.RetrievalResult{
			ID:          asString(id),
			Type:        asString(entityType),
			Name:        asString(name),
			Description: asString(description),
			Score:       asFloat(score),
			Source:      domain.SourceGraph,
		})
	}
	return out
}

// sanitizeLucene strips query syntax so user text cannot break the
// fulltext parser.
func sanitizeLucene(query string) string {
	replacer := strings.NewReplacer(
		"+", " ", "-", " ", "&&", " ", "||", " ", "!", " ", "(", " ", ")", " ",
		"{", " ", "}", " ", "[", " ", "]", " ", "^", " ", "\"", " ", "~", " ",
		"*", " ", "?", " ", ":", " ", "\\", " ", "/", " ",
	)
	return strings.TrimSpace(replacer.Replace(query))
}
