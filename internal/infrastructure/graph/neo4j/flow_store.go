package neo4j

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// FlowStore persists the authored flow graph as FlowIntent, FlowCondition,
// FlowAction and FlowResponse nodes joined by typed relationships. Option
// lists and action configs go in as JSON strings since nested maps are not
// valid property values.
type FlowStore struct {
	client *Client
}

func NewFlowStore(client *Client) *FlowStore {
	return &FlowStore{client: client}
}

var allowedEdgeTypes = map[domain.EdgeType]bool{
	domain.EdgeRequires:  true,
	domain.EdgeNext:      true,
	domain.EdgeBranch:    true,
	domain.EdgeSatisfied: true,
	domain.EdgeLeadsTo:   true,
}

func (s *FlowStore) UpsertIntent(ctx context.Context, intent domain.IntentNode) error {
	_, err := s.client.run(ctx, `
		MERGE (n:FlowIntent {id: $id})
		SET n.name = $name,
		    n.display_name = $display_name,
		    n.description = $description,
		    n.keywords = $keywords,
		    n.examples = $examples,
		    n.priority = $priority,
		    n.is_active = $is_active
		RETURN n.id AS id`,
		map[string]any{
			"id":           intent.ID,
			"name":         intent.Name,
			"display_name": intent.DisplayName,
			"description":  intent.Description,
			"keywords":     toAnySlice(intent.Keywords),
			"examples":     toAnySlice(intent.Examples),
			"priority":     intent.Priority,
			"is_active":    intent.IsActive,
		})
	return err
}

func (s *FlowStore) GetIntent(ctx context.Context, id string) (*domain.IntentNode, error) {
	result, err := s.client.run(ctx, "MATCH (n:FlowIntent {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNodeNotFound, "get intent", fmt.Errorf("id %s", id))
	}
	intent := intentFromRecord(result.Records[0])
	return &intent, nil
}

func (s *FlowStore) ListIntents(ctx context.Context, activeOnly bool) ([]domain.IntentNode, error) {
	query := "MATCH (n:FlowIntent) RETURN n ORDER BY n.priority, n.name"
	if activeOnly {
		query = "MATCH (n:FlowIntent) WHERE n.is_active RETURN n ORDER BY n.priority, n.name"
	}
	result, err := s.client.run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IntentNode, 0, len(result.Records))
	for _, record := range result.Records {
		out = append(out, intentFromRecord(record))
	}
	return out, nil
}

func (s *FlowStore) DeleteIntent(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "FlowIntent", id)
}

func (s *FlowStore) UpsertCondition(ctx context.Context, cond domain.ConditionNode) error {
	options, err := json.Marshal(cond.Options)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "encode options", err)
	}
	_, err = s.client.run(ctx, `
		MERGE (n:FlowCondition {id: $id})
		SET n.name = $name,
		    n.display_name = $display_name,
		    n.condition_type = $condition_type,
		    n.question_template = $question_template,
		    n.options = $options,
		    n.options_from_graph = $options_from_graph,
		    n.validation_rule = $validation_rule,
		    n.default_value = $default_value,
		    n.is_required = $is_required,
		    n.order = $order
		RETURN n.id AS id`,
		map[string]any{
			"id":                 cond.ID,
			"name":               cond.Name,
			"display_name":       cond.DisplayName,
			"condition_type":     string(cond.ConditionType),
			"question_template":  cond.QuestionTemplate,
			"options":            string(options),
			"options_from_graph": cond.OptionsFromGraph,
			"validation_rule":    cond.ValidationRule,
			"default_value":      cond.DefaultValue,
			"is_required":        cond.IsRequired,
			"order":              cond.Order,
		})
	return err
}

func (s *FlowStore) GetCondition(ctx context.Context, id string) (*domain.ConditionNode, error) {
	result, err := s.client.run(ctx, "MATCH (n:FlowCondition {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNodeNotFound, "get condition", fmt.Errorf("id %s", id))
	}
	cond := conditionFromRecord(result.Records[0])
	return &cond, nil
}

func (s *FlowStore) DeleteCondition(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "FlowCondition", id)
}

func (s *FlowStore) UpsertAction(ctx context.Context, action domain.ActionNode) error {
	config, err := json.Marshal(action.Config)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "encode config", err)
	}
	_, err = s.client.run(ctx, `
		MERGE (n:FlowAction {id: $id})
		SET n.name = $name,
		    n.action_type = $action_type,
		    n.config = $config
		RETURN n.id AS id`,
		map[string]any{
			"id":          action.ID,
			"name":        action.Name,
			"action_type": string(action.ActionType),
			"config":      string(config),
		})
	return err
}

func (s *FlowStore) GetAction(ctx context.Context, id string) (*domain.ActionNode, error) {
	result, err := s.client.run(ctx, "MATCH (n:FlowAction {id: $id}) RETURN n", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, domain.WrapError(domain.ErrNodeNotFound, "get action", fmt.Errorf("id %s", id))
	}
	action := actionFromRecord(result.Records[0])
	return &action, nil
}

func (s *FlowStore) DeleteAction(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "FlowAction", id)
}

func (s *FlowStore) UpsertResponse(ctx context.Context, response domain.ResponseNode) error {
	_, err := s.client.run(ctx, `
		MERGE (n:FlowResponse {id: $id})
		SET n.name = $name,
		    n.template = $template,
		    n.include_graph = $include_graph,
		    n.include_sources = $include_sources
		RETURN n.id AS id`,
		map[string]any{
			"id":              response.ID,
			"name":            response.Name,
			"template":        response.Template,
			"include_graph":   response.IncludeGraph,
			"include_sources": response.IncludeSources,
		})
	return err
}

func (s *FlowStore) DeleteResponse(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "FlowResponse", id)
}

func (s *FlowStore) UpsertEdge(ctx context.Context, edge domain.FlowEdge) error {
	if !allowedEdgeTypes[edge.EdgeType] {
		return domain.WrapError(domain.ErrInvalidInput, "upsert edge", fmt.Errorf("edge type %q", edge.EdgeType))
	}
	// The relationship type cannot be parameterized; it is validated
	// against the closed set above before interpolation.
	query := fmt.Sprintf(`
		MATCH (source) WHERE source.id = $source_id
		MATCH (target) WHERE target.id = $target_id
		MERGE (source)-[r:%s {id: $id}]->(target)
		SET r.condition = $condition,
		    r.order = $order
		RETURN r.id AS id`, edge.EdgeType)

	result, err := s.client.run(ctx, query, map[string]any{
		"id":        edge.ID,
		"source_id": edge.SourceID,
		"target_id": edge.TargetID,
		"condition": edge.Condition,
		"order":     edge.Order,
	})
	if err != nil {
		return err
	}
	if len(result.Records) == 0 {
		return domain.WrapError(domain.ErrNodeNotFound, "upsert edge", fmt.Errorf("endpoints %s -> %s", edge.SourceID, edge.TargetID))
	}
	return nil
}

func (s *FlowStore) DeleteEdge(ctx context.Context, id string) error {
	_, err := s.client.run(ctx, "MATCH ()-[r {id: $id}]->() DELETE r", map[string]any{"id": id})
	return err
}

func (s *FlowStore) deleteNode(ctx context.Context, label, id string) error {
	_, err := s.client.run(ctx,
		fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label),
		map[string]any{"id": id})
	return err
}

// LoadGraph pulls the whole authored graph, or only what is reachable from
// one intent.
func (s *FlowStore) LoadGraph(ctx context.Context, intentID string) (domain.FlowGraph, error) {
	var (
		graph      domain.FlowGraph
		nodeQuery  string
		edgeQuery  string
		nodeParams map[string]any
	)
	if intentID != "" {
		nodeQuery = `
			MATCH (i:FlowIntent {id: $intent_id})
			OPTIONAL MATCH (i)-[*]->(n)
			WITH collect(i) + collect(n) AS nodes
			UNWIND nodes AS node
			RETURN DISTINCT node AS n, labels(node)[0] AS label`
		edgeQuery = `
			MATCH (i:FlowIntent {id: $intent_id})-[*0..]->(s)-[r]->(t)
			RETURN DISTINCT r, s.id AS source, t.id AS target, type(r) AS rel_type`
		nodeParams = map[string]any{"intent_id": intentID}
	} else {
		nodeQuery = `
			MATCH (n)
			WHERE n:FlowIntent OR n:FlowCondition OR n:FlowAction OR n:FlowResponse
			RETURN n, labels(n)[0] AS label`
		edgeQuery = `
			MATCH (s)-[r]->(t)
			WHERE (s:FlowIntent OR s:FlowCondition OR s:FlowAction)
			RETURN r, s.id AS source, t.id AS target, type(r) AS rel_type`
	}

	nodes, err := s.client.run(ctx, nodeQuery, nodeParams)
	if err != nil {
		return graph, err
	}
	for _, record := range nodes.Records {
		label, _ := record.Get("label")
		switch label {
		case "FlowIntent":
			graph.Intents = append(graph.Intents, intentFromRecord(record))
		case "FlowCondition":
			graph.Conditions = append(graph.Conditions, conditionFromRecord(record))
		case "FlowAction":
			graph.Actions = append(graph.Actions, actionFromRecord(record))
		case "FlowResponse":
			graph.Responses = append(graph.Responses, responseFromRecord(record))
		}
	}

	edges, err := s.client.run(ctx, edgeQuery, nodeParams)
	if err != nil {
		return graph, err
	}
	for _, record := range edges.Records {
		rel, ok := relFromRecord(record)
		if !ok {
			continue
		}
		graph.Edges = append(graph.Edges, rel)
	}
	return graph, nil
}

// DynamicOptions runs an authored read query; each returned row must carry
// value and label columns.
func (s *FlowStore) DynamicOptions(ctx context.Context, query string, params map[string]any) ([]domain.Option, error) {
	result, err := s.client.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Option, 0, len(result.Records))
	for _, record := range result.Records {
		value, _ := record.Get("value")
		label, _ := record.Get("label")
		opt := domain.Option{Value: asString(value), Label: asString(label)}
		if opt.Label == "" {
			opt.Label = opt.Value
		}
		if opt.Value != "" {
			out = append(out, opt)
		}
	}
	return out, nil
}

func nodeFromRecord(record *neo4j.Record, key string) (neo4j.Node, bool) {
	raw, ok := record.Get(key)
	if !ok {
		return neo4j.Node{}, false
	}
	node, ok := raw.(neo4j.Node)
	return node, ok
}

func intentFromRecord(record *neo4j.Record) domain.IntentNode {
	node, _ := nodeFromRecord(record, "n")
	props := node.Props
	return domain.IntentNode{
		ID:          asString(props["id"]),
		Name:        asString(props["name"]),
		DisplayName: asString(props["display_name"]),
		Description: asString(props["description"]),
		Keywords:    asStringSlice(props["keywords"]),
		Examples:    asStringSlice(props["examples"]),
		Priority:    asInt(props["priority"]),
		IsActive:    asBool(props["is_active"]),
	}
}

func conditionFromRecord(record *neo4j.Record) domain.ConditionNode {
	node, _ := nodeFromRecord(record, "n")
	props := node.Props
	cond := domain.ConditionNode{
		ID:               asString(props["id"]),
		Name:             asString(props["name"]),
		DisplayName:      asString(props["display_name"]),
		ConditionType:    domain.ConditionType(asString(props["condition_type"])),
		QuestionTemplate: asString(props["question_template"]),
		OptionsFromGraph: asString(props["options_from_graph"]),
		ValidationRule:   asString(props["validation_rule"]),
		DefaultValue:     asString(props["default_value"]),
		IsRequired:       asBool(props["is_required"]),
		Order:            asInt(props["order"]),
	}
	if raw := asString(props["options"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &cond.Options)
	}
	return cond
}

func actionFromRecord(record *neo4j.Record) domain.ActionNode {
	node, _ := nodeFromRecord(record, "n")
	props := node.Props
	action := domain.ActionNode{
		ID:         asString(props["id"]),
		Name:       asString(props["name"]),
		ActionType: domain.ActionType(asString(props["action_type"])),
	}
	if raw := asString(props["config"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &action.Config)
	}
	return action
}

func responseFromRecord(record *neo4j.Record) domain.ResponseNode {
	node, _ := nodeFromRecord(record, "n")
	props := node.Props
	return domain.ResponseNode{
		ID:             asString(props["id"]),
		Name:           asString(props["name"]),
		Template:       asString(props["template"]),
		IncludeGraph:   asBool(props["include_graph"]),
		IncludeSources: asBool(props["include_sources"]),
	}
}

func relFromRecord(record *neo4j.Record) (domain.FlowEdge, bool) {
	raw, ok := record.Get("r")
	if !ok {
		return domain.FlowEdge{}, false
	}
	rel, ok := raw.(neo4j.Relationship)
	if !ok {
		return domain.FlowEdge{}, false
	}
	relType, _ := record.Get("rel_type")
	edgeType := domain.EdgeType(asString(relType))
	if !allowedEdgeTypes[edgeType] {
		return domain.FlowEdge{}, false
	}
	source, _ := record.Get("source")
	target, _ := record.Get("target")
	return domain.FlowEdge{
		ID:        asString(rel.Props["id"]),
		SourceID:  asString(source),
		TargetID:  asString(target),
		EdgeType:  edgeType,
		Condition: asString(rel.Props["condition"]),
		Order:     asInt(rel.Props["order"]),
	}, true
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
