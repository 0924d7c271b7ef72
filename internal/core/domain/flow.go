package domain

import (
	"fmt"
	"sort"
)

type EdgeType string

const (
	EdgeRequires  EdgeType = "REQUIRES"
	EdgeNext      EdgeType = "NEXT"
	EdgeBranch    EdgeType = "BRANCH"
	EdgeSatisfied EdgeType = "SATISFIED"
	EdgeLeadsTo   EdgeType = "LEADS_TO"
)

type ConditionType string

const (
	ConditionSelectOne   ConditionType = "select_one"
	ConditionSelectMulti ConditionType = "select_multi"
	ConditionTextInput   ConditionType = "text_input"
	ConditionDateInput   ConditionType = "date_input"
	ConditionNumberInput ConditionType = "number_input"
	ConditionYesNo       ConditionType = "yes_no"
	ConditionAutoExtract ConditionType = "auto_extract"
)

type ActionType string

const (
	ActionGraphSearch  ActionType = "graph_search"
	ActionVectorSearch ActionType = "vector_search"
	ActionHybridSearch ActionType = "hybrid_search"
	ActionLLMGenerate  ActionType = "llm_generate"
	ActionAPICall      ActionType = "api_call"
	ActionClarify      ActionType = "clarify"
)

// IntentNode is a recognizable user goal anchoring one flow traversal.
// Lower priority values match before higher ones.
type IntentNode struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
	Examples    []string `json:"examples"`
	Priority    int      `json:"priority"`
	IsActive    bool     `json:"is_active"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ConditionNode is one slot of information collected before acting.
type ConditionNode struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	DisplayName      string        `json:"display_name"`
	ConditionType    ConditionType `json:"condition_type"`
	QuestionTemplate string        `json:"question_template"`
	Options          []Option      `json:"options,omitempty"`
	OptionsFromGraph string        `json:"options_from_graph,omitempty"`
	ValidationRule   string        `json:"validation_rule,omitempty"`
	DefaultValue     string        `json:"default_value,omitempty"`
	IsRequired       bool          `json:"is_required"`
	Order            int           `json:"order"`
}

type ActionNode struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ActionType ActionType     `json:"action_type"`
	Config     map[string]any `json:"config,omitempty"`
}

type ResponseNode struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Template       string `json:"template"`
	IncludeGraph   bool   `json:"include_graph"`
	IncludeSources bool   `json:"include_sources"`
}

type FlowEdge struct {
	ID        string   `json:"id"`
	SourceID  string   `json:"source_id"`
	TargetID  string   `json:"target_id"`
	EdgeType  EdgeType `json:"edge_type"`
	Condition string   `json:"condition,omitempty"`
	Order     int      `json:"order"`
}

// FlowGraph is the raw authored graph as stored by the flow repository.
type FlowGraph struct {
	Intents    []IntentNode    `json:"intents"`
	Conditions []ConditionNode `json:"conditions"`
	Actions    []ActionNode    `json:"actions"`
	Responses  []ResponseNode  `json:"responses"`
	Edges      []FlowEdge      `json:"edges"`
}

// FlowSnapshot is an immutable, validated view of a FlowGraph: nodes in an
// arena addressed by id, adjacency lists keyed by edge type with edges
// pre-sorted by (order, declaration). Snapshots are built once at publish
// time and shared by concurrent readers without locking.
type FlowSnapshot struct {
	version int64

	intents    map[string]IntentNode
	conditions map[string]ConditionNode
	actions    map[string]ActionNode
	responses  map[string]ResponseNode

	outgoing map[string]map[EdgeType][]FlowEdge

	orderedIntents []IntentNode
}

// NewFlowSnapshot validates the graph and builds the arena. Dangling edges
// and NEXT/REQUIRES cycles among conditions are structural errors that must
// block publish; they are never raised mid-conversation.
func NewFlowSnapshot(version int64, graph FlowGraph) (*FlowSnapshot, error) {
	s := &FlowSnapshot{
		version:    version,
		intents:    make(map[string]IntentNode, len(graph.Intents)),
		conditions: make(map[string]ConditionNode, len(graph.Conditions)),
		actions:    make(map[string]ActionNode, len(graph.Actions)),
		responses:  make(map[string]ResponseNode, len(graph.Responses)),
		outgoing:   make(map[string]map[EdgeType][]FlowEdge),
	}

	for _, intent := range graph.Intents {
		s.intents[intent.ID] = intent
	}
	for _, cond := range graph.Conditions {
		s.conditions[cond.ID] = cond
	}
	for _, action := range graph.Actions {
		s.actions[action.ID] = action
	}
	for _, resp := range graph.Responses {
		s.responses[resp.ID] = resp
	}

	for _, edge := range graph.Edges {
		if !s.nodeExists(edge.SourceID) {
			return nil, WrapError(ErrGraphStructural, "build snapshot", fmt.Errorf("edge %s: dangling source %s", edge.ID, edge.SourceID))
		}
		if !s.nodeExists(edge.TargetID) {
			return nil, WrapError(ErrGraphStructural, "build snapshot", fmt.Errorf("edge %s: dangling target %s", edge.ID, edge.TargetID))
		}
		byType, ok := s.outgoing[edge.SourceID]
		if !ok {
			byType = make(map[EdgeType][]FlowEdge)
			s.outgoing[edge.SourceID] = byType
		}
		byType[edge.EdgeType] = append(byType[edge.EdgeType], edge)
	}

	for _, byType := range s.outgoing {
		for _, edges := range byType {
			sort.SliceStable(edges, func(i, j int) bool {
				return edges[i].Order < edges[j].Order
			})
		}
	}

	if cycle := s.findConditionCycle(); cycle != "" {
		return nil, WrapError(ErrGraphStructural, "build snapshot", fmt.Errorf("condition %s participates in a NEXT/REQUIRES cycle", cycle))
	}

	s.orderedIntents = make([]IntentNode, 0, len(s.intents))
	for _, intent := range s.intents {
		s.orderedIntents = append(s.orderedIntents, intent)
	}
	sort.SliceStable(s.orderedIntents, func(i, j int) bool {
		if s.orderedIntents[i].Priority != s.orderedIntents[j].Priority {
			return s.orderedIntents[i].Priority < s.orderedIntents[j].Priority
		}
		return s.orderedIntents[i].Name < s.orderedIntents[j].Name
	})

	return s, nil
}

func (s *FlowSnapshot) Version() int64 { return s.version }

func (s *FlowSnapshot) nodeExists(id string) bool {
	if _, ok := s.intents[id]; ok {
		return true
	}
	if _, ok := s.conditions[id]; ok {
		return true
	}
	if _, ok := s.actions[id]; ok {
		return true
	}
	_, ok := s.responses[id]
	return ok
}

func (s *FlowSnapshot) Intent(id string) (IntentNode, bool) {
	intent, ok := s.intents[id]
	return intent, ok
}

// IntentByName resolves an intent by its symbolic name.
func (s *FlowSnapshot) IntentByName(name string) (IntentNode, bool) {
	for _, intent := range s.orderedIntents {
		if intent.Name == name {
			return intent, true
		}
	}
	return IntentNode{}, false
}

// ActiveIntents returns active intents ordered by ascending priority.
func (s *FlowSnapshot) ActiveIntents() []IntentNode {
	out := make([]IntentNode, 0, len(s.orderedIntents))
	for _, intent := range s.orderedIntents {
		if intent.IsActive {
			out = append(out, intent)
		}
	}
	return out
}

func (s *FlowSnapshot) Condition(id string) (ConditionNode, bool) {
	cond, ok := s.conditions[id]
	return cond, ok
}

func (s *FlowSnapshot) Action(id string) (ActionNode, bool) {
	action, ok := s.actions[id]
	return action, ok
}

func (s *FlowSnapshot) Response(id string) (ResponseNode, bool) {
	resp, ok := s.responses[id]
	return resp, ok
}

// Outgoing returns edges of one type leaving a node, sorted by order.
// The returned slice is shared; callers must not mutate it.
func (s *FlowSnapshot) Outgoing(nodeID string, edgeType EdgeType) []FlowEdge {
	byType, ok := s.outgoing[nodeID]
	if !ok {
		return nil
	}
	return byType[edgeType]
}

// findConditionCycle runs an iterative three-color DFS over NEXT and
// REQUIRES edges restricted to condition nodes. LEADS_TO is exempt so
// cross-intent loops through actions stay legal.
func (s *FlowSnapshot) findConditionCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(s.conditions))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		for _, edgeType := range []EdgeType{EdgeNext, EdgeRequires} {
			for _, edge := range s.Outgoing(id, edgeType) {
				if _, isCondition := s.conditions[edge.TargetID]; !isCondition {
					continue
				}
				switch color[edge.TargetID] {
				case gray:
					return edge.TargetID
				case white:
					if hit := visit(edge.TargetID); hit != "" {
						return hit
					}
				}
			}
		}
		color[id] = black
		return ""
	}

	ids := make([]string, 0, len(s.conditions))
	for id := range s.conditions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}
