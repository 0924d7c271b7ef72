package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

// predicateEnv is the name set a BRANCH predicate can reference: every
// collected value plus the synthetic "intent" name.
func predicateEnv(intentName string, values map[string]string) map[string]string {
	env := make(map[string]string, len(values)+1)
	for k, v := range values {
		env[k] = v
	}
	env["intent"] = intentName
	return env
}

// evalPredicate evaluates a BRANCH guard of the form
//
//	name == 'value' && other != 'value'
//
// Only == , != and && are supported. A reference to a name that has not
// been collected yet makes the whole predicate false.
func evalPredicate(expr string, env map[string]string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	for _, clause := range strings.Split(expr, "&&") {
		ok, err := evalClause(strings.TrimSpace(clause), env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalClause(clause string, env map[string]string) (bool, error) {
	op := "=="
	idx := strings.Index(clause, "==")
	if idx < 0 {
		op = "!="
		idx = strings.Index(clause, "!=")
	}
	if idx < 0 {
		return false, fmt.Errorf("unsupported predicate clause %q", clause)
	}

	name := strings.TrimSpace(clause[:idx])
	lit := strings.TrimSpace(clause[idx+2:])
	if name == "" {
		return false, fmt.Errorf("predicate clause %q has no name", clause)
	}
	if len(lit) < 2 || lit[0] != '\'' || lit[len(lit)-1] != '\'' {
		return false, fmt.Errorf("predicate clause %q: literal must be single quoted", clause)
	}
	lit = lit[1 : len(lit)-1]

	value, ok := env[name]
	if !ok {
		return false, nil
	}
	if op == "==" {
		return value == lit, nil
	}
	return value != lit, nil
}

// traversal is a read-only walk over one published snapshot. It never
// mutates the snapshot and carries no state between turns.
type traversal struct {
	snap *domain.FlowSnapshot
}

// successors lists the next flow nodes out of nodeID: REQUIRES targets,
// then NEXT targets, then the target of the first BRANCH edge whose guard
// holds. Within each edge type the snapshot keeps (order, declaration)
// ordering. Malformed guards are skipped and reported via onBadGuard.
func (t traversal) successors(nodeID string, env map[string]string, onBadGuard func(edge domain.FlowEdge, err error)) []string {
	var out []string
	for _, edge := range t.snap.Outgoing(nodeID, domain.EdgeRequires) {
		out = append(out, edge.TargetID)
	}
	for _, edge := range t.snap.Outgoing(nodeID, domain.EdgeNext) {
		out = append(out, edge.TargetID)
	}
	for _, edge := range t.snap.Outgoing(nodeID, domain.EdgeBranch) {
		ok, err := evalPredicate(edge.Condition, env)
		if err != nil {
			if onBadGuard != nil {
				onBadGuard(edge, err)
			}
			continue
		}
		if ok {
			out = append(out, edge.TargetID)
			break
		}
	}
	return out
}

// nextStep walks breadth first from startID through fulfilled conditions
// and stops at the first condition whose value is still missing. When every
// condition on the frontier is fulfilled it resolves the first reachable
// SATISFIED action instead. Both results nil means the flow dead-ends.
func (t traversal) nextStep(startID string, env map[string]string, onBadGuard func(domain.FlowEdge, error)) (*domain.ConditionNode, *domain.ActionNode) {
	visited := map[string]bool{startID: true}
	queue := []string{startID}
	frontier := []string{startID}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		for _, targetID := range t.successors(nodeID, env, onBadGuard) {
			if visited[targetID] {
				continue
			}
			visited[targetID] = true

			cond, isCondition := t.snap.Condition(targetID)
			if !isCondition {
				continue
			}
			if _, fulfilled := env[cond.Name]; !fulfilled {
				return &cond, nil
			}
			queue = append(queue, targetID)
			frontier = append(frontier, targetID)
		}
	}

	// All reachable conditions are fulfilled; pick up the action in the
	// order the conditions were reached.
	for _, nodeID := range frontier {
		for _, edge := range t.snap.Outgoing(nodeID, domain.EdgeSatisfied) {
			if action, ok := t.snap.Action(edge.TargetID); ok {
				return nil, &action
			}
		}
	}
	return nil, nil
}

// followLeadsTo resolves a LEADS_TO edge out of an action whose target is
// an intent. It retargets the conversation at that intent without clearing
// collected values. LEADS_TO edges pointing at response nodes are resolved
// separately when the action completes.
func (t traversal) followLeadsTo(actionID string) (domain.IntentNode, bool) {
	for _, edge := range t.snap.Outgoing(actionID, domain.EdgeLeadsTo) {
		if intent, ok := t.snap.Intent(edge.TargetID); ok {
			return intent, true
		}
	}
	return domain.IntentNode{}, false
}
