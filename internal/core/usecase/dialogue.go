package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
	"github.com/kirillkom/graphrag-dialogue/internal/core/ports"
)

const (
	// leadsToHopLimit bounds same-turn intent chaining so a LEADS_TO loop
	// cannot spin a turn forever.
	leadsToHopLimit = 5

	defaultSessionTTL = 24 * time.Hour
	sessionLockShards = 64
)

// TurnObserver receives per-turn telemetry.
type TurnObserver interface {
	ObserveTurn(outcome string)
	ObserveIntentMatch(matched bool)
}

type DialogueConfig struct {
	SessionTTL time.Duration
}

// DialogueService interprets one conversation turn at a time against the
// published flow snapshot. Turns for the same session are serialized with
// a sharded lock; different sessions proceed in parallel.
type DialogueService struct {
	sessions  ports.SessionRepository
	flows     *FlowCache
	flowRepo  ports.FlowRepository
	search    ports.SearchService
	matcher   ports.IntentMatcher
	extractor ports.ValueExtractor
	generator ports.AnswerGenerator
	apiCaller ports.APICaller
	observer  TurnObserver
	cfg       DialogueConfig
	logger    *slog.Logger

	locks [sessionLockShards]sync.Mutex
}

func NewDialogueService(
	sessions ports.SessionRepository,
	flows *FlowCache,
	flowRepo ports.FlowRepository,
	search ports.SearchService,
	matcher ports.IntentMatcher,
	extractor ports.ValueExtractor,
	generator ports.AnswerGenerator,
	apiCaller ports.APICaller,
	observer TurnObserver,
	cfg DialogueConfig,
	logger *slog.Logger,
) *DialogueService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = NewKeywordIntentMatcher(0)
	}
	return &DialogueService{
		sessions:  sessions,
		flows:     flows,
		flowRepo:  flowRepo,
		search:    search,
		matcher:   matcher,
		extractor: extractor,
		generator: generator,
		apiCaller: apiCaller,
		observer:  observer,
		cfg:       cfg,
		logger:    logger,
	}
}

func (d *DialogueService) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &d.locks[h.Sum32()%sessionLockShards]
}

// Advance runs one turn. Recoverable problems (no intent match, invalid
// input, degraded backends) come back as chat messages inside the result,
// not as errors.
func (d *DialogueService) Advance(ctx context.Context, req domain.TurnRequest) (*domain.TurnResult, error) {
	snap := d.flows.Current()
	if snap == nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "advance", errors.New("no flow published"))
	}

	var state *domain.SessionState
	sessionID := req.SessionID
	if sessionID == "" {
		state = domain.NewSessionState(d.cfg.SessionTTL)
		sessionID = state.SessionID
	}

	// Lock before loading so concurrent turns for one session read and
	// write the state strictly one after another.
	lock := d.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if state == nil {
		var err error
		state, err = d.loadOrCreate(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	input := req.Message
	if req.SelectedOption != "" {
		input = req.SelectedOption
	}
	state.AppendMessage("user", input)
	if req.DatasetID != "" {
		state.DocumentContext = req.DatasetID
	}

	result := d.runTurn(ctx, snap, state, req)
	result.SessionID = state.SessionID
	result.CurrentIntent = state.CurrentIntent
	if result.CollectedValues == nil {
		result.CollectedValues = state.CollectedValues
	}

	state.AppendMessage("assistant", result.Message)
	state.Touch(d.cfg.SessionTTL)
	if err := d.sessions.Save(ctx, state); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "save session", err)
	}
	d.observeOutcome(result)
	return result, nil
}

func (d *DialogueService) observeOutcome(result *domain.TurnResult) {
	if d.observer == nil {
		return
	}
	switch {
	case result.IsComplete:
		d.observer.ObserveTurn("complete")
	case result.NeedsInput:
		d.observer.ObserveTurn("prompt")
	default:
		d.observer.ObserveTurn("clarify")
	}
}

func (d *DialogueService) loadOrCreate(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	if sessionID == "" {
		return domain.NewSessionState(d.cfg.SessionTTL), nil
	}
	state, err := d.sessions.Get(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if domain.IsKind(err, domain.ErrSessionNotFound) {
		// Unknown or expired ids restart cleanly under the same id.
		fresh := domain.NewSessionState(d.cfg.SessionTTL)
		fresh.SessionID = sessionID
		return fresh, nil
	}
	return nil, err
}

func (d *DialogueService) runTurn(ctx context.Context, snap *domain.FlowSnapshot, state *domain.SessionState, req domain.TurnRequest) *domain.TurnResult {
	// Pending condition first: the previous turn asked a question and this
	// message answers it.
	if state.CurrentNodeID != "" {
		if result := d.consumeAnswer(ctx, snap, state, req); result != nil {
			return result
		}
	}

	if state.CurrentIntent == "" {
		if result := d.matchIntent(snap, state, req.Message); result != nil {
			return result
		}
	}

	return d.walk(ctx, snap, state, req)
}

// consumeAnswer validates the user's answer against the pending condition.
// A nil return means the answer was accepted and the walk continues.
func (d *DialogueService) consumeAnswer(ctx context.Context, snap *domain.FlowSnapshot, state *domain.SessionState, req domain.TurnRequest) *domain.TurnResult {
	cond, ok := snap.Condition(state.CurrentNodeID)
	if !ok {
		// The flow changed under the session; drop the stale pointer and
		// let the walk find the new path.
		d.logger.Warn("pending condition vanished from flow",
			slog.String("session_id", state.SessionID),
			slog.String("node_id", state.CurrentNodeID))
		state.CurrentNodeID = ""
		return nil
	}

	input := req.Message
	if req.SelectedOption != "" {
		input = req.SelectedOption
	}
	value, err := validateInput(cond, input)
	if err != nil {
		return d.prompt(ctx, state, cond, err.Error())
	}
	state.CollectedValues[cond.Name] = value
	state.CurrentNodeID = ""
	return nil
}

func (d *DialogueService) matchIntent(snap *domain.FlowSnapshot, state *domain.SessionState, message string) *domain.TurnResult {
	intents := snap.ActiveIntents()
	intent, score, ok := d.matcher.Match(message, intents)
	if d.observer != nil {
		d.observer.ObserveIntentMatch(ok)
	}
	if !ok {
		options := make([]domain.Option, 0, len(intents))
		for _, candidate := range intents {
			label := candidate.DisplayName
			if label == "" {
				label = candidate.Name
			}
			options = append(options, domain.Option{Value: candidate.Name, Label: label})
		}
		return &domain.TurnResult{
			Message:    "I did not catch what you need. Pick one of the topics below or rephrase.",
			NeedsInput: true,
			InputType:  domain.ConditionSelectOne,
			Options:    options,
		}
	}

	d.logger.Info("intent matched",
		slog.String("session_id", state.SessionID),
		slog.String("intent", intent.Name),
		slog.Float64("score", score))
	state.CurrentIntent = intent.Name
	state.OriginalQuery = message
	return nil
}

// walk advances through conditions until one needs the user, then through
// the satisfied action and its response.
func (d *DialogueService) walk(ctx context.Context, snap *domain.FlowSnapshot, state *domain.SessionState, req domain.TurnRequest) *domain.TurnResult {
	tr := traversal{snap: snap}

	for hop := 0; hop < leadsToHopLimit; hop++ {
		intent, ok := snap.IntentByName(state.CurrentIntent)
		if !ok {
			d.logger.Warn("session intent missing from flow",
				slog.String("session_id", state.SessionID),
				slog.String("intent", state.CurrentIntent))
			state.Reset()
			return &domain.TurnResult{
				Message: "That topic is no longer available. What would you like to do?",
			}
		}

		env := predicateEnv(state.CurrentIntent, state.CollectedValues)
		onBadGuard := func(edge domain.FlowEdge, err error) {
			d.logger.Warn("branch guard rejected",
				slog.String("edge_id", edge.ID),
				slog.String("guard", edge.Condition),
				slog.String("error", err.Error()))
		}

		cond, action := tr.nextStep(intent.ID, env, onBadGuard)
		if cond != nil {
			if cond.ConditionType == domain.ConditionAutoExtract && d.extractor != nil {
				if value, extracted := d.tryExtract(ctx, *cond, state, req); extracted {
					state.CollectedValues[cond.Name] = value
					hop--
					continue
				}
			}
			return d.prompt(ctx, state, *cond, "")
		}
		if action == nil {
			d.logger.Warn("flow dead end",
				slog.String("session_id", state.SessionID),
				slog.String("intent", state.CurrentIntent))
			state.Reset()
			return &domain.TurnResult{
				Message:    "I could not finish that flow. Let's start over, what do you need?",
				IsComplete: true,
			}
		}

		result := d.execute(ctx, snap, state, *action)
		if result != nil {
			return result
		}
		// A LEADS_TO edge retargeted the session; keep walking under the
		// new intent with the values collected so far.
	}

	state.Reset()
	return &domain.TurnResult{
		Message:    "This flow kept redirecting and was stopped. What would you like to do?",
		IsComplete: true,
	}
}

func (d *DialogueService) tryExtract(ctx context.Context, cond domain.ConditionNode, state *domain.SessionState, req domain.TurnRequest) (string, bool) {
	value, ok, err := d.extractor.ExtractValue(ctx, cond, req.Message, state.DocumentContext)
	if err != nil {
		d.logger.Warn("value extraction failed",
			slog.String("condition", cond.Name),
			slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}
	if validated, err := validateInput(cond, value); err == nil {
		return validated, true
	}
	return "", false
}

// prompt asks the user for the pending condition, resolving live options
// when the condition sources them from the graph.
func (d *DialogueService) prompt(ctx context.Context, state *domain.SessionState, cond domain.ConditionNode, reprompt string) *domain.TurnResult {
	state.CurrentNodeID = cond.ID

	question := renderTemplate(cond.QuestionTemplate, state.CollectedValues)
	if question == "" {
		question = fmt.Sprintf("Please provide %s.", displayName(cond))
	}
	if reprompt != "" {
		question = reprompt + " " + question
	}

	options := cond.Options
	if cond.OptionsFromGraph != "" && d.flowRepo != nil {
		if live, err := d.flowRepo.DynamicOptions(ctx, cond.OptionsFromGraph, map[string]any{
			"values":  state.CollectedValues,
			"dataset": state.DocumentContext,
		}); err != nil {
			d.logger.Warn("dynamic options unavailable",
				slog.String("condition", cond.Name),
				slog.String("error", err.Error()))
		} else if len(live) > 0 {
			options = live
		}
	}

	return &domain.TurnResult{
		Message:    question,
		NeedsInput: true,
		InputType:  cond.ConditionType,
		Options:    options,
	}
}

// execute runs one action node. A nil result means a LEADS_TO edge moved
// the session to another intent and the caller should continue walking.
func (d *DialogueService) execute(ctx context.Context, snap *domain.FlowSnapshot, state *domain.SessionState, action domain.ActionNode) *domain.TurnResult {
	tr := traversal{snap: snap}

	query := state.OriginalQuery
	if query == "" {
		query = lastUserMessage(state)
	}

	var (
		answer  string
		graph   *domain.GraphData
		sources []domain.FusedResult
		err     error
	)

	switch action.ActionType {
	case domain.ActionGraphSearch, domain.ActionVectorSearch, domain.ActionHybridSearch:
		answer, graph, sources, err = d.runSearch(ctx, state, action, query)
	case domain.ActionLLMGenerate:
		if d.generator == nil {
			err = errors.New("no generator configured")
		} else {
			answer, err = d.generator.GenerateAnswer(ctx, query, state.CollectedValues, nil)
		}
	case domain.ActionAPICall:
		if d.apiCaller == nil {
			err = errors.New("no api caller configured")
		} else {
			answer, err = d.apiCaller.Call(ctx, action.Config, state.CollectedValues)
		}
	case domain.ActionClarify:
		answer = configString(action.Config, "message")
		if answer == "" {
			answer = "Could you give me a bit more detail?"
		}
	default:
		err = fmt.Errorf("unknown action type %q", action.ActionType)
	}

	if err != nil {
		d.logger.Error("action failed",
			slog.String("session_id", state.SessionID),
			slog.String("action", action.Name),
			slog.String("error", err.Error()))
		// State is kept so the user can just retry the message.
		return &domain.TurnResult{
			Message: "Something went wrong while processing your request, please try again.",
		}
	}

	if next, ok := tr.followLeadsTo(action.ID); ok {
		state.CurrentIntent = next.Name
		state.CurrentNodeID = ""
		return nil
	}

	message := answer
	if response, ok := d.responseFor(snap, action.ID); ok {
		message = renderResponse(response, state.CollectedValues, answer)
		if !response.IncludeGraph {
			graph = nil
		}
		if !response.IncludeSources {
			sources = nil
		}
	}
	if message == "" {
		message = "Done."
	}

	completed := &domain.TurnResult{
		Message:         message,
		IsComplete:      true,
		Answer:          answer,
		Graph:           graph,
		Sources:         sources,
		CollectedValues: state.CollectedValues,
	}
	// The traversal is finished; a fresh intent starts next turn while the
	// transcript stays. Reset swaps in a new map, so the completed result
	// keeps the values this flow gathered.
	state.Reset()
	return completed
}

func (d *DialogueService) runSearch(ctx context.Context, state *domain.SessionState, action domain.ActionNode, query string) (string, *domain.GraphData, []domain.FusedResult, error) {
	if d.search == nil {
		return "", nil, nil, errors.New("no search service configured")
	}

	mode := domain.SearchModeHybrid
	switch action.ActionType {
	case domain.ActionGraphSearch:
		mode = domain.SearchModeGraph
	case domain.ActionVectorSearch:
		mode = domain.SearchModeVector
	}

	req := domain.SearchRequest{
		Query:        buildSearchQuery(query, state.CollectedValues),
		Mode:         mode,
		DatasetID:    state.DocumentContext,
		TopK:         configInt(action.Config, "top_k", defaultTopK),
		IncludeGraph: configBool(action.Config, "include_graph", true),
		Rerank:       configBool(action.Config, "rerank", false),
	}

	result, err := d.search.Search(ctx, req)
	if err != nil {
		return "", nil, nil, err
	}

	answer := ""
	if d.generator != nil {
		answer, err = d.generator.GenerateAnswer(ctx, query, state.CollectedValues, result.Results)
		if err != nil {
			d.logger.Warn("answer generation degraded to raw results",
				slog.String("error", err.Error()))
			answer = ""
		}
	}
	if answer == "" {
		answer = summarizeResults(result.Results)
	}
	return answer, result.Graph, result.Results, nil
}

// responseFor finds the response template wired to an action. Graphs are
// authored both ways: NEXT and LEADS_TO edges can point an action at its
// response node. LEADS_TO edges whose target is an intent are handled by
// followLeadsTo before this runs.
func (d *DialogueService) responseFor(snap *domain.FlowSnapshot, actionID string) (domain.ResponseNode, bool) {
	for _, edgeType := range []domain.EdgeType{domain.EdgeNext, domain.EdgeLeadsTo} {
		for _, edge := range snap.Outgoing(actionID, edgeType) {
			if response, ok := snap.Response(edge.TargetID); ok {
				return response, true
			}
		}
	}
	return domain.ResponseNode{}, false
}

func (d *DialogueService) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return d.sessions.Get(ctx, sessionID)
}

// ResetSession clears the traversal state but keeps the transcript.
// Resetting an unknown session returns a fresh one under the same id.
func (d *DialogueService) ResetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	lock := d.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := d.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.Reset()
	state.Touch(d.cfg.SessionTTL)
	if err := d.sessions.Save(ctx, state); err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "reset session", err)
	}
	return state, nil
}

func (d *DialogueService) DeleteSession(ctx context.Context, sessionID string) error {
	return d.sessions.Delete(ctx, sessionID)
}

func (d *DialogueService) ListSessions(ctx context.Context, limit int) ([]string, error) {
	return d.sessions.List(ctx, limit)
}

// renderTemplate substitutes {name} placeholders from collected values.
// Unknown placeholders are left as-is.
func renderTemplate(template string, values map[string]string) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}
	out := template
	for name, value := range values {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

func renderResponse(response domain.ResponseNode, values map[string]string, answer string) string {
	out := renderTemplate(response.Template, values)
	out = strings.ReplaceAll(out, "{answer}", answer)
	if strings.TrimSpace(out) == "" {
		return answer
	}
	return out
}

func buildSearchQuery(original string, values map[string]string) string {
	if len(values) == 0 {
		return original
	}
	parts := make([]string, 0, len(values)+1)
	if original != "" {
		parts = append(parts, original)
	}
	for _, value := range sortedValues(values) {
		parts = append(parts, value)
	}
	return strings.Join(parts, " ")
}

func sortedValues(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	// Stable query text regardless of map iteration order.
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = values[name]
	}
	return out
}

func summarizeResults(results []domain.FusedResult) string {
	if len(results) == 0 {
		return "Nothing relevant was found."
	}
	var b strings.Builder
	b.WriteString("Here is what I found:\n")
	limit := len(results)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, results[i].Name))
		if results[i].Description != "" {
			b.WriteString(": " + results[i].Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func lastUserMessage(state *domain.SessionState) string {
	for i := len(state.ConversationHistory) - 1; i >= 0; i-- {
		if state.ConversationHistory[i].Role == "user" {
			return state.ConversationHistory[i].Content
		}
	}
	return ""
}

func displayName(cond domain.ConditionNode) string {
	if cond.DisplayName != "" {
		return cond.DisplayName
	}
	return cond.Name
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func configBool(config map[string]any, key string, fallback bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return fallback
}
