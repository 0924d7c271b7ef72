package domain

type TurnRequest struct {
	SessionID      string `json:"session_id,omitempty"`
	Message        string `json:"message"`
	SelectedOption string `json:"selected_option,omitempty"`
	DatasetID      string `json:"dataset_id,omitempty"`
}

// TurnResult is the outcome of one interpreter turn. Every per-turn failure
// resolves to a chat message here rather than an error to the caller.
type TurnResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`

	NeedsInput bool          `json:"needs_input"`
	InputType  ConditionType `json:"input_type,omitempty"`
	Options    []Option      `json:"options,omitempty"`

	IsComplete bool          `json:"is_complete"`
	Answer     string        `json:"answer,omitempty"`
	Graph      *GraphData    `json:"graph,omitempty"`
	Sources    []FusedResult `json:"sources,omitempty"`

	CurrentIntent   string            `json:"current_intent,omitempty"`
	CollectedValues map[string]string `json:"collected_values"`
}
