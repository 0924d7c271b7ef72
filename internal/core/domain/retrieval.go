package domain

type SearchMode string

const (
	SearchModeVector SearchMode = "vector"
	SearchModeGraph  SearchMode = "graph"
	SearchModeHybrid SearchMode = "hybrid"
)

type ResultSource string

const (
	SourceVector ResultSource = "vector"
	SourceGraph  ResultSource = "graph"
	SourceHybrid ResultSource = "hybrid"
)

// RetrievalResult is one candidate from a single track. Transient, never
// persisted.
type RetrievalResult struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Score       float64        `json:"score"`
	Source      ResultSource   `json:"source"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// FusedResult is a RetrievalResult after rank fusion across tracks.
type FusedResult struct {
	RetrievalResult
	FusedRank  int            `json:"fused_rank"`
	FusedScore float64        `json:"fused_score"`
	Sources    []ResultSource `json:"sources"`
}

type GraphNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

type GraphEdge struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Target string  `json:"target"`
	Label  string  `json:"label"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// GraphData is the touched subgraph returned for visualization.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type SearchRequest struct {
	Query         string     `json:"query"`
	Mode          SearchMode `json:"mode"`
	DatasetID     string     `json:"dataset_id,omitempty"`
	TopK          int        `json:"top_k"`
	IncludeGraph  bool       `json:"include_graph"`
	Rerank        bool       `json:"rerank"`
	MaxGraphDepth int        `json:"max_graph_depth,omitempty"`
}

type RankedResultSet struct {
	Query            string        `json:"query"`
	Mode             SearchMode    `json:"mode"`
	Results          []FusedResult `json:"results"`
	Graph            *GraphData    `json:"graph,omitempty"`
	TotalCount       int           `json:"total_count"`
	ProcessingTimeMS float64       `json:"processing_time_ms"`
}
