// Package agents contains the query-processing agents: the classifier, the
// specialist agents, the corrective retrieval controller, the graph and
// reasoning helpers, and the orchestrator that sequences them. Agents never
// return errors to the orchestrator; they degrade to documented fallbacks
// and record what went wrong in the workflow state.
package agents

import (
	"time"

	"olympus/internal/types"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	IntentDocumentSearch      Intent = "document_search"
	IntentGeneralKnowledge    Intent = "general_knowledge"
	IntentSystemMeta          Intent = "system_meta"
	IntentComparison          Intent = "comparison"
	IntentSummarization       Intent = "summarization"
	IntentAnalysis            Intent = "analysis"
	IntentClarificationNeeded Intent = "clarification_needed"
)

// AgentError is a non-fatal agent failure carried in state instead of being
// propagated. The orchestrator turns accumulated errors into a user-facing
// message while continuing the workflow.
type AgentError struct {
	Agent   string `json:"agent"`
	Message string `json:"message"`
}

// WorkflowState is the single record threaded through the orchestrator's
// nodes. Every node reads the fields it needs and writes its outputs; nodes
// run strictly sequentially, so no locking is needed.
type WorkflowState struct {
	// Request identity.
	UserID         string
	SessionID      string
	ConversationID string
	Query          string
	AttachedDocs   []string
	History        []types.Message

	// Classifier outputs.
	ResolvedQuery string
	IsFollowup    bool
	Intent        Intent
	Confidence    float64
	Filters       types.Filters
	Entities      []string
	Clarifying    []string

	// Retrieval outputs.
	Results        []types.SearchResult
	FinalQuery     string
	WasReformulated bool
	SearchTime     time.Duration

	// Specialist outputs.
	Answer     string
	Summary    string
	Comparison *ComparisonResult
	Insights   []string

	// Quality gate. QualityEvaluated distinguishes "judged as zero" from
	// "never judged"; downstream scoring treats the two differently.
	QualityScore      float64
	QualityEvaluated  bool
	ShouldReformulate bool

	// Terminal outputs.
	ResponseMessage string
	RoutingPath     []string
	Errors          []AgentError

	StartedAt time.Time
}

// AddError appends a non-fatal agent failure.
func (s *WorkflowState) AddError(agent, message string) {
	s.Errors = append(s.Errors, AgentError{Agent: agent, Message: message})
}

// Visit appends a node name to the routing path.
func (s *WorkflowState) Visit(node string) {
	s.RoutingPath = append(s.RoutingPath, node)
}

// EffectiveQuery is the resolved query when follow-up resolution rewrote it,
// the raw query otherwise.
func (s *WorkflowState) EffectiveQuery() string {
	if s.ResolvedQuery != "" {
		return s.ResolvedQuery
	}
	return s.Query
}
