package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"olympus/internal/config"
	"olympus/internal/llm"
	"olympus/internal/logging"
	"olympus/internal/session"
	"olympus/internal/steps"
	"olympus/internal/types"
)

// =============================================================================
// ZEUS: ORCHESTRATOR
// =============================================================================

// Retriever is the search pipeline Zeus drives: recall plus rerank behind
// one call.
type Retriever interface {
	Search(ctx context.Context, query string, filters types.Filters, userID string) ([]types.SearchResult, error)
	SearchWithStrategy(ctx context.Context, query string, filters types.Filters, userID string, strat types.SearchStrategy) ([]types.SearchResult, error)
	GetDocument(ctx context.Context, id string) (*types.Document, error)
}

// MemoryRecorder persists completed turns. Optional; absence only disables
// cross-restart recall.
type MemoryRecorder interface {
	RecordTurn(ctx context.Context, sessionID, query, intent, answer string, resultIDs []string, confidence float64) error
}

// Request is one query entering the orchestrator.
type Request struct {
	UserID         string
	SessionID      string
	ConversationID string
	Query          string
	AttachedDocs   []string
	History        []types.Message
}

// Response is the terminal workflow output.
type Response struct {
	Status          string               `json:"status"`
	ResponseMessage string               `json:"response_message"`
	Results         []types.SearchResult `json:"results"`
	Count           int                  `json:"count"`
	Intent          string               `json:"intent"`
	Confidence      float64              `json:"confidence"`
	Steps           []string             `json:"steps"`
	SearchTime      float64              `json:"search_time"`
	TotalTime       float64              `json:"total_time"`
	SessionID       string               `json:"session_id"`
	UserID          string               `json:"user_id"`
	ConversationID  string               `json:"conversation_id"`
	RoutingPath     []string             `json:"routing_path"`
}

// Zeus sequences the workflow nodes. All collaborators except the retriever
// and the LLM client are optional; a missing collaborator turns its feature
// into a no-op, never an error.
type Zeus struct {
	retriever  Retriever
	client     llm.Client
	model      string
	athena     *Athena
	adaptive   *AdaptiveRetriever
	sisyphus   *Sisyphus
	clarifier  *Clarifier
	analyst    *Analyst
	summarizer *Summarizer
	explainer  Explainer
	critic     *Critic
	themis     *Themis
	apollo     *Apollo
	odysseus   *Odysseus
	daedalus   *Daedalus
	sessions   *session.Manager
	bus        *steps.Bus
	memory     MemoryRecorder
	cfg        config.SearchConfig
}

// ZeusOptions carries the optional collaborators.
type ZeusOptions struct {
	Apollo   *Apollo
	Odysseus *Odysseus
	Daedalus *Daedalus
	Sessions *session.Manager
	Bus      *steps.Bus
	Memory   MemoryRecorder
}

// NewZeus wires the orchestrator.
func NewZeus(retriever Retriever, client llm.Client, model string, cfg config.SearchConfig, opts ZeusOptions) *Zeus {
	critic := NewCritic(client, model)
	return &Zeus{
		retriever:  retriever,
		client:     client,
		model:      model,
		athena:     NewAthena(client, model),
		adaptive:   NewAdaptiveRetriever(client, model),
		sisyphus:   NewSisyphus(client, model, critic, cfg.Corrective),
		clarifier:  NewClarifier(client, model),
		analyst:    NewAnalyst(client, model),
		summarizer: NewSummarizer(client, model),
		critic:     critic,
		themis:     NewThemis(client, model),
		apollo:     opts.Apollo,
		odysseus:   opts.Odysseus,
		daedalus:   opts.Daedalus,
		sessions:   opts.Sessions,
		bus:        opts.Bus,
		memory:     opts.Memory,
		cfg:        cfg,
	}
}

// ProcessQuery is the entry contract. It never returns an error: failures
// become a user-facing message plus an error step.
func (z *Zeus) ProcessQuery(ctx context.Context, req Request) Response {
	timer := logging.StartTimer(logging.CategoryAgents, "Zeus.ProcessQuery")
	defer timer.Stop()

	state := &WorkflowState{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		AttachedDocs:   req.AttachedDocs,
		History:        req.History,
		StartedAt:      time.Now(),
	}
	state.Visit("zeus")

	var stepLog []string
	emit := func(agent, action string, details map[string]interface{}) {
		stepLog = append(stepLog, agent+": "+action)
		if z.bus != nil {
			z.bus.Step(req.SessionID, agent, action, details)
		}
	}

	// Attached documents route to the document pipeline when any resolve.
	if len(req.AttachedDocs) > 0 {
		if docs := z.resolveAttachments(ctx, req.AttachedDocs); len(docs) > 0 {
			z.runDocumentPipeline(ctx, state, docs, emit)
			return z.finish(ctx, state, stepLog)
		}
		emit("zeus", "attachments_unresolved", map[string]interface{}{
			"attached": len(req.AttachedDocs),
		})
	}

	z.runSearchPipeline(ctx, state, emit)
	return z.finish(ctx, state, stepLog)
}

// =============================================================================
// SEARCH PIPELINE
// =============================================================================

func (z *Zeus) runSearchPipeline(ctx context.Context, state *WorkflowState, emit StepFunc) {
	// load_context: session failures are warnings, never fatal.
	state.Visit("load_context")
	emit("zeus", "load_context", nil)
	var sessCtx *session.Context
	if z.sessions != nil {
		sessCtx = z.sessions.Get(state.SessionID)
	}

	// classify.
	state.Visit("classify")
	emit("athena", "classify", map[string]interface{}{"query": state.Query})
	c := z.athena.Classify(ctx, state.Query, sessCtx)
	state.ResolvedQuery = c.ResolvedQuery
	state.IsFollowup = c.IsFollowup
	state.Intent = c.Intent
	state.Confidence = c.Confidence
	state.Filters = c.Filters
	state.Entities = c.Entities
	state.Clarifying = c.Clarifying
	emit("athena", "classified", map[string]interface{}{
		"intent": string(c.Intent), "confidence": c.Confidence, "followup": c.IsFollowup,
	})

	switch state.Intent {
	case IntentClarificationNeeded:
		z.nodeClarify(ctx, state, emit)

	case IntentGeneralKnowledge:
		z.nodeGeneralAnswer(ctx, state, emit)
		z.nodeQualityCheck(ctx, state, emit)

	case IntentComparison, IntentAnalysis:
		// Multi-part questions go through the reasoning planner; it returns
		// nil for anything it grades simple.
		if z.odysseus != nil {
			if trace := z.odysseus.Plan(ctx, state.EffectiveQuery(),
				func(ctx context.Context, q string, f types.Filters, userID string) ([]types.SearchResult, error) {
					return z.retriever.Search(ctx, q, f, userID)
				}, state.UserID); trace != nil {
				state.Visit("reason")
				emit("odysseus", "decomposed", map[string]interface{}{
					"sub_queries": len(trace.SubQueries), "complexity": string(trace.Complexity),
				})
				state.Answer = trace.Answer
			}
		}
		z.nodeDocumentSearch(ctx, state, emit)
		z.nodeAnalyze(ctx, state, emit)
		z.nodeQualityCheck(ctx, state, emit)

	case IntentSummarization:
		z.nodeDocumentSearch(ctx, state, emit)
		z.nodeSummarize(ctx, state, emit)
		z.nodeQualityCheck(ctx, state, emit)

	default:
		z.nodeDocumentSearch(ctx, state, emit)
		z.nodeExplain(state, emit)
		z.nodeQualityCheck(ctx, state, emit)
	}

	z.nodeGenerateResponse(state, emit)
}

func (z *Zeus) nodeClarify(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("clarify")
	emit("clarifier", "generate_questions", nil)
	if len(state.Clarifying) == 0 {
		report := z.clarifier.DetectAmbiguity(ctx, state.EffectiveQuery())
		state.Clarifying = z.clarifier.GenerateQuestions(ctx, state.EffectiveQuery(), report, 3)
	}
	z.nodeGenerateResponse(state, emit)
}

func (z *Zeus) nodeDocumentSearch(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("document_search")
	query := state.EffectiveQuery()

	// Graph expansion enriches the query before retrieval.
	if z.apollo != nil && z.cfg.QueryExpansionEnabled {
		if exp := z.apollo.ExpandQuery(ctx, query, state.Entities); exp != nil {
			query = exp.ExpandedQuery
			emit("apollo", "query_expanded", map[string]interface{}{
				"matched": exp.MatchedEntities,
			})
		}
	}

	// Strategy selection steers the fusion weights for every iteration of
	// the corrective loop.
	params := z.adaptive.SelectStrategy(ctx, query)
	strat := params.SearchStrategy()
	emit("adaptive", "strategy_selected", map[string]interface{}{
		"strategy": strat.Name, "probability": params.Probability,
	})

	start := time.Now()
	corrected := z.sisyphus.Retrieve(ctx, query, state.Filters, state.UserID,
		func(ctx context.Context, q string, f types.Filters, userID string) ([]types.SearchResult, error) {
			return z.retriever.SearchWithStrategy(ctx, q, f, userID, strat)
		}, emit)
	state.SearchTime = time.Since(start)

	state.Results = corrected.FinalResults
	state.FinalQuery = corrected.FinalQuery
	state.WasReformulated = corrected.WasReformulated
	state.QualityScore = corrected.FinalQuality
	state.QualityEvaluated = true

	emit("zeus", "search_complete", map[string]interface{}{
		"results": len(state.Results), "iterations": corrected.TotalIterations,
		"reformulated": corrected.WasReformulated,
	})
}

func (z *Zeus) nodeGeneralAnswer(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("general_answer")
	emit("zeus", "general_answer", nil)

	const canned = "I can help you search and understand your documents. Could you tell me more about what you are looking for?"
	if z.client == nil {
		state.Answer = canned
		return
	}

	prompt := historyPrefix(state.History, 6) + "Answer this question helpfully and concisely:\n" + state.EffectiveQuery()
	resp, err := z.client.Complete(ctx, llm.Request{
		Model:    z.model,
		Prompt:   prompt,
		Fallback: canned,
	})
	if err != nil {
		state.AddError("zeus", "general answer failed: "+err.Error())
		state.Answer = canned
		return
	}
	state.Answer = resp.Text
}

func (z *Zeus) nodeAnalyze(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("analyze")
	emit("analyst", "analyze", map[string]interface{}{"documents": len(state.Results)})

	if state.Intent == IntentComparison {
		comparison, agentErr := z.analyst.CompareDocuments(ctx, state.Results)
		if agentErr != nil {
			state.AddError(agentErr.Agent, agentErr.Message)
			return
		}
		state.Comparison = comparison
		return
	}
	state.Insights = z.analyst.GenerateInsights(ctx, state.Results, state.EffectiveQuery())
}

func (z *Zeus) nodeSummarize(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("summarize")
	emit("summarizer", "summarize", map[string]interface{}{"documents": len(state.Results)})
	state.Summary = z.summarizer.Summarize(ctx, state.Results, SummaryComprehensive)
}

func (z *Zeus) nodeExplain(state *WorkflowState, emit StepFunc) {
	state.Visit("explain")
	emit("explainer", "explain_top", nil)
	z.explainer.ExplainTop(state.EffectiveQuery(), state.Results, 3)
}

func (z *Zeus) nodeQualityCheck(ctx context.Context, state *WorkflowState, emit StepFunc) {
	state.Visit("quality_check")
	emit("critic", "evaluate", nil)

	// Search-path quality was already judged inside the corrective loop;
	// only answer-bearing paths need a fresh evaluation.
	if !state.QualityEvaluated && len(state.Results) > 0 {
		eval := z.critic.EvaluateResults(ctx, state.EffectiveQuery(), state.Results)
		state.QualityScore = eval.QualityScore
		state.QualityEvaluated = true
		state.ShouldReformulate = eval.ShouldReformulate
	}
}

// nodeGenerateResponse composes the final message in fixed priority order:
// clarifying questions, LLM answer, summary, comparison, results line,
// no-results apology.
func (z *Zeus) nodeGenerateResponse(state *WorkflowState, emit StepFunc) {
	if state.ResponseMessage != "" {
		return
	}
	state.Visit("generate_response")
	emit("zeus", "generate_response", nil)

	switch {
	case len(state.Clarifying) > 0:
		state.ResponseMessage = "I need a bit more detail:\n- " + strings.Join(state.Clarifying, "\n- ")

	case state.Answer != "":
		state.ResponseMessage = state.Answer

	case state.Summary != "":
		state.ResponseMessage = state.Summary

	case state.Comparison != nil:
		state.ResponseMessage = formatComparison(state.Comparison)

	case len(state.Results) > 0:
		state.ResponseMessage = fmt.Sprintf("I found %d documents matching your query. The best match is %s.",
			len(state.Results), state.Results[0].Filename)

	default:
		state.ResponseMessage = "I could not find any documents matching your query. Try different or broader terms."
	}
}

// =============================================================================
// DOCUMENT PIPELINE ROUTE
// =============================================================================

func (z *Zeus) resolveAttachments(ctx context.Context, ids []string) []types.Document {
	var docs []types.Document
	for _, id := range ids {
		doc, err := z.retriever.GetDocument(ctx, id)
		if err != nil || doc == nil {
			continue
		}
		docs = append(docs, *doc)
	}
	return docs
}

func (z *Zeus) runDocumentPipeline(ctx context.Context, state *WorkflowState, docs []types.Document, emit StepFunc) {
	state.Visit("daedalus")
	state.Intent = IntentAnalysis
	state.Confidence = 0.9

	if z.daedalus == nil {
		state.ResponseMessage = "Document analysis is not available right now."
		state.AddError("zeus", "document pipeline not configured")
		return
	}

	answer := z.daedalus.Process(ctx, state.Query, docs, state.History, emit)
	state.Answer = answer.Answer
	state.Confidence = answer.Confidence
	for _, doc := range docs {
		state.Results = append(state.Results, types.SearchResult{Document: doc, Score: 1.0})
	}
	for i := range state.Results {
		state.Results[i].Embedding = nil
		state.Results[i].FullContent = ""
	}
	z.nodeGenerateResponse(state, emit)
}

// =============================================================================
// TERMINAL
// =============================================================================

func (z *Zeus) finish(ctx context.Context, state *WorkflowState, stepLog []string) Response {
	confidence := state.Confidence
	if state.Answer != "" {
		// Themis reads a negative quality as "not provided".
		quality := state.QualityScore
		if !state.QualityEvaluated {
			quality = -1
		}
		report := z.themis.ScoreAnswer(ctx, state.Answer, state.EffectiveQuery(), state.Results, quality)
		confidence = report.Confidence
	} else if len(state.Results) > 0 && state.QualityScore > 0 {
		confidence = state.QualityScore
	}

	// Record the turn in the session window and durable history.
	resultIDs := make([]string, 0, len(state.Results))
	docTypes := make([]string, 0, len(state.Results))
	for _, r := range state.Results {
		resultIDs = append(resultIDs, r.ID)
		docTypes = append(docTypes, r.DocumentType)
	}
	if z.sessions != nil && state.SessionID != "" {
		z.sessions.Record(state.SessionID, session.Turn{
			Query:         state.Query,
			Intent:        string(state.Intent),
			DocumentTypes: docTypes,
			ResultIDs:     resultIDs,
			Answer:        state.ResponseMessage,
		})
	}
	if z.memory != nil && state.SessionID != "" {
		if err := z.memory.RecordTurn(ctx, state.SessionID, state.Query, string(state.Intent),
			state.ResponseMessage, resultIDs, confidence); err != nil {
			logging.Agents("memory record failed: %v", err)
		}
	}

	if z.bus != nil && state.SessionID != "" {
		z.bus.Complete(state.SessionID, map[string]interface{}{
			"results": len(state.Results), "intent": string(state.Intent),
		})
	}

	results := state.Results
	if results == nil {
		results = []types.SearchResult{}
	}
	return Response{
		Status:          "success",
		ResponseMessage: state.ResponseMessage,
		Results:         results,
		Count:           len(results),
		Intent:          string(state.Intent),
		Confidence:      confidence,
		Steps:           stepLog,
		SearchTime:      state.SearchTime.Seconds(),
		TotalTime:       time.Since(state.StartedAt).Seconds(),
		SessionID:       state.SessionID,
		UserID:          state.UserID,
		ConversationID:  state.ConversationID,
		RoutingPath:     state.RoutingPath,
	}
}

func formatComparison(c *ComparisonResult) string {
	var sb strings.Builder
	sb.WriteString("Comparison:\n")
	if c.Summary != "" {
		sb.WriteString(c.Summary + "\n")
	}
	if len(c.Similarities) > 0 {
		sb.WriteString("Similarities:\n- " + strings.Join(c.Similarities, "\n- ") + "\n")
	}
	if len(c.Differences) > 0 {
		sb.WriteString("Differences:\n- " + strings.Join(c.Differences, "\n- ") + "\n")
	}
	if len(c.UniqueAspects) > 0 {
		sb.WriteString("Unique aspects:\n- " + strings.Join(c.UniqueAspects, "\n- ") + "\n")
	}
	return strings.TrimSpace(sb.String())
}

// historyPrefix renders the last n turns as a conversation preamble.
func historyPrefix(history []types.Message, n int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, truncateText(m.Content, 300))
	}
	sb.WriteString("\n")
	return sb.String()
}
