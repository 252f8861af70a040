package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gobot/internal/llm"
)

const (
	clarifyMaxTokens = 4000
	clarifyMaxRounds = 3

	clarifyContinueMsg = "Continue the JSON exactly where you left off. Do not restart or repeat content."
)

// TicketInput is the Jira ticket to clarify.
type TicketInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	IssueType    string `json:"issueType"`
	Priority     string `json:"priority"`
	CustomPrompt string `json:"customPrompt"`
}

// ClarifiedTicket is the structured clarification returned to the client.
type ClarifiedTicket struct {
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	EdgeCases          []string `json:"edgeCases"`
	SuccessMetrics     []string `json:"successMetrics"`
	TestScenarios      []string `json:"testScenarios"`
	ProcessingTime     float64  `json:"processingTime"`
}

// Clarify turns a vague ticket into structured acceptance criteria, edge
// cases, success metrics and test scenarios.
func (g *Generator) Clarify(ctx context.Context, ticket TicketInput) (*ClarifiedTicket, error) {
	start := time.Now()

	raw, err := g.generateWithContinuation(ctx,
		clarifyPrompt(ticket), clarifyMaxTokens, clarifyMaxRounds, clarifyContinueMsg)
	if err != nil {
		return nil, err
	}

	payload, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("model did not return parseable JSON: %w", err)
	}

	var out ClarifiedTicket
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("model did not return parseable JSON: %w", err)
	}

	// Clients iterate these; never hand back null arrays.
	if out.AcceptanceCriteria == nil {
		out.AcceptanceCriteria = []string{}
	}
	if out.EdgeCases == nil {
		out.EdgeCases = []string{}
	}
	if out.SuccessMetrics == nil {
		out.SuccessMetrics = []string{}
	}
	if out.TestScenarios == nil {
		out.TestScenarios = []string{}
	}

	out.ProcessingTime = time.Since(start).Seconds()
	return &out, nil
}

func clarifyPrompt(ticket TicketInput) string {
	description := ticket.Description
	if description == "" {
		description = "No description provided"
	}

	prompt := fmt.Sprintf(`You are a senior software engineer helping to clarify Jira tickets. Given the following ticket information, provide clear, actionable acceptance criteria and additional details.

Ticket Title: %s
Description: %s
Issue Type: %s
Priority: %s

Please provide a structured response with:
1. Acceptance Criteria (specific, testable conditions using Given-When-Then format where appropriate)
2. Edge Cases to Consider (potential issues, boundary conditions)
3. Success Metrics (measurable outcomes, KPIs)
4. Test Scenarios (specific test cases for QA)

Format your response as valid JSON with these exact keys:
{
  "acceptanceCriteria": ["criterion 1", "criterion 2", ...],
  "edgeCases": ["edge case 1", "edge case 2", ...],
  "successMetrics": ["metric 1", "metric 2", ...],
  "testScenarios": ["scenario 1", "scenario 2", ...]
}

Focus on being practical and actionable. Provide at least 3-5 items for each category.
`, ticket.Title, description, ticket.IssueType, ticket.Priority)

	if ticket.CustomPrompt != "" {
		prompt += fmt.Sprintf("\nFor more important context please take this into account: %s\n", ticket.CustomPrompt)
	}
	return prompt
}
