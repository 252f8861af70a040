package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// scriptedModel plays back a fixed sequence of responses.
type scriptedModel struct {
	responses []llms.ContentChoice
	calls     int
	lastMsgs  []llms.MessageContent
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.lastMsgs = messages
	if m.calls >= len(m.responses) {
		m.calls++
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{
			{Content: "", StopReason: "end_turn"},
		}}, nil
	}
	choice := m.responses[m.calls]
	m.calls++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{&choice}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func TestClarifySingleResponse(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{
			Content: `{
				"acceptanceCriteria": ["Given a user, when they click login, then they are authenticated"],
				"edgeCases": ["empty password"],
				"successMetrics": ["login success rate > 99%"],
				"testScenarios": ["happy path login"]
			}`,
			StopReason: "end_turn",
		},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.Clarify(context.Background(), TicketInput{
		Title:     "Fix login",
		IssueType: "Bug",
		Priority:  "High",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, []string{"Given a user, when they click login, then they are authenticated"}, out.AcceptanceCriteria)
	assert.Equal(t, []string{"empty password"}, out.EdgeCases)
}

func TestClarifyStitchesTruncatedResponses(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: `{"acceptanceCriteria": ["first"], "edgeCa`, StopReason: "max_tokens"},
		{Content: `ses": ["second"], "successMetrics": [], "testScenarios": []}`, StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.Clarify(context.Background(), TicketInput{Title: "Long one"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, []string{"first"}, out.AcceptanceCriteria)
	assert.Equal(t, []string{"second"}, out.EdgeCases)

	// The second call must carry the partial assistant turn plus the
	// continue instruction.
	require.Len(t, model.lastMsgs, 3)
	assert.Equal(t, schema.ChatMessageTypeAI, model.lastMsgs[1].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.lastMsgs[2].Role)
}

func TestClarifyRoundLimit(t *testing.T) {
	// Every response claims truncation; the loop must stop after the cap
	// and fail JSON parsing on the fragment.
	truncated := llms.ContentChoice{Content: `{"acceptanceCriteria": [`, StopReason: "max_tokens"}
	model := &scriptedModel{responses: []llms.ContentChoice{truncated, truncated, truncated, truncated, truncated}}
	g := NewGeneratorWithModel(model)

	_, err := g.Clarify(context.Background(), TicketInput{Title: "Never ends"})
	assert.Error(t, err)
	assert.Equal(t, clarifyMaxRounds, model.calls)
}

func TestClarifyNilArraysBecomeEmpty(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: `{"acceptanceCriteria": ["only this"]}`, StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.Clarify(context.Background(), TicketInput{Title: "Sparse"})
	require.NoError(t, err)
	assert.NotNil(t, out.EdgeCases)
	assert.NotNil(t, out.SuccessMetrics)
	assert.NotNil(t, out.TestScenarios)
}

func TestClarifyFencedJSON(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{
			Content:    "Here is the clarification:\n```json\n{\"acceptanceCriteria\": [\"a\"], \"edgeCases\": [], \"successMetrics\": [], \"testScenarios\": []}\n```",
			StopReason: "end_turn",
		},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.Clarify(context.Background(), TicketInput{Title: "Fenced"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.AcceptanceCriteria)
}

func TestClarifyNonJSONFails(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: "I cannot help with that.", StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	_, err := g.Clarify(context.Background(), TicketInput{Title: "Refusal"})
	assert.Error(t, err)

	var pe *ProviderError
	assert.False(t, errors.As(err, &pe), "parse failure must not be a provider error")
}

func TestGenerateCodeExtractsSummary(t *testing.T) {
	impl := "## 📋 Summary\n\nA minimal REST API in Go.\nIt uses the standard router.\n\n## 🛠️ Tech Stack\n\n- Go\n\n## 💻 Implementation\n\n### main.go\n\n```go\npackage main\n```\n"
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: impl, StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.GenerateCode(context.Background(), CodeGenInput{JiraDescription: "Build an API"})
	require.NoError(t, err)
	assert.Equal(t, "A minimal REST API in Go.\nIt uses the standard router.", out.Summary)
	assert.Contains(t, out.Implementation, "### main.go")
}

func TestGenerateCodeSummaryFallback(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: "just some code without sections", StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.GenerateCode(context.Background(), CodeGenInput{JiraDescription: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Implementation generated successfully.", out.Summary)
}

func TestGenerateCodeStitchesChunks(t *testing.T) {
	model := &scriptedModel{responses: []llms.ContentChoice{
		{Content: "## 📋 Summary\n\nPart one ", StopReason: "max_tokens"},
		{Content: "and part two.\n\n## 💻 Implementation\n", StopReason: "end_turn"},
	}}
	g := NewGeneratorWithModel(model)

	out, err := g.GenerateCode(context.Background(), CodeGenInput{JiraDescription: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Part one and part two.", out.Summary)
	assert.Equal(t, 2, model.calls)
}
