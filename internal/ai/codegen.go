package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	codegenMaxTokens = 8000
	codegenMaxRounds = 5

	codegenContinueMsg = "Please continue exactly where you left off. Do not repeat any content, just continue from the exact point you stopped."

	summaryHeading = "## 📋 Summary"
)

// CodeGenInput is the request for an MVP implementation.
type CodeGenInput struct {
	JiraDescription string `json:"jiraDescription"`
	CustomPrompt    string `json:"customPrompt"`
}

// CodeGenResult carries the generated markdown implementation and its
// extracted summary.
type CodeGenResult struct {
	Implementation string  `json:"implementation"`
	Summary        string  `json:"summary"`
	ProcessingTime float64 `json:"processingTime"`
}

// GenerateCode produces a complete MVP implementation in markdown for the
// given ticket description.
func (g *Generator) GenerateCode(ctx context.Context, input CodeGenInput) (*CodeGenResult, error) {
	start := time.Now()

	raw, err := g.generateWithContinuation(ctx,
		codegenPrompt(input), codegenMaxTokens, codegenMaxRounds, codegenContinueMsg)
	if err != nil {
		return nil, err
	}

	implementation := strings.TrimSpace(raw)
	return &CodeGenResult{
		Implementation: implementation,
		Summary:        extractSummary(implementation),
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// extractSummary pulls the first paragraph of the Summary section out of the
// generated markdown.
func extractSummary(implementation string) string {
	const fallback = "Implementation generated successfully."

	_, rest, found := strings.Cut(implementation, summaryHeading)
	if !found {
		return fallback
	}
	if end := strings.Index(rest, "##"); end > 0 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)
	if para, _, ok := strings.Cut(rest, "\n\n"); ok {
		rest = strings.TrimSpace(para)
	}
	if rest == "" {
		return fallback
	}
	return rest
}

func codegenPrompt(input CodeGenInput) string {
	extra := ""
	if input.CustomPrompt != "" {
		extra = fmt.Sprintf("## Extra important context to take into account\n%s\n", input.CustomPrompt)
	}

	return fmt.Sprintf(`You are a senior software engineer. Generate a clean, well-documented MVP implementation based on this Jira ticket.

## Jira Ticket

%s

%s## Your Task

Generate a complete, working implementation that satisfies the requirements.

## Response Format

Structure your response EXACTLY like this (use markdown formatting):

## 📋 Summary

[2-3 sentences describing what you built and the approach taken]

## 🛠️ Tech Stack

- [Technology 1]
- [Technology 2]

## 💻 Implementation

### [filename.ext]

[Brief description of this file]
`+"```[language]\n[Complete, well-commented code here]\n```"+`

[Repeat for each file needed]

## 🚀 Setup & Run

1. [Step 1]
2. [Step 2]

## 📌 Next Steps

- [Suggested improvement 1]
- [Suggested improvement 2]

## Guidelines

- Write complete, runnable code (not pseudocode)
- Include extensive comments explaining the logic
- Handle edge cases mentioned in the ticket
- Use clear variable/function names

Generate the implementation now:`, input.JiraDescription, extra)
}
