// Package prompt assembles the system and user messages for analyst agents.
// Assembly is deterministic: sections appear in a fixed order and empty
// sections are omitted, so downstream token accounting and tests can rely
// on the exact text.
package prompt

import (
	"strings"

	"github.com/tickermind/tickermind/pkg/config"
	"github.com/tickermind/tickermind/pkg/models"
)

// Input carries everything one prompt assembly needs. All fields are
// read-only; Build never mutates them.
type Input struct {
	Spec     config.AgentSpec
	Stock    *models.StockContext
	Evidence *models.EvidenceBundle

	// PriorOutputs holds upstream results in the spec's dependency order.
	PriorOutputs []PriorOutput

	// OperatorInstruction is appended verbatim when present.
	OperatorInstruction string
}

// Messages is the assembled prompt pair.
type Messages struct {
	System string
	User   string
}

// Chars returns the user-prompt length recorded on the agent record.
func (m Messages) Chars() int {
	return len(m.User)
}

// Build assembles the prompt. The system message is the spec's system
// prompt literally; user-prompt section order is fixed: quote, evidence,
// prior outputs, operator instruction, task directive. No truncation
// happens here — output budgets are the LLM client's concern.
func Build(in Input) Messages {
	sections := make([]string, 0, 5)
	appendSection := func(s string) {
		if s != "" {
			sections = append(sections, strings.TrimRight(s, "\n"))
		}
	}

	appendSection(FormatQuoteSection(in.Stock))
	appendSection(FormatEvidenceSection(in.Evidence))
	appendSection(FormatPriorOutputsSection(in.PriorOutputs))
	appendSection(FormatOperatorSection(in.OperatorInstruction))
	appendSection(in.Spec.TaskDirective)

	return Messages{
		System: in.Spec.SystemPrompt,
		User:   strings.Join(sections, "\n\n"),
	}
}
