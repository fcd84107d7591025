package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tickermind/tickermind/pkg/models"
)

// UnavailableMarker replaces a missing upstream output in the prior-outputs
// section. Downstream agents are told explicitly rather than silently
// losing a section.
const UnavailableMarker = "(upstream unavailable)"

// priorSeparator divides the entries of the prior-outputs section.
const priorSeparator = "\n\n---\n\n"

// FormatQuoteSection builds the labelled quote block.
func FormatQuoteSection(stock *models.StockContext) string {
	if stock == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Stock\n")
	fmt.Fprintf(&sb, "**Symbol:** %s", stock.Symbol)
	if stock.Name != "" {
		fmt.Fprintf(&sb, " (%s)", stock.Name)
	}
	sb.WriteString("\n")

	q := stock.Quote
	if q.Price != "" {
		fmt.Fprintf(&sb, "**Price:** %s  **Change:** %s (%s)\n", q.Price, q.Change, q.ChangePct)
		fmt.Fprintf(&sb, "**Open:** %s  **High:** %s  **Low:** %s\n", q.Open, q.High, q.Low)
	}
	// Extra is a map; emit its fields in sorted key order so identical
	// inputs always yield byte-identical prompts.
	keys := make([]string, 0, len(stock.Extra))
	for key := range stock.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "**%s:** %s\n", key, stock.Extra[key])
	}
	return sb.String()
}

// FormatEvidenceSection builds the evidence block: one line per source with
// its record count, plus the payload of each available source.
func FormatEvidenceSection(bundle *models.EvidenceBundle) string {
	if bundle == nil || len(bundle.Sources) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Evidence\n")
	for _, source := range bundle.Sources {
		if source.Count == 0 {
			fmt.Fprintf(&sb, "- %s: unavailable\n", source.Label)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %d record(s)\n", source.Label, source.Count)
	}
	for _, source := range bundle.Sources {
		if source.Count == 0 || len(source.Payload) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n```json\n%s\n```\n", source.Label, string(source.Payload))
	}
	return sb.String()
}

// PriorOutput is one upstream result, in dependency order. An empty Text
// means the upstream did not produce a usable output.
type PriorOutput struct {
	AgentID string
	Role    string
	Text    string
}

// FormatPriorOutputsSection builds the prior-outputs block. Entries keep
// their given order; missing outputs carry the unavailable marker.
func FormatPriorOutputsSection(priors []PriorOutput) string {
	if len(priors) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Prior Analysis\n")
	entries := make([]string, 0, len(priors))
	for _, prior := range priors {
		text := prior.Text
		if text == "" {
			text = UnavailableMarker
		}
		entries = append(entries, fmt.Sprintf("### %s\n%s", prior.Role, text))
	}
	sb.WriteString(strings.Join(entries, priorSeparator))
	sb.WriteString("\n")
	return sb.String()
}

// FormatOperatorSection wraps the operator instruction, passed through
// verbatim.
func FormatOperatorSection(instruction string) string {
	if instruction == "" {
		return ""
	}
	return "## Operator Instruction\n" + instruction + "\n"
}
