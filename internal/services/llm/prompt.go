package llm

import (
	"fmt"
	"strings"

	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// DefaultPrompt is used when no prompt is configured. %s is replaced with
// the symbol header (name, code, date count and time order).
const DefaultPrompt = `You are a senior quantitative trader and options analyst who reads the
evolution of dealer gamma exposure charts over time.

%s

The attached gamma charts are in the same order as the dates above.

## 📊 Trend analysis
- How dealer gamma at each strike evolved, call gamma (right) against put gamma (left)
- Movement of the gamma flip level and the high gamma zones
- Where spot sits relative to the gamma profile and how that changed
- Signs of range compression or expansion

## 🔮 Outlook
- Next session: likely range, key trigger levels
- Next one to two weeks: direction, targets and what would invalidate them
- Levels where the trend is most likely to reverse

## 💼 Trade ideas
- Trend following entries, stops and targets
- Option structures suited to the gamma profile (strikes and expiries)

## 📈 Watch list
Levels and signals to check on the next update.

Format for Discord markdown: **bold** key conclusions, ` + "`code`" + ` for levels and
numbers, > quotes for the most important calls. Be concrete and concise.`

// BuildPrompt assembles the request text for a bundle. A custom prompt is
// followed by the symbol, the time order and the dated text block; the
// default prompt embeds them.
func BuildPrompt(request *interfaces.AnalysisRequest) string {
	if strings.TrimSpace(request.Prompt) != "" {
		var sb strings.Builder
		sb.WriteString(strings.TrimSpace(request.Prompt))
		sb.WriteString("\n\n")
		sb.WriteString(symbolLine(request.Symbol))
		sb.WriteString("\n")
		sb.WriteString(timeOrderLine(request.TimeLabels))
		sb.WriteString(textBlock(request.Texts))
		return sb.String()
	}

	header := fmt.Sprintf("Here is the data for %s, the last %d dates in time order:\n\n%s%s",
		symbolName(request.Symbol), len(request.TimeLabels), timeOrderLine(request.TimeLabels), textBlock(request.Texts))
	return fmt.Sprintf(DefaultPrompt, header)
}

func symbolName(sym interfaces.SymbolDescriptor) string {
	if sym.Code == "" || strings.EqualFold(sym.Code, sym.Name) {
		return sym.Name
	}
	return fmt.Sprintf("%s (%s)", sym.Name, sym.Code)
}

func symbolLine(sym interfaces.SymbolDescriptor) string {
	return "**Symbol**: " + symbolName(sym)
}

func timeOrderLine(labels []string) string {
	return "**Time order**: " + strings.Join(labels, ", ")
}

// textBlock renders the dated text snapshots, empty when there are none
func textBlock(texts []interfaces.DatedText) string {
	if len(texts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\n**Text data**:\n")
	for _, t := range texts {
		fmt.Fprintf(&sb, "\nDate %s:\n%s\n", t.Date, t.Data)
	}
	return sb.String()
}
