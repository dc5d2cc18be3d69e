package engine

import (
	"fmt"
	"strings"

	"github.com/openregs/regrag/internal/store"
)

const systemPrompt = `You are an assistant answering questions about United States federal regulations. Answer only from the numbered excerpts provided in the user message. Cite excerpts by their number, like [1]. If the excerpts do not contain the answer, say so plainly instead of guessing.`

// buildContext selects search results into the token budget, in rank
// order. The first result that would overflow the budget is truncated to
// the remaining tokens rather than dropped, and assembly stops there. The
// returned results are exactly the ones whose text appears in the prompt,
// which is what keeps citations honest.
func buildContext(results []store.SearchResult, budget int) (string, []store.SearchResult) {
	if budget <= 0 || len(results) == 0 {
		return "", nil
	}

	var (
		b        strings.Builder
		included []store.SearchResult
		used     int
	)

	for _, r := range results {
		remaining := budget - used
		if remaining <= 0 {
			break
		}
		tokens := strings.Fields(r.Content)
		truncated := false
		if len(tokens) > remaining {
			tokens = tokens[:remaining]
			truncated = true
		}

		fmt.Fprintf(&b, "[%d] %s", len(included)+1, r.Title)
		if !r.PublicationDate.IsZero() {
			fmt.Fprintf(&b, " (published %s)", r.PublicationDate.Format("2006-01-02"))
		}
		fmt.Fprintf(&b, "\n%s\n\n", strings.Join(tokens, " "))

		used += len(tokens)
		included = append(included, r)
		if truncated {
			break
		}
	}

	return strings.TrimSpace(b.String()), included
}

func buildUserMessage(question, contextBlock string) string {
	var b strings.Builder
	b.WriteString("Excerpts from regulatory documents:\n\n")
	b.WriteString(contextBlock)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
