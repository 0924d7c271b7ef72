package ollama

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func buildAnswerPrompt(question string, collected map[string]string, results []domain.FusedResult) string {
	var contextBuilder strings.Builder
	for idx, result := range results {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] name=%s type=%s score=%.4f\n%s\n\n",
			idx+1,
			result.Name,
			result.Type,
			result.FusedScore,
			result.Description,
		))
	}

	var valuesBuilder strings.Builder
	names := make([]string, 0, len(collected))
	for name := range collected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		valuesBuilder.WriteString(fmt.Sprintf("- %s: %s\n", name, collected[name]))
	}

	return fmt.Sprintf(`Answer the user's question only from the context below.
If the context is insufficient, say it directly.

Question:
%s

Known facts from the conversation:
%s
Context:
%s
`, question, valuesBuilder.String(), contextBuilder.String())
}

func buildExtractionPrompt(cond domain.ConditionNode, message, documentContext string) string {
	const maxContext = 4000
	if len(documentContext) > maxContext {
		documentContext = documentContext[:maxContext]
	}

	var options strings.Builder
	if len(cond.Options) > 0 {
		options.WriteString("The value must be one of:\n")
		for _, opt := range cond.Options {
			options.WriteString(fmt.Sprintf("- %s (%s)\n", opt.Value, opt.Label))
		}
	}

	return fmt.Sprintf(`Extract the value "%s" from the user message.
Return a strict JSON object with keys: value (string), found (boolean).
If the message does not state the value, return {"found": false}.
No markdown, no extra keys.
%s
User message:
%s

Additional context:
%s
`, cond.Name, options.String(), message, documentContext)
}
