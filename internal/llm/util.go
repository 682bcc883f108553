package llm

import "strings"

// StripMarkdownFence removes a code fence the model wrapped around its whole answer,
// e.g. "```markdown\n## 1. ...\n```". Fences inside the text are left alone.
func StripMarkdownFence(text string) string {
	return stripFence(text, "", "markdown", "md")
}

// stripFence unwraps text enclosed in a single fence whose language tag is one of langs.
func stripFence(text string, langs ...string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return text
	}

	body := strings.TrimPrefix(trimmed, "```")
	nl := strings.Index(body, "\n")
	if nl < 0 {
		return text
	}
	lang := strings.ToLower(strings.TrimSpace(body[:nl]))
	allowed := false
	for _, l := range langs {
		if lang == l {
			allowed = true
			break
		}
	}
	if !allowed {
		return text
	}

	body = strings.TrimSuffix(body[nl+1:], "```")
	// An odd number of inner fences means the closing backticks belong to an inner block
	if strings.Count(body, "```")%2 != 0 {
		return text
	}
	return strings.TrimSpace(body)
}
