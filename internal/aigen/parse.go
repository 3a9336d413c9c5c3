package aigen

import "strings"

// parseContent splits a raw completion into subject and body. The
// model is asked for "Subject: ..." ("Oggetto: ..." in Italian) on the
// first line, but responses drift, so parsing is forgiving: the first
// line carrying either prefix wins, a missing subject falls back to a
// greeting, and an empty body falls back to the whole response.
func parseContent(content, language string) (subject, body string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")

	subject = "Hello!"
	if language == langIT {
		subject = "Ciao!"
	}

	bodyStart := 0
	for i, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "subject:") || strings.HasPrefix(lower, "oggetto:") {
			if _, rest, ok := strings.Cut(line, ":"); ok {
				subject = strings.TrimSpace(rest)
			}
			bodyStart = i + 1
			break
		}
	}

	// Collect the body, skipping blank lines between subject and text
	var bodyLines []string
	for _, line := range lines[bodyStart:] {
		if strings.TrimSpace(line) != "" || len(bodyLines) > 0 {
			bodyLines = append(bodyLines, line)
		}
	}
	body = strings.TrimSpace(strings.Join(bodyLines, "\n"))

	if body == "" {
		body = strings.TrimSpace(content)
	}
	return subject, body
}
