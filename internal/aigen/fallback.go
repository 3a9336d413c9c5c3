package aigen

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"
	"unicode/utf8"
)

// fallbackModel marks content composed locally instead of by a provider
const fallbackModel = "local_template"

// fallbackEmail composes a complete email from the template arrays.
// It never fails, which is what makes the provider chain safe to
// exhaust. Callers own the rng's locking.
func fallbackEmail(rng *rand.Rand, isReply bool, senderName, language string) *Content {
	signature := senderName
	if signature == "" {
		if language == langIT {
			signature = "Cordiali saluti"
		} else {
			signature = "Best regards"
		}
	}

	var subject, body string
	if isReply {
		ack := pick(rng, replyAcks(language))
		response := pick(rng, replyResponses(language))
		closing := pick(rng, closings(language))

		// Half the replies carry one extra sentence
		extra := ""
		if rng.Float64() > 0.5 {
			extra = pick(rng, replyExtras(language))
		}

		subject = "Re: Thanks for reaching out"
		if language == langIT {
			subject = "Re: Grazie per il contatto"
		}

		body = fmt.Sprintf("%s\n\n%s", ack, response)
		if extra != "" {
			body += " " + extra
		}
		body += fmt.Sprintf("\n\n%s\n\n%s", closing, signature)
	} else {
		greeting := pick(rng, greetings(language))
		topic := pick(rng, staticTopics(language))
		opening := strings.ReplaceAll(pick(rng, openings(language)), "{topic}", topic)
		middle := pick(rng, middles(language))
		closing := pick(rng, closings(language))

		subject = pick(rng, subjectTemplates(topic, language))
		body = fmt.Sprintf("%s,\n\n%s %s\n\n%s\n\n%s", greeting, opening, middle, closing, signature)
	}

	return &Content{
		Subject:  subject,
		Body:     body,
		Prompt:   "Local fallback template",
		Model:    fallbackModel,
		Provider: "local",
	}
}

func subjectTemplates(topic, language string) []string {
	if language == langIT {
		return []string{
			fmt.Sprintf("Pensiero veloce su %s", topic),
			fmt.Sprintf("Riflessioni su %s", topic),
			fmt.Sprintf("Qualcosa di interessante su %s", topic),
			fmt.Sprintf("Re: %s", topic),
			titleFirst(topic),
		}
	}
	return []string{
		fmt.Sprintf("Quick thought on %s", topic),
		fmt.Sprintf("Thoughts on %s", topic),
		fmt.Sprintf("Something interesting about %s", topic),
		fmt.Sprintf("Re: %s", topic),
		titleFirst(topic),
	}
}

// titleFirst upper-cases the leading rune so a bare topic reads as a
// subject line.
func titleFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}
