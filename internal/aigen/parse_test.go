package aigen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContent(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		language    string
		wantSubject string
		wantBody    string
	}{
		{
			name:        "subject line then body",
			content:     "Subject: Quick thought on productivity\n\nHi there,\n\nI had an idea.\n\nBest regards\nSam",
			language:    "en",
			wantSubject: "Quick thought on productivity",
			wantBody:    "Hi there,\n\nI had an idea.\n\nBest regards\nSam",
		},
		{
			name:        "italian oggetto line",
			content:     "Oggetto: Pensiero veloce\n\nCiao,\n\nVolevo condividere un'idea.",
			language:    "it",
			wantSubject: "Pensiero veloce",
			wantBody:    "Ciao,\n\nVolevo condividere un'idea.",
		},
		{
			name:        "case insensitive prefix",
			content:     "SUBJECT: Hello friend\n\nBody text here.",
			language:    "en",
			wantSubject: "Hello friend",
			wantBody:    "Body text here.",
		},
		{
			name:        "subject not on first line",
			content:     "Here is your email:\nSubject: The actual subject\n\nThe body.",
			language:    "en",
			wantSubject: "The actual subject",
			wantBody:    "The body.",
		},
		{
			name:        "missing subject falls back english",
			content:     "Just a plain body with no subject marker.",
			language:    "en",
			wantSubject: "Hello!",
			wantBody:    "Just a plain body with no subject marker.",
		},
		{
			name:        "missing subject falls back italian",
			content:     "Solo il corpo senza oggetto.",
			language:    "it",
			wantSubject: "Ciao!",
			wantBody:    "Solo il corpo senza oggetto.",
		},
		{
			name:        "subject only uses whole content as body",
			content:     "Subject: Lonely subject",
			language:    "en",
			wantSubject: "Lonely subject",
			wantBody:    "Subject: Lonely subject",
		},
		{
			name:        "extra blank lines between subject and body",
			content:     "Subject: Spaced out\n\n\n\nFinally the body.",
			language:    "en",
			wantSubject: "Spaced out",
			wantBody:    "Finally the body.",
		},
		{
			name:        "surrounding whitespace trimmed",
			content:     "\n\n  Subject: Trimmed\n\nBody.\n\n",
			language:    "en",
			wantSubject: "Hello!",
			wantBody:    "Subject: Trimmed\n\nBody.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := parseContent(tt.content, tt.language)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}
