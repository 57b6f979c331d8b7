package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/nadmax/nexcoach/internal/insights"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<h2>Your coaching digest</h2>
<p>{{.Summary}}</p>
{{if .Priorities}}<h3>Priorities</h3><ul>{{range .Priorities}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Recommendations}}<h3>Recommendations</h3><ul>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Patterns}}<h3>Patterns</h3><ul>{{range .Patterns}}<li>{{.}}</li>{{end}}</ul>{{end}}
<p><small>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</small></p>
`))

// Digest renders an insight as an email for recipient.
func Digest(in *insights.Insight, recipient string) (Message, error) {
	var html bytes.Buffer
	if err := digestTemplate.Execute(&html, in); err != nil {
		return Message{}, fmt.Errorf("failed to render digest: %w", err)
	}

	var plain strings.Builder
	plain.WriteString(in.Summary)
	plain.WriteString("\n")
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&plain, "\n%s:\n", title)
		for _, item := range items {
			fmt.Fprintf(&plain, "- %s\n", item)
		}
	}
	section("Priorities", in.Priorities)
	section("Recommendations", in.Recommendations)
	section("Patterns", in.Patterns)

	return Message{
		To:        recipient,
		Subject:   "Coaching digest for " + in.GeneratedAt.Format("Jan 2, 2006"),
		PlainText: plain.String(),
		HTML:      html.String(),
	}, nil
}
