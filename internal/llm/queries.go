// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/equity-research/pkg/types"
)

const defaultMaxQueries = 4

var queryPromptTmpl = template.Must(template.New("queries").Parse(`You are a research assistant planning web searches for an equity research report on {{.Company.Name}}.
{{- with .Company.Industry}}
Industry: {{.}}{{end}}
{{- with .Company.HQLocation}}
Headquarters: {{.}}{{end}}
{{- with .Company.URL}}
Website: {{.}}{{end}}

{{.Instructions}}

Write at most {{.Max}} specific search engine queries. Each query must name the company.
Respond with a JSON array of strings and nothing else.

Example response:
["{{.Company.Name}} revenue growth 2024", "{{.Company.Name}} competitors market share"]
`))

// QueryWriter generates analyst search queries with a language model.
type QueryWriter struct {
	LLM        Completer
	MaxQueries int
}

// GenerateQueries renders prompt into a query-planning instruction and parses
// the model's reply. The reply may be a JSON array, optionally fenced, or
// one query per line.
func (w *QueryWriter) GenerateQueries(ctx context.Context, company types.Company, prompt string) ([]string, error) {
	limit := w.MaxQueries
	if limit <= 0 {
		limit = defaultMaxQueries
	}

	var buf bytes.Buffer
	err := queryPromptTmpl.Execute(&buf, struct {
		Company      types.Company
		Instructions string
		Max          int
	}{company, prompt, limit})
	if err != nil {
		return nil, eris.Wrap(err, "rendering query prompt")
	}

	reply, err := w.LLM.Complete(ctx, buf.String())
	if err != nil {
		return nil, eris.Wrap(err, "generating queries")
	}
	queries := parseQueries(reply, limit)
	if len(queries) == 0 {
		return nil, eris.New("model returned no usable queries")
	}
	return queries, nil
}

// parseQueries extracts up to limit distinct queries from a model reply.
func parseQueries(reply string, limit int) []string {
	text := stripFences(reply)

	var raw []string
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
			raw = nil
		}
	}
	if raw == nil {
		for _, line := range strings.Split(text, "\n") {
			raw = append(raw, trimListMarker(line))
		}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, limit)
	for _, q := range raw {
		q = strings.TrimSuffix(strings.TrimSpace(q), ",")
		q = strings.TrimSpace(strings.Trim(q, `"'[]`))
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// trimListMarker drops a leading bullet or "1." / "1)" marker.
func trimListMarker(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*• ")
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		line = line[i+1:]
	}
	return strings.TrimSpace(line)
}
