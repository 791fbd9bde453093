package goemitter

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").
	Funcs(templateFuncs).
	ParseFS(templateFS, "templates/*.tmpl"))

var templateFuncs = template.FuncMap{
	"quote":    strconv.Quote,
	"join":     strings.Join,
	"comment":  comment,
	"quoteAll": func(ss []string) string {
		q := make([]string, len(ss))
		for i, s := range ss {
			q[i] = strconv.Quote(s)
		}
		return strings.Join(q, ", ")
	},
}

// comment renders lines as a // comment block indented by indent tabs.
func comment(indent int, lines []string) string {
	var b strings.Builder
	prefix := strings.Repeat("\t", indent)
	for _, l := range lines {
		b.WriteString(prefix)
		if l == "" {
			b.WriteString("//\n")
			continue
		}
		b.WriteString("// ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// executeTemplate renders one file. Go sources are formatted and their
// imports pruned; a source that does not format is an error.
func executeTemplate(path, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".go") {
		return buf.Bytes(), nil
	}
	formatted, err := imports.Process(path, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	return formatted, nil
}
