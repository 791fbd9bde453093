// Package naming converts OpenAPI identifiers (operation ids, schema names,
// property and tag names) into Go identifiers and package names.
package naming

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxDescriptionLength bounds descriptions copied into Go comments.
const maxDescriptionLength = 200

// goReservedWords holds the Go keywords. Predeclared identifiers are left
// out; they can be shadowed.
var goReservedWords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

var initialisms = map[string]bool{
	"ACL": true, "API": true, "ASCII": true, "CPU": true, "CSS": true, "DNS": true,
	"EOF": true, "GUID": true, "HTML": true, "HTTP": true, "HTTPS": true, "ID": true,
	"IP": true, "JSON": true, "JWT": true, "QPS": true, "RAM": true, "RPC": true,
	"SLA": true, "SMTP": true, "SQL": true, "SSH": true, "TCP": true, "TLS": true,
	"TTL": true, "UDP": true, "UI": true, "UID": true, "UUID": true, "URI": true,
	"URL": true, "UTF8": true, "VM": true, "XML": true, "XSRF": true, "XSS": true,
}

// Words splits s at separators and case boundaries:
// "getPetById" -> [get Pet By Id], "HTTPStatus" -> [HTTP Status].
func Words(s string) []string {
	runes := []rune(s)
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}

// Pascal converts s to an exported Go identifier. Known initialisms keep
// their upper case ("petId" -> "PetID"); a leading digit is prefixed with
// "N". The result is never empty.
func Pascal(s string) string {
	title := cases.Title(language.English)
	var b strings.Builder
	for _, w := range Words(s) {
		if upper := strings.ToUpper(w); initialisms[upper] {
			b.WriteString(upper)
			continue
		}
		b.WriteString(title.String(w))
	}
	name := b.String()
	if name == "" {
		return "X"
	}
	if unicode.IsDigit([]rune(name)[0]) {
		name = "N" + name
	}
	return name
}

// Camel converts s to an unexported Go identifier, escaping keywords.
func Camel(s string) string {
	words := Words(Pascal(s))
	if len(words) == 0 {
		return "x"
	}
	words[0] = strings.ToLower(words[0])
	return EscapeReserved(strings.Join(words, ""))
}

// Package converts s to a Go package name: lower-case letters and digits
// only. Keywords get an "api" suffix ("default" -> "defaultapi").
func Package(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) && r < unicode.MaxASCII || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return "defaultapi"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "api" + name
	}
	if goReservedWords[name] {
		name += "api"
	}
	return name
}

// EscapeReserved appends "_" to Go keywords.
func EscapeReserved(name string) string {
	if goReservedWords[name] {
		return name + "_"
	}
	return name
}

// Description flattens text for a single-line Go comment.
func Description(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > maxDescriptionLength {
		s = string(runes[:maxDescriptionLength-3]) + "..."
	}
	return s
}
