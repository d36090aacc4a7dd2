// Package toolfix detects and rewrites malformed tool-invocation markup embedded
// in generated text. Some backends emit tool invocations as ad hoc tag markup in
// the text channel instead of the structured tool-call channel; every response
// translator runs its text fragments through this engine unconditionally.
//
// Rewrites are textual replacements of exactly the matched span. Non-matching or
// malformed spans are left byte-for-byte unchanged, so the engine is the identity
// on text without top-level tag pairs and idempotent under repeated application.
//
// Matching is done with an explicit tag-span scanner rather than nested regular
// expressions, which bounds worst-case behavior on adversarial input.
package toolfix

import (
	"strconv"
	"strings"
)

// DefaultLocalPrefix is stripped from absolute parameter paths, yielding paths
// relative to the project root.
const DefaultLocalPrefix = "/Users/x/project/"

const (
	envelopeTag  = "function_calls"
	invokeTag    = "invoke"
	parameterTag = "parameter"
)

// Corrector scans text for deprecated tool markup and rewrites it into the
// canonical form. A Corrector is immutable after construction and safe for
// concurrent use.
type Corrector struct {
	localPrefix string
}

// New returns a Corrector using DefaultLocalPrefix.
func New() *Corrector {
	return &Corrector{localPrefix: DefaultLocalPrefix}
}

// NewWithPrefix returns a Corrector that strips the given local filesystem
// prefix from parameter paths.
func NewWithPrefix(prefix string) *Corrector {
	return &Corrector{localPrefix: prefix}
}

// Correct rewrites all convertible tool markup in text. If nothing needs
// conversion the original string is returned unmodified.
func (c *Corrector) Correct(text string) string {
	var out strings.Builder
	changed := false
	i := 0
	for i < len(text) {
		span, ok := nextTagSpan(text, i)
		if !ok {
			break
		}

		replacement, converted := c.convertSpan(span)
		if converted {
			out.WriteString(text[i:span.start])
			out.WriteString(replacement)
			changed = true
		} else {
			out.WriteString(text[i:span.end])
		}
		i = span.end
	}
	if !changed {
		return text
	}
	out.WriteString(text[i:])
	return out.String()
}

// convertSpan produces the canonical replacement for one top-level tag span, or
// ok=false when the span must be kept verbatim.
func (c *Corrector) convertSpan(span tagSpan) (string, bool) {
	if span.name == envelopeTag {
		return c.convertEnvelope(span.inner)
	}
	conv, ok := deprecatedNames[span.name]
	if !ok {
		return "", false
	}
	params := parseTagParams(span.inner)
	return c.renderCanonical(conv.Canonical, conv.WrapKey, params), true
}

// convertEnvelope converts a multi-tool invocation envelope. Every invoke
// directive inside it must carry a known command; otherwise the whole envelope
// is left unconverted, because a partial rewrite would emit mixed markup.
func (c *Corrector) convertEnvelope(inner string) (string, bool) {
	var out strings.Builder
	converted := 0
	i := 0
	for {
		_, body, next, ok := nextAttributedTag(inner, i, invokeTag)
		if !ok {
			break
		}

		params := parseParameterTags(body)
		rendered, ok := c.renderInvocation(params)
		if !ok {
			return "", false
		}
		if converted > 0 {
			out.WriteString("\n")
		}
		out.WriteString(rendered)
		converted++
		i = next
	}
	if converted == 0 {
		return "", false
	}
	return out.String(), true
}

// renderInvocation maps one invoke directive to a canonical tool shape based on
// its command value: view reads, create writes (with a computed line count), and
// str_replace edits. Any other command leaves the envelope unconverted.
func (c *Corrector) renderInvocation(params []tagParam) (string, bool) {
	command := paramValue(params, "command")
	path := c.stripLocalPrefix(paramValue(params, "path"))

	switch command {
	case "view":
		return c.renderCanonical(readToolName, "file", []tagParam{
			{name: "path", value: path},
		}), true
	case "create":
		content := paramValue(params, "file_text")
		if content == "" {
			content = paramValue(params, "content")
		}
		lineCount := len(strings.Split(content, "\n"))
		return c.renderCanonical(writeToolName, "file", []tagParam{
			{name: "path", value: path},
			{name: "content", value: content},
			{name: "line_count", value: strconv.Itoa(lineCount)},
		}), true
	case "str_replace":
		return c.renderCanonical(editToolName, "file", []tagParam{
			{name: "path", value: path},
			{name: "old_text", value: paramValue(params, "old_str")},
			{name: "new_text", value: paramValue(params, "new_str")},
		}), true
	default:
		return "", false
	}
}

// renderCanonical serializes a tool invocation as canonical tag markup:
// <name><args>[<wrapKey>]params[</wrapKey>]</args></name>.
func (c *Corrector) renderCanonical(name, wrapKey string, params []tagParam) string {
	var out strings.Builder
	out.WriteString("<")
	out.WriteString(name)
	out.WriteString("><args>")
	if wrapKey != "" {
		out.WriteString("<")
		out.WriteString(wrapKey)
		out.WriteString(">")
	}
	for _, p := range params {
		value := p.value
		if p.name == "path" {
			value = c.stripLocalPrefix(value)
		}
		out.WriteString("<")
		out.WriteString(p.name)
		out.WriteString(">")
		out.WriteString(value)
		out.WriteString("</")
		out.WriteString(p.name)
		out.WriteString(">")
	}
	if wrapKey != "" {
		out.WriteString("</")
		out.WriteString(wrapKey)
		out.WriteString(">")
	}
	out.WriteString("</args></")
	out.WriteString(name)
	out.WriteString(">")
	return out.String()
}

func (c *Corrector) stripLocalPrefix(path string) string {
	if rel, ok := strings.CutPrefix(path, c.localPrefix); ok {
		return rel
	}
	return path
}

// tagSpan is one complete <name>...</name> pair located in the source text.
type tagSpan struct {
	name  string
	inner string
	start int // index of the opening '<'
	end   int // index just past the closing tag
}

// tagParam is one nested parameter, in order of appearance.
type tagParam struct {
	name  string
	value string
}

func paramValue(params []tagParam, name string) string {
	for _, p := range params {
		if p.name == name {
			return p.value
		}
	}
	return ""
}

// nextTagSpan locates the next complete simple tag pair at or after from. Only
// attribute-free opening tags qualify; an unmatched opening tag is skipped one
// byte at a time so malformed markup never hides later matches. Nested pairs of
// the same name are not supported: the first closing tag wins.
func nextTagSpan(text string, from int) (tagSpan, bool) {
	i := from
	for i < len(text) {
		lt := strings.IndexByte(text[i:], '<')
		if lt < 0 {
			return tagSpan{}, false
		}
		lt += i

		name, after := scanTagName(text, lt+1)
		if name == "" || after >= len(text) || text[after] != '>' {
			i = lt + 1
			continue
		}

		closing := "</" + name + ">"
		rel := strings.Index(text[after+1:], closing)
		if rel < 0 {
			i = lt + 1
			continue
		}

		innerStart := after + 1
		return tagSpan{
			name:  name,
			inner: text[innerStart : innerStart+rel],
			start: lt,
			end:   innerStart + rel + len(closing),
		}, true
	}
	return tagSpan{}, false
}

// nextAttributedTag locates the next <want ...>...</want> pair at or after from,
// tolerating attributes in the opening tag. Returns the tag's name attribute (if
// any), its inner body, and the scan position just past the closing tag.
func nextAttributedTag(text string, from int, want string) (name, body string, next int, ok bool) {
	open := "<" + want
	for {
		rel := strings.Index(text[from:], open)
		if rel < 0 {
			return "", "", 0, false
		}
		start := from + rel
		gt := strings.IndexByte(text[start:], '>')
		if gt < 0 {
			return "", "", 0, false
		}
		head := text[start : start+gt]
		// Reject prefix collisions such as <invoker>.
		if len(head) > len(open) && head[len(open)] != ' ' && head[len(open)] != '\t' && head[len(open)] != '\n' {
			from = start + 1
			continue
		}

		closing := "</" + want + ">"
		bodyStart := start + gt + 1
		end := strings.Index(text[bodyStart:], closing)
		if end < 0 {
			return "", "", 0, false
		}
		return attrValue(head, "name"), text[bodyStart : bodyStart+end], bodyStart + end + len(closing), true
	}
}

// parseParameterTags extracts <parameter name="k">v</parameter> pairs, in order.
func parseParameterTags(body string) []tagParam {
	var params []tagParam
	i := 0
	for {
		name, value, next, ok := nextAttributedTag(body, i, parameterTag)
		if !ok {
			return params
		}
		if name != "" {
			params = append(params, tagParam{name: name, value: value})
		}
		i = next
	}
}

// parseTagParams extracts simple nested <k>v</k> pairs, in order.
func parseTagParams(body string) []tagParam {
	var params []tagParam
	i := 0
	for {
		span, ok := nextTagSpan(body, i)
		if !ok {
			return params
		}
		params = append(params, tagParam{name: span.name, value: span.inner})
		i = span.end
	}
}

// scanTagName reads a tag name ([a-zA-Z0-9_-]+) starting at i and returns it with
// the index of the first byte past the name.
func scanTagName(text string, i int) (string, int) {
	start := i
	for i < len(text) && isTagNameByte(text[i]) {
		i++
	}
	return text[start:i], i
}

func isTagNameByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-':
		return true
	}
	return false
}

// attrValue extracts a double-quoted attribute value from an opening tag head.
func attrValue(head, attr string) string {
	marker := attr + `="`
	idx := strings.Index(head, marker)
	if idx < 0 {
		return ""
	}
	rest := head[idx+len(marker):]
	quote := strings.IndexByte(rest, '"')
	if quote < 0 {
		return ""
	}
	return rest[:quote]
}
