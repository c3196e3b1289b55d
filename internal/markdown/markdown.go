// Package markdown holds the text-level markdown helpers shared by the
// extractor, the translators and the reconstructors.
//
// All scanning is line based and fence aware: nothing inside a ``` or ~~~
// block is ever treated as a heading or a split point.
package markdown

import (
	"regexp"
	"strings"
)

// DefaultHeading is inserted when a document has no heading at all.
const DefaultHeading = "# Document"

// atxHeading matches "# Title" style headings (up to three leading spaces).
var atxHeading = regexp.MustCompile(`^ {0,3}#{1,6}(\s|$)`)

// IsHeading reports whether line is an ATX heading.
func IsHeading(line string) bool {
	return atxHeading.MatchString(line)
}

// fenceMarker returns the fence string a line opens, or "".
func fenceMarker(trimmed string) string {
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	}
	return ""
}

// Normalize prepares markdown for document rendering: the first heading
// outside code fences becomes a level-1 heading, and "# Document" is
// inserted at the top when there is no heading at all.
func Normalize(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	found := false
	fence := ""
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if m := fenceMarker(trimmed); m != "" {
			fence = m
			continue
		}
		if IsHeading(line) {
			if !strings.HasPrefix(trimmed, "# ") {
				lines[i] = "# " + strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			}
			found = true
			break
		}
	}

	if !found {
		lines = append([]string{DefaultHeading, ""}, lines...)
	}
	return strings.Join(lines, "\n")
}

// Unfence strips a ```markdown (or bare ```) wrapper that models like to
// put around their whole answer. The answer is returned trimmed but
// otherwise untouched unless its first line opens a fence with no info
// string, "markdown" or "md", its last line closes that fence, and no line
// in between could close it earlier.
func Unfence(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}

	first := strings.TrimSpace(lines[0])
	marker := fenceMarker(first)
	if marker == "" {
		return s
	}
	fence := first[:len(first)-len(strings.TrimLeft(first, marker[:1]))]
	switch strings.ToLower(strings.TrimSpace(first[len(fence):])) {
	case "", "markdown", "md":
	default:
		return s
	}

	last := strings.TrimSpace(lines[len(lines)-1])
	if !strings.HasPrefix(last, fence) || strings.Trim(last, marker[:1]) != "" {
		return s
	}
	body := lines[1 : len(lines)-1]
	for _, line := range body {
		if strings.HasPrefix(strings.TrimSpace(line), fence) {
			return s
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// Chunk splits text into pieces of at most maxChars where possible,
// cutting before headings and, for oversized sections, after blank lines.
// Cuts never fall inside a fenced block, so a single block larger than
// maxChars is returned whole. Concatenating the chunks yields text.
func Chunk(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	var pieces []string
	for _, section := range splitLines(text, IsHeading, false) {
		if len(section) <= maxChars {
			pieces = append(pieces, section)
			continue
		}
		isBlank := func(line string) bool { return strings.TrimSpace(line) == "" }
		pieces = append(pieces, splitLines(section, isBlank, true)...)
	}
	return merge(pieces, maxChars)
}

// splitLines cuts text at lines matching boundary, outside fences.
// With after set the boundary line ends a piece, otherwise it starts one.
func splitLines(text string, boundary func(string) bool, after bool) []string {
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}

	fence := ""
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if fence != "" {
			cur.WriteString(line)
			if strings.HasPrefix(trimmed, fence) {
				fence = ""
			}
			continue
		}
		if m := fenceMarker(trimmed); m != "" {
			fence = m
			cur.WriteString(line)
			continue
		}
		if boundary(strings.TrimRight(line, "\r\n")) {
			if after {
				cur.WriteString(line)
				flush()
			} else {
				flush()
				cur.WriteString(line)
			}
			continue
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}

// merge greedily packs consecutive pieces up to maxChars.
func merge(pieces []string, maxChars int) []string {
	var out []string
	var cur strings.Builder
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
