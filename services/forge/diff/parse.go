// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

var (
	hunkHeaderRe  = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	looseHeaderRe = regexp.MustCompile(`^@@`)
	fenceRe       = regexp.MustCompile("^(```+|~~~+)")
)

// Parse extracts hunks from a diff-like text.
//
// Description:
//
//	Accepts three input shapes:
//	  1. Standard unified diffs with ---/+++ file headers and numeric @@
//	     headers. These take a strict fast path through sourcegraph/go-diff,
//	     which is also how multi-file diffs are detected and rejected.
//	  2. Degraded unified diffs: missing file headers, "@@ ... @@" or bare
//	     "@@" separators, wrong or absent line numbers, lines with missing
//	     +/-/space markers (inferred as context).
//	  3. Header-less search/replace blocks delimited by "<<<<<<< SEARCH",
//	     "=======", ">>>>>>> REPLACE".
//
//	An empty or whitespace-only input yields zero hunks and no error.
//
// Outputs:
//
//	[]*Hunk - Parsed hunks in document order
//	error - ErrMultipleTargets when the diff names more than one file,
//	        ErrUnparseable when no hunk structure can be recovered
func Parse(text string) ([]*Hunk, error) {
	text = normalize(text)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	if targets := namedTargets(text); len(targets) > 1 {
		return nil, fmt.Errorf("%w: %s", ErrMultipleTargets, strings.Join(targets, ", "))
	}

	if strings.Contains(text, "<<<<<<<") {
		return parseSearchReplace(text)
	}

	if looksStandard(text) {
		if hunks, err := parseStrict(text); err == nil {
			return hunks, nil
		}
		// Malformed enough that the strict reader choked; fall through to
		// the tolerant scanner.
	}

	return parseTolerant(text)
}

// normalize strips carriage returns and stray code-fence lines that models
// sometimes leave around diff bodies.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if fenceRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// namedTargets collects distinct file names from ---/+++/diff --git headers,
// ignoring /dev/null and a/ b/ prefixes.
func namedTargets(text string) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if i := strings.IndexAny(name, "\t"); i >= 0 {
			name = name[:i]
		}
		name = strings.TrimPrefix(name, "a/")
		name = strings.TrimPrefix(name, "b/")
		if name == "" || name == "/dev/null" || seen[name] {
			return
		}
		seen[name] = true
		targets = append(targets, name)
	}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			add(line[4:])
		case strings.HasPrefix(line, "+++ "):
			add(line[4:])
		}
	}
	return targets
}

// looksStandard reports whether the text carries proper unified-diff file
// headers and at least one numeric hunk header.
func looksStandard(text string) bool {
	hasOld, hasNew, hasHunk := false, false, false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			hasOld = true
		case strings.HasPrefix(line, "+++ "):
			hasNew = true
		case hunkHeaderRe.MatchString(line):
			hasHunk = true
		}
	}
	return hasOld && hasNew && hasHunk
}

// parseStrict runs the sourcegraph/go-diff reader over a well-formed diff.
func parseStrict(text string) ([]*Hunk, error) {
	fds, err := godiff.NewMultiFileDiffReader(strings.NewReader(text)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(fds) > 1 {
		return nil, ErrMultipleTargets
	}
	var hunks []*Hunk
	for _, fd := range fds {
		for _, gh := range fd.Hunks {
			h := &Hunk{
				OldStart: int(gh.OrigStartLine),
				OldCount: int(gh.OrigLines),
				NewStart: int(gh.NewStartLine),
				NewCount: int(gh.NewLines),
			}
			body := strings.TrimSuffix(string(gh.Body), "\n")
			for _, line := range strings.Split(body, "\n") {
				h.Lines = append(h.Lines, classifyLine(line))
			}
			hunks = append(hunks, h)
		}
	}
	return hunks, nil
}

// parseTolerant scans a degraded diff line by line.
//
// Hunks are split on anything that looks like an @@ header. Numbers are
// taken when parseable and left zero otherwise. File headers and git
// decoration lines are skipped. A diff with change markers but no @@ header
// at all is treated as one single hunk.
func parseTolerant(text string) ([]*Hunk, error) {
	lines := strings.Split(text, "\n")

	hasHeader, hasMarker := false, false
	for _, line := range lines {
		if looseHeaderRe.MatchString(line) {
			hasHeader = true
		}
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			hasMarker = true
		}
	}
	if !hasHeader && !hasMarker {
		return nil, ErrUnparseable
	}

	var hunks []*Hunk
	var cur *Hunk
	flush := func() {
		if cur != nil && len(cur.Lines) > 0 {
			trimBlankEdges(cur)
			if len(cur.Lines) > 0 {
				hunks = append(hunks, cur)
			}
		}
		cur = nil
	}

	if !hasHeader {
		cur = &Hunk{}
	}

	for _, line := range lines {
		switch {
		case looseHeaderRe.MatchString(line):
			flush()
			cur = &Hunk{}
			if m := hunkHeaderRe.FindStringSubmatch(line); m != nil {
				cur.OldStart = atoiOr(m[1], 0)
				cur.OldCount = atoiOr(m[2], 1)
				cur.NewStart = atoiOr(m[3], 0)
				cur.NewCount = atoiOr(m[4], 1)
			}
		case isFileDecoration(line):
			// --- / +++ / diff --git / index lines between hunks.
			continue
		case cur != nil:
			if strings.HasPrefix(line, `\`) {
				// "\ No newline at end of file"
				continue
			}
			cur.Lines = append(cur.Lines, classifyLine(line))
		}
	}
	flush()

	if len(hunks) == 0 {
		return nil, ErrUnparseable
	}
	return hunks, nil
}

// parseSearchReplace handles conflict-marker style blocks:
//
//	<<<<<<< SEARCH
//	old lines
//	=======
//	new lines
//	>>>>>>> REPLACE
func parseSearchReplace(text string) ([]*Hunk, error) {
	var hunks []*Hunk
	var cur *Hunk
	inSearch := false

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "<<<<<<<"):
			cur = &Hunk{}
			inSearch = true
		case strings.HasPrefix(line, "=======") && cur != nil:
			inSearch = false
		case strings.HasPrefix(line, ">>>>>>>") && cur != nil:
			if len(cur.Lines) > 0 {
				hunks = append(hunks, cur)
			}
			cur = nil
		case cur != nil:
			t := LineAdded
			if inSearch {
				t = LineRemoved
			}
			cur.Lines = append(cur.Lines, Line{Type: t, Content: line})
		}
	}

	if len(hunks) == 0 {
		return nil, ErrUnparseable
	}
	return hunks, nil
}

// classifyLine maps a raw diff body line to a typed Line. Lines missing
// their leading marker are inferred as context rather than rejected; a
// faulty producer dropping the space marker is far more common than a
// genuine body line starting mid-token.
func classifyLine(line string) Line {
	switch {
	case strings.HasPrefix(line, "+"):
		return Line{Type: LineAdded, Content: line[1:]}
	case strings.HasPrefix(line, "-"):
		return Line{Type: LineRemoved, Content: line[1:]}
	case strings.HasPrefix(line, " "):
		return Line{Type: LineContext, Content: line[1:]}
	default:
		return Line{Type: LineContext, Content: line}
	}
}

// trimBlankEdges drops empty context lines from both ends of a hunk. They
// carry no anchoring value and often come from blank lines around fences.
func trimBlankEdges(h *Hunk) {
	isBlankCtx := func(l Line) bool {
		return l.Type == LineContext && strings.TrimSpace(l.Content) == ""
	}
	start, end := 0, len(h.Lines)
	for start < end && isBlankCtx(h.Lines[start]) {
		start++
	}
	for end > start && isBlankCtx(h.Lines[end-1]) {
		end--
	}
	h.Lines = h.Lines[start:end]
}

func isFileDecoration(line string) bool {
	return strings.HasPrefix(line, "--- ") ||
		strings.HasPrefix(line, "+++ ") ||
		strings.HasPrefix(line, "diff --git") ||
		strings.HasPrefix(line, "index ") ||
		strings.HasPrefix(line, "new file mode") ||
		strings.HasPrefix(line, "deleted file mode")
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
