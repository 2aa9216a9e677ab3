// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract pulls the embedded artifact out of free-form generation
// text.
//
// Generators are asked to emit exactly one fenced code block, but wrap it in
// reasoning prose and occasionally mangle the fences. The extractor handles
// backtick and tilde fences of length three or more, optional language tags,
// and falls back to stripping stray fence lines when no complete block is
// found.
package extract

import "strings"

// Block is one fenced code block found in the text.
type Block struct {
	// Lang is the fence's info string ("python", "diff", ...), possibly
	// empty.
	Lang string

	// Code is the block body without the fences.
	Code string
}

// CodeBlock returns the first fenced code block in text.
//
// Outputs:
//
//	Block - The first block, zero value when none was found
//	bool - Whether a complete fenced block was found
func CodeBlock(text string) (Block, bool) {
	blocks := CodeBlocks(text)
	if len(blocks) == 0 {
		return Block{}, false
	}
	return blocks[0], true
}

// CodeBlocks returns every complete fenced code block in text, in order.
func CodeBlocks(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var blocks []Block
	var body []string
	var lang string
	fenceChar := byte(0)
	fenceLen := 0

	for _, line := range lines {
		ch, n, info := fence(line)
		if fenceChar == 0 {
			if ch != 0 {
				fenceChar, fenceLen, lang = ch, n, info
				body = body[:0]
			}
			continue
		}
		// Inside a block: a closing fence uses the same character, at
		// least as long, with no info string.
		if ch == fenceChar && n >= fenceLen && info == "" {
			blocks = append(blocks, Block{Lang: lang, Code: strings.Join(body, "\n")})
			fenceChar, fenceLen, lang = 0, 0, ""
			continue
		}
		body = append(body, line)
	}
	return blocks
}

// Clean returns the text a generator most plausibly meant as the artifact:
// the first fenced block when one exists, otherwise the whole text with any
// stray fence lines removed.
func Clean(text string) string {
	if block, ok := CodeBlock(text); ok {
		return block.Code
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if ch, _, _ := fence(line); ch != 0 {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// fence parses a line as a code fence. Returns the fence character (` or ~),
// its length, and the trimmed info string; ch is 0 for non-fence lines.
func fence(line string) (ch byte, n int, info string) {
	trimmed := strings.TrimLeft(line, " \t")
	if len(trimmed) < 3 {
		return 0, 0, ""
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return 0, 0, ""
	}
	i := 0
	for i < len(trimmed) && trimmed[i] == c {
		i++
	}
	if i < 3 {
		return 0, 0, ""
	}
	rest := strings.TrimSpace(trimmed[i:])
	// An info string containing the fence character is not a fence line.
	if strings.ContainsRune(rest, rune(c)) {
		return 0, 0, ""
	}
	return c, i, rest
}
