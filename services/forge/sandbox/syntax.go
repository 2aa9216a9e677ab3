// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"context"
)

// Supported syntax screen languages.
const (
	LangPython     = "python"
	LangGo         = "go"
	LangJavaScript = "javascript"
)

// SyntaxReport is the outcome of a pre-execution syntax screen.
type SyntaxReport struct {
	OK bool

	// Line is the 1-based line of the first error when OK is false.
	Line int
}

// CheckSyntax screens code with tree-sitter before it reaches an
// interpreter.
//
// Description:
//
//	Catches obviously broken artifacts without paying for a subprocess.
//	Tree-sitter is permissive, so a pass here does not guarantee the
//	interpreter accepts the code.
//
// Outputs:
//
//	*SyntaxReport - nil when the language is unknown or parsing itself
//	                failed; the run then proceeds unscreened
func CheckSyntax(ctx context.Context, code, language string) *SyntaxReport {
	var lang *sitter.Language
	switch language {
	case LangGo:
		lang = golang.GetLanguage()
	case LangPython:
		lang = python.GetLanguage()
	case LangJavaScript:
		lang = javascript.GetLanguage()
	default:
		return nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return &SyntaxReport{OK: true}
	}

	line := 0
	if errNode := firstError(root); errNode != nil {
		line = int(errNode.StartPoint().Row) + 1
	}
	return &SyntaxReport{OK: false, Line: line}
}

// firstError finds the first ERROR or missing node in document order.
func firstError(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
