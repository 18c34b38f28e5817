// Package preprocessor implements spec.md §6's preprocessor interface
// (is_macro / is_definition_registered / define_definition /
// get_definition_value / process) and §4.9's MACRO_IFDEF/MACRO_DEFINE
// rewrite pass. The definitions table is per-Preprocessor value, not
// package-level state, per spec.md §9 "Global/module state": a fresh
// Preprocessor is created per compilation.
package preprocessor

import (
	"n86c/pkg/ast"
	"n86c/pkg/utils"
)

// Preprocessor holds one compilation's `#define` table and the stack of
// `#ifdef` names currently being resolved, innermost last.
type Preprocessor struct {
	definitions map[string]string
	ifdefStack  utils.Stack[string]
}

// New returns an empty Preprocessor.
func New() *Preprocessor {
	return &Preprocessor{definitions: map[string]string{}}
}

// IsMacro reports whether name names a preprocessor directive keyword
// rather than a language keyword.
func (p *Preprocessor) IsMacro(name string) bool {
	return name == "ifdef" || name == "define"
}

// IsDefinitionRegistered reports whether name has been defined.
func (p *Preprocessor) IsDefinitionRegistered(name string) bool {
	_, ok := p.definitions[name]
	return ok
}

// DefineDefinition registers name with the given value, overwriting any
// prior definition.
func (p *Preprocessor) DefineDefinition(name, value string) {
	p.definitions[name] = value
}

// GetDefinitionValue returns the value registered for name, if any.
func (p *Preprocessor) GetDefinitionValue(name string) (string, bool) {
	v, ok := p.definitions[name]
	return v, ok
}

// Process walks tree once, collapsing every MACRO_IFDEF into whichever
// branch is live given the definitions seen so far, and consuming every
// MACRO_DEFINE into the definitions table. It must run before the
// improver, which otherwise has no notion of these node kinds.
func (p *Preprocessor) Process(tree *ast.Tree) error {
	return p.walk(tree, tree.Root())
}

// walk resolves an inner MACRO_IFDEF/MACRO_DEFINE before its parent's
// child list is inspected again, so nested `#ifdef` blocks push and pop
// ifdefStack in a consistent order.
func (p *Preprocessor) walk(tree *ast.Tree, id ast.NodeID) error {
	node := tree.Node(id)
	if node == nil || node.Removed() {
		return nil
	}

	switch node.Kind() {
	case ast.KindMacroIfdef:
		return p.resolveIfdef(tree, id)
	case ast.KindMacroDef:
		return p.resolveDefine(tree, id)
	}

	for _, child := range append([]ast.NodeID{}, node.Children()...) {
		if err := p.walk(tree, child); err != nil {
			return err
		}
	}
	return nil
}

// resolveIfdef expects a MACRO_IFDEF node whose payload is the macro name
// and whose children are the true-branch nodes followed, optionally, by an
// `else_branch`-registered else node wrapping the false-branch nodes.
func (p *Preprocessor) resolveIfdef(tree *ast.Tree, id ast.NodeID) error {
	node := tree.Node(id)
	name := node.Payload()

	p.ifdefStack.Push(name)
	defer p.ifdefStack.Pop()

	live := p.IsDefinitionRegistered(name)
	elseBranch, hasElse := tree.Role(id, "else_branch")

	if live {
		if hasElse {
			if err := tree.RemoveSelf(elseBranch); err != nil {
				return err
			}
		}
		for _, child := range append([]ast.NodeID{}, node.Children()...) {
			if err := p.walk(tree, child); err != nil {
				return err
			}
		}
		return tree.ReplaceWithChildren(id)
	}

	for _, child := range append([]ast.NodeID{}, node.Children()...) {
		if hasElse && child == elseBranch {
			continue
		}
		if err := tree.RemoveSelf(child); err != nil {
			return err
		}
	}
	if !hasElse {
		return tree.RemoveSelf(id)
	}
	if err := p.walk(tree, elseBranch); err != nil {
		return err
	}
	if err := tree.ReplaceWithChildren(elseBranch); err != nil {
		return err
	}
	return tree.ReplaceWithChildren(id)
}

// resolveDefine expects a MACRO_DEFINE node whose payload is "name value"
// (the value half may be empty for a bare `#define NAME`).
func (p *Preprocessor) resolveDefine(tree *ast.Tree, id ast.NodeID) error {
	node := tree.Node(id)
	name, value := splitDefinition(node.Payload())
	p.DefineDefinition(name, value)
	return tree.RemoveSelf(id)
}

func splitDefinition(payload string) (name, value string) {
	for i := 0; i < len(payload); i++ {
		if payload[i] == ' ' {
			return payload[:i], payload[i+1:]
		}
	}
	return payload, ""
}
