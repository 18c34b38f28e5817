// Package resolver implements the variable-address resolver of spec.md
// §4.4: given a VAR_IDENTIFIER root, it produces an AbstractAddress
// describing how the code generator should reach the variable's storage,
// plus an ordered list of Steps recording any runtime work (dynamic index
// evaluation, pointer-hop loads) the code generator must emit along the way.
//
// Grounded on original_source/codegens/8086CodeGen/src/CodeGen8086.cpp's
// getASMAddressForVariable/getPositionAsFarAsPossible/handle_next_access,
// simplified to the rule set spec.md §4.4 states explicitly rather than
// the original's full runtime state machine. Per spec.md §9's redesign
// note, pointer dereferences are resolved lazily here — the base address is
// established first and dereference loads are appended as Steps afterward
// — which is why, unlike the original, no "subtract one when alone"
// compensation is needed (see DESIGN.md).
package resolver

import (
	"fmt"

	"n86c/pkg/ast"
)

// Op is the sign joining a base segment to its offset.
type Op string

const (
	Add Op = "+"
	Sub Op = "-"
)

// AbstractAddress is the resolver's final answer: base_segment ⊕ offset,
// optionally indexed by a register the code generator must have populated.
type AbstractAddress struct {
	BaseSegment        string // "data", "fp", or a general register once a pointer hop switches the base
	Op                 Op
	Offset             int
	ApplyIndexRegister bool // true if a dynamic index was folded into SI/DI rather than a literal offset
}

// StepKind tags one unit of runtime work the code generator must emit to
// finish reaching the final address.
type StepKind int

const (
	// StepDynamicIndex: evaluate IndexExpr, multiply by ElementSize, add
	// into the running index register.
	StepDynamicIndex StepKind = iota
	// StepPointerLoad: load the word at the address accumulated so far
	// into IntoRegister, then continue with offset reset to 0 and
	// BaseSegment switched to IntoRegister.
	StepPointerLoad
)

// Step is one ordered unit of runtime address-construction work.
type Step struct {
	Kind         StepKind
	IndexExpr    ast.NodeID // valid when Kind == StepDynamicIndex
	ElementSize  int        // valid when Kind == StepDynamicIndex
	IntoRegister string     // valid when Kind == StepPointerLoad

	// BeforeAddress is a snapshot of Plan.Address as it stood immediately
	// before this pointer hop overwrote it, valid when Kind ==
	// StepPointerLoad. The code generator needs it to emit the load
	// instruction itself (the hop's source address), since Plan.Address
	// by the time Resolve returns only reflects the chain's final hop.
	BeforeAddress AbstractAddress
}

// Plan is the resolver's full answer for one VAR_IDENTIFIER root: the
// final address plus the ordered runtime steps needed to construct it.
type Plan struct {
	Address   AbstractAddress
	Steps     []Step
	ElemSize  int  // size in bytes of the final resolved element
	ElemSigned bool
	Static    bool // true if every index in the chain was a compile-time literal
}

// Resolver computes address plans against one compilation unit's tree,
// consuming the tree improver's resolved VAR_IDENTIFIER -> V_DEF map.
type Resolver struct {
	tree       *ast.Tree
	defs       map[ast.NodeID]ast.NodeID
	structDefs map[string]ast.NodeID
}

// New returns a Resolver for tree using defs (typically improver.Improver.Defs).
func New(tree *ast.Tree, defs map[ast.NodeID]ast.NodeID) *Resolver {
	return &Resolver{tree: tree, defs: defs, structDefs: ast.BuildStructIndex(tree)}
}

// DefOf returns the V_DEF a VAR_IDENTIFIER use resolves to, per the
// improver's map this Resolver was constructed with. Callers that only
// need a use site's declared type/signedness (e.g. the code generator
// picking mul vs imul) can skip the full Resolve walk with this.
func (r *Resolver) DefOf(use ast.NodeID) (ast.NodeID, bool) {
	def, ok := r.defs[use]
	return def, ok
}

// Resolve computes the AbstractAddress/Plan for a VAR_IDENTIFIER root use
// site. isChildOfPointer mirrors the original's is_child_of_pointer: a use
// nested inside a PTR dereference can never be treated as statically
// addressable, since the base only becomes known at run time.
func (r *Resolver) Resolve(use ast.NodeID, isChildOfPointer bool) (Plan, error) {
	def, ok := r.defs[use]
	if !ok {
		return Plan{}, fmt.Errorf("resolver: %q has no resolved definition", ast.VarIdentName(r.tree, use))
	}

	static := r.chainIsStatic(use)
	var plan Plan
	plan.Static = static && !isChildOfPointer

	base, op, offset := r.classifyBase(def)
	plan.Address = AbstractAddress{BaseSegment: base, Op: op, Offset: offset}

	curDef := def
	curName := use
	for {
		curDef, offset = r.applyArrayIndex(&plan, curName, curDef, offset)
		plan.Address.Offset = offset

		access, ok := ast.VarIdentStructureAccess(r.tree, curName)
		if !ok {
			break
		}
		next, ok := ast.StructAccessNext(r.tree, access)
		if !ok {
			break
		}

		if ast.StructAccessThroughPointer(r.tree, access) {
			reg := "bx"
			plan.Steps = append(plan.Steps, Step{Kind: StepPointerLoad, IntoRegister: reg, BeforeAddress: plan.Address})
			plan.Address.BaseSegment = reg
			plan.Address.Op = Add
			plan.Address.Offset = 0
			plan.Static = false
			offset = 0
		}

		// Whether curName reached next directly or through a pointer hop,
		// next's own byte offset within curDef's structure type still has
		// to be added: a pointer hop only changes the base the offset is
		// applied against (a register loaded at run time instead of a
		// static base), not the fact that there is one.
		tag := ast.VDefDataType(r.tree, curDef)
		structDef, ok := r.structDefs[tag]
		if !ok {
			return plan, fmt.Errorf("resolver: %q is not a known structure type", tag)
		}
		memberOffset, ok := ast.StructMemberOffset(r.tree, structDef, ast.VarIdentName(r.tree, next), r.structDefs)
		if !ok {
			return plan, fmt.Errorf("resolver: member %q not found on structure %q", ast.VarIdentName(r.tree, next), tag)
		}
		offset += memberOffset
		plan.Address.Offset = offset

		nextDef, ok := r.defs[next]
		if !ok {
			tag := ast.VDefDataType(r.tree, curDef)
			if structDef, ok := r.structDefs[tag]; ok {
				nextDef, _ = ast.StructMember(r.tree, structDef, ast.VarIdentName(r.tree, next))
			}
		}
		curDef, curName = nextDef, next
	}

	plan.ElemSize = ast.VDefElementSize(r.tree, curDef, r.structDefs)
	plan.ElemSigned = ast.VDefSigned(r.tree, curDef)
	return plan, nil
}

// ClassifyBase picks the base_segment/op/offset per spec.md §4.4 rules 1-3,
// given just a V_DEF (no access chain) — the same computation Resolve
// applies to a use site's root definition, exported so the code generator
// can address a declaration directly (e.g. a local's own initializer) without
// going through a VAR_IDENTIFIER use site.
//
// A variable's own position within its declaring scope (how many bytes of
// preceding siblings come before it) is part of the offset, the same way a
// structure member's offset is the sum of the members declared before it.
//
// Function-arguments count from their start (bp+4 is the first argument's
// own first byte). Function-locals count to their *end* per the §4.4
// tie-break rule ("the offset is computed from the frame pointer to the
// element's end (start + size)") — the variable's own size is folded into
// the base offset so array/field offsets (added on top by applyArrayIndex,
// uniformly for every base kind) land inside it. Globals share one
// contiguous data-segment blob (the "_data" label CodeGen8086.cpp's
// getASMAddressForVariable addresses every global through), so a global's
// offset is likewise the sum of the globals declared before it.
func ClassifyBase(tree *ast.Tree, def ast.NodeID, structDefs map[string]ast.NodeID) (segment string, op Op, offset int) {
	switch ast.VDefClass(tree, def) {
	case ast.ClassArgument:
		return "fp", Add, 4 + ast.VDefScopeOffset(tree, def, structDefs)
	case ast.ClassLocal:
		return "fp", Sub, ast.VDefScopeOffset(tree, def, structDefs) + ast.VDefTotalSizeWith(tree, def, structDefs)
	default: // global, or untagged (treat as global)
		return "data", Add, ast.VDefScopeOffset(tree, def, structDefs)
	}
}

func (r *Resolver) classifyBase(def ast.NodeID) (segment string, op Op, offset int) {
	return ClassifyBase(r.tree, def, r.structDefs)
}

// applyArrayIndex accumulates the offset contribution of name's array-index
// chain (if any) and returns the definition and running offset to continue
// the walk with. A dynamic index is recorded as a Step and marks the whole
// chain non-static, per the tie-break policy in spec.md §4.4.
func (r *Resolver) applyArrayIndex(plan *Plan, name, def ast.NodeID, offset int) (ast.NodeID, int) {
	chain := ast.ArrayIndexChain(r.tree, name)
	if len(chain) == 0 {
		return def, offset
	}

	elemSize := ast.VDefElementSize(r.tree, def, r.structDefs)
	literalSum := 0
	allStatic := true
	for _, idx := range chain {
		if ast.ArrayIndexIsStatic(r.tree, idx) {
			expr, _ := ast.ArrayIndexExpr(r.tree, idx)
			literalSum += atoiLenient(r.tree.Node(expr).Payload())
		} else {
			allStatic = false
		}
	}

	if allStatic {
		offset += elemSize * literalSum
		return def, offset
	}

	plan.Static = false
	plan.Address.ApplyIndexRegister = true
	for _, idx := range chain {
		if expr, ok := ast.ArrayIndexExpr(r.tree, idx); ok {
			plan.Steps = append(plan.Steps, Step{Kind: StepDynamicIndex, IndexExpr: expr, ElementSize: elemSize})
		}
	}
	return def, offset
}

// chainIsStatic pre-scans name's whole access chain (without mutating any
// plan) so Resolve can decide up front whether the entire reference is
// compile-time addressable.
func (r *Resolver) chainIsStatic(use ast.NodeID) bool {
	cur := use
	for {
		for _, idx := range ast.ArrayIndexChain(r.tree, cur) {
			if !ast.ArrayIndexIsStatic(r.tree, idx) {
				return false
			}
		}
		access, ok := ast.VarIdentStructureAccess(r.tree, cur)
		if !ok {
			return true
		}
		if ast.StructAccessThroughPointer(r.tree, access) {
			return false
		}
		next, ok := ast.StructAccessNext(r.tree, access)
		if !ok {
			return true
		}
		cur = next
	}
}

func atoiLenient(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// ResolvePointerDepth computes how many extra dereference loads a PTR node
// of the given depth needs beyond the base address resolution, per spec.md
// §4.4 rule 4. Because Resolve never folds a dereference into the base
// lookup itself (see the package doc), every level of depth costs exactly
// one load: no "alone variable" compensation is required.
func ResolvePointerDepth(depth int) int {
	if depth < 0 {
		return 0
	}
	return depth
}
