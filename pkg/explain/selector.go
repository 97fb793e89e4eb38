package explain

import (
	"strings"
)

// Tier is the retention priority class assigned to an assembly line when the
// output has to be truncated. Lower values are kept first.
type Tier int

const (
	// TierBoundary marks function entry points and label definitions.
	TierBoundary Tier = iota
	// TierSourceMapped marks instructions the compiler attributed to a
	// source line.
	TierSourceMapped
	// TierControlFlow marks jumps, calls and returns without a source
	// mapping; they still define the program structure.
	TierControlFlow
	// TierContext marks everything else: spill code, register shuffling
	// and other scaffolding that is only kept when budget allows.
	TierContext
)

func (t Tier) String() string {
	switch t {
	case TierBoundary:
		return "boundary"
	case TierSourceMapped:
		return "source-mapped"
	case TierControlFlow:
		return "control-flow"
	default:
		return "context"
	}
}

// DefaultMaxLines bounds how many assembly lines are forwarded to Claude.
const DefaultMaxLines = 300

// DefaultControlFlowMnemonics covers the jump/call/return families of the
// architectures Compiler Explorer commonly targets (x86-64, aarch64, riscv).
func DefaultControlFlowMnemonics() []string {
	return []string{
		// x86
		"jmp", "je", "jne", "jz", "jnz", "jg", "jge", "jl", "jle",
		"ja", "jae", "jb", "jbe", "js", "jns", "jo", "jno", "jp", "jnp",
		"jcxz", "jecxz", "jrcxz", "loop", "call", "ret", "leave",
		// aarch64 / arm
		"b", "bl", "blr", "br", "bx", "blx", "beq", "bne", "bgt", "blt",
		"bge", "ble", "cbz", "cbnz", "tbz", "tbnz",
		// riscv
		"jal", "jalr", "beqz", "bnez",
	}
}

// SelectorConfig parameterizes the instruction selector.
type SelectorConfig struct {
	// MaxLines is the default output budget when Select is called through
	// SelectDefault. Zero means DefaultMaxLines.
	MaxLines int

	// ControlFlowMnemonics is the set of mnemonics classified as
	// TierControlFlow. Empty means DefaultControlFlowMnemonics. The set is
	// explicit configuration so tests can target a single ISA.
	ControlFlowMnemonics []string
}

// Selector reduces an instruction stream to a bounded subsequence,
// substituting omission markers for elided runs. It holds no mutable state
// and is safe for concurrent use.
type Selector struct {
	maxLines  int
	mnemonics map[string]struct{}
}

// NewSelector creates a selector from the given configuration.
func NewSelector(config SelectorConfig) *Selector {
	maxLines := config.MaxLines
	if maxLines == 0 {
		maxLines = DefaultMaxLines
	}

	mnemonics := config.ControlFlowMnemonics
	if len(mnemonics) == 0 {
		mnemonics = DefaultControlFlowMnemonics()
	}

	set := make(map[string]struct{}, len(mnemonics))
	for _, m := range mnemonics {
		set[strings.ToLower(m)] = struct{}{}
	}

	return &Selector{maxLines: maxLines, mnemonics: set}
}

// SelectedItem is one element of a selection: either a retained instruction
// or an omission marker standing in for a skipped run.
type SelectedItem struct {
	// Instruction is the retained line; nil when this is an omission marker.
	Instruction *AssemblyItem

	// Omitted is the number of original instructions this marker replaces.
	// Zero for retained instructions.
	Omitted int
}

// IsOmission reports whether the item is an omission marker.
func (it SelectedItem) IsOmission() bool {
	return it.Instruction == nil
}

// Selection is the bounded result of selecting from an instruction stream.
type Selection struct {
	Items          []SelectedItem
	Truncated      bool
	OriginalLength int
}

// SelectDefault applies the selector's configured budget.
func (s *Selector) SelectDefault(asm []AssemblyItem, labelDefinitions map[string]int) Selection {
	return s.Select(asm, labelDefinitions, s.maxLines)
}

// Select returns at most maxLines items preserving the original instruction
// order. Every elided run is represented by exactly one omission marker, and
// markers count against the budget. Inputs are never mutated.
//
// When truncating, retention follows the tier precedence: function
// boundaries, then source-mapped instructions, then control flow, then
// whatever context fits. The first and last instruction are always kept so
// the function signature and final return stay visible. Remaining budget is
// backfilled with context lines adjacent to already-selected ones, growing
// outward pass by pass so retained blocks stay contiguous.
func (s *Selector) Select(asm []AssemblyItem, labelDefinitions map[string]int, maxLines int) Selection {
	n := len(asm)
	if n == 0 {
		return Selection{Items: []SelectedItem{}}
	}
	if maxLines <= 0 {
		// Defensive floor: a filtering bug must never abort the request.
		return Selection{Items: []SelectedItem{}, Truncated: true, OriginalLength: n}
	}
	if n <= maxLines {
		items := make([]SelectedItem, n)
		for i := range asm {
			items[i] = SelectedItem{Instruction: &asm[i]}
		}
		return Selection{Items: items, OriginalLength: n}
	}

	if maxLines < 3 {
		return s.selectDegenerate(asm, maxLines)
	}

	tiers := make([]Tier, n)
	for i := range asm {
		tiers[i] = s.Classify(&asm[i], labelDefinitions)
	}

	selected := make([]bool, n)
	count := 0
	add := func(i int) {
		if !selected[i] {
			selected[i] = true
			count++
		}
	}

	// The first and last instruction anchor the selection.
	add(0)
	add(n - 1)

	// Phase 1: structural tiers, tier by tier in original order.
	for _, tier := range []Tier{TierBoundary, TierSourceMapped, TierControlFlow} {
		for i := 0; i < n; i++ {
			if tiers[i] == tier {
				add(i)
			}
		}
	}

	// Safeguard: if the structural tiers alone blow the budget, drop the
	// lowest tier first, oldest first within a tier. The anchors stay.
	for count+countGaps(selected) > maxLines {
		dropped := false
		for tier := TierControlFlow; tier >= TierBoundary && !dropped; tier-- {
			for i := 0; i < n; i++ {
				if i == 0 || i == n-1 || !selected[i] || tiers[i] != tier {
					continue
				}
				selected[i] = false
				count--
				dropped = true
				break
			}
		}
		if !dropped {
			// Only the anchors remain and they still do not fit with
			// their marker; fall back to the degenerate layout.
			return s.selectDegenerate(asm, maxLines)
		}
	}

	// Phase 2: backfill context lines adjacent to the selection. Adjacency
	// is snapshotted per pass so blocks grow evenly from every retained
	// island instead of one end swallowing the whole budget.
	total := count + countGaps(selected)
	for total < maxLines {
		candidates := adjacentUnselected(selected)
		added := false
		for _, i := range candidates {
			if selected[i] {
				continue
			}
			delta := 1 + gapDelta(selected, i)
			if total+delta > maxLines {
				continue
			}
			add(i)
			total += delta
			added = true
		}
		if !added {
			break
		}
	}

	items := make([]SelectedItem, 0, maxLines)
	skipped := 0
	for i := 0; i < n; i++ {
		if !selected[i] {
			skipped++
			continue
		}
		if skipped > 0 {
			items = append(items, SelectedItem{Omitted: skipped})
			skipped = 0
		}
		items = append(items, SelectedItem{Instruction: &asm[i]})
	}
	if skipped > 0 {
		items = append(items, SelectedItem{Omitted: skipped})
	}

	return Selection{Items: items, Truncated: true, OriginalLength: n}
}

// selectDegenerate handles budgets too small for anchors plus a marker: a
// leading slice of the input followed by a single trailing marker.
func (s *Selector) selectDegenerate(asm []AssemblyItem, maxLines int) Selection {
	n := len(asm)
	keep := maxLines - 1
	items := make([]SelectedItem, 0, maxLines)
	for i := 0; i < keep; i++ {
		items = append(items, SelectedItem{Instruction: &asm[i]})
	}
	items = append(items, SelectedItem{Omitted: n - keep})
	return Selection{Items: items, Truncated: true, OriginalLength: n}
}

// Classify assigns a retention tier to one assembly line.
func (s *Selector) Classify(item *AssemblyItem, labelDefinitions map[string]int) Tier {
	text := item.Text
	trimmed := strings.TrimSpace(text)

	// A label declared at column zero is a global symbol definition.
	if strings.HasSuffix(trimmed, ":") && len(text) > 0 && text[0] != ' ' && text[0] != '\t' {
		return TierBoundary
	}
	if _, ok := labelDefinitions[trimmed]; ok {
		return TierBoundary
	}
	if _, ok := labelDefinitions[strings.TrimSuffix(trimmed, ":")]; ok && strings.HasSuffix(trimmed, ":") {
		return TierBoundary
	}

	if item.Source != nil {
		return TierSourceMapped
	}

	if s.isControlFlow(trimmed) {
		return TierControlFlow
	}

	return TierContext
}

func (s *Selector) isControlFlow(trimmed string) bool {
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	mnemonic := strings.ToLower(fields[0])
	if _, ok := s.mnemonics[mnemonic]; ok {
		return true
	}
	// aarch64 conditional branches: b.eq, b.ne, b.hs and friends.
	return strings.HasPrefix(mnemonic, "b.")
}

// countGaps returns the number of maximal unselected runs, each of which
// becomes one omission marker.
func countGaps(selected []bool) int {
	gaps := 0
	inGap := false
	for _, sel := range selected {
		if sel {
			inGap = false
		} else if !inGap {
			gaps++
			inGap = true
		}
	}
	return gaps
}

// gapDelta returns how the marker count changes if index i is selected.
func gapDelta(selected []bool, i int) int {
	left := i == 0 || selected[i-1]
	right := i == len(selected)-1 || selected[i+1]
	switch {
	case left && right:
		// A singleton hole closes entirely.
		return -1
	case !left && !right:
		// The surrounding run splits in two.
		return 1
	default:
		// The run shrinks from one side.
		return 0
	}
}

// adjacentUnselected lists, in original order, the unselected indices that
// border the current selection.
func adjacentUnselected(selected []bool) []int {
	n := len(selected)
	var out []int
	for i := 0; i < n; i++ {
		if selected[i] {
			continue
		}
		if (i > 0 && selected[i-1]) || (i < n-1 && selected[i+1]) {
			out = append(out, i)
		}
	}
	return out
}
