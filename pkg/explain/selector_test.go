package explain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSelector() *Selector {
	return NewSelector(SelectorConfig{})
}

func srcLine(line int) *SourceMapping {
	return &SourceMapping{Line: line}
}

// checkInvariants asserts the properties every selection must satisfy:
// budget, order preservation, no duplication, and marker collapsing.
func checkInvariants(t *testing.T, asm []AssemblyItem, sel Selection, maxLines int) {
	t.Helper()

	assert.LessOrEqual(t, len(sel.Items), maxLines, "budget invariant")

	seen := make(map[*AssemblyItem]bool)
	lastIdx := -1
	prevWasMarker := false
	for _, item := range sel.Items {
		if item.IsOmission() {
			assert.False(t, prevWasMarker, "adjacent omission markers")
			assert.Positive(t, item.Omitted)
			prevWasMarker = true
			continue
		}
		prevWasMarker = false

		require.False(t, seen[item.Instruction], "instruction emitted twice")
		seen[item.Instruction] = true

		idx := -1
		for i := range asm {
			if &asm[i] == item.Instruction {
				idx = i
				break
			}
		}
		require.GreaterOrEqual(t, idx, 0, "instruction not from input")
		assert.Greater(t, idx, lastIdx, "order preservation")
		lastIdx = idx
	}
}

func totalOmitted(sel Selection) int {
	total := 0
	for _, item := range sel.Items {
		total += item.Omitted
	}
	return total
}

func retainedCount(sel Selection) int {
	count := 0
	for _, item := range sel.Items {
		if !item.IsOmission() {
			count++
		}
	}
	return count
}

func TestSelectExactFit(t *testing.T) {
	asm := make([]AssemblyItem, 10)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}

	sel := newTestSelector().Select(asm, nil, 300)

	assert.False(t, sel.Truncated)
	require.Len(t, sel.Items, 10)
	for i, item := range sel.Items {
		require.False(t, item.IsOmission())
		assert.Equal(t, &asm[i], item.Instruction)
	}
}

func TestSelectEmptyInput(t *testing.T) {
	sel := newTestSelector().Select(nil, nil, 300)
	assert.Empty(t, sel.Items)
	assert.False(t, sel.Truncated)
}

func TestSelectZeroBudget(t *testing.T) {
	asm := []AssemblyItem{{Text: "main:"}, {Text: "  ret"}}

	for _, budget := range []int{0, -5} {
		sel := newTestSelector().Select(asm, map[string]int{"main": 0}, budget)
		assert.Empty(t, sel.Items, "budget %d", budget)
	}
}

func TestSelectSimpleTruncation(t *testing.T) {
	const n = 1000
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  mov r%d, r%d", i%8, (i+1)%8)}
	}
	asm[0].Source = srcLine(1)
	asm[500].Source = srcLine(5)
	asm[999].Source = srcLine(9)

	sel := newTestSelector().Select(asm, nil, 10)

	checkInvariants(t, asm, sel, 10)
	assert.True(t, sel.Truncated)
	assert.Equal(t, n, sel.OriginalLength)

	// The three source-mapped lines must all survive.
	kept := make(map[*AssemblyItem]bool)
	for _, item := range sel.Items {
		if !item.IsOmission() {
			kept[item.Instruction] = true
		}
	}
	assert.True(t, kept[&asm[0]])
	assert.True(t, kept[&asm[500]])
	assert.True(t, kept[&asm[999]])

	// Retained plus omitted accounts for every original instruction.
	assert.Equal(t, n, retainedCount(sel)+totalOmitted(sel))
}

func TestSelectAllContextLines(t *testing.T) {
	const n = 500
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  add eax, %d", i)}
	}

	sel := newTestSelector().Select(asm, nil, 50)

	checkInvariants(t, asm, sel, 50)
	assert.True(t, sel.Truncated)
	assert.Len(t, sel.Items, 50)

	// One marker in the middle; retained lines hug both ends.
	markers := 0
	for _, item := range sel.Items {
		if item.IsOmission() {
			markers++
		}
	}
	assert.Equal(t, 1, markers)
	assert.Equal(t, n, retainedCount(sel)+totalOmitted(sel))

	// The split is roughly even between head and tail.
	require.False(t, sel.Items[0].IsOmission())
	require.False(t, sel.Items[len(sel.Items)-1].IsOmission())
	assert.Equal(t, &asm[0], sel.Items[0].Instruction)
	assert.Equal(t, &asm[n-1], sel.Items[len(sel.Items)-1].Instruction)

	head := 0
	for _, item := range sel.Items {
		if item.IsOmission() {
			break
		}
		head++
	}
	tail := retainedCount(sel) - head
	assert.InDelta(t, head, tail, 3, "head/tail balance")
}

func TestSelectPreservesFunctionBoundaries(t *testing.T) {
	const n = 100
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}
	asm[0] = AssemblyItem{Text: "func1:"}
	asm[50] = AssemblyItem{Text: "func2:"}
	asm[25] = AssemblyItem{Text: "  ret"}
	asm[75] = AssemblyItem{Text: "  ret"}

	labelDefs := map[string]int{"func1": 0, "func2": 50}
	sel := newTestSelector().Select(asm, labelDefs, 20)

	checkInvariants(t, asm, sel, 20)

	var texts []string
	for _, item := range sel.Items {
		if !item.IsOmission() {
			texts = append(texts, item.Instruction.Text)
		}
	}
	assert.Contains(t, texts, "func1:")
	assert.Contains(t, texts, "func2:")
	assert.Contains(t, texts, "  ret")
}

func TestSelectTierZeroAlwaysKept(t *testing.T) {
	const n = 400
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}
	boundaries := []int{0, 80, 160, 240, 320}
	for k, idx := range boundaries {
		asm[idx] = AssemblyItem{Text: fmt.Sprintf("fn%d:", k)}
	}

	sel := newTestSelector().Select(asm, nil, 40)

	checkInvariants(t, asm, sel, 40)
	kept := make(map[string]bool)
	for _, item := range sel.Items {
		if !item.IsOmission() {
			kept[item.Instruction.Text] = true
		}
	}
	for k := range boundaries {
		assert.True(t, kept[fmt.Sprintf("fn%d:", k)], "boundary fn%d: dropped", k)
	}
}

func TestSelectStructuralOverflow(t *testing.T) {
	// More source-mapped lines than the budget can hold: lowest tiers are
	// dropped first and the anchors survive.
	const n = 200
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  mov eax, %d", i), Source: srcLine(i)}
	}

	sel := newTestSelector().Select(asm, nil, 20)

	checkInvariants(t, asm, sel, 20)
	require.False(t, sel.Items[0].IsOmission())
	require.False(t, sel.Items[len(sel.Items)-1].IsOmission())
	assert.Equal(t, &asm[0], sel.Items[0].Instruction)
	assert.Equal(t, &asm[n-1], sel.Items[len(sel.Items)-1].Instruction)
}

func TestSelectTinyBudgets(t *testing.T) {
	const n = 30
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}

	t.Run("budget of one", func(t *testing.T) {
		sel := newTestSelector().Select(asm, nil, 1)
		require.Len(t, sel.Items, 1)
		assert.True(t, sel.Items[0].IsOmission())
		assert.Equal(t, n, sel.Items[0].Omitted)
	})

	t.Run("budget of two", func(t *testing.T) {
		sel := newTestSelector().Select(asm, nil, 2)
		require.Len(t, sel.Items, 2)
		assert.Equal(t, &asm[0], sel.Items[0].Instruction)
		assert.Equal(t, n-1, sel.Items[1].Omitted)
	})
}

func TestSelectDoesNotMutateInput(t *testing.T) {
	const n = 50
	asm := make([]AssemblyItem, n)
	for i := range asm {
		asm[i] = AssemblyItem{Text: fmt.Sprintf("  instr %d", i)}
	}
	original := make([]AssemblyItem, n)
	copy(original, asm)

	newTestSelector().Select(asm, nil, 10)

	assert.Equal(t, original, asm)
}

func TestClassify(t *testing.T) {
	selector := newTestSelector()
	labelDefs := map[string]int{"square(int)": 0, ".L2": 7}

	tests := []struct {
		name string
		item AssemblyItem
		want Tier
	}{
		{
			name: "global label declaration",
			item: AssemblyItem{Text: "square(int):"},
			want: TierBoundary,
		},
		{
			name: "label definition key match",
			item: AssemblyItem{Text: "  .L2:"},
			want: TierBoundary,
		},
		{
			name: "source mapped instruction",
			item: AssemblyItem{Text: "  mov eax, edi", Source: srcLine(1)},
			want: TierSourceMapped,
		},
		{
			name: "unmapped jump",
			item: AssemblyItem{Text: "  jne .L4"},
			want: TierControlFlow,
		},
		{
			name: "unmapped call",
			item: AssemblyItem{Text: "  call memcpy"},
			want: TierControlFlow,
		},
		{
			name: "bare return",
			item: AssemblyItem{Text: "  ret"},
			want: TierControlFlow,
		},
		{
			name: "aarch64 conditional branch",
			item: AssemblyItem{Text: "  b.eq .LBB0_2"},
			want: TierControlFlow,
		},
		{
			name: "register shuffle",
			item: AssemblyItem{Text: "  mov rax, rbx"},
			want: TierContext,
		},
		{
			name: "source mapping wins over control flow",
			item: AssemblyItem{Text: "  ret", Source: srcLine(2)},
			want: TierSourceMapped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selector.Classify(&tt.item, labelDefs))
		})
	}
}

func TestClassifyCustomMnemonics(t *testing.T) {
	selector := NewSelector(SelectorConfig{
		ControlFlowMnemonics: []string{"bra", "jsr", "rts"},
	})

	assert.Equal(t, TierControlFlow, selector.Classify(&AssemblyItem{Text: "  jsr init"}, nil))
	// Mnemonics from the default set are no longer control flow.
	assert.Equal(t, TierContext, selector.Classify(&AssemblyItem{Text: "  call init"}, nil))
}

func TestSelectBudgetSweep(t *testing.T) {
	// The invariants hold across a sweep of budgets and input shapes.
	const n = 250
	asm := make([]AssemblyItem, n)
	for i := range asm {
		switch {
		case i%60 == 0:
			asm[i] = AssemblyItem{Text: fmt.Sprintf("fn%d:", i/60)}
		case i%7 == 0:
			asm[i] = AssemblyItem{Text: "  mov eax, edi", Source: srcLine(i / 7)}
		case i%13 == 0:
			asm[i] = AssemblyItem{Text: "  jmp .L1"}
		default:
			asm[i] = AssemblyItem{Text: fmt.Sprintf("  add eax, %d", i)}
		}
	}

	selector := newTestSelector()
	for _, budget := range []int{1, 2, 3, 5, 10, 25, 50, 100, 249, 250, 400} {
		t.Run(fmt.Sprintf("budget %d", budget), func(t *testing.T) {
			sel := selector.Select(asm, nil, budget)
			checkInvariants(t, asm, sel, budget)
			if budget >= n {
				assert.False(t, sel.Truncated)
				assert.Len(t, sel.Items, n)
			} else {
				assert.Equal(t, n, retainedCount(sel)+totalOmitted(sel))
			}
		})
	}
}
