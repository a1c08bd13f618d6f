package jit

import "sort"

// symbolTable resolves a return address back to the function that
// contains it — CaptureStackTrace's only real job, since dragonbook
// carries no separate debug-line information (spec.md's Non-goals rule
// out a source-level debugger).
type symbolTable struct {
	entries []symbolEntry // sorted by start, built once after Add
}

type symbolEntry struct {
	name  string
	start uintptr
	end   uintptr
}

func newSymbolTable(base uintptr, offsets map[string]struct{ offset, size int }) *symbolTable {
	t := &symbolTable{}
	for name, r := range offsets {
		t.entries = append(t.entries, symbolEntry{
			name:  name,
			start: base + uintptr(r.offset),
			end:   base + uintptr(r.offset+r.size),
		})
	}
	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].start < t.entries[j].start })
	return t
}

// lookup returns the name of the function containing pc, if any.
func (t *symbolTable) lookup(pc uintptr) (string, bool) {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].end > pc })
	if i == len(t.entries) || pc < t.entries[i].start {
		return "", false
	}
	return t.entries[i].name, true
}
