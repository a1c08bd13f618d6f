package jit

import "testing"

func TestSymbolTableLookup(t *testing.T) {
	offsets := map[string]struct{ offset, size int }{
		"first":  {0, 10},
		"second": {10, 5},
		"third":  {20, 8},
	}
	table := newSymbolTable(0x1000, offsets)

	cases := []struct {
		pc       uintptr
		wantName string
		wantOK   bool
	}{
		{0x1000, "first", true},
		{0x1005, "first", true},
		{0x100a, "second", true},
		{0x100e, "second", true},
		{0x1014, "third", true},
		{0x101b, "third", true},
		{0x101c, "", false}, // one past the last function's end
		{0x0fff, "", false}, // before the first function's start
	}
	for _, c := range cases {
		name, ok := table.lookup(c.pc)
		if ok != c.wantOK || name != c.wantName {
			t.Errorf("lookup(%#x) = (%q, %v), want (%q, %v)", c.pc, name, ok, c.wantName, c.wantOK)
		}
	}
}

func TestSymbolTableLookupEmpty(t *testing.T) {
	table := newSymbolTable(0x1000, map[string]struct{ offset, size int }{})
	if _, ok := table.lookup(0x1000); ok {
		t.Fatal("lookup against an empty table must report not found")
	}
}
