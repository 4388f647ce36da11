package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "SCENARIO", "STATUS")
	tbl.Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "SCENARIO", "STATUS").WithPrefix("  ")
	tbl.Row("bgp-neighbor", "PASS")
	tbl.Row("vlan-trunk", "FAIL")
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "  SCENARIO") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "--------") {
		t.Errorf("divider = %q", lines[1])
	}
	if strings.Index(lines[2], "PASS") != strings.Index(lines[3], "FAIL") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTable_ColouredCellsAlign(t *testing.T) {
	SetColor(true)
	defer SetColor(false)

	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "SCENARIO", "STATUS", "STEPS")
	tbl.Row("base", Status("PASS"), "5")
	tbl.Row("ospf", "—", "3")
	tbl.Row("bgp-route-map", Red("FAIL"), "12")
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
	tbl.Flush()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), buf.String())
	}
	col := func(line, s string) int {
		return visibleWidth(line[:strings.Index(line, s)])
	}
	want := col(lines[0], "STEPS")
	for i, s := range []string{"5", "3", "12"} {
		if got := col(lines[i+2], s); got != want {
			t.Errorf("row %d: STEPS column at %d, want %d:\n%s", i, got, want, buf.String())
		}
	}
}

func TestTable_FlushResets(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "A")
	tbl.Row("x")
	tbl.Flush()
	n := buf.Len()
	tbl.Flush()
	if buf.Len() != n {
		t.Errorf("second Flush wrote %q", buf.String()[n:])
	}
}
