package vm

import (
	"errors"
	"testing"

	"github.com/chazu/m0/pkg/bytecode"
)

func TestNewFrame(t *testing.T) {
	c := bytecode.NewChunk("main")
	f := NewFrame(c, 8)

	if f.PC() != 8 {
		t.Errorf("PC = %d, want 8", f.PC())
	}
	if f.Chunk() != c || f.Constants() != c.Consts || f.Metadata() != c.Meta || f.Bytecode() != c.Code {
		t.Error("context registers do not point at the chunk")
	}
	if f.ChunkName() != "main" {
		t.Errorf("ChunkName = %q", f.ChunkName())
	}

	empty := NewFrame(nil, 0)
	if empty.Chunk() != nil || empty.ChunkName() != "" {
		t.Error("nil chunk frame should have no context")
	}
}

func TestFrameEnter(t *testing.T) {
	f := NewFrame(bytecode.NewChunk("a"), 4)
	b := bytecode.NewChunk("b")

	if err := f.Enter(b, 12); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if f.Chunk() != b || f.PC() != 12 {
		t.Errorf("at %s:%d, want b:12", f.ChunkName(), f.PC())
	}

	if err := f.Enter(&bytecode.Chunk{Name: "bad"}, 0); err == nil {
		t.Error("Enter should reject an incomplete chunk")
	}
	if f.Chunk() != b {
		t.Error("failed Enter changed the chunk")
	}
}

func TestFrameEnterNilChunk(t *testing.T) {
	f := NewFrame(nil, 0)
	if err := f.Enter(nil, 0); !errors.Is(err, bytecode.ErrIncompleteChunk) {
		t.Errorf("Enter(nil) error = %v, want ErrIncompleteChunk", err)
	}
	if f.Chunk() != nil {
		t.Errorf("failed Enter set chunk %q", f.ChunkName())
	}

	c := bytecode.NewChunk("main")
	if err := f.Enter(c, 0); err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if f.Chunk() != c {
		t.Errorf("chunk = %q, want main", f.ChunkName())
	}
}

func TestParseRegRef(t *testing.T) {
	tests := []struct {
		in   string
		want RegRef
	}{
		{"I0", RegRef{BankI, 0}},
		{"n3", RegRef{BankN, 3}},
		{"S255", RegRef{BankS, 255}},
		{"p12", RegRef{BankP, 12}},
	}
	for _, tt := range tests {
		got, err := ParseRegRef(tt.in)
		if err != nil {
			t.Errorf("ParseRegRef(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRegRef(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "I", "X1", "I256", "I-1", "Ix"} {
		if _, err := ParseRegRef(bad); err == nil {
			t.Errorf("ParseRegRef(%q) should fail", bad)
		}
	}

	if s := (RegRef{BankS, 7}).String(); s != "S7" {
		t.Errorf("String() = %q, want S7", s)
	}
}

func TestFrameFormatAndAssign(t *testing.T) {
	f := NewFrame(nil, 0)

	tests := []struct {
		reg   string
		value string
		want  string
	}{
		{"I1", "-42", "-42"},
		{"I2", "0x10", "16"},
		{"N0", "2.5", "2.5"},
		{"S3", `"hi there"`, `"hi there"`},
		{"S4", "bare", `"bare"`},
	}
	for _, tt := range tests {
		r, err := ParseRegRef(tt.reg)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Assign(r, tt.value); err != nil {
			t.Errorf("Assign(%s, %q): %v", tt.reg, tt.value, err)
			continue
		}
		if got := f.Format(r); got != tt.want {
			t.Errorf("Format(%s) = %s, want %s", tt.reg, got, tt.want)
		}
	}

	if err := f.Assign(RegRef{BankI, 0}, "nope"); err == nil {
		t.Error("Assign should reject a non-integer")
	}
	if err := f.Assign(RegRef{BankP, 0}, "1"); err == nil {
		t.Error("Assign should reject pointer registers")
	}
	if got := f.Format(RegRef{BankP, 0}); got != "null" {
		t.Errorf("Format(P0) = %s, want null", got)
	}
}
