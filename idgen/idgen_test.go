package idgen

import (
	"strings"
	"testing"
)

func TestNanoID(t *testing.T) {
	for _, length := range []int{8, 12, 16, 24} {
		gen := NanoID(length)
		if id := gen(); len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}

	// Output alphabet is lowercase base36.
	for _, c := range NanoID(100)() {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q", c)
		}
	}
}

func TestUniqueness(t *testing.T) {
	gens := map[string]Generator{
		"nanoid": NanoID(12),
		"uuidv7": UUIDv7(),
	}
	for name, gen := range gens {
		seen := make(map[string]struct{}, 500)
		for i := 0; i < 500; i++ {
			id := gen()
			if _, ok := seen[id]; ok {
				t.Fatalf("%s: duplicate at iteration %d: %q", name, i, id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || len(strings.Split(id, "-")) != 5 {
		t.Fatalf("UUIDv7: malformed %q", id)
	}
	if _, err := Parse(id); err != nil {
		t.Fatalf("UUIDv7: Parse rejected own output: %v", err)
	}
}

func TestPrefixed(t *testing.T) {
	for _, prefix := range []string{"sess_", "evt_", "bmk_"} {
		gen := Prefixed(prefix, NanoID(8))
		id := gen()
		if !strings.HasPrefix(id, prefix) {
			t.Fatalf("Prefixed(%q): got %q", prefix, id)
		}
		if len(id) != len(prefix)+8 {
			t.Fatalf("Prefixed(%q): expected length %d, got %d", prefix, len(prefix)+8, len(id))
		}
	}
}

func TestTimestamped(t *testing.T) {
	id := Timestamped(NanoID(6))()
	// 20060102T150405Z_xxxxxx
	if !strings.Contains(id, "T") || !strings.Contains(id, "Z_") {
		t.Fatalf("Timestamped: bad format %q", id)
	}
}

func TestDefault_IsUUIDv7(t *testing.T) {
	id := New()
	if len(id) != 36 {
		t.Fatalf("New: expected UUID length 36, got %d for %q", len(id), id)
	}
	if _, err := Parse(id); err != nil {
		t.Fatalf("New: default should produce a valid UUID: %v", err)
	}
}

func TestParse(t *testing.T) {
	original := UUIDv7()()
	parsed, err := Parse(original)
	if err != nil {
		t.Fatalf("Parse valid UUID: %v", err)
	}
	if parsed != original {
		t.Fatalf("Parse: got %q, want %q", parsed, original)
	}

	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}

func TestMustParse(t *testing.T) {
	original := UUIDv7()()
	if got := MustParse(original); got != original {
		t.Fatalf("MustParse: got %q, want %q", got, original)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("MustParse: expected panic for invalid UUID")
		}
	}()
	MustParse("not-a-uuid")
}
