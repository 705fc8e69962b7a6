package textutil

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{50 * 1024 * 1024, "50.0 MiB"},
		{3 * 1024 * 1024 * 1024 / 2, "1.5 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Fatalf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("line one\nline  two", 0); got != "line one line two" {
		t.Fatalf("flatten: %q", got)
	}
	if got := Truncate("Café au lait", 7); got != "Café..." {
		t.Fatalf("truncate: %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("short: %q", got)
	}
	if Ternary(true, "a", "b") != "a" || Ternary(false, 1, 2) != 2 {
		t.Fatal("Ternary picked the wrong branch")
	}
}
