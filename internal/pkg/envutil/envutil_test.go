package envutil

import (
	"testing"
	"time"
)

func TestDefaultsWhenUnsetOrBlank(t *testing.T) {
	t.Setenv("ENVUTIL_BLANK", "   ")
	if got := String("ENVUTIL_MISSING", "x", nil); got != "x" {
		t.Fatalf("String default: got %q", got)
	}
	if got := Int("ENVUTIL_BLANK", 7, nil); got != 7 {
		t.Fatalf("Int blank: got %d", got)
	}
}

func TestParsesValues(t *testing.T) {
	t.Setenv("ENVUTIL_INT", "12")
	t.Setenv("ENVUTIL_FLOAT", "0.25")
	t.Setenv("ENVUTIL_BOOL", "off")
	t.Setenv("ENVUTIL_DUR", "90s")
	t.Setenv("ENVUTIL_SECS", "30")

	if got := Int("ENVUTIL_INT", 0, nil); got != 12 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Float("ENVUTIL_FLOAT", 0, nil); got != 0.25 {
		t.Fatalf("Float: got %v", got)
	}
	if got := Bool("ENVUTIL_BOOL", true, nil); got {
		t.Fatalf("Bool: expected false")
	}
	if got := Duration("ENVUTIL_DUR", 0, nil); got != 90*time.Second {
		t.Fatalf("Duration: got %s", got)
	}
	if got := Duration("ENVUTIL_SECS", 0, nil); got != 30*time.Second {
		t.Fatalf("Duration seconds: got %s", got)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ENVUTIL_INT", "twelve")
	t.Setenv("ENVUTIL_BOOL", "maybe")
	t.Setenv("ENVUTIL_DUR", "soon")

	if got := Int("ENVUTIL_INT", 3, nil); got != 3 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if got := Bool("ENVUTIL_BOOL", true, nil); !got {
		t.Fatalf("Bool fallback: expected true")
	}
	if got := Duration("ENVUTIL_DUR", time.Minute, nil); got != time.Minute {
		t.Fatalf("Duration fallback: got %s", got)
	}
}

func TestKeyValues(t *testing.T) {
	t.Setenv("ENVUTIL_KV", "authorization=Bearer abc, x-team = flow ,broken,=nokey")
	got := KeyValues("ENVUTIL_KV", nil)
	if len(got) != 2 || got["authorization"] != "Bearer abc" || got["x-team"] != "flow" {
		t.Fatalf("KeyValues: got %v", got)
	}
	t.Setenv("ENVUTIL_KV", "broken")
	if got := KeyValues("ENVUTIL_KV", nil); got != nil {
		t.Fatalf("KeyValues: expected nil, got %v", got)
	}
}
