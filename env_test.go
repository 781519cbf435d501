package alphastream

import (
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("ALPHASTREAM_TEST_STR", "")
	if got := EnvOr("ALPHASTREAM_TEST_STR", "fallback"); got != "fallback" {
		t.Fatalf("EnvOr with unset var = %q, want %q", got, "fallback")
	}
	t.Setenv("ALPHASTREAM_TEST_STR", "set")
	if got := EnvOr("ALPHASTREAM_TEST_STR", "fallback"); got != "set" {
		t.Fatalf("EnvOr with set var = %q, want %q", got, "set")
	}
}

func TestEnvOrInt(t *testing.T) {
	cases := []struct {
		name     string
		value    string
		set      bool
		fallback int
		want     int
	}{
		{"unset", "", false, 4, 4},
		{"valid", "16", true, 4, 16},
		{"unparsable", "not-a-number", true, 4, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.set {
				t.Setenv("ALPHASTREAM_TEST_INT", c.value)
			}
			if got := EnvOrInt("ALPHASTREAM_TEST_INT", c.fallback); got != c.want {
				t.Fatalf("EnvOrInt = %d, want %d", got, c.want)
			}
		})
	}
}

func TestEnvOrDuration(t *testing.T) {
	t.Setenv("ALPHASTREAM_TEST_DURATION", "250ms")
	if got, want := EnvOrDuration("ALPHASTREAM_TEST_DURATION", time.Second), 250*time.Millisecond; got != want {
		t.Fatalf("EnvOrDuration = %v, want %v", got, want)
	}

	t.Setenv("ALPHASTREAM_TEST_DURATION", "garbage")
	if got, want := EnvOrDuration("ALPHASTREAM_TEST_DURATION", time.Second), time.Second; got != want {
		t.Fatalf("EnvOrDuration with unparsable value = %v, want fallback %v", got, want)
	}
}
