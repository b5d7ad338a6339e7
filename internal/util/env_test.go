package util

import (
	"testing"
	"time"
)

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		set   bool
		want  time.Duration
	}{
		{name: "unset", set: false, want: 3 * time.Second},
		{name: "go duration", value: "1500ms", set: true, want: 1500 * time.Millisecond},
		{name: "bare seconds", value: "1200", set: true, want: 1200 * time.Second},
		{name: "fractional seconds", value: "0.5", set: true, want: 500 * time.Millisecond},
		{name: "garbage", value: "soon", set: true, want: 3 * time.Second},
		{name: "negative", value: "-2s", set: true, want: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.set {
				t.Setenv("TEST_DURATION", tt.value)
			}
			got := GetEnvDuration("TEST_DURATION", 3*time.Second)
			if got != tt.want {
				t.Fatalf("GetEnvDuration() got = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "empty", value: "", want: []string{"*"}},
		{name: "star", value: " * ", want: []string{"*"}},
		{name: "list", value: "http://a.test, http://b.test,,", want: []string{"http://a.test", "http://b.test"}},
		{name: "only commas", value: ",,", want: []string{"*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ORIGINS", tt.value)
			got := GetEnvList("TEST_ORIGINS")
			if len(got) != len(tt.want) {
				t.Fatalf("GetEnvList() got = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("GetEnvList()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGetEnvFirst(t *testing.T) {
	t.Setenv("TEST_TOKEN_A", "  ")
	t.Setenv("TEST_TOKEN_B", "secret")
	if got := GetEnvFirst("TEST_TOKEN_A", "TEST_TOKEN_B"); got != "secret" {
		t.Fatalf("GetEnvFirst() got = %q, want %q", got, "secret")
	}
	if got := GetEnvFirst("TEST_TOKEN_MISSING"); got != "" {
		t.Fatalf("GetEnvFirst() got = %q, want empty", got)
	}
}
