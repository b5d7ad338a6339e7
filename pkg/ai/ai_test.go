package ai

import "testing"

func TestModelMetricsAdd(t *testing.T) {
	a := ModelMetrics{Requests: 1, InputTokens: 10, OutputTokens: 5, TotalTokens: 15, DurationMs: 100}
	b := ModelMetrics{Requests: 2, InputTokens: 1, OutputTokens: 2, TotalTokens: 3, DurationMs: 7}
	want := ModelMetrics{Requests: 3, InputTokens: 11, OutputTokens: 7, TotalTokens: 18, DurationMs: 107}
	if got := a.Add(b); got != want {
		t.Fatalf("Add() got = %+v, want %+v", got, want)
	}
}
