package localparse

import "testing"

func TestTryAll_PrefersJSON(t *testing.T) {
	r, ok := TryAll(`{"a":1}`)
	if !ok || r.Mode != "json" {
		t.Fatalf("expected json match, got %+v ok=%v", r, ok)
	}
}

func TestTryAll_FallsThroughToQuery(t *testing.T) {
	r, ok := TryAll("name=Alice&age=30")
	if !ok || r.Mode != "query" {
		t.Fatalf("expected query match, got %+v ok=%v", r, ok)
	}
}

func TestTryAll_FallsThroughToKV(t *testing.T) {
	r, ok := TryAll("name: Alice\nage: 30")
	if !ok || r.Mode != "kv" {
		t.Fatalf("expected kv match, got %+v ok=%v", r, ok)
	}
}

func TestTryAll_FallsThroughToCSV(t *testing.T) {
	r, ok := TryAll("name,age\nAlice,30\n")
	if !ok || r.Mode != "csv" {
		t.Fatalf("expected csv match, got %+v ok=%v", r, ok)
	}
}

func TestTryAll_NoneMatch(t *testing.T) {
	_, ok := TryAll("just plain unstructured prose")
	if ok {
		t.Fatal("expected no parser to match")
	}
}

func TestTryOne_RestrictsToRequestedMode(t *testing.T) {
	if _, ok := TryOne("json", "name=Alice&age=30"); ok {
		t.Fatal("query string should not satisfy json mode")
	}
	if r, ok := TryOne("query", "name=Alice&age=30"); !ok || r.Mode != "query" {
		t.Fatalf("expected query match, got %+v ok=%v", r, ok)
	}
}
