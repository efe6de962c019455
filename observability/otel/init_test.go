package otel

import (
	"reflect"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" team=sale , token=abc=def ,malformed, =dropped ")
	want := map[string]string{
		"team":  "sale",
		"token": "abc=def",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected headers: %v", got)
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatal("expected no headers from empty input")
	}
}
