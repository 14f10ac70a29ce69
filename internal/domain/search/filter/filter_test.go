package filter

import "testing"

func TestExpression_With(t *testing.T) {
	var e Expression
	if !e.IsEmpty() {
		t.Fatal("zero expression should be empty")
	}

	e2 := e.With(NewMatch("operation", "rent"))
	if e.IsEmpty() == false {
		t.Fatal("With must not mutate the receiver")
	}
	if len(e2.Conditions()) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(e2.Conditions()))
	}

	e3 := e2.With(GTE("bedrooms", 2))
	if len(e2.Conditions()) != 1 || len(e3.Conditions()) != 2 {
		t.Fatal("expressions must be value-semantic")
	}
}

func TestCondition_Kinds(t *testing.T) {
	m := NewMatch("city", "caba")
	if !m.IsMatch() || m.IsRange() {
		t.Fatal("expected match condition")
	}
	if m.Key() != "city" || m.Match() != "caba" {
		t.Fatalf("unexpected match condition %+v", m)
	}

	lo, hi := 100000.0, 200000.0
	r := NewRange("price", &lo, &hi)
	if r.IsMatch() || !r.IsRange() {
		t.Fatal("expected range condition")
	}
	if *r.Range().GTE() != lo || *r.Range().LTE() != hi {
		t.Fatal("range bounds lost")
	}

	g := GTE("bedrooms", 2)
	if g.Range().LTE() != nil || *g.Range().GTE() != 2 {
		t.Fatalf("GTE bounds wrong: %+v", g.Range())
	}
}
