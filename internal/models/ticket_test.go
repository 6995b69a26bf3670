package models

import "testing"

func TestParseCategoryExact(t *testing.T) {
	for _, cat := range Categories() {
		parsed, ok := ParseCategory(string(cat))
		if !ok {
			t.Fatalf("expected %q to parse", cat)
		}
		if parsed != cat {
			t.Fatalf("expected %q, got %q", cat, parsed)
		}
	}
}

func TestParseCategoryContainment(t *testing.T) {
	parsed, ok := ParseCategory("the category is: product issue")
	if !ok {
		t.Fatalf("expected containment match")
	}
	if parsed != CategoryProduct {
		t.Fatalf("expected Product Issue, got %q", parsed)
	}
}

func TestParseCategoryRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "Hardware Issue", "product", "General"} {
		if parsed, ok := ParseCategory(raw); ok {
			t.Fatalf("expected %q to be rejected, got %q", raw, parsed)
		}
	}
}

func TestValidateDescriptionBounds(t *testing.T) {
	if err := (CreateTicketRequest{Description: "too short"}).Validate(); err == nil {
		t.Fatalf("expected validation error for short description")
	}
	if err := (CreateTicketRequest{Description: "long enough description"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 1.7: 1}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Fatalf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
