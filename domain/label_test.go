package domain

import "testing"

func TestPaletteIsClosed(t *testing.T) {
	if len(Palette()) != 9 {
		t.Fatalf("expected 9 palette colors, got %d", len(Palette()))
	}
	for _, c := range Palette() {
		if !ValidColor(c.Value) {
			t.Fatalf("palette color %s must validate", c.Name)
		}
	}
	if ValidColor("#123456") {
		t.Fatal("freeform colors must be rejected")
	}
}

func TestStarterLabels(t *testing.T) {
	labels := StarterLabels("p1")
	if len(labels) != 3 {
		t.Fatalf("expected 3 starter labels, got %d", len(labels))
	}
	for _, l := range labels {
		if l.ProjectID != "p1" {
			t.Fatalf("starter label %s not bound to project", l.Name)
		}
		if !ValidColor(l.Color) {
			t.Fatalf("starter label %s uses non-palette color %s", l.Name, l.Color)
		}
	}
}
