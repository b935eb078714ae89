package replay

import (
	"testing"

	"github.com/darasahq/darasa/core/script"
)

func weightedEntry() script.Entry {
	return script.Entry{
		ID:   "greet",
		Kind: script.KindChat,
		Variants: []script.Variant{
			{Text: "hello there", Weight: 3},
			{Text: "good evening", Weight: 1},
		},
	}
}

func TestEnginePick(t *testing.T) {
	t.Run("single variant short-circuits", func(t *testing.T) {
		e := script.Entry{Variants: []script.Variant{{Text: "only one", Weight: 1}}}
		if got := NewEngine(1).Pick(e); got.Text != "only one" {
			t.Errorf("Pick() = %q", got.Text)
		}
	})

	t.Run("weights bias the pick", func(t *testing.T) {
		eng := NewEngine(42)
		e := weightedEntry()
		counts := map[string]int{}
		for i := 0; i < 1000; i++ {
			counts[eng.Pick(e).Text]++
		}
		// 3:1 weights; with 1000 picks the heavy variant lands near 750
		if heavy := counts["hello there"]; heavy < 650 || heavy > 850 {
			t.Errorf("heavy variant picked %d/1000 times, want ~750", heavy)
		}
	})

	t.Run("same seed, same sequence", func(t *testing.T) {
		a, b := NewEngine(7), NewEngine(7)
		e := weightedEntry()
		for i := 0; i < 50; i++ {
			if got, want := a.Pick(e).Text, b.Pick(e).Text; got != want {
				t.Fatalf("pick %d diverged: %q vs %q", i, got, want)
			}
		}
	})
}

func TestEngineRender(t *testing.T) {
	e := script.Entry{
		ID:   "ping",
		Kind: script.KindEnrollment,
		Variants: []script.Variant{
			{Text: "{{personaName}} from {{personaLocation}} just enrolled", Weight: 1},
		},
	}

	t.Run("substitutes placeholders", func(t *testing.T) {
		got, err := NewEngine(1).Render(e, RenderContext{
			"personaName":     "Amina K.",
			"personaLocation": "Nairobi, Kenya",
		})
		if err != nil {
			t.Fatalf("Render() failed: %v", err)
		}
		if want := "Amina K. from Nairobi, Kenya just enrolled"; got != want {
			t.Errorf("Render() = %q, want %q", got, want)
		}
	})

	t.Run("unresolved token fails", func(t *testing.T) {
		if _, err := NewEngine(1).Render(e, RenderContext{"personaName": "Amina K."}); err == nil {
			t.Error("Render() succeeded with an unresolved token")
		}
	})
}

func TestDeriveSeed(t *testing.T) {
	if DeriveSeed(99, "user-1", "welcome") != DeriveSeed(99, "user-1", "welcome") {
		t.Error("DeriveSeed is not stable for identical inputs")
	}
	if DeriveSeed(99, "user-1", "welcome") == DeriveSeed(99, "user-2", "welcome") {
		t.Error("DeriveSeed collided across users")
	}
	if DeriveSeed(99, "user-1", "welcome") == DeriveSeed(99, "user-1", "closing") {
		t.Error("DeriveSeed collided across entries")
	}
}
