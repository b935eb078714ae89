package replay

import (
	"hash/fnv"
	"math/rand"

	"github.com/darasahq/darasa/core/script"
)

// Engine turns a due script entry into a concrete user-facing message:
// weighted variant selection plus placeholder substitution.
//
// Randomness is seeded explicitly; identical (entry, context, seed) inputs
// always produce identical output. An Engine is cheap and single-use per
// selection site — it must not be shared across goroutines.
type Engine struct {
	rnd *rand.Rand
}

func NewEngine(seed int64) *Engine {
	return &Engine{rnd: rand.New(rand.NewSource(seed))}
}

// Pick selects one variant. Variants are expanded proportionally to their
// weight and the pick is uniform over the expansion, which preserves the
// authored probability ratios exactly.
func (eng *Engine) Pick(e script.Entry) script.Variant {
	if len(e.Variants) == 1 {
		return e.Variants[0]
	}
	var expanded []int
	for i, v := range e.Variants {
		for n := 0; n < v.Weight; n++ {
			expanded = append(expanded, i)
		}
	}
	return e.Variants[expanded[eng.rnd.Intn(len(expanded))]]
}

// Render picks a variant and substitutes its placeholders from rctx. Every
// token must resolve; an unresolved token is an error, never a partial render.
func (eng *Engine) Render(e script.Entry, rctx RenderContext) (string, error) {
	v := eng.Pick(e)
	return script.Expand(v.Text, func(name string) (string, bool) {
		val, ok := rctx[name]
		return val, ok
	})
}

// DeriveSeed folds a (user, entry) pair into a base seed so that the same user
// always sees the same variant of the same entry, across page reloads and
// history repaints, while distinct users still diverge.
func DeriveSeed(base int64, userID, entryID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{'/'})
	_, _ = h.Write([]byte(entryID))
	return base ^ int64(h.Sum64())
}
