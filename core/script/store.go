package script

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// variants more similar than this within one entry are near-certainly an
// authoring copy/paste mistake; viewers must never see two of them.
const maxVariantSimilarity = 0.95

// Store holds one validated, ordered timeline and answers "what is due as of
// clock position X, given what has already fired" queries. A Store is read-only
// after construction and safe for unlimited concurrent readers.
type Store struct {
	name    string
	kind    TimelineKind
	entries []Entry // sorted by (At, seq)
	byID    map[string]Entry
}

// NewStore validates the authored entries and indexes them by trigger key.
// Entries keep their authored order as the tie-breaker for equal trigger keys.
func NewStore(name string, kind TimelineKind, entries []Entry) (*Store, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Script: name, Reason: "unknown timeline kind " + string(kind)}
	}

	store := &Store{
		name:    name,
		kind:    kind,
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]Entry, len(entries)),
	}
	copy(store.entries, entries)

	for i := range store.entries {
		e := &store.entries[i]
		e.seq = i
		if e.Channel == "" {
			e.Channel = ChannelOnPage
		}
		if err := validateEntry(*e, kind); err != nil {
			if vErr, ok := err.(*ValidationError); ok {
				vErr.Script = name
			}
			return nil, err
		}
		if _, ok := store.byID[e.ID]; ok {
			return nil, &ValidationError{Script: name, EntryID: e.ID, Reason: "duplicate entry id"}
		}
		store.byID[e.ID] = *e
	}

	sort.SliceStable(store.entries, func(i, j int) bool {
		if store.entries[i].At != store.entries[j].At {
			return store.entries[i].At < store.entries[j].At
		}
		return store.entries[i].seq < store.entries[j].seq
	})
	return store, nil
}

func validateEntry(e Entry, kind TimelineKind) error {
	if e.ID == "" {
		return validationErrf("", "missing entry id")
	}
	if e.At < 0 {
		return validationErrf(e.ID, "negative trigger key %d", e.At)
	}
	if !e.Kind.Valid() {
		return validationErrf(e.ID, "unknown event kind %q", e.Kind)
	}
	if !e.Channel.Valid() {
		return validationErrf(e.ID, "unknown channel %q", e.Channel)
	}
	if e.Channel != ChannelOnPage {
		if kind != TimelineDay {
			return validationErrf(e.ID, "channel %q is only valid on day timelines", e.Channel)
		}
		if e.Template == "" {
			return validationErrf(e.ID, "channel %q requires a template key", e.Channel)
		}
	}
	if e.Jitter != nil {
		if kind != TimelineDay {
			return validationErrf(e.ID, "jitter is only valid on day timelines")
		}
		if e.Jitter.FromHour < 0 || e.Jitter.ToHour > 23 || e.Jitter.FromHour > e.Jitter.ToHour {
			return validationErrf(e.ID, "invalid jitter window [%d, %d]", e.Jitter.FromHour, e.Jitter.ToHour)
		}
	}
	if len(e.Variants) == 0 {
		return validationErrf(e.ID, "empty variant list")
	}
	for i, v := range e.Variants {
		if strings.TrimSpace(v.Text) == "" {
			return validationErrf(e.ID, "variant %d is empty", i)
		}
		if v.Weight < 1 {
			return validationErrf(e.ID, "variant %d has non-positive weight %d", i, v.Weight)
		}
		for _, tok := range Tokens(v.Text) {
			if !KnownToken(tok) {
				return validationErrf(e.ID, "variant %d references unknown token {{%s}}", i, tok)
			}
		}
		for j := 0; j < i; j++ {
			ratio := difflib.NewMatcher(
				strings.Split(e.Variants[j].Text, ""),
				strings.Split(v.Text, ""),
			).QuickRatio()
			if ratio > maxVariantSimilarity {
				return validationErrf(e.ID, "variants %d and %d are near-identical (ratio %.2f)", j, i, ratio)
			}
		}
	}
	return nil
}

func (s *Store) Name() string       { return s.name }
func (s *Store) Kind() TimelineKind { return s.kind }
func (s *Store) Len() int           { return len(s.entries) }

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// All returns every entry ordered by (trigger key, authored order).
func (s *Store) All() []Entry {
	all := make([]Entry, len(s.entries))
	copy(all, s.entries)
	return all
}

// Due returns the entries whose trigger key is at or before position and whose
// id is not in delivered, ordered ascending by trigger key (ties broken by
// authored order). A position before the first entry yields an empty result; a
// position far past the last entry yields every remaining undelivered entry —
// the caller is responsible for capping how many it renders per pass.
func (s *Store) Due(position int, delivered map[string]bool) []Entry {
	if position < 0 {
		return nil
	}
	var due []Entry
	for _, e := range s.entries {
		if e.At > position {
			break
		}
		if delivered[e.ID] {
			continue
		}
		due = append(due, e)
	}
	return due
}
