package script

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TimelineKind discriminates the two clock flavors a script can be keyed on.
type TimelineKind string

const (
	// TimelineVideo triggers on seconds into a masterclass/video replay.
	TimelineVideo TimelineKind = "video"
	// TimelineDay triggers on whole days elapsed since a user's enrollment anchor.
	TimelineDay TimelineKind = "day"
)

func (k TimelineKind) Valid() bool {
	return k == TimelineVideo || k == TimelineDay
}

// Kind is the closed set of event kinds a script entry can produce.
type Kind string

const (
	KindSystem     Kind = "system"     // host/system notice
	KindChat       Kind = "chat"       // persona chat line
	KindEnrollment Kind = "enrollment" // "X just enrolled" ping
	KindScarcity   Kind = "scarcity"   // seats/time running out alert
	KindMilestone  Kind = "milestone"  // persona progress milestone
)

var allKinds = []Kind{KindSystem, KindChat, KindEnrollment, KindScarcity, KindMilestone}

func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Channel is where a fired entry is delivered. On-page events are rendered
// directly; email/sms entries additionally emit a delivery intent for the
// host's side channels.
type Channel string

const (
	ChannelOnPage Channel = "onpage"
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
)

func (c Channel) Valid() bool {
	return c == ChannelOnPage || c == ChannelEmail || c == ChannelSMS
}

// Variant is one candidate message template with an explicit sampling weight.
// In YAML a variant may be a bare string (weight 1) or a {text, weight} mapping.
type Variant struct {
	Text   string `yaml:"text"`
	Weight int    `yaml:"weight"`
}

func (v *Variant) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		v.Text = node.Value
		v.Weight = 1
		return nil
	}
	type plain Variant
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	if p.Weight == 0 {
		p.Weight = 1
	}
	*v = Variant(p)
	return nil
}

// JitterWindow delays a day-keyed entry to fire somewhere within [FromHour, ToHour]
// of its trigger day. Jitter only ever delays firing, never advances it.
type JitterWindow struct {
	FromHour int `yaml:"fromHour"`
	ToHour   int `yaml:"toHour"`
}

// Entry is one authored timeline slot. Entries are immutable read-only
// configuration; they are never created or mutated at runtime.
type Entry struct {
	ID        string       `yaml:"id"`
	At        int          `yaml:"at"` // videoOffsetSeconds or dayOffset, per timeline kind
	Kind      Kind         `yaml:"kind"`
	PersonaID string       `yaml:"persona"`
	Variants  []Variant    `yaml:"variants"`
	Jitter    *JitterWindow `yaml:"jitter"`
	Channel   Channel      `yaml:"channel"`
	Template  string       `yaml:"template"` // email/sms template key, side-channel entries only

	seq int // authored order, assigned by NewStore; tie-breaker for equal trigger keys
}

// Seq returns the entry's authored position within its script.
func (e Entry) Seq() int { return e.seq }

func (e Entry) String() string {
	return fmt.Sprintf("%s@%d", e.ID, e.At)
}
