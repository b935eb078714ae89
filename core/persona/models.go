package persona

// Archetype is the closed set of behavior categories a persona can belong to.
// The archetype drives the persona's apparent progress curve and which message
// pools it is allowed to speak from.
type Archetype string

const (
	ArchetypeLeader     Archetype = "leader"     // always ahead, posts wins
	ArchetypeStruggler  Archetype = "struggler"  // falls behind, catches up late
	ArchetypeQuestioner Archetype = "questioner" // asks what the viewer is wondering
	ArchetypeBuyer      Archetype = "buyer"      // converts, triggers enrollment pings
)

var AllArchetypes = []Archetype{ArchetypeLeader, ArchetypeStruggler, ArchetypeQuestioner, ArchetypeBuyer}

func (a Archetype) Valid() bool {
	for _, known := range AllArchetypes {
		if a == known {
			return true
		}
	}
	return false
}

// Persona is a fabricated participant identity. Personas are authored content:
// loaded once at startup and never mutated by runtime logic.
type Persona struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Location  string    `yaml:"location"`
	Backstory string    `yaml:"backstory"`
	Archetype Archetype `yaml:"archetype"`
	Avatar    string    `yaml:"avatar"`
}
