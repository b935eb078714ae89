package script

import (
	"fmt"
	"regexp"
)

// Placeholder tokens recognized in message variants. Unknown tokens in authored
// content are a load-time validation failure, never a runtime one: a template
// that validates can always be rendered from a complete context.
const (
	TokenFirstName       = "firstName"
	TokenDayNumber       = "dayNumber"
	TokenLessonsLeft     = "lessonsLeft"
	TokenModuleNumber    = "moduleNumber"
	TokenPersonaName     = "personaName"
	TokenPersonaLocation = "personaLocation"
	TokenProgressPercent = "progressPercent"
)

var knownTokens = map[string]bool{
	TokenFirstName:       true,
	TokenDayNumber:       true,
	TokenLessonsLeft:     true,
	TokenModuleNumber:    true,
	TokenPersonaName:     true,
	TokenPersonaLocation: true,
	TokenProgressPercent: true,
}

var tokenRegex = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// KnownToken reports whether name is a recognized placeholder token.
func KnownToken(name string) bool {
	return knownTokens[name]
}

// Tokens returns the placeholder token names referenced by text, in order of
// appearance (duplicates included).
func Tokens(text string) []string {
	matches := tokenRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Expand substitutes every {{token}} in text with lookup(token). It fails on
// the first token lookup reports as missing so that a literal "{{firstName}}"
// can never leak to an end user.
func Expand(text string, lookup func(name string) (string, bool)) (string, error) {
	var missing string
	out := tokenRegex.ReplaceAllStringFunc(text, func(m string) string {
		name := tokenRegex.FindStringSubmatch(m)[1]
		val, ok := lookup(name)
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return val
	})
	if missing != "" {
		return "", fmt.Errorf("unresolved token {{%s}}", missing)
	}
	return out, nil
}
