package script

import "fmt"

// ValidationError reports malformed authored content: an unrecognized
// placeholder token, a bad trigger key, an empty variant list, ... It is fatal
// at load time; a script that does not validate must not be served.
type ValidationError struct {
	Script  string // script name, when known
	EntryID string // offending entry, when known
	Reason  string
}

func (err *ValidationError) Error() string {
	switch {
	case err.Script != "" && err.EntryID != "":
		return fmt.Sprintf("script %q: entry %q: %s", err.Script, err.EntryID, err.Reason)
	case err.EntryID != "":
		return fmt.Sprintf("entry %q: %s", err.EntryID, err.Reason)
	case err.Script != "":
		return fmt.Sprintf("script %q: %s", err.Script, err.Reason)
	}
	return err.Reason
}

func validationErrf(entryID, format string, args ...interface{}) error {
	return &ValidationError{EntryID: entryID, Reason: fmt.Sprintf(format, args...)}
}
