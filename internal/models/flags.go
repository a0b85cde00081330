package models

import "strings"

// System flags. Flag names are case-insensitive; system flags are stored in
// the canonical forms below, user keywords keep their first-seen casing.
const (
	FlagSeen     = `\Seen`
	FlagAnswered = `\Answered`
	FlagFlagged  = `\Flagged`
	FlagDeleted  = `\Deleted`
	FlagDraft    = `\Draft`
	FlagRecent   = `\Recent` // set on append only, never through a flag delta
)

var systemFlags = map[string]string{
	`\seen`:     FlagSeen,
	`\answered`: FlagAnswered,
	`\flagged`:  FlagFlagged,
	`\deleted`:  FlagDeleted,
	`\draft`:    FlagDraft,
	`\recent`:   FlagRecent,
}

// CanonicalFlag maps a flag name onto its canonical form.
func CanonicalFlag(name string) string {
	if canonical, ok := systemFlags[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}

// IsSystemFlag reports whether name is one of the system flags.
func IsSystemFlag(name string) bool {
	_, ok := systemFlags[strings.ToLower(name)]
	return ok
}
