package domain

// Placeholders shown when a transaction references a book or member that
// no longer exists.
const (
	UnknownBook   = "Unknown Book"
	UnknownAuthor = "Unknown Author"
	UnknownMember = "Unknown Member"
	UnknownEmail  = "Unknown Email"
)

// OrUnknown returns s, or placeholder when s is empty.
func OrUnknown(s, placeholder string) string {
	if s == "" {
		return placeholder
	}
	return s
}
