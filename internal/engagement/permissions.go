package engagement

// Owned is any content item with a single recorded author.
type Owned interface {
	OwnerID() string
}

// CanModify is the author-or-read-only capability check: only the recorded
// author may update or delete an item. Reads never consult it.
func CanModify(caller string, item Owned) bool {
	return caller != "" && caller == item.OwnerID()
}

// authorize runs CanModify for a located object and maps a refusal to the
// right error.
func authorize(caller string, item Owned) error {
	if caller == "" {
		return ErrUnauthenticated
	}
	if !CanModify(caller, item) {
		return ErrForbidden
	}
	return nil
}
