package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a time-ordered identifier with a short type prefix, e.g. "sale_0190...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}

// Signature returns 32 random hex characters.
func Signature() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
