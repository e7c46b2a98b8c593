package tool

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseFlag reads a boolean that round-tripped through provider metadata,
// where every value is a string. Anything unparseable is false.
func ParseFlag(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
