// Package enums holds the string enums persisted in Postgres enum columns and
// carried on the wire. Values are stored exactly as declared here.
package enums

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownValue is wrapped by every Parse function.
var ErrUnknownValue = errors.New("unknown enum value")

func parse[T ~string](kind string, known []T, raw string) (T, error) {
	if v := T(strings.TrimSpace(raw)); slices.Contains(known, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q", ErrUnknownValue, kind, raw)
}
