package tunable

import "fmt"

// TunableTypeMismatchError reports an external value whose type does not match
// the default of the tunable. The tunable falls back to its default.
type TunableTypeMismatchError struct {
	Path string
	Want string
	Got  string
}

func (e *TunableTypeMismatchError) Error() string {
	return fmt.Sprintf("tunable %s: expected %s, got %s", e.Path, e.Want, e.Got)
}
