// Package tunable exposes component attributes under deterministic key paths
// so that dashboards can read and change them while the program runs.
package tunable

import (
	"strings"
)

// Store is the external key/value collaborator behind tunables. Get must not
// block on I/O; implementations that talk to a remote service keep a local
// mirror.
type Store interface {
	// Get returns the value stored at path, if any.
	Get(path string) (any, bool)

	// Set stores value at path.
	Set(path string, value any)
}

// Path builds the key of an attribute. Empty parts are skipped, so
// Path("", "robot", "mode") is "/robot/mode" and
// Path("components", "shooter", "state", "current_state") is
// "/components/shooter/state/current_state".
func Path(namespace, owner string, parts ...string) string {
	elems := make([]string, 0, len(parts)+2)

	for _, p := range append([]string{namespace, owner}, parts...) {
		p = strings.Trim(p, "/")
		if p != "" {
			elems = append(elems, p)
		}
	}

	return "/" + strings.Join(elems, "/")
}
