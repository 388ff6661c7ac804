package poll

import (
	"fmt"
	"maps"
	"slices"
)

const (
	// ImplementationV1 accepts registrations until the poll closes.
	ImplementationV1 = "v1"
	// ImplementationV1Strict stops registrations once voting opens.
	ImplementationV1Strict = "v1-strict"

	DefaultImplementation = ImplementationV1
)

// Implementation is the rule set a poll is created with. Changing the node's
// implementation does not affect existing polls.
type Implementation struct {
	Name string
	// LateRegistration allows adding members while the poll is open.
	LateRegistration bool
}

var implementations = map[string]Implementation{
	ImplementationV1:       {Name: ImplementationV1, LateRegistration: true},
	ImplementationV1Strict: {Name: ImplementationV1Strict},
}

// LookupImplementation returns the named rule set.
func LookupImplementation(name string) (Implementation, error) {
	impl, ok := implementations[name]
	if !ok {
		return Implementation{}, fmt.Errorf("%w: unknown poll implementation %q", ErrInvalidConfig, name)
	}
	return impl, nil
}

// Implementations lists the known rule set names.
func Implementations() []string {
	return slices.Sorted(maps.Keys(implementations))
}
