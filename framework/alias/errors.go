package alias

import "errors"

var (
	// ErrAliasConflict is returned when an alias registration would silently
	// re-point an existing alias or close a cycle.
	ErrAliasConflict = errors.New("alias conflict")

	// ErrCircularAlias is returned alongside ErrAliasConflict when the alias
	// would resolve back to itself.
	ErrCircularAlias = errors.New("circular alias")

	// ErrAliasNotFound is returned by RemoveAlias for an unknown alias.
	ErrAliasNotFound = errors.New("alias not found")

	// ErrEmptyName is returned when a name or alias is empty.
	ErrEmptyName = errors.New("name and alias must not be empty")
)
