package domain

import "fmt"

// NotFoundError is returned when an entity lookup by id fails.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports an experiment incompatible with a plugin's
// declared support. It is non-retryable and surfaced with the validator's
// message.
type ValidationError struct {
	Plugin  string
	Message string
}

func (e ValidationError) Error() string {
	if e.Plugin == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Plugin, e.Message)
}

// IntegrityError reports a repository-level referential violation, such as
// deleting a colony that still owns subjects.
type IntegrityError struct {
	Entity  EntityType
	ID      string
	Message string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
}
