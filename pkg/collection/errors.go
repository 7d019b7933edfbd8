package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned when a name fails the record name pattern
	ErrInvalidName = errors.New("invalid name")
	// ErrConflict is returned when another record already uses the name
	ErrConflict = errors.New("name already in use")
	// ErrProtected is returned when a delete guard refuses the removal
	ErrProtected = errors.New("record is protected")
)

// Error carries a sentinel kind plus a message naming the entity involved
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound for entity/id
func NotFound(entity, id string) error {
	return newError(ErrNotFound, "%s of id=%s not found", entity, id)
}

// Protected builds an ErrProtected for entity/id
func Protected(entity, id string) error {
	return newError(ErrProtected, "%s of id=%s cannot be deleted", entity, id)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidName):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrProtected):
		return "protected"
	default:
		return "error"
	}
}
