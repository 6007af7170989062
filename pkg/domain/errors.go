package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the mutation layer and the stores.
type ErrorKind string

// Error kinds exposed to callers.
const (
	// KindNotFound reports a referenced entity that does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindDuplicateKey reports a uniqueness constraint that would be violated.
	KindDuplicateKey ErrorKind = "duplicate_key"
	// KindInvalidArgument reports a value constraint violation.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindDependencyExists reports a delete blocked by dependent rows.
	KindDependencyExists ErrorKind = "dependency_exists"
	// KindIntegrityViolation reports a mutation that would leave the entity graph invalid.
	KindIntegrityViolation ErrorKind = "integrity_violation"
	// KindInternal covers everything else (store failures, cancelled contexts).
	KindInternal ErrorKind = "internal"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrDuplicateKey       = &Error{Kind: KindDuplicateKey}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrDependencyExists   = &Error{Kind: KindDependencyExists}
	ErrIntegrityViolation = &Error{Kind: KindIntegrityViolation}
)

// Error is the typed failure returned by domain operations. Entity and Key
// identify the record the failure is about; Dependent names the blocking
// entity type for KindDependencyExists.
type Error struct {
	Kind      ErrorKind
	Entity    EntityType
	Key       string
	Dependent EntityType
	Message   string
}

func (e *Error) Error() string {
	var subject string
	switch {
	case e.Entity != "" && e.Key != "":
		subject = fmt.Sprintf("%s %q", e.Entity, e.Key)
	case e.Entity != "":
		subject = string(e.Entity)
	}
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e)
	}
	if subject == "" {
		return msg
	}
	return subject + ": " + msg
}

func defaultMessage(e *Error) string {
	switch e.Kind {
	case KindNotFound:
		return "not found"
	case KindDuplicateKey:
		return "already exists"
	case KindDependencyExists:
		if e.Dependent != "" {
			return "referenced by existing " + string(e.Dependent) + " records"
		}
		return "referenced by existing records"
	case KindIntegrityViolation:
		return "integrity violation"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return string(e.Kind)
	}
}

// Is matches another *Error of the same kind. An empty Entity on the target
// matches any entity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

// NotFound constructs a KindNotFound error.
func NotFound(entity EntityType, key string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Key: key}
}

// DuplicateKey constructs a KindDuplicateKey error.
func DuplicateKey(entity EntityType, key string) error {
	return &Error{Kind: KindDuplicateKey, Entity: entity, Key: key}
}

// InvalidArgument constructs a KindInvalidArgument error.
func InvalidArgument(entity EntityType, key, format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Entity: entity, Key: key, Message: fmt.Sprintf(format, args...)}
}

// DependencyExists constructs a KindDependencyExists error naming the blocking dependents.
func DependencyExists(entity EntityType, key string, dependent EntityType) error {
	return &Error{Kind: KindDependencyExists, Entity: entity, Key: key, Dependent: dependent}
}

// IntegrityViolation constructs a KindIntegrityViolation error.
func IntegrityViolation(entity EntityType, key, format string, args ...any) error {
	return &Error{Kind: KindIntegrityViolation, Entity: entity, Key: key, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Blocking rule violations are integrity violations;
// unclassified errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	var rerr RuleViolationError
	if errors.As(err, &rerr) {
		return KindIntegrityViolation
	}
	return KindInternal
}
