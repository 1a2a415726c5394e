package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected intent. It is sent to the client verbatim.
type Kind string

const (
	KindInvalidName              Kind = "InvalidName"
	KindNameTaken                Kind = "NameTaken"
	KindAlreadyJoined            Kind = "AlreadyJoined"
	KindUnauthenticated          Kind = "Unauthenticated"
	KindEmptyMessage             Kind = "EmptyMessage"
	KindAttachmentTooLarge       Kind = "AttachmentTooLarge"
	KindAttachmentTypeNotAllowed Kind = "AttachmentTypeNotAllowed"
	KindInvalidReaction          Kind = "InvalidReaction"
	KindUnknownRoom              Kind = "UnknownRoom"
	KindUnknownMessage           Kind = "UnknownMessage"
	KindInvalidPayload           Kind = "InvalidPayload"
	KindRateLimited              Kind = "RateLimited"
	KindInternal                 Kind = "Internal"
)

func (k Kind) Error() string { return string(k) }

// Error is a local validation failure. It never crosses the router as a panic;
// it is turned into an "error" event for the originating connection.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is lets errors.Is(err, domain.KindNameTaken) match.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, or KindInternal for anything else.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return KindInternal
}
