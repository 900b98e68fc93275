package crdt

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/cristata/pkg/apierr"
)

// Setter names the typed field setter the collaboration server applies
type Setter string

const (
	SetBoolean   Setter = "boolean"
	SetDate      Setter = "date"
	SetFloat     Setter = "float"
	SetInteger   Setter = "integer"
	SetString    Setter = "string"
	SetReference Setter = "reference"
	SetJSON      Setter = "json"
	// SetClear empties a field whatever its type. It carries no value.
	SetClear     Setter = "clear"
)

// FieldOp sets one field of a collaborative document
type FieldOp struct {
	Path   string      `json:"path" cbor:"path"`
	Setter Setter      `json:"setter" cbor:"setter"`
	Value  interface{} `json:"value" cbor:"value"`
}

// Change is a batch of field operations against one collaborative document
type Change struct {
	Document string    `json:"document" cbor:"document"`
	Fields   []FieldOp `json:"fields,omitempty" cbor:"fields,omitempty"`
	// Delete drops the collaborative document entirely.
	Delete bool `json:"delete,omitempty" cbor:"delete,omitempty"`
}

// DocName addresses a collaborative document as tenant.collection.id
func DocName(tenant, collection, id string) string {
	return fmt.Sprintf("%s.%s.%s", tenant, collection, id)
}

// Status is the outcome of a mirror call
type Status int

const (
	StatusOK Status = iota
	StatusTimedOut
	StatusTransportError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timed_out"
	case StatusTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result of applying a change
type Result struct {
	Status Status
	Err    error
}

// OK is the successful result
func OK() Result { return Result{Status: StatusOK} }

// TimedOut wraps a deadline failure
func TimedOut(err error) Result { return Result{Status: StatusTimedOut, Err: err} }

// TransportError wraps a connection or protocol failure
func TransportError(err error) Result { return Result{Status: StatusTransportError, Err: err} }

// Error converts a failed result into an upstream error. It returns nil for
// StatusOK.
func (r Result) Error() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusTimedOut:
		return apierr.Upstream("collaborative document sync timed out", r.Err)
	default:
		return apierr.Upstream("collaborative document sync failed", r.Err)
	}
}

// ErrClosed is returned after the client has been closed
var ErrClosed = errors.New("crdt: client closed")

// Mirror applies changes to the collaborative document store
type Mirror interface {
	Apply(ctx context.Context, change Change) Result
}

// NoopMirror accepts every change. It is used when no collaboration server
// is configured and in tests.
type NoopMirror struct{}

// Apply implements Mirror
func (NoopMirror) Apply(ctx context.Context, change Change) Result { return OK() }
