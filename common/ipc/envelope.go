package ipc

import (
	"encoding/json"
	"fmt"

	generaldata "github.com/mstarongithub/twm/general-data"
)

// Request is something a client asks the compositor to do
type Request interface {
	RequestName() string
}

// Event is something the compositor tells a client
type Event interface {
	EventName() string
}

// Sender queues events for a client. Implementations must not block
type Sender interface {
	Send(client generaldata.ClientID, ev Event)
}

// RequestEnvelope is how a request travels on the wire, one per line
type RequestEnvelope struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

// EventEnvelope is how an event travels on the wire, one per line
type EventEnvelope struct {
	Event string `json:"event"`
	Args  Event  `json:"args,omitempty"`
}

// ProtocolError is a client mistake that gets the client disconnected
type ProtocolError struct {
	Object  uint32 `json:"object"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeInvalidObject = iota + 1
	ErrCodeInvalidMethod
	ErrCodeRole
	ErrCodeInvalidArgs
)

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on object %d (code %d): %s", e.Object, e.Code, e.Message)
}

func (e *ProtocolError) EventName() string { return "error" }

func NewProtocolError(object uint32, code int, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Object:  object,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

var requestTypes = map[string]func() Request{}

func registerRequest(factory func() Request) {
	requestTypes[factory().RequestName()] = factory
}

// DecodeRequest turns an envelope into its typed request
func DecodeRequest(env RequestEnvelope) (Request, error) {
	factory, ok := requestTypes[env.Op]
	if !ok {
		return nil, NewProtocolError(0, ErrCodeInvalidMethod, "unknown request %q", env.Op)
	}
	req := factory()
	if len(env.Args) > 0 {
		if err := json.Unmarshal(env.Args, req); err != nil {
			return nil, NewProtocolError(0, ErrCodeInvalidArgs, "bad arguments for %s: %s", env.Op, err)
		}
	}
	// Factories hand out pointers so Unmarshal can fill them, callers switch on values
	return deref(req), nil
}

// EncodeRequest wraps a request for the wire. Used by clients and tests
func EncodeRequest(req Request) ([]byte, error) {
	args, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(RequestEnvelope{Op: req.RequestName(), Args: args})
}

// EncodeEvent wraps an event for the wire
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(EventEnvelope{Event: ev.EventName(), Args: ev})
}
