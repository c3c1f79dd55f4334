package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Marker is the only value a well-formed completion signal carries.
const Marker = 1

// ErrMalformedSignal is returned by Decode for payloads that are not a
// completion signal.
var ErrMalformedSignal = errors.New("malformed completion signal")

// CompletionSignal is sent exactly once by each walker when it stops.
type CompletionSignal struct {
	// WalkerID identifies the sender (1..N).
	WalkerID int `json:"walker_id" mapstructure:"walker_id"`

	// Marker is always 1.
	Marker int `json:"marker" mapstructure:"marker"`
}

// NewCompletionSignal builds the signal for walker id.
func NewCompletionSignal(id int) CompletionSignal {
	return CompletionSignal{WalkerID: id, Marker: Marker}
}

// Message is a raw inbound payload as handed over by a transport.
type Message struct {
	// Source describes where the message came from (remote address, queue key, ...).
	Source string

	Body []byte
}

// Encode returns the wire form of sig.
func Encode(sig CompletionSignal) ([]byte, error) {
	return json.Marshal(sig)
}

// Decode validates body against the completion-signal shape: a JSON object
// with exactly the walker_id and marker fields, marker equal to 1.
func Decode(body []byte) (CompletionSignal, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return CompletionSignal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if raw == nil {
		return CompletionSignal{}, fmt.Errorf("%w: empty payload", ErrMalformedSignal)
	}
	if _, ok := raw["walker_id"]; !ok {
		return CompletionSignal{}, fmt.Errorf("%w: missing walker_id", ErrMalformedSignal)
	}
	if _, ok := raw["marker"]; !ok {
		return CompletionSignal{}, fmt.Errorf("%w: missing marker", ErrMalformedSignal)
	}

	var sig CompletionSignal
	ms, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &sig,
	})
	if err != nil {
		return CompletionSignal{}, err
	}
	if err := ms.Decode(raw); err != nil {
		return CompletionSignal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	if sig.Marker != Marker {
		return CompletionSignal{}, fmt.Errorf("%w: marker %d", ErrMalformedSignal, sig.Marker)
	}
	return sig, nil
}

// Status is the coordinator's barrier state.
type Status int

const (
	StatusWaiting Status = iota
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusDone:
		return "DONE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// BarrierStatus is served on the controller's /status endpoint.
type BarrierStatus struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Expected  int    `json:"expected"`
	Completed int    `json:"completed"`
	Dropped   int    `json:"dropped"`
}
