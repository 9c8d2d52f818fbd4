package panel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/waystation/wayside/internal/way"
)

// Message types exchanged with the panel.
const (
	TypeCurrent      = "waystation:current"
	TypeRefresh      = "waystation:refresh"
	TypeError        = "waystation:error"
	TypeUpdate       = "waystation:update"
	TypeOpenDocument = "waystation:openDocument"
)

// Message is the wire shape of every panel message. Mark carries a
// JSON-encoded mark as a string.
type Message struct {
	Type       string          `json:"type"`
	Waystation *way.Waystation `json:"waystation,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
	Mark       string          `json:"mark,omitempty"`
}

// Current builds the initial-state message.
func Current(ws way.Waystation) Message {
	return Message{Type: TypeCurrent, Waystation: &ws}
}

// Refresh builds the post-mutation message.
func Refresh(ws way.Waystation) Message {
	return Message{Type: TypeRefresh, Waystation: &ws}
}

// Failure builds the validation-failure message.
func Failure(payload json.RawMessage) Message {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Message{Type: TypeError, Error: payload}
}

// OpenDocument builds the panel -> host navigation message.
func OpenDocument(mark way.Mark) (Message, error) {
	data, err := json.Marshal(mark)
	if err != nil {
		return Message{}, fmt.Errorf("panel: encode mark: %w", err)
	}
	return Message{Type: TypeOpenDocument, Mark: string(data)}, nil
}

// Update builds the panel -> host edit message.
func Update(ws way.Waystation) Message {
	return Message{Type: TypeUpdate, Waystation: &ws}
}

// Inbound is a decoded panel -> host message.
type Inbound interface {
	inbound()
}

// UpdateRequest asks the host to validate and store an edited waystation.
type UpdateRequest struct {
	Waystation way.Waystation
}

// OpenDocumentRequest asks the host to navigate to a mark.
type OpenDocumentRequest struct {
	Mark way.Mark
}

func (UpdateRequest) inbound()       {}
func (OpenDocumentRequest) inbound() {}

// ErrUnknownType is returned for inbound messages with an unrecognised type.
var ErrUnknownType = errors.New("panel: unknown message type")

// DecodeInbound parses and validates a message received from the panel.
func DecodeInbound(data []byte) (Inbound, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("panel: decode message: %w", err)
	}
	switch msg.Type {
	case TypeUpdate:
		if msg.Waystation == nil {
			return nil, fmt.Errorf("panel: %s without waystation", msg.Type)
		}
		return UpdateRequest{Waystation: *msg.Waystation}, nil
	case TypeOpenDocument:
		if msg.Mark == "" {
			return nil, fmt.Errorf("panel: %s without mark", msg.Type)
		}
		var mark way.Mark
		if err := json.Unmarshal([]byte(msg.Mark), &mark); err != nil {
			return nil, fmt.Errorf("panel: decode mark: %w", err)
		}
		return OpenDocumentRequest{Mark: mark}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}
