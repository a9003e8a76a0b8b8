package verification

import (
	"context"
	"encoding/json"
	"fmt"
)

// InboundEnvelope is the transport-agnostic shape Dispatch consumes.
// Concrete transports (e.g. transport/websocket) decode their own wire
// framing into this before handing it to a Manager.
type InboundEnvelope struct {
	Type          MessageType
	TransactionID string
	Sender        Sender
	Payload       json.RawMessage
}

// Dispatch routes one inbound envelope to the right transaction
// method, creating a new incoming transaction via makeIncoming on a
// Start for an unknown id. It is the single funnel every inbound
// verification message passes through, regardless of transport.
func (m *Manager) Dispatch(ctx context.Context, env InboundEnvelope, makeIncoming func(transactionID string) *Transaction) error {
	if env.Type == MessageStart {
		var msg StartMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("verification: decode start: %w", err)
		}
		t, ok := m.Get(env.TransactionID)
		if !ok {
			t = makeIncoming(env.TransactionID)
			if err := m.Put(t); err != nil {
				return err
			}
		}
		return t.OnVerificationStart(ctx, env.Sender, msg)
	}

	t, ok := m.Get(env.TransactionID)
	if !ok {
		return ErrUnknownTransaction
	}

	switch env.Type {
	case MessageAccept:
		var msg AcceptMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			_ = t.Cancel(ctx, CancelInvalidMessage)
			return ErrInvalidMessage
		}
		return t.OnVerificationAccept(ctx, env.Sender, msg)
	case MessageKey:
		var msg KeyMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			_ = t.Cancel(ctx, CancelInvalidMessage)
			return ErrInvalidMessage
		}
		return t.OnKeyVerificationKey(ctx, msg)
	case MessageMac:
		var msg MacMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			_ = t.Cancel(ctx, CancelInvalidMessage)
			return ErrInvalidMessage
		}
		return t.OnKeyVerificationMac(ctx, msg)
	case MessageCancel:
		var msg CancelMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			_ = t.Cancel(ctx, CancelInvalidMessage)
			return ErrInvalidMessage
		}
		t.OnCancel(msg)
		return nil
	case MessageDone:
		// Nothing to do: Done is an informational courtesy the peer
		// sends after it independently reaches Verified.
		return nil
	default:
		// Unknown message types are ignored for forward compatibility.
		return nil
	}
}
