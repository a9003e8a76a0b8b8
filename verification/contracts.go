package verification

import "context"

// MessageType identifies one of the six wire message kinds this core
// exchanges over the transport.
type MessageType string

const (
	MessageStart  MessageType = "m.key.verification.start"
	MessageAccept MessageType = "m.key.verification.accept"
	MessageKey    MessageType = "m.key.verification.key"
	MessageMac    MessageType = "m.key.verification.mac"
	MessageCancel MessageType = "m.key.verification.cancel"
	MessageDone   MessageType = "m.key.verification.done"
)

// Transport is the external collaborator the core sends outbound
// verification traffic through. Implementations might be a websocket
// adapter, a homeserver to-device API, or an in-process loopback for
// tests — the core only ever calls this contract.
type Transport interface {
	Send(ctx context.Context, transactionID string, msgType MessageType, payload interface{}) error
	CancelTransaction(ctx context.Context, transactionID, otherUserID, otherDeviceID string, code CancelCode, reason string) error
	Done(ctx context.Context, transactionID string) error
}

// DeviceInfo is what the identity store knows about one of the peer
// user's devices.
type DeviceInfo struct {
	Ed25519Fingerprint string
}

// CrossSigningInfo describes a user's cross-signing master key and
// whether the local device currently trusts it.
type CrossSigningInfo struct {
	MasterPublicKey string
	Trusted         bool
}

// IdentityStore is the read-only (from the core's perspective) catalog
// of known devices and cross-signing state. The core never persists
// anything itself — storage.memory provides a non-persistent
// implementation for tests and demos.
type IdentityStore interface {
	DevicesOf(ctx context.Context, userID string) (map[string]DeviceInfo, error)
	CrossSigningOf(ctx context.Context, userID string) (*CrossSigningInfo, error)
	MyCrossSigning(ctx context.Context) (*CrossSigningInfo, error)
	MarkDeviceVerified(ctx context.Context, userID, deviceID string) error
}

// CrossSigningService performs the fire-and-forget attestation
// requests MAC verification triggers: elevating device trust to user
// trust. Failures are logged, never reflected back into transaction
// state.
type CrossSigningService interface {
	TrustUser(ctx context.Context, userID string, callback func(error))
	SignDevice(ctx context.Context, deviceID string, callback func(error))
}
