package verification

import (
	"context"
	"testing"

	"github.com/sas-verify/core/internal/logger"
)

// recordingTransport captures every outbound send instead of delivering
// it anywhere; tests pull the last message off it and feed it to the
// peer's transaction by hand, keeping each scenario's wiring explicit.
type recordingTransport struct {
	sent       []sentMessage
	cancelled  []cancelCall
	doneCalled []string
	failSend   bool
}

type sentMessage struct {
	Type    MessageType
	Payload interface{}
}

type cancelCall struct {
	TransactionID, OtherUserID, OtherDeviceID string
	Code                                      CancelCode
}

func (r *recordingTransport) Send(_ context.Context, _ string, msgType MessageType, payload interface{}) error {
	if r.failSend {
		return context.Canceled
	}
	r.sent = append(r.sent, sentMessage{Type: msgType, Payload: payload})
	return nil
}

func (r *recordingTransport) CancelTransaction(_ context.Context, transactionID, otherUserID, otherDeviceID string, code CancelCode, _ string) error {
	r.cancelled = append(r.cancelled, cancelCall{transactionID, otherUserID, otherDeviceID, code})
	return nil
}

func (r *recordingTransport) Done(_ context.Context, transactionID string) error {
	r.doneCalled = append(r.doneCalled, transactionID)
	return nil
}

func (r *recordingTransport) last() sentMessage {
	return r.sent[len(r.sent)-1]
}

// fakeIdentityStore is a minimal IdentityStore for tests that don't
// need storage/memory's full bookkeeping.
type fakeIdentityStore struct {
	devices        map[string]map[string]DeviceInfo
	crossSigning   map[string]CrossSigningInfo
	myCrossSigning *CrossSigningInfo
	verified       map[string]map[string]bool
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		devices:      make(map[string]map[string]DeviceInfo),
		crossSigning: make(map[string]CrossSigningInfo),
		verified:     make(map[string]map[string]bool),
	}
}

func (f *fakeIdentityStore) putDevice(userID, deviceID string, info DeviceInfo) {
	if f.devices[userID] == nil {
		f.devices[userID] = make(map[string]DeviceInfo)
	}
	f.devices[userID][deviceID] = info
}

func (f *fakeIdentityStore) DevicesOf(_ context.Context, userID string) (map[string]DeviceInfo, error) {
	out := make(map[string]DeviceInfo, len(f.devices[userID]))
	for k, v := range f.devices[userID] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeIdentityStore) CrossSigningOf(_ context.Context, userID string) (*CrossSigningInfo, error) {
	info, ok := f.crossSigning[userID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

func (f *fakeIdentityStore) MyCrossSigning(_ context.Context) (*CrossSigningInfo, error) {
	return f.myCrossSigning, nil
}

func (f *fakeIdentityStore) MarkDeviceVerified(_ context.Context, userID, deviceID string) error {
	if f.verified[userID] == nil {
		f.verified[userID] = make(map[string]bool)
	}
	f.verified[userID][deviceID] = true
	return nil
}

func (f *fakeIdentityStore) isVerified(userID, deviceID string) bool {
	return f.verified[userID][deviceID]
}

// fakeCrossSigning records fire-and-forget attestation requests.
type fakeCrossSigning struct {
	trustedUsers  []string
	signedDevices []string
}

func (f *fakeCrossSigning) TrustUser(_ context.Context, userID string, callback func(error)) {
	f.trustedUsers = append(f.trustedUsers, userID)
	if callback != nil {
		callback(nil)
	}
}

func (f *fakeCrossSigning) SignDevice(_ context.Context, deviceID string, callback func(error)) {
	f.signedDevices = append(f.signedDevices, deviceID)
	if callback != nil {
		callback(nil)
	}
}

// capturingListener records every event it observes, in order.
type capturingListener struct {
	events []Event
}

func (c *capturingListener) OnStateChanged(evt Event) {
	c.events = append(c.events, evt)
}

func testLogger() logger.Logger {
	return logger.NewDefaultLogger()
}

// pair bundles two sides of a fresh, not-yet-started verification for a
// test: alice is the outgoing (initiator) transaction, bob the incoming
// (responder). Each side's Deps use independent fakes so assertions on
// one side's collaborators never leak into the other's.
type pair struct {
	aliceTx          *Transaction
	bobTx            *Transaction
	aliceTransport   *recordingTransport
	bobTransport     *recordingTransport
	aliceIdentity    *fakeIdentityStore
	bobIdentity      *fakeIdentityStore
	aliceCrossSign   *fakeCrossSigning
	bobCrossSign     *fakeCrossSigning
	aliceListener    *capturingListener
	bobListener      *capturingListener
	aliceFingerprint string
	bobFingerprint   string
}

const (
	txID        = "T1"
	aliceUser   = "@a:x"
	aliceDevice = "DA"
	bobUser     = "@b:x"
	bobDevice   = "DB"
	aliceFPSeed = "alice-ed25519-fingerprint"
	bobFPSeed   = "bob-ed25519-fingerprint"
)

func newPair(t *testing.T, allowEmoji bool) *pair {
	t.Helper()
	caps := DefaultCapabilities(allowEmoji)

	p := &pair{
		aliceTransport:   &recordingTransport{},
		bobTransport:     &recordingTransport{},
		aliceIdentity:    newFakeIdentityStore(),
		bobIdentity:      newFakeIdentityStore(),
		aliceCrossSign:   &fakeCrossSigning{},
		bobCrossSign:     &fakeCrossSigning{},
		aliceListener:    &capturingListener{},
		bobListener:      &capturingListener{},
		aliceFingerprint: aliceFPSeed,
		bobFingerprint:   bobFPSeed,
	}

	p.aliceIdentity.putDevice(bobUser, bobDevice, DeviceInfo{Ed25519Fingerprint: p.bobFingerprint})
	p.bobIdentity.putDevice(aliceUser, aliceDevice, DeviceInfo{Ed25519Fingerprint: p.aliceFingerprint})

	p.aliceTx = NewOutgoing(txID, aliceUser, aliceDevice, bobUser, caps, p.aliceFingerprint, Deps{
		Transport:     p.aliceTransport,
		IdentityStore: p.aliceIdentity,
		CrossSigning:  p.aliceCrossSign,
		Listener:      p.aliceListener,
		Logger:        testLogger(),
	})
	p.bobTx = NewIncoming(txID, bobUser, bobDevice, caps, p.bobFingerprint, Deps{
		Transport:     p.bobTransport,
		IdentityStore: p.bobIdentity,
		CrossSigning:  p.bobCrossSign,
		Listener:      p.bobListener,
		Logger:        testLogger(),
	})
	return p
}

// runHappyPathUpToShortCode drives Start -> Accept -> Key -> Key by
// hand-feeding each side's sent message to the other, stopping once
// both reach ShortCodeReady. It returns the StartMessage and
// AcceptMessage so scenario tests can tamper with them before replay.
func (p *pair) runHappyPathUpToShortCode(t *testing.T) (StartMessage, AcceptMessage) {
	t.Helper()
	ctx := context.Background()

	if err := p.aliceTx.Start(ctx); err != nil {
		t.Fatalf("alice start: %v", err)
	}
	startMsg := p.aliceTransport.last().Payload.(StartMessage)

	if err := p.bobTx.OnVerificationStart(context.Background(), Sender{UserID: aliceUser, DeviceID: aliceDevice}, startMsg); err != nil {
		t.Fatalf("bob on start: %v", err)
	}
	if err := p.bobTx.Accept(ctx); err != nil {
		t.Fatalf("bob accept: %v", err)
	}
	acceptMsg := p.bobTransport.last().Payload.(AcceptMessage)

	if err := p.aliceTx.OnVerificationAccept(ctx, Sender{UserID: bobUser, DeviceID: bobDevice}, acceptMsg); err != nil {
		t.Fatalf("alice on accept: %v", err)
	}
	aliceKeyMsg := p.aliceTransport.last().Payload.(KeyMessage)

	if err := p.bobTx.OnKeyVerificationKey(ctx, aliceKeyMsg); err != nil {
		t.Fatalf("bob on key: %v", err)
	}
	bobKeyMsg := p.bobTransport.last().Payload.(KeyMessage)

	if err := p.aliceTx.OnKeyVerificationKey(ctx, bobKeyMsg); err != nil {
		t.Fatalf("alice on key: %v", err)
	}

	return startMsg, acceptMsg
}
