package verification

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sas-verify/core/internal/logger"
	"github.com/sas-verify/core/internal/metrics"
	"github.com/sas-verify/core/sas"
	"github.com/sas-verify/core/shortcode"
)

const shortCodeInfoPrefix = "MATRIX_KEY_VERIFICATION_SAS"

// Transaction is one SAS verification between this device and one
// peer device. It is single-owner: only the methods below mutate it.
// Every exported method holds the transaction's own mutex for its whole
// run, so calls on one Transaction are serialized whether or not they
// come through a Manager.
type Transaction struct {
	mu sync.Mutex

	id            string
	myUserID      string
	myDeviceID    string
	otherUserID   string
	otherDeviceID string
	isIncoming    bool

	state           State
	cancelledReason CancelCode

	capabilities            Capabilities
	pendingPeerCapabilities Capabilities
	accepted                *Negotiated

	engine         *sas.Engine
	startCanonical []byte // canonical bytes of the Start content both sides observed
	peerPublicKey  string
	shortCodeBytes []byte

	myMAC    *MACPayload
	theirMAC *MACPayload

	myFingerprint string

	transport     Transport
	identityStore IdentityStore
	crossSigning  CrossSigningService
	listener      Listener
	log           logger.Logger
}

// Deps bundles a transaction's external collaborators.
type Deps struct {
	Transport     Transport
	IdentityStore IdentityStore
	CrossSigning  CrossSigningService
	Listener      Listener
	Logger        logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Listener == nil {
		d.Listener = NoopListener{}
	}
	if d.Logger == nil {
		d.Logger = logger.GetDefaultLogger()
	}
	return d
}

// NewTransactionID generates a fresh transaction id for an outgoing
// verification.
func NewTransactionID() string {
	return uuid.New().String()
}

// NewOutgoing creates a transaction this device will start.
func NewOutgoing(id, myUserID, myDeviceID, otherUserID string, caps Capabilities, myFingerprint string, deps Deps) *Transaction {
	deps = deps.withDefaults()
	return &Transaction{
		id:            id,
		myUserID:      myUserID,
		myDeviceID:    myDeviceID,
		otherUserID:   otherUserID,
		isIncoming:    false,
		state:         StateNone,
		capabilities:  caps,
		myFingerprint: myFingerprint,
		transport:     deps.Transport,
		identityStore: deps.IdentityStore,
		crossSigning:  deps.CrossSigning,
		listener:      deps.Listener,
		log:           deps.Logger,
	}
}

// NewIncoming creates a transaction that will respond to a peer Start.
func NewIncoming(id, myUserID, myDeviceID string, caps Capabilities, myFingerprint string, deps Deps) *Transaction {
	deps = deps.withDefaults()
	return &Transaction{
		id:            id,
		myUserID:      myUserID,
		myDeviceID:    myDeviceID,
		isIncoming:    true,
		state:         StateNone,
		capabilities:  caps,
		myFingerprint: myFingerprint,
		transport:     deps.Transport,
		identityStore: deps.IdentityStore,
		crossSigning:  deps.CrossSigning,
		listener:      deps.Listener,
		log:           deps.Logger,
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() string { return t.id }

// IsIncoming reports whether this transaction is responding to a peer
// Start (true) or was started locally (false).
func (t *Transaction) IsIncoming() bool { return t.isIncoming }

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CancelledReason returns the terminal cancel code, meaningful only
// once State() is Cancelled or OnCancelled.
func (t *Transaction) CancelledReason() CancelCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelledReason
}

// OtherDeviceID returns the peer device id, known from Accepted
// (outgoing) or SendingAccept (incoming) onward.
func (t *Transaction) OtherDeviceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.otherDeviceID
}

// ShortCode returns the derived decimal/emoji representations, valid
// from ShortCodeReady onward.
func (t *Transaction) ShortCode() (decimal [3]int, emoji [7]int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shortCodeBytes == nil {
		return decimal, emoji, false
	}
	d, dok := shortcode.Decimal(t.shortCodeBytes)
	e, eok := shortcode.Emoji(t.shortCodeBytes)
	return d, e, dok && eok
}

func (t *Transaction) setState(s State) {
	t.state = s
	notify(t.listener, Event{TransactionID: t.id, State: s, CancelledReason: t.cancelledReason}, t.log)
}

func canonicalStart(msg StartMessage) []byte {
	// A simplified stand-in for full canonical JSON: Go's struct-field
	// marshal order is fixed and identical on both sides, which is all
	// this commitment construction needs — byte-identical agreement
	// between the two devices that both observed the same Start.
	b, _ := json.Marshal(msg)
	return b
}

func computeCommitment(startCanonical []byte, pubKeyB64 string) string {
	h := sha256.New()
	h.Write(startCanonical)
	h.Write([]byte(pubKeyB64))
	return base64.RawStdEncoding.EncodeToString(h.Sum(nil))
}

// releaseEngine destroys this transaction's ephemeral key material. It
// is safe to call even if the engine was never created or already
// released.
func (t *Transaction) releaseEngine() {
	if t.engine != nil {
		t.engine.Release()
	}
}

// cancelLocked performs the shared cancel logic; caller must hold mu.
// It is idempotent: a transaction already in a terminal state keeps
// its original cancelledReason.
func (t *Transaction) cancelLocked(ctx context.Context, code CancelCode) error {
	if t.state.Terminal() {
		return nil
	}
	t.cancelledReason = code
	t.releaseEngine()
	t.setState(StateCancelled)
	metrics.TransactionsCancelled.WithLabelValues(string(code)).Inc()
	if t.transport != nil {
		_ = t.transport.CancelTransaction(ctx, t.id, t.otherUserID, t.otherDeviceID, code, string(code))
	}
	return logger.NewVerificationError(string(code), "verification transaction cancelled", nil).
		WithDetails("transaction_id", t.id)
}

// Cancel cancels the transaction locally, e.g. on user request. It
// returns nil once the transaction is cancelled; on a transaction that
// is already terminal it changes nothing and also returns nil.
func (t *Transaction) Cancel(ctx context.Context, code CancelCode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.cancelLocked(ctx, code)
	return nil
}

// OnCancel handles an inbound cancel from the peer. It is distinct
// from a locally-initiated Cancel for observability: the transaction
// lands in OnCancelled rather than Cancelled.
func (t *Transaction) OnCancel(msg CancelMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.cancelledReason = msg.Code
	t.releaseEngine()
	t.setState(StateOnCancelled)
	metrics.TransactionsCancelled.WithLabelValues(string(msg.Code)).Inc()
}

// Start sends the initial m.key.verification.start for an outgoing
// transaction.
func (t *Transaction) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isIncoming || t.state != StateNone {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}

	msg := StartMessage{
		TransactionID:              t.id,
		FromDevice:                 t.myDeviceID,
		Method:                     MethodSAS,
		KeyAgreementProtocols:      t.capabilities.KeyAgreementProtocols,
		Hashes:                     t.capabilities.Hashes,
		MessageAuthenticationCodes: t.capabilities.MessageAuthenticationCodes,
		ShortAuthenticationStrings: t.capabilities.ShortAuthenticationStrings,
	}
	t.startCanonical = canonicalStart(msg)
	t.setState(StateSendingStart)

	if err := t.transport.Send(ctx, t.id, MessageStart, msg); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateStarted)
	metrics.TransactionsStarted.WithLabelValues("initiator").Inc()
	return nil
}

// OnVerificationStart records an inbound Start for an incoming
// transaction. It does not itself transition state or send anything;
// the caller (e.g. after prompting the user) calls Accept to proceed.
// A Start arriving for a transaction id that already left None,
// whether a duplicate or a race with a locally-started transaction,
// cancels UnexpectedMessage rather than being silently ignored.
func (t *Transaction) OnVerificationStart(ctx context.Context, sender Sender, msg StartMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isIncoming || t.state != StateNone {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	if msg.Method != MethodSAS {
		return t.cancelLocked(ctx, CancelUnknownMethod)
	}
	t.otherUserID = sender.UserID
	t.otherDeviceID = sender.DeviceID
	t.startCanonical = canonicalStart(msg)
	t.pendingPeerCapabilities = Capabilities{
		KeyAgreementProtocols:      msg.KeyAgreementProtocols,
		Hashes:                     msg.Hashes,
		MessageAuthenticationCodes: msg.MessageAuthenticationCodes,
		ShortAuthenticationStrings: msg.ShortAuthenticationStrings,
	}
	metrics.TransactionsStarted.WithLabelValues("responder").Inc()
	// The state stays None until Accept, but observers still need to
	// learn a Start arrived so they can prompt the user.
	notify(t.listener, Event{TransactionID: t.id, State: t.state}, t.log)
	return nil
}

// Accept negotiates against the peer offer recorded by
// OnVerificationStart, computes the commitment binding this device's
// own ephemeral key to the Start content, and sends Accept.
func (t *Transaction) Accept(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isIncoming || t.state != StateNone || t.startCanonical == nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}

	negotiated, err := Negotiate(t.capabilities, t.pendingPeerCapabilities)
	if err != nil {
		return t.cancelLocked(ctx, CancelUnknownMethod)
	}

	engine, err := sas.NewEngine(sas.MACMethod(negotiated.MACMethod))
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.engine = engine

	ownPub, err := engine.PublicKey()
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	negotiated.Commitment = computeCommitment(t.startCanonical, ownPub)
	t.accepted = negotiated

	t.setState(StateSendingAccept)
	acceptMsg := AcceptMessage{
		TransactionID:              t.id,
		KeyAgreementProtocol:       negotiated.KeyAgreementProtocol,
		Hash:                       negotiated.Hash,
		MessageAuthenticationCode:  negotiated.MACMethod,
		ShortAuthenticationStrings: negotiated.ShortAuthenticationStrings,
		Commitment:                 negotiated.Commitment,
	}
	if err := t.transport.Send(ctx, t.id, MessageAccept, acceptMsg); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateAccepted)
	return nil
}

// OnVerificationAccept processes the peer's Accept on the outgoing
// side: the chosen tuple must lie within what this device offered,
// then this device reveals its own ephemeral key immediately.
func (t *Transaction) OnVerificationAccept(ctx context.Context, sender Sender, msg AcceptMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isIncoming || t.state != StateStarted {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}

	if !contains(t.capabilities.KeyAgreementProtocols, msg.KeyAgreementProtocol) ||
		!contains(t.capabilities.Hashes, msg.Hash) ||
		!contains(t.capabilities.MessageAuthenticationCodes, msg.MessageAuthenticationCode) ||
		!allContained(t.capabilities.ShortAuthenticationStrings, msg.ShortAuthenticationStrings) {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}

	t.otherUserID = sender.UserID
	t.otherDeviceID = sender.DeviceID
	t.accepted = &Negotiated{
		KeyAgreementProtocol:       msg.KeyAgreementProtocol,
		Hash:                       msg.Hash,
		MACMethod:                  msg.MessageAuthenticationCode,
		ShortAuthenticationStrings: msg.ShortAuthenticationStrings,
		Commitment:                 msg.Commitment,
	}

	engine, err := sas.NewEngine(sas.MACMethod(t.accepted.MACMethod))
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.engine = engine

	ownPub, err := engine.PublicKey()
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}

	t.setState(StateAccepted)
	t.setState(StateSendingKey)
	if err := t.transport.Send(ctx, t.id, MessageKey, KeyMessage{TransactionID: t.id, Key: ownPub}); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateKeySent)
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func allContained(set, values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !contains(set, v) {
			return false
		}
	}
	return true
}

// deriveShortCode runs the short-code MAC derivation once both
// ephemeral keys are known. The initiator's identity always appears
// first in the info string, regardless of which side is deriving.
func (t *Transaction) deriveShortCode() error {
	start := time.Now()
	var info string
	if t.isIncoming {
		info = shortCodeInfoPrefix + t.otherUserID + t.otherDeviceID + t.myUserID + t.myDeviceID + t.id
	} else {
		info = shortCodeInfoPrefix + t.myUserID + t.myDeviceID + t.otherUserID + t.otherDeviceID + t.id
	}
	b, err := t.engine.CalculateMAC(nil, info)
	if err != nil {
		return err
	}
	t.shortCodeBytes = b
	metrics.DerivationDuration.WithLabelValues("short_code").Observe(time.Since(start).Seconds())
	return nil
}

// OnKeyVerificationKey handles the peer's revealed ephemeral public
// key. On the outgoing (initiator) side this verifies the commitment
// the responder published in Accept, since the initiator is the only
// party able to meaningfully check it against newly-revealed peer
// material; on the incoming (responder) side there is nothing to
// verify (the commitment covers this device's own key), so it instead
// reveals its own key now that the initiator's is known.
func (t *Transaction) OnKeyVerificationKey(ctx context.Context, msg KeyMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Key == "" {
		return t.cancelLocked(ctx, CancelInvalidMessage)
	}

	if !t.isIncoming {
		if t.state != StateKeySent {
			return t.cancelLocked(ctx, CancelUnexpectedMessage)
		}
		expected := computeCommitment(t.startCanonical, msg.Key)
		if t.accepted == nil || expected != t.accepted.Commitment {
			return t.cancelLocked(ctx, CancelMismatchedCommitment)
		}
		t.peerPublicKey = msg.Key
		ecdhStart := time.Now()
		if err := t.engine.SetTheirPublicKey(msg.Key); err != nil {
			return t.cancelLocked(ctx, CancelUnexpectedMessage)
		}
		metrics.DerivationDuration.WithLabelValues("ecdh").Observe(time.Since(ecdhStart).Seconds())
		if err := t.deriveShortCode(); err != nil {
			return t.cancelLocked(ctx, CancelUnexpectedMessage)
		}
		t.setState(StateShortCodeReady)
		return nil
	}

	if t.state != StateAccepted {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.peerPublicKey = msg.Key
	ecdhStart := time.Now()
	if err := t.engine.SetTheirPublicKey(msg.Key); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	metrics.DerivationDuration.WithLabelValues("ecdh").Observe(time.Since(ecdhStart).Seconds())

	ownPub, err := t.engine.PublicKey()
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateSendingKey)
	if err := t.transport.Send(ctx, t.id, MessageKey, KeyMessage{TransactionID: t.id, Key: ownPub}); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateKeySent)

	if err := t.deriveShortCode(); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateShortCodeReady)
	return nil
}

// UserHasVerifiedShortCode records that the local user confirmed the
// short code matches. It computes and sends this device's MAC, then
// runs verification immediately if the peer's MAC already arrived.
func (t *Transaction) UserHasVerifiedShortCode(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateShortCodeReady {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateShortCodeAccepted)

	myCrossSigning, err := t.identityStore.MyCrossSigning(ctx)
	if err != nil {
		t.log.Warn("failed to read own cross-signing info", logger.Error(err), logger.String("transaction_id", t.id))
		myCrossSigning = nil
	}

	macStart := time.Now()
	mac, err := computeMAC(t.engine, t.myUserID, t.myDeviceID, t.otherUserID, t.otherDeviceID, t.id, t.myFingerprint, myCrossSigning)
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	metrics.DerivationDuration.WithLabelValues("mac").Observe(time.Since(macStart).Seconds())
	t.myMAC = mac

	t.setState(StateSendingMac)
	if err := t.transport.Send(ctx, t.id, MessageMac, mac.toMessage(t.id)); err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	t.setState(StateMacSent)

	if t.theirMAC != nil {
		return t.runVerification(ctx)
	}
	return nil
}

// ShortCodeDoesNotMatch records a user-reported mismatch and cancels
// the transaction with MismatchedSas, returning nil like Cancel. Valid
// from any non-terminal state; on a terminal transaction it does nothing.
func (t *Transaction) ShortCodeDoesNotMatch(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return nil
	}
	_ = t.cancelLocked(ctx, CancelMismatchedSas)
	return nil
}

// OnKeyVerificationMac stores the peer's MAC attestation. If this
// device has already reached ShortCodeAccepted and sent its own MAC,
// verification runs immediately; otherwise it is deferred until
// UserHasVerifiedShortCode runs, tolerating the peer's MAC arriving
// early.
func (t *Transaction) OnKeyVerificationMac(ctx context.Context, msg MacMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateShortCodeReady, StateShortCodeAccepted, StateSendingMac, StateMacSent:
	default:
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	if len(msg.Mac) == 0 || msg.Keys == "" {
		return t.cancelLocked(ctx, CancelInvalidMessage)
	}

	t.theirMAC = &MACPayload{MAC: msg.Mac, Keys: msg.Keys}

	if t.myMAC != nil && (t.state == StateMacSent) {
		return t.runVerification(ctx)
	}
	return nil
}

// runVerification performs the MAC attestation check and its side
// effects; caller must hold mu and have both myMAC and theirMAC set.
func (t *Transaction) runVerification(ctx context.Context) error {
	t.setState(StateVerifying)

	otherDevices, err := t.identityStore.DevicesOf(ctx, t.otherUserID)
	if err != nil {
		return t.cancelLocked(ctx, CancelUnexpectedMessage)
	}
	otherCrossSigning, err := t.identityStore.CrossSigningOf(ctx, t.otherUserID)
	if err != nil {
		t.log.Warn("failed to read peer cross-signing info", logger.Error(err), logger.String("transaction_id", t.id))
		otherCrossSigning = nil
	}

	result, err := verifyMAC(t.engine, t.myUserID, t.myDeviceID, t.otherUserID, t.otherDeviceID, t.id, t.theirMAC, otherDevices, otherCrossSigning)
	if err != nil {
		return t.cancelLocked(ctx, CancelMismatchedKeys)
	}

	for _, deviceID := range result.VerifiedDevices {
		if err := t.identityStore.MarkDeviceVerified(ctx, t.otherUserID, deviceID); err != nil {
			t.log.Warn("failed to mark device verified", logger.Error(err), logger.String("transaction_id", t.id))
		}
	}

	if result.MasterKeyVerified && t.crossSigning != nil {
		if t.otherUserID != t.myUserID {
			t.crossSigning.TrustUser(ctx, t.otherUserID, func(err error) {
				if err != nil {
					t.log.Warn("cross-signing trust_user failed", logger.Error(err), logger.String("transaction_id", t.id))
				}
			})
		} else {
			t.crossSigning.SignDevice(ctx, t.otherDeviceID, func(err error) {
				if err != nil {
					t.log.Warn("cross-signing sign_device failed", logger.Error(err), logger.String("transaction_id", t.id))
				}
			})
		}
	}

	t.releaseEngine()
	t.setState(StateVerified)
	metrics.TransactionsVerified.WithLabelValues(role(t.isIncoming)).Inc()
	if err := t.transport.Done(ctx, t.id); err != nil {
		t.log.Warn("transport done callback failed", logger.Error(err), logger.String("transaction_id", t.id))
	}
	return nil
}

func role(isIncoming bool) string {
	if isIncoming {
		return "responder"
	}
	return "initiator"
}
