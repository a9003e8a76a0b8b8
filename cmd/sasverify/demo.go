package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sasverifycrypto "github.com/sas-verify/core/crypto"
	"github.com/sas-verify/core/crypto/keys"
	"github.com/sas-verify/core/internal/logger"
	"github.com/sas-verify/core/storage/memory"
	"github.com/sas-verify/core/verification"
)

// fingerprintOf extracts the unpadded-base64 Ed25519 fingerprint the
// verification core's MAC attestation signs and compares from a
// generated identity key.
func fingerprintOf(kp sasverifycrypto.KeyPair) (string, error) {
	if fp, ok := kp.(interface{ Fingerprint() string }); ok {
		return fp.Fingerprint(), nil
	}
	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("unexpected public key type")
	}
	return keys.Ed25519Fingerprint(pub), nil
}

func jsonRoundTrip(payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return raw, nil
}

var demoAllowEmoji bool

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an in-process Alice/Bob SAS verification",
	Long: `demo wires up two devices ("Alice" and "Bob") in the same
process, connected by a loopback transport, and drives a full SAS
verification transaction end to end: Start, Accept, key exchange,
short-code derivation, user confirmation, and MAC attestation.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().BoolVar(&demoAllowEmoji, "emoji", true, "offer the EMOJI short authentication string alongside DECIMAL")
	rootCmd.AddCommand(demoCmd)
}

// loopbackTransport delivers every Send asynchronously to the peer's
// manager, so that a synchronous reply (e.g. Bob's Key message sent
// while still inside Alice's OnVerificationAccept) never has to
// reenter a Transaction whose mutex the current goroutine already
// holds. A real network transport gets this property for free from
// the round trip; a same-process demo has to build it in.
type loopbackTransport struct {
	peerManager  *verification.Manager
	makeIncoming func(transactionID string) *verification.Transaction
	self         verification.Sender
	log          logger.Logger
}

func (l *loopbackTransport) Send(ctx context.Context, transactionID string, msgType verification.MessageType, payload interface{}) error {
	raw, err := jsonRoundTrip(payload)
	if err != nil {
		return err
	}
	env := verification.InboundEnvelope{Type: msgType, TransactionID: transactionID, Sender: l.self, Payload: raw}
	go func() {
		if err := l.peerManager.Dispatch(context.Background(), env, l.makeIncoming); err != nil {
			l.log.Warn("loopback dispatch failed", logger.Error(err), logger.String("transaction_id", transactionID))
		}
	}()
	return nil
}

func (l *loopbackTransport) CancelTransaction(ctx context.Context, transactionID, otherUserID, otherDeviceID string, code verification.CancelCode, reason string) error {
	return l.Send(ctx, transactionID, verification.MessageCancel, verification.CancelMessage{TransactionID: transactionID, Code: code, Reason: reason})
}

func (l *loopbackTransport) Done(ctx context.Context, transactionID string) error {
	return l.Send(ctx, transactionID, verification.MessageDone, verification.DoneMessage{TransactionID: transactionID})
}

// eventListener forwards every state change onto a buffered channel so
// the demo can block until a target state (or a terminal one) arrives.
type eventListener struct {
	events chan verification.Event
}

func newEventListener() *eventListener {
	return &eventListener{events: make(chan verification.Event, 32)}
}

func (l *eventListener) OnStateChanged(evt verification.Event) {
	l.events <- evt
}

func (l *eventListener) waitFor(target verification.State, timeout time.Duration) (verification.Event, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt := <-l.events:
			if evt.State == target || evt.State.Terminal() {
				return evt, nil
			}
		case <-deadline:
			return verification.Event{}, fmt.Errorf("timed out waiting for state %s", target)
		}
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := logger.GetDefaultLogger()

	aliceKey, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generate alice identity key: %w", err)
	}
	bobKey, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generate bob identity key: %w", err)
	}
	aliceFingerprint, err := fingerprintOf(aliceKey)
	if err != nil {
		return fmt.Errorf("alice fingerprint: %w", err)
	}
	bobFingerprint, err := fingerprintOf(bobKey)
	if err != nil {
		return fmt.Errorf("bob fingerprint: %w", err)
	}

	aliceIdentity := memory.NewIdentityStore("@alice:example.org", verification.CrossSigningInfo{})
	bobIdentity := memory.NewIdentityStore("@bob:example.org", verification.CrossSigningInfo{})
	aliceIdentity.PutDevice("@bob:example.org", "BOBDEVICE", verification.DeviceInfo{Ed25519Fingerprint: bobFingerprint})
	bobIdentity.PutDevice("@alice:example.org", "ALICEDEVICE", verification.DeviceInfo{Ed25519Fingerprint: aliceFingerprint})

	aliceManager := verification.NewManager(log)
	bobManager := verification.NewManager(log)
	defer aliceManager.Close()
	defer bobManager.Close()

	aliceListener := newEventListener()
	bobListener := newEventListener()

	caps := verification.DefaultCapabilities(demoAllowEmoji)
	txID := verification.NewTransactionID()

	aliceSender := verification.Sender{UserID: "@alice:example.org", DeviceID: "ALICEDEVICE"}
	bobSender := verification.Sender{UserID: "@bob:example.org", DeviceID: "BOBDEVICE"}

	aliceTransport := &loopbackTransport{peerManager: bobManager, self: aliceSender, log: log}
	bobTransport := &loopbackTransport{peerManager: aliceManager, self: bobSender, log: log}

	makeBobIncoming := func(id string) *verification.Transaction {
		t := verification.NewIncoming(id, bobSender.UserID, bobSender.DeviceID, caps, bobFingerprint, verification.Deps{
			Transport:     bobTransport,
			IdentityStore: bobIdentity,
			CrossSigning:  memory.NewCrossSigningService(),
			Listener:      bobListener,
			Logger:        log,
		})
		return t
	}
	aliceTransport.makeIncoming = makeBobIncoming

	aliceT := verification.NewOutgoing(txID, aliceSender.UserID, aliceSender.DeviceID, bobSender.UserID, caps, aliceFingerprint, verification.Deps{
		Transport:     aliceTransport,
		IdentityStore: aliceIdentity,
		CrossSigning:  memory.NewCrossSigningService(),
		Listener:      aliceListener,
		Logger:        log,
	})
	if err := aliceManager.Put(aliceT); err != nil {
		return fmt.Errorf("register alice transaction: %w", err)
	}

	fmt.Println("Alice starts verification with Bob...")
	if err := aliceT.Start(ctx); err != nil {
		return fmt.Errorf("alice start: %w", err)
	}

	// The loopback delivers asynchronously; Bob's listener fires once
	// his transaction has recorded the inbound Start.
	if _, err := bobListener.waitFor(verification.StateNone, 5*time.Second); err != nil {
		return fmt.Errorf("bob never received the start message: %w", err)
	}
	bobT, ok := bobManager.Get(txID)
	if !ok {
		return fmt.Errorf("bob transaction missing after start")
	}
	// bobTransport only learns makeIncoming's result through the
	// manager, so it never needs its own makeIncoming; alice's
	// transaction id is already fixed above.
	bobTransport.makeIncoming = func(string) *verification.Transaction { return bobT }

	fmt.Println("Bob accepts...")
	if err := bobT.Accept(ctx); err != nil {
		return fmt.Errorf("bob accept: %w", err)
	}

	if _, err := aliceListener.waitFor(verification.StateShortCodeReady, 5*time.Second); err != nil {
		return err
	}
	if _, err := bobListener.waitFor(verification.StateShortCodeReady, 5*time.Second); err != nil {
		return err
	}

	aliceDecimal, aliceEmoji, ok := aliceT.ShortCode()
	if !ok {
		return fmt.Errorf("alice short code not ready")
	}
	bobDecimal, bobEmoji, ok := bobT.ShortCode()
	if !ok {
		return fmt.Errorf("bob short code not ready")
	}
	fmt.Printf("Alice sees short code: %v %v\n", aliceDecimal, aliceEmoji)
	fmt.Printf("Bob sees short code:   %v %v\n", bobDecimal, bobEmoji)
	if aliceDecimal != bobDecimal {
		return fmt.Errorf("short codes disagree: this should never happen for a genuine peer")
	}

	fmt.Println("Both users confirm the short code matches...")
	if err := aliceT.UserHasVerifiedShortCode(ctx); err != nil {
		return fmt.Errorf("alice confirm: %w", err)
	}
	if err := bobT.UserHasVerifiedShortCode(ctx); err != nil {
		return fmt.Errorf("bob confirm: %w", err)
	}

	if _, err := aliceListener.waitFor(verification.StateVerified, 5*time.Second); err != nil {
		return err
	}
	if _, err := bobListener.waitFor(verification.StateVerified, 5*time.Second); err != nil {
		return err
	}

	fmt.Printf("Alice's view of Bob's device BOBDEVICE verified: %v\n", aliceIdentity.IsDeviceVerified("@bob:example.org", "BOBDEVICE"))
	fmt.Printf("Bob's view of Alice's device ALICEDEVICE verified: %v\n", bobIdentity.IsDeviceVerified("@alice:example.org", "ALICEDEVICE"))
	fmt.Println("Verification complete.")
	return nil
}
