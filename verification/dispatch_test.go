package verification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func rawOf(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDispatchCreatesIncomingTransactionOnUnknownStart(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	var built *Transaction
	makeIncoming := func(id string) *Transaction {
		built = NewIncoming(id, bobUser, bobDevice, DefaultCapabilities(true), bobFPSeed, Deps{
			Transport: &recordingTransport{},
		})
		return built
	}

	startMsg := StartMessage{
		TransactionID:              txID,
		FromDevice:                 aliceDevice,
		Method:                     MethodSAS,
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hkdf-hmac-sha256"},
		ShortAuthenticationStrings: []string{"DECIMAL"},
	}
	env := InboundEnvelope{
		Type:          MessageStart,
		TransactionID: txID,
		Sender:        Sender{UserID: aliceUser, DeviceID: aliceDevice},
		Payload:       rawOf(t, startMsg),
	}

	err := m.Dispatch(context.Background(), env, makeIncoming)
	require.NoError(t, err)
	require.NotNil(t, built)

	tx, ok := m.Get(txID)
	require.True(t, ok)
	require.Same(t, built, tx)
}

func TestDispatchRoutesToExistingTransactionOnSecondStart(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	makeIncoming := func(id string) *Transaction {
		return NewIncoming(id, bobUser, bobDevice, DefaultCapabilities(true), bobFPSeed, Deps{
			Transport: &recordingTransport{},
		})
	}

	startMsg := StartMessage{
		TransactionID:              txID,
		FromDevice:                 aliceDevice,
		Method:                     MethodSAS,
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hkdf-hmac-sha256"},
		ShortAuthenticationStrings: []string{"DECIMAL"},
	}
	env := InboundEnvelope{Type: MessageStart, TransactionID: txID, Sender: Sender{UserID: aliceUser, DeviceID: aliceDevice}, Payload: rawOf(t, startMsg)}

	require.NoError(t, m.Dispatch(context.Background(), env, makeIncoming))
	tx, ok := m.Get(txID)
	require.True(t, ok)
	require.NoError(t, tx.Accept(context.Background()))

	called := false
	err := m.Dispatch(context.Background(), env, func(string) *Transaction {
		called = true
		return nil
	})
	require.Error(t, err)
	require.False(t, called)
}

func TestDispatchUnknownTransactionForNonStartReturnsErrUnknownTransaction(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	env := InboundEnvelope{
		Type:          MessageKey,
		TransactionID: "no-such-tx",
		Payload:       rawOf(t, KeyMessage{TransactionID: "no-such-tx", Key: "x"}),
	}
	err := m.Dispatch(context.Background(), env, nil)
	require.ErrorIs(t, err, ErrUnknownTransaction)
}

func TestDispatchMalformedPayloadCancelsInvalidMessage(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	tx := newTestTransaction(txID)
	require.NoError(t, m.Put(tx))
	require.NoError(t, tx.Start(context.Background()))

	env := InboundEnvelope{
		Type:          MessageAccept,
		TransactionID: txID,
		Payload:       json.RawMessage(`{"transaction_id": 12345}`),
	}
	err := m.Dispatch(context.Background(), env, nil)
	require.Error(t, err)
	require.Equal(t, StateCancelled, tx.State())
	require.Equal(t, CancelInvalidMessage, tx.CancelledReason())
}

func TestDispatchUnknownMessageTypeIsIgnored(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	tx := newTestTransaction(txID)
	require.NoError(t, m.Put(tx))

	env := InboundEnvelope{Type: MessageType("m.key.verification.future"), TransactionID: txID}
	err := m.Dispatch(context.Background(), env, nil)
	require.NoError(t, err)
	require.NotEqual(t, StateCancelled, tx.State())
}

func TestDispatchDoneMessageIsNoop(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	tx := newTestTransaction(txID)
	require.NoError(t, m.Put(tx))

	env := InboundEnvelope{Type: MessageDone, TransactionID: txID, Payload: rawOf(t, DoneMessage{TransactionID: txID})}
	err := m.Dispatch(context.Background(), env, nil)
	require.NoError(t, err)
	require.NotEqual(t, StateCancelled, tx.State())
}

func TestDispatchCancelMessageRoutesToOnCancel(t *testing.T) {
	m := NewManager(nil)
	defer m.Close()

	tx := newTestTransaction(txID)
	require.NoError(t, m.Put(tx))

	env := InboundEnvelope{
		Type:          MessageCancel,
		TransactionID: txID,
		Payload:       rawOf(t, CancelMessage{TransactionID: txID, Code: CancelUser, Reason: "nope"}),
	}
	require.NoError(t, m.Dispatch(context.Background(), env, nil))
	require.Equal(t, StateOnCancelled, tx.State())
	require.Equal(t, CancelUser, tx.CancelledReason())
}
