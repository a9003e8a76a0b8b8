package verification

import (
	"github.com/sas-verify/core/internal/logger"
)

// Event is emitted to a Listener after every state assignment.
type Event struct {
	TransactionID   string
	State           State
	CancelledReason CancelCode
}

// Listener observes a transaction's state changes. Implementations
// must be read-only: the source pattern of mutable-state-plus-callback
// is re-expressed here as an explicit notification contract instead.
type Listener interface {
	OnStateChanged(evt Event)
}

// NoopListener discards every event. It is the default when no
// listener is supplied.
type NoopListener struct{}

// OnStateChanged implements Listener.
func (NoopListener) OnStateChanged(Event) {}

// notify calls the listener and swallows any panic it raises so a
// misbehaving observer can never take down the dispatch executor.
func notify(listener Listener, evt Event, log logger.Logger) {
	if listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("verification listener panicked",
				logger.String("transaction_id", evt.TransactionID),
				logger.Any("recover", r),
			)
		}
	}()
	listener.OnStateChanged(evt)
}
