package memory

import (
	"context"
	"sync"
)

// CrossSigningService is a process-local stand-in for a homeserver
// cross-signing API: it just records what it was asked to do. A real
// deployment would instead call out to the signing service that holds
// the local user's private cross-signing keys.
type CrossSigningService struct {
	mu            sync.Mutex
	trustedUsers  []string
	signedDevices []string
}

// NewCrossSigningService creates an empty stub.
func NewCrossSigningService() *CrossSigningService {
	return &CrossSigningService{}
}

// TrustUser implements verification.CrossSigningService.
func (c *CrossSigningService) TrustUser(_ context.Context, userID string, callback func(error)) {
	c.mu.Lock()
	c.trustedUsers = append(c.trustedUsers, userID)
	c.mu.Unlock()
	if callback != nil {
		callback(nil)
	}
}

// SignDevice implements verification.CrossSigningService.
func (c *CrossSigningService) SignDevice(_ context.Context, deviceID string, callback func(error)) {
	c.mu.Lock()
	c.signedDevices = append(c.signedDevices, deviceID)
	c.mu.Unlock()
	if callback != nil {
		callback(nil)
	}
}

// TrustedUsers returns the user ids TrustUser has been called with.
func (c *CrossSigningService) TrustedUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.trustedUsers))
	copy(out, c.trustedUsers)
	return out
}

// SignedDevices returns the device ids SignDevice has been called with.
func (c *CrossSigningService) SignedDevices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.signedDevices))
	copy(out, c.signedDevices)
	return out
}
