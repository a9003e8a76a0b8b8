package verification

// Capabilities is a prioritized, ordered set of algorithms a side is
// willing to use — never an inheritance-based capability flag, per the
// source's design note that negotiation is a data problem, not a type
// hierarchy.
type Capabilities struct {
	KeyAgreementProtocols      []string
	Hashes                     []string
	MessageAuthenticationCodes []string
	ShortAuthenticationStrings []string
}

// DefaultCapabilities returns this implementation's offered algorithm
// lists. EMOJI is gated on allowEmoji, a constructor parameter rather
// than a compile-time flag, so a device that cannot render glyphs can
// still participate using DECIMAL only.
func DefaultCapabilities(allowEmoji bool) Capabilities {
	sasSet := []string{"DECIMAL"}
	if allowEmoji {
		sasSet = []string{"EMOJI", "DECIMAL"}
	}
	return Capabilities{
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hkdf-hmac-sha256", "hmac-sha256"},
		ShortAuthenticationStrings: sasSet,
	}
}

// Negotiate intersects local preferences with the peer's offer. For
// each single-valued field the chosen value is the first local
// preference also present in the peer's offer; for the short
// authentication strings, the full ordered intersection is kept since
// it is a set the transaction may use however the user prefers. An
// empty intersection on any field is a deterministic failure.
func Negotiate(local, peer Capabilities) (*Negotiated, error) {
	ka, ok := firstCommon(local.KeyAgreementProtocols, peer.KeyAgreementProtocols)
	if !ok {
		return nil, ErrUnknownMethod
	}
	hash, ok := firstCommon(local.Hashes, peer.Hashes)
	if !ok {
		return nil, ErrUnknownMethod
	}
	mac, ok := firstCommon(local.MessageAuthenticationCodes, peer.MessageAuthenticationCodes)
	if !ok {
		return nil, ErrUnknownMethod
	}
	sasSet := intersect(local.ShortAuthenticationStrings, peer.ShortAuthenticationStrings)
	if len(sasSet) == 0 {
		return nil, ErrUnknownMethod
	}
	return &Negotiated{
		KeyAgreementProtocol:       ka,
		Hash:                       hash,
		MACMethod:                  mac,
		ShortAuthenticationStrings: sasSet,
	}, nil
}

func firstCommon(locals, peerOffer []string) (string, bool) {
	offered := make(map[string]bool, len(peerOffer))
	for _, o := range peerOffer {
		offered[o] = true
	}
	for _, l := range locals {
		if offered[l] {
			return l, true
		}
	}
	return "", false
}

func intersect(locals, peerOffer []string) []string {
	offered := make(map[string]bool, len(peerOffer))
	for _, o := range peerOffer {
		offered[o] = true
	}
	var out []string
	for _, l := range locals {
		if offered[l] {
			out = append(out, l)
		}
	}
	return out
}
