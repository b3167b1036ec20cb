package ticketstore

import "github.com/hoprnet/hopr-corego/domain"

// AggregateVerifier checks a received aggregated ticket's signature under
// the channel's domain separator and the source's on-chain key. The actual
// signature scheme is treated as an external concern; this is the
// capability seam the core depends on.
type AggregateVerifier interface {
	VerifyAggregate(ticket domain.AckTicket, domainSeparator [32]byte, source domain.Address) bool
}

// AggregateSigner produces the signature for a locally-aggregated ticket.
// Like AggregateVerifier, the signature scheme itself is out of scope.
type AggregateSigner interface {
	SignAggregate(ticket domain.AckTicket) ([64]byte, error)
}

// TrustingVerifier accepts every aggregate unconditionally. It exists so
// callers that haven't wired real signature verification yet (tests, local
// development) have an explicit, clearly-named stand-in rather than a
// silent nil check.
type TrustingVerifier struct{}

func (TrustingVerifier) VerifyAggregate(domain.AckTicket, [32]byte, domain.Address) bool { return true }

// ZeroSigner produces an all-zero signature. Same rationale as TrustingVerifier.
type ZeroSigner struct{}

func (ZeroSigner) SignAggregate(domain.AckTicket) ([64]byte, error) {
	return [64]byte{}, nil
}
