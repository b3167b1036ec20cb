// Package domain holds the value types shared by the storage-facing
// components (ticketstore, channelstore, chainindexer): addresses, channel
// identifiers and the channel lifecycle.
package domain

import (
	"encoding/hex"
	"fmt"
)

// Address is a 20-byte on-chain account address.
type Address [20]byte

func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// AddressFromBytes builds an Address from a byte slice, which must be 20
// bytes long.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != len(a) {
		return a, fmt.Errorf("domain: invalid address length %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ChannelID identifies a payment channel. It is derived deterministically
// from (source, destination); see NewChannelID.
type ChannelID [32]byte

func (c ChannelID) String() string { return "0x" + hex.EncodeToString(c[:]) }

// Bytes returns the channel id as a byte slice.
func (c ChannelID) Bytes() []byte { return c[:] }

// ChannelIDFromBytes builds a ChannelID from a byte slice, which must be 32
// bytes long.
func ChannelIDFromBytes(b []byte) (ChannelID, error) {
	var c ChannelID
	if len(b) != len(c) {
		return c, fmt.Errorf("domain: invalid channel id length %d", len(b))
	}
	copy(c[:], b)
	return c, nil
}

// ChannelStatus is the lifecycle state of a channel entry.
//
// A channel additionally has an out-of-band "corrupted"/quarantine state
// (see channelstore.Store.GetCorrupted) that is not one of these values: a
// corrupted channel is not represented by a Channel at all.
type ChannelStatus uint8

const (
	// StatusOpen means the channel accepts tickets and redemptions.
	StatusOpen ChannelStatus = iota
	// StatusPendingToClose means a closure has been initiated on-chain and
	// is waiting out its notice period, recorded as a unix timestamp.
	StatusPendingToClose
	// StatusClosed means the channel has been finalized on-chain; balance
	// and ticket index must be zero.
	StatusClosed
)

func (s ChannelStatus) String() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusPendingToClose:
		return "PendingToClose"
	case StatusClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Channel is the persisted representation of a payment channel.
type Channel struct {
	ID          ChannelID
	Source      Address
	Destination Address
	Balance     uint64
	TicketIndex uint64
	Status      ChannelStatus
	Epoch       uint32
	// ClosureTime is the unix timestamp at which OutgoingChannelClosureInitiated
	// fired; only meaningful when Status == StatusPendingToClose.
	ClosureTime uint64
}

// NewChannelID derives a channel id deterministically from (source,
// destination), using a domain-separated SHA-256 over the two addresses
// (see domain/id.go).
func NewChannelID(src, dst Address) ChannelID {
	return deriveChannelID(src, dst)
}

// TicketStatus is the lifecycle state of an acknowledged ticket.
type TicketStatus uint8

const (
	// Untouched means the ticket has not yet been redeemed or aggregated.
	Untouched TicketStatus = iota
	// BeingRedeemed means an on-chain redemption transaction is in flight.
	BeingRedeemed
	// BeingAggregated means the ticket has been selected into an
	// in-flight aggregation and must not be selected again.
	BeingAggregated
)

func (s TicketStatus) String() string {
	switch s {
	case Untouched:
		return "Untouched"
	case BeingRedeemed:
		return "BeingRedeemed"
	case BeingAggregated:
		return "BeingAggregated"
	default:
		return "Unknown"
	}
}

// WinProb is an encoded winning probability in [0,1]. See domain/winprob.go
// for the concrete fixed-point representation.
type WinProb uint64

// AckTicket is the persisted representation of an acknowledged ticket.
// Response/Signature/Challenge are opaque cryptographic material the core
// treats as fixed-size blobs; their cryptography lives below this package.
type AckTicket struct {
	ChannelID   ChannelID
	Epoch       uint32
	Index       uint64
	IndexOffset uint32
	Amount      uint64
	WinProb     WinProb
	Challenge   [32]byte
	Response    [32]byte
	Signature   [64]byte
	Status      TicketStatus
}

// IsAggregated reports whether the ticket covers more than one original
// index (index_offset > 1).
func (t AckTicket) IsAggregated() bool { return t.IndexOffset > 1 }

// IndexEnd returns the exclusive end of the index range this ticket covers:
// [Index, IndexEnd).
func (t AckTicket) IndexEnd() uint64 { return t.Index + uint64(t.IndexOffset) }

// TicketStatistics are the monotonically non-decreasing per-channel (or
// global) counters tracked for redemption accounting.
type TicketStatistics struct {
	NeglectedValue      uint64
	RedeemedValue       uint64
	RejectedValue       uint64
	WinningTicketsCount uint64
}

// Add accumulates delta into the receiver, returning the updated value.
// Every field is monotonically non-decreasing.
func (s TicketStatistics) Add(delta TicketStatistics) TicketStatistics {
	return TicketStatistics{
		NeglectedValue:      s.NeglectedValue + delta.NeglectedValue,
		RedeemedValue:       s.RedeemedValue + delta.RedeemedValue,
		RejectedValue:       s.RejectedValue + delta.RejectedValue,
		WinningTicketsCount: s.WinningTicketsCount + delta.WinningTicketsCount,
	}
}
