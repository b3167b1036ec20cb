package ticketstore

import "errors"

var (
	// ErrChannelNotFound is returned by GetTicketStatistics when asked about
	// a channel that does not exist.
	ErrChannelNotFound = errors.New("ticketstore: channel not found")
	// ErrChannelClosed is returned when an operation requires an open
	// channel.
	ErrChannelClosed = errors.New("ticketstore: channel is closed")
	// ErrNotIncoming is returned when an operation requires a channel
	// incoming to us.
	ErrNotIncoming = errors.New("ticketstore: channel is not incoming")
	// ErrNotOutgoing is returned when an operation requires a channel
	// outgoing from us.
	ErrNotOutgoing = errors.New("ticketstore: channel is not outgoing")
	// ErrAlreadyAggregating is returned by PrepareAggregation when a ticket
	// in the channel is already BeingAggregated.
	ErrAlreadyAggregating = errors.New("ticketstore: a ticket in this channel is already being aggregated")
	// ErrAggregationMarkMismatch is the "logical error" raised when the
	// number of rows marked BeingAggregated doesn't match the selected set.
	ErrAggregationMarkMismatch = errors.New("ticketstore: aggregation row count mismatch")
	// ErrNoTickets is returned by LocalAggregate when given zero inputs.
	ErrNoTickets = errors.New("ticketstore: no tickets to aggregate")
	// ErrInconsistentAggregationInput is returned by LocalAggregate when the
	// inputs don't share a channel/epoch, overlap in index range, or don't
	// meet the network minimum winning probability.
	ErrInconsistentAggregationInput = errors.New("ticketstore: inconsistent aggregation input")
	// ErrAggregateBelowSum is returned when a received aggregate's amount is
	// less than the sum of the tickets it replaces.
	ErrAggregateBelowSum = errors.New("ticketstore: aggregate amount below sum of replaced tickets")
	// ErrAggregateNotWinProbOne is returned when a received aggregate's
	// winning probability isn't exactly 1.0.
	ErrAggregateNotWinProbOne = errors.New("ticketstore: aggregate must have winning probability 1.0")
)
