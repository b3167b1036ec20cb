// Package chainindexer implements the handler that turns a stream of
// decoded contract logs into state transitions across the channel table,
// the ticket table, and the auxiliary chain-state tables, committing all
// of them inside the single storage transaction the caller opened for
// that log.
package chainindexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hoprnet/hopr-corego/chainrpc"
	"github.com/hoprnet/hopr-corego/chainstate"
	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
	"github.com/hoprnet/hopr-corego/ticketstore"
	"github.com/luxfi/log"
)

// Handler dispatches decoded chain logs onto the channel, ticket, and
// chain-state tables.
type Handler struct {
	contracts ContractAddresses
	channel   *channelstore.Store
	ticket    *ticketstore.Store
	state     *chainstate.Store
	rpc       chainrpc.Client
	self      domain.Address
	safe      domain.Address
	metrics   *Metrics
	log       log.Logger
}

// New constructs a chain event handler. self is our node's on-chain address
// and safe is the address of the node's safe, used to classify channels as
// ours and to scope Transfer/Approval handling.
func New(contracts ContractAddresses, channel *channelstore.Store, ticket *ticketstore.Store, state *chainstate.Store, rpc chainrpc.Client, self, safe domain.Address, metrics *Metrics, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.Root()
	}
	return &Handler{
		contracts: contracts,
		channel:   channel,
		ticket:    ticket,
		state:     state,
		rpc:       rpc,
		self:      self,
		safe:      safe,
		metrics:   metrics,
		log:       logger,
	}
}

// HandleLog applies a single log within tx, returning the optional
// subscriber-facing notification for it. A log from a contract address that
// is not configured is counted as dropped and rejected with an error
// wrapping ErrUnknownContract; nothing is written for it. Malformed logs
// (including Transfer/Approval logs not involving our safe) are dropped with
// a logged warning, and a balance change for a missing channel leaves only
// its quarantine entry in tx; both return (nil, nil). Any other returned
// error means tx's writes must not be committed; the caller is expected to
// discard the transaction it opened for this log.
func (h *Handler) HandleLog(ctx context.Context, tx *storage.Tx, lg chainrpc.Log, synced bool) (*SignificantChainEvent, error) {
	kind, ok := h.contracts.kindOf(lg.ContractAddress)
	if !ok {
		h.metrics.EventsDropped.WithLabelValues("unknown_contract").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, lg.ContractAddress.String())
	}

	ev, err := decodeEvent(lg)
	if err != nil {
		h.metrics.EventsDropped.WithLabelValues("malformed").Inc()
		h.log.Warn("dropping malformed log", "contract", kind, "event", lg.EventName, "err", err)
		return nil, nil
	}

	sig, err := h.apply(ctx, tx, ev, synced)
	switch {
	case errors.Is(err, ErrChannelDoesNotExist):
		return nil, nil
	case errors.Is(err, ErrMalformedEvent):
		h.metrics.EventsDropped.WithLabelValues("malformed").Inc()
		h.log.Warn("dropping malformed log", "contract", kind, "event", lg.EventName, "err", err)
		return nil, nil
	case err != nil:
		return nil, err
	}
	h.metrics.EventsHandled.WithLabelValues(string(kind), lg.EventName).Inc()
	return sig, nil
}

func (h *Handler) apply(ctx context.Context, tx *storage.Tx, ev Event, synced bool) (*SignificantChainEvent, error) {
	switch e := ev.(type) {
	case KeyBindingEvent:
		return nil, h.state.PutAccount(tx, e.ChainAddress, e.OffchainKey)

	case AddressAnnouncementEvent:
		return h.handleAddressAnnouncement(tx, e)

	case RevokeAnnouncementEvent:
		return h.handleRevokeAnnouncement(tx, e)

	case ChannelOpenedEvent:
		return h.handleChannelOpened(tx, e)

	case ChannelBalanceChangedEvent:
		return h.handleChannelBalanceChanged(ctx, tx, e, synced)

	case OutgoingChannelClosureInitiatedEvent:
		return nil, h.handleOutgoingClosureInitiated(tx, e)

	case ChannelClosedEvent:
		return h.handleChannelClosed(tx, e)

	case TicketRedeemedEvent:
		return h.handleTicketRedeemed(tx, e)

	case DomainSeparatorUpdatedEvent:
		return nil, h.state.SetDomainSeparator(tx, e.Slot, e.Value)

	case TokenTransferEvent:
		return nil, h.handleTokenTransfer(ctx, tx, e, synced)

	case TokenApprovalEvent:
		return nil, h.handleTokenApproval(ctx, tx, e, synced)

	case NetworkRegistryEvent:
		return h.handleNetworkRegistry(tx, e)

	case TicketPriceUpdatedEvent:
		return nil, h.state.SetTicketPrice(tx, e.NewPrice)

	case WinProbUpdatedEvent:
		return nil, h.handleWinProbUpdated(tx, e)

	default:
		return nil, fmt.Errorf("chainindexer: unhandled event type %T", ev)
	}
}

func (h *Handler) quarantine(tx *storage.Tx, id domain.ChannelID) error {
	if err := h.channel.InsertCorrupted(tx, id); err != nil {
		return err
	}
	h.metrics.Quarantined.Inc()
	h.log.Error("quarantining channel", "channel", id.String())
	return nil
}

func (h *Handler) handleAddressAnnouncement(tx *storage.Tx, e AddressAnnouncementEvent) (*SignificantChainEvent, error) {
	_, bound, err := h.state.GetAccount(tx, e.ChainAddress)
	if err != nil {
		return nil, err
	}
	if !bound || e.MultiAddress == "" {
		h.log.Warn("dropping address announcement with no prior key binding", "address", e.ChainAddress.String())
		return nil, nil
	}
	if err := h.state.PutAnnouncement(tx, e.ChainAddress, e.MultiAddress); err != nil {
		return nil, err
	}
	return &SignificantChainEvent{Kind: SigAnnouncement, Address: e.ChainAddress, MultiAddress: e.MultiAddress}, nil
}

func (h *Handler) handleRevokeAnnouncement(tx *storage.Tx, e RevokeAnnouncementEvent) (*SignificantChainEvent, error) {
	_, bound, err := h.state.GetAccount(tx, e.ChainAddress)
	if err != nil {
		return nil, err
	}
	if !bound {
		return nil, ErrNoPriorBinding
	}
	if _, err := h.state.DeleteAnnouncements(tx, e.ChainAddress); err != nil {
		return nil, err
	}
	return &SignificantChainEvent{Kind: SigAnnouncement, Address: e.ChainAddress, MultiAddress: ""}, nil
}

func (h *Handler) handleChannelOpened(tx *storage.Tx, e ChannelOpenedEvent) (*SignificantChainEvent, error) {
	id := domain.NewChannelID(e.Source, e.Destination)
	ch, err := h.channel.Get(tx, id)
	switch {
	case errors.Is(err, channelstore.ErrCorrupted):
		// Already quarantined; a repeated open for the same pair changes
		// nothing until an operator resolves the inconsistency.
		return nil, nil

	case errors.Is(err, channelstore.ErrNotFound):
		fresh := domain.Channel{ID: id, Source: e.Source, Destination: e.Destination, Status: domain.StatusOpen, Epoch: 1}
		if err := h.channel.Insert(tx, fresh); err != nil {
			return nil, err
		}
		return &SignificantChainEvent{Kind: SigChannelOpened, Channel: &fresh}, nil

	case err != nil:
		return nil, err

	case ch.Status == domain.StatusClosed:
		if _, err := h.ticket.MarkTicketsAs(tx, ticketstore.NewSelector().Channels(id), ticketstore.Neglected); err != nil {
			return nil, err
		}
		edits, err := h.channel.BeginUpdate(tx, id)
		if err != nil {
			return nil, err
		}
		edits.SetStatus(domain.StatusOpen).SetEpoch(ch.Epoch + 1).SetBalance(0).SetTicketIndex(0)
		updated, _, err := h.channel.Finish(tx, edits)
		if err != nil {
			return nil, err
		}
		if ch.Source == h.self {
			if _, err := h.ticket.ResetOutgoingTicketIndex(tx, id, 0); err != nil {
				return nil, err
			}
		}
		return &SignificantChainEvent{Kind: SigChannelOpened, Channel: &updated}, nil

	default:
		// Open observed for a channel that is already open or pending
		// closure: the indexer's view is inconsistent with the chain.
		if err := h.quarantine(tx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func (h *Handler) handleChannelBalanceChanged(ctx context.Context, tx *storage.Tx, e ChannelBalanceChangedEvent, synced bool) (*SignificantChainEvent, error) {
	edits, err := h.channel.BeginUpdate(tx, e.ChannelID)
	if err != nil {
		if errors.Is(err, channelstore.ErrCorrupted) {
			return nil, nil
		}
		return nil, err
	}
	if edits == nil {
		if err := h.quarantine(tx, e.ChannelID); err != nil {
			return nil, err
		}
		h.log.Warn("balance change for unknown channel", "channel", e.ChannelID.String())
		return nil, ErrChannelDoesNotExist
	}
	before := edits.Original()
	edits.SetBalance(e.NewBalance)
	updated, _, err := h.channel.Finish(tx, edits)
	if err != nil {
		return nil, err
	}
	delta := int64(updated.Balance) - int64(before.Balance)

	if synced && (updated.Source == h.self || updated.Destination == h.self) {
		if err := h.refreshSafeBalances(ctx, tx); err != nil {
			return nil, err
		}
	}
	return &SignificantChainEvent{Kind: SigChannelBalanceChanged, Channel: &updated, BalanceDelta: delta}, nil
}

func (h *Handler) handleOutgoingClosureInitiated(tx *storage.Tx, e OutgoingChannelClosureInitiatedEvent) error {
	edits, err := h.channel.BeginUpdate(tx, e.ChannelID)
	if err != nil {
		return err
	}
	if edits == nil {
		return h.quarantine(tx, e.ChannelID)
	}
	edits.SetStatus(domain.StatusPendingToClose).SetClosureTime(e.ClosureTime)
	_, _, err = h.channel.Finish(tx, edits)
	return err
}

func (h *Handler) handleChannelClosed(tx *storage.Tx, e ChannelClosedEvent) (*SignificantChainEvent, error) {
	edits, err := h.channel.BeginUpdate(tx, e.ChannelID)
	if err != nil {
		return nil, err
	}
	if edits == nil {
		return nil, nil
	}
	ch := edits.Original()

	if ch.Source != h.self && ch.Destination != h.self {
		edits.Delete()
		if _, _, err := h.channel.Finish(tx, edits); err != nil {
			return nil, err
		}
		return nil, nil
	}

	edits.SetStatus(domain.StatusClosed)
	updated, _, err := h.channel.Finish(tx, edits)
	if err != nil {
		return nil, err
	}
	if ch.Destination == h.self {
		if _, err := h.ticket.MarkTicketsAs(tx, ticketstore.NewSelector().Channels(ch.ID), ticketstore.Neglected); err != nil {
			return nil, err
		}
	}
	if ch.Source == h.self {
		if _, err := h.ticket.ResetOutgoingTicketIndex(tx, ch.ID, 0); err != nil {
			return nil, err
		}
	}
	return &SignificantChainEvent{Kind: SigChannelClosed, Channel: &updated}, nil
}

func (h *Handler) handleTicketRedeemed(tx *storage.Tx, e TicketRedeemedEvent) (*SignificantChainEvent, error) {
	edits, err := h.channel.BeginUpdate(tx, e.ChannelID)
	if err != nil {
		return nil, err
	}
	if edits == nil {
		return nil, h.quarantine(tx, e.ChannelID)
	}
	ch := edits.Original()
	edits.SetTicketIndex(e.NewIndex)
	updated, _, err := h.channel.Finish(tx, edits)
	if err != nil {
		return nil, err
	}

	if ch.Destination == h.self {
		redeeming, err := h.ticket.GetTickets(tx, ticketstore.NewSelector().Channels(ch.ID).Status(domain.BeingRedeemed))
		if err != nil {
			return nil, err
		}
		var match *uint64
		matches := 0
		for _, t := range redeeming {
			if t.IndexEnd() == e.NewIndex {
				idx := t.Index
				match = &idx
				matches++
			}
		}
		switch {
		case matches > 1:
			if err := h.quarantine(tx, ch.ID); err != nil {
				return nil, err
			}
		case matches == 1:
			if _, err := h.ticket.MarkTicketsAs(tx, ticketstore.NewSelector().Channels(ch.ID).Index(*match), ticketstore.Redeemed); err != nil {
				return nil, err
			}
		}
	}
	if ch.Source == h.self {
		if _, err := h.ticket.CompareAndSetOutgoingTicketIndex(tx, ch.ID, e.NewIndex); err != nil {
			return nil, err
		}
	}
	if _, err := h.ticket.NeglectBelowIndex(tx, ch.ID, e.NewIndex); err != nil {
		return nil, err
	}
	return &SignificantChainEvent{Kind: SigTicketRedeemed, Channel: &updated}, nil
}

func (h *Handler) handleTokenTransfer(ctx context.Context, tx *storage.Tx, e TokenTransferEvent, synced bool) error {
	if e.From != h.safe && e.To != h.safe {
		return fmt.Errorf("chainindexer: dropping transfer not involving our safe: %w", ErrMalformedEvent)
	}
	if !synced {
		return nil
	}
	return h.refreshSafeBalances(ctx, tx)
}

func (h *Handler) handleTokenApproval(ctx context.Context, tx *storage.Tx, e TokenApprovalEvent, synced bool) error {
	if e.Owner != h.safe {
		return fmt.Errorf("chainindexer: dropping approval not owned by our safe: %w", ErrMalformedEvent)
	}
	if !synced {
		return nil
	}
	return h.refreshSafeBalances(ctx, tx)
}

func (h *Handler) refreshSafeBalances(ctx context.Context, tx *storage.Tx) error {
	balance, err := h.rpc.GetHoprBalance(ctx, h.safe)
	if err != nil {
		return err
	}
	allowance, err := h.rpc.GetHoprAllowance(ctx, h.safe, h.contracts.Channels)
	if err != nil {
		return err
	}
	if err := h.state.SetSafeBalance(tx, balance); err != nil {
		return err
	}
	return h.state.SetSafeAllowance(tx, allowance)
}

func (h *Handler) handleNetworkRegistry(tx *storage.Tx, e NetworkRegistryEvent) (*SignificantChainEvent, error) {
	before, err := h.state.GetRegistryEntry(tx, e.Address)
	if err != nil {
		return nil, err
	}
	after := before
	switch e.Kind {
	case NetworkRegistryRegistered, NetworkRegistryRegisteredByManager:
		after.Registered = true
	case NetworkRegistryDeregistered:
		after.Registered = false
	case NetworkRegistryEligibilityUpdated:
		after.Eligible = e.Eligible
	case NetworkRegistryStatusUpdated:
		after.Registered = e.Registered
	}
	if err := h.state.SetRegistryEntry(tx, e.Address, after); err != nil {
		return nil, err
	}
	if after == before {
		return nil, nil
	}
	return &SignificantChainEvent{Kind: SigNetworkRegistryUpdate, Address: e.Address}, nil
}

func (h *Handler) handleWinProbUpdated(tx *storage.Tx, e WinProbUpdatedEvent) error {
	old, ok, err := h.state.GetMinWinProb(tx)
	if err != nil {
		return err
	}
	if err := h.state.SetMinWinProb(tx, e.NewMin); err != nil {
		return err
	}
	if !ok || e.NewMin <= old {
		return nil
	}
	incoming, err := h.channel.ListIncoming(tx, h.self)
	if err != nil {
		return err
	}
	for _, ch := range incoming {
		sel := ticketstore.NewSelector().Channels(ch.ID).WinProbRange(0, e.NewMin)
		if _, err := h.ticket.MarkTicketsAs(tx, sel, ticketstore.Rejected); err != nil {
			return err
		}
	}
	return nil
}
