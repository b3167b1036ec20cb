package chainindexer

import "github.com/hoprnet/hopr-corego/domain"

// Event is the decoded form of a single on-chain log, after ABI decoding
// (handled below this package) has turned raw log fields into one of the
// concrete types below.
type Event interface{ isEvent() }

// KeyBindingEvent maps an on-chain address to an off-chain key.
type KeyBindingEvent struct {
	ChainAddress domain.Address
	OffchainKey  [32]byte
}

// AddressAnnouncementEvent announces a multi-address for a previously
// key-bound chain address.
type AddressAnnouncementEvent struct {
	ChainAddress domain.Address
	MultiAddress string
}

// RevokeAnnouncementEvent withdraws every announcement for a chain address.
type RevokeAnnouncementEvent struct {
	ChainAddress domain.Address
}

// ChannelOpenedEvent opens (or re-opens) a channel from Source to Destination.
type ChannelOpenedEvent struct {
	Source, Destination domain.Address
}

// ChannelBalanceChangedEvent reports the channel's new absolute balance;
// Increase distinguishes ChannelBalanceIncreased from ...Decreased, which
// share an effect shape.
type ChannelBalanceChangedEvent struct {
	ChannelID  domain.ChannelID
	NewBalance uint64
	Increase   bool
}

// OutgoingChannelClosureInitiatedEvent starts a channel's closure notice
// period.
type OutgoingChannelClosureInitiatedEvent struct {
	ChannelID   domain.ChannelID
	ClosureTime uint64
}

// ChannelClosedEvent finalizes a channel's closure.
type ChannelClosedEvent struct {
	ChannelID domain.ChannelID
}

// TicketRedeemedEvent reports a successful on-chain ticket redemption,
// advancing the channel's ticket index to NewIndex.
type TicketRedeemedEvent struct {
	ChannelID domain.ChannelID
	NewIndex  uint64
}

// DomainSeparatorUpdatedEvent updates the separator stored under a named
// slot ("channels" or "ledger").
type DomainSeparatorUpdatedEvent struct {
	Slot  string
	Value [32]byte
}

// TokenTransferEvent is an ERC20-style Transfer log.
type TokenTransferEvent struct {
	From, To domain.Address
	Value    uint64
}

// TokenApprovalEvent is an ERC20-style Approval log.
type TokenApprovalEvent struct {
	Owner, Spender domain.Address
	Value          uint64
}

// NetworkRegistryKind distinguishes the five Network Registry event shapes
// that all mirror into the same local access-flag table.
type NetworkRegistryKind uint8

const (
	NetworkRegistryRegistered NetworkRegistryKind = iota
	NetworkRegistryDeregistered
	NetworkRegistryRegisteredByManager
	NetworkRegistryEligibilityUpdated
	NetworkRegistryStatusUpdated
)

// NetworkRegistryEvent mirrors an access-control change for Address.
type NetworkRegistryEvent struct {
	Kind       NetworkRegistryKind
	Address    domain.Address
	Eligible   bool
	Registered bool
}

// TicketPriceUpdatedEvent reports a new oracle-published ticket price.
type TicketPriceUpdatedEvent struct{ NewPrice uint64 }

// WinProbUpdatedEvent reports a new oracle-published minimum winning
// probability.
type WinProbUpdatedEvent struct{ NewMin domain.WinProb }

func (KeyBindingEvent) isEvent()                         {}
func (AddressAnnouncementEvent) isEvent()                {}
func (RevokeAnnouncementEvent) isEvent()                 {}
func (ChannelOpenedEvent) isEvent()                      {}
func (ChannelBalanceChangedEvent) isEvent()               {}
func (OutgoingChannelClosureInitiatedEvent) isEvent()    {}
func (ChannelClosedEvent) isEvent()                      {}
func (TicketRedeemedEvent) isEvent()                     {}
func (DomainSeparatorUpdatedEvent) isEvent()              {}
func (TokenTransferEvent) isEvent()                       {}
func (TokenApprovalEvent) isEvent()                       {}
func (NetworkRegistryEvent) isEvent()                     {}
func (TicketPriceUpdatedEvent) isEvent()                  {}
func (WinProbUpdatedEvent) isEvent()                      {}

// SignificantEventKind classifies the optional event HandleLog returns to
// subscribers.
type SignificantEventKind uint8

const (
	SigAnnouncement SignificantEventKind = iota
	SigNetworkRegistryUpdate
	SigChannelOpened
	SigChannelClosed
	SigChannelBalanceChanged
	SigTicketRedeemed
)

// SignificantChainEvent is the optional notification HandleLog commits back
// to subscribers alongside its storage transaction.
type SignificantChainEvent struct {
	Kind         SignificantEventKind
	Channel      *domain.Channel
	Address      domain.Address
	MultiAddress string
	BalanceDelta int64
}
