package chainindexer

import "github.com/hoprnet/hopr-corego/domain"

// ContractKind names which role a contract address plays in the dispatch
// table.
type ContractKind string

const (
	ContractChannels          ContractKind = "channels"
	ContractToken             ContractKind = "token"
	ContractNetworkRegistry   ContractKind = "network_registry"
	ContractTicketPriceOracle ContractKind = "ticket_price_oracle"
	ContractWinProbOracle     ContractKind = "win_prob_oracle"
)

// ContractAddresses binds each contract role to its on-chain address.
type ContractAddresses struct {
	Channels          domain.Address
	Token             domain.Address
	NetworkRegistry   domain.Address
	TicketPriceOracle domain.Address
	WinProbOracle     domain.Address
}

func (c ContractAddresses) kindOf(addr domain.Address) (ContractKind, bool) {
	switch addr {
	case c.Channels:
		return ContractChannels, true
	case c.Token:
		return ContractToken, true
	case c.NetworkRegistry:
		return ContractNetworkRegistry, true
	case c.TicketPriceOracle:
		return ContractTicketPriceOracle, true
	case c.WinProbOracle:
		return ContractWinProbOracle, true
	default:
		return "", false
	}
}
