// Package chainrpc defines the chain RPC surface the core depends on:
// balance/allowance queries and a stream of blocks with logs. The concrete
// JSON-RPC/websocket transport lives below this package; here we only
// specify the capability interface consumed by chainindexer.
package chainrpc

import (
	"context"

	"github.com/hoprnet/hopr-corego/domain"
)

// Log is a single decoded contract event, already classified by contract
// address and event name by whatever ABI-decoding layer sits below this
// interface.
type Log struct {
	BlockNumber     uint64
	TxHash          [32]byte
	LogIndex        uint32
	ContractAddress domain.Address
	EventName       string
	// Fields holds the decoded event arguments, keyed by ABI field name.
	// chainindexer's per-event decoders pull out the fields they need and
	// return a protocol error for anything malformed.
	Fields map[string]any
}

// BlockWithLogs pairs a block number with the logs it contains that matched
// the filter set passed to SubscribeLogs.
type BlockWithLogs struct {
	BlockNumber uint64
	Logs        []Log
	// Synced reports whether the indexer has caught up to the chain head;
	// chainindexer only refreshes cached on-chain balances once synced.
	Synced bool
}

// Client is the chain RPC surface consumed by the indexer.
type Client interface {
	// GetHoprBalance returns the node's on-chain HOPR token balance.
	GetHoprBalance(ctx context.Context, addr domain.Address) (uint64, error)
	// GetHoprAllowance returns the allowance spender has been granted by owner.
	GetHoprAllowance(ctx context.Context, owner, spender domain.Address) (uint64, error)
	// BlockNumber returns the current chain head.
	BlockNumber(ctx context.Context) (uint64, error)
	// SubscribeLogs streams blocks (with their matching logs) starting from
	// fromBlock, until ctx is canceled or an error occurs.
	SubscribeLogs(ctx context.Context, fromBlock uint64, contracts []domain.Address) (<-chan BlockWithLogs, <-chan error)
}
