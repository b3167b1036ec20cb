package main

import (
	"context"

	"github.com/hoprnet/hopr-corego/chainrpc"
	"github.com/hoprnet/hopr-corego/domain"
)

// idleChainRPC is a chainrpc.Client that reports zero balances and an
// already-synced, empty log stream. It is the chain-side analogue of
// substrate.Memory: a stand-in that lets hoprd run start-to-finish without
// the real JSON-RPC/websocket backend this package's Client interface
// deliberately leaves unspecified (chainrpc.go's package doc).
type idleChainRPC struct{}

func (idleChainRPC) GetHoprBalance(context.Context, domain.Address) (uint64, error) { return 0, nil }

func (idleChainRPC) GetHoprAllowance(context.Context, domain.Address, domain.Address) (uint64, error) {
	return 0, nil
}

func (idleChainRPC) BlockNumber(context.Context) (uint64, error) { return 0, nil }

func (idleChainRPC) SubscribeLogs(ctx context.Context, fromBlock uint64, contracts []domain.Address) (<-chan chainrpc.BlockWithLogs, <-chan error) {
	blocks := make(chan chainrpc.BlockWithLogs)
	errs := make(chan error, 1)
	go func() {
		<-ctx.Done()
		close(blocks)
	}()
	return blocks, errs
}
