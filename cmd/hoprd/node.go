package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoprnet/hopr-corego/chainindexer"
	"github.com/hoprnet/hopr-corego/chainrpc"
	"github.com/hoprnet/hopr-corego/chainstate"
	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/session"
	"github.com/hoprnet/hopr-corego/storage"
	"github.com/hoprnet/hopr-corego/substrate"
	"github.com/hoprnet/hopr-corego/ticketstore"
)

// Node bundles the storage-backed stores, the chain-event handler and the
// session manager into the set of long-running components a hoprd process
// owns. The substrate transport and the chain RPC client are capabilities
// supplied by the caller (substrate.Sink/Source, chainrpc.Client): the real
// mixnet wire protocol and the JSON-RPC/websocket client that backs them are
// out of scope for this module and are wired in by whatever embeds it.
type Node struct {
	cfg *Config
	log log.Logger

	db      *storage.DB
	channel *channelstore.Store
	ticket  *ticketstore.Store
	state   *chainstate.Store
	indexer *chainindexer.Handler
	rpc     chainrpc.Client

	sessions *session.Manager

	registry *prometheus.Registry
}

// NewNode opens the on-disk store, constructs the domain stores and the
// chain-event handler against rpc, and brings up the session manager over
// sink/source. signer and verifier are the aggregate-ticket crypto
// capabilities the ticket store needs; they are injected rather than built
// here since the signature scheme itself is out of scope.
func NewNode(cfg *Config, sink substrate.Sink, rpc chainrpc.Client, verifier ticketstore.AggregateVerifier, signer ticketstore.AggregateSigner, logger log.Logger) (*Node, error) {
	if logger == nil {
		logger = log.Root()
	}

	self, err := parseAddress(cfg.Chain.Self)
	if err != nil {
		return nil, fmt.Errorf("hoprd: chain.self: %w", err)
	}
	safe, err := parseAddress(cfg.Chain.Safe)
	if err != nil {
		return nil, fmt.Errorf("hoprd: chain.safe: %w", err)
	}
	contracts, err := parseContracts(cfg)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, err
	}

	channel := channelstore.New()
	ticket := ticketstore.New(db, channel, self, verifier, signer)
	state := chainstate.New()

	registry := prometheus.NewRegistry()
	metrics := chainindexer.NewMetrics(registry)
	indexer := chainindexer.New(contracts, channel, ticket, state, rpc, self, safe, metrics, logger)

	sessions, err := session.New(session.Config{
		Self:            substrate.PeerID(cfg.Node.Self),
		ReservedTag:     cfg.Node.ReservedTag,
		SessionTagStart: cfg.Session.TagStart,
		SessionTagEnd:   cfg.Session.TagEnd,
		MaxSessions:     cfg.Session.MaxSessions,
		IdleTTL:         time.Duration(cfg.Session.IdleTTLSeconds) * time.Second,
		ForwardHops:     cfg.Session.ForwardHops,
		ReturnHops:      cfg.Session.ReturnHops,
		DataMTU:         cfg.Session.DataMTU,
	}, sink, logger, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hoprd: starting session manager: %w", err)
	}

	return &Node{
		cfg:      cfg,
		log:      logger,
		db:       db,
		channel:  channel,
		ticket:   ticket,
		state:    state,
		indexer:  indexer,
		rpc:      rpc,
		sessions: sessions,
		registry: registry,
	}, nil
}

// runIndexer subscribes to contract logs from fromBlock and applies each log
// inside its own storage transaction: a log whose handling fails has its
// writes rolled back and is logged, and the block's remaining logs are still
// applied. It runs until ctx is canceled or the subscription reports an
// error.
func (n *Node) runIndexer(ctx context.Context, contracts []domain.Address, fromBlock uint64) error {
	blocks, errs := n.rpc.SubscribeLogs(ctx, fromBlock, contracts)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("hoprd: chain subscription: %w", err)
			}
		case blk, ok := <-blocks:
			if !ok {
				return nil
			}
			for _, lg := range blk.Logs {
				if err := n.db.Perform(ctx, func(ctx context.Context, tx *storage.Tx) error {
					_, err := n.indexer.HandleLog(ctx, tx, lg, blk.Synced)
					return err
				}); err != nil {
					n.log.Error("dropping log, its writes rolled back", "block", blk.BlockNumber, "event", lg.EventName, "err", err)
				}
			}
		}
	}
}

// pump reads substrate packets from source and hands each one to the
// session manager, for as long as ctx is alive, logging and continuing on
// any dispatch error rather than tearing the node down for a single bad
// packet.
func (n *Node) pump(ctx context.Context, source substrate.Source) {
	for {
		from, data, err := source.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				n.log.Error("substrate source closed", "err", err)
			}
			return
		}
		if _, _, err := n.sessions.DispatchMessage(ctx, from, data.Tag, data.Payload, data.SurbCount); err != nil {
			n.log.Debug("dropping inbound packet", "tag", data.Tag, "err", err)
		}
	}
}

// Close stops the session manager's background sweep and closes the store.
func (n *Node) Close() error {
	n.sessions.Close()
	return n.db.Close()
}

func parseAddress(s string) (domain.Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return domain.Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	return domain.AddressFromBytes(b)
}

func parseContracts(cfg *Config) (chainindexer.ContractAddresses, error) {
	var out chainindexer.ContractAddresses
	type field struct {
		name string
		src  string
		dst  *domain.Address
	}
	for _, f := range []field{
		{"channels", cfg.Chain.Channels, &out.Channels},
		{"token", cfg.Chain.Token, &out.Token},
		{"network_registry", cfg.Chain.NetworkRegistry, &out.NetworkRegistry},
		{"ticket_price_oracle", cfg.Chain.TicketPriceOracle, &out.TicketPriceOracle},
		{"win_prob_oracle", cfg.Chain.WinProbOracle, &out.WinProbOracle},
	} {
		addr, err := parseAddress(f.src)
		if err != nil {
			return out, fmt.Errorf("hoprd: chain.%s: %w", f.name, err)
		}
		*f.dst = addr
	}
	return out, nil
}
