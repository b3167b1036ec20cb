package chainindexer_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/chainindexer"
	"github.com/hoprnet/hopr-corego/chainrpc"
	"github.com/hoprnet/hopr-corego/chainstate"
	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
	"github.com/hoprnet/hopr-corego/ticketstore"
)

type stubRPC struct {
	balance, allowance uint64
}

func (s *stubRPC) GetHoprBalance(ctx context.Context, addr domain.Address) (uint64, error) {
	return s.balance, nil
}
func (s *stubRPC) GetHoprAllowance(ctx context.Context, owner, spender domain.Address) (uint64, error) {
	return s.allowance, nil
}
func (s *stubRPC) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (s *stubRPC) SubscribeLogs(ctx context.Context, fromBlock uint64, contracts []domain.Address) (<-chan chainrpc.BlockWithLogs, <-chan error) {
	return nil, nil
}

func newFixture(t *testing.T) (*storage.DB, *channelstore.Store, *ticketstore.Store, *chainstate.Store, *chainindexer.Handler, domain.Address, chainindexer.ContractAddresses) {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cs := channelstore.New()
	var self domain.Address
	self[0] = 0xAA
	ts := ticketstore.New(db, cs, self, ticketstore.TrustingVerifier{}, ticketstore.ZeroSigner{})
	state := chainstate.New()

	var safe domain.Address
	safe[0] = 0x5A
	contracts := chainindexer.ContractAddresses{}
	contracts.Channels[1] = 0x01
	contracts.Token[1] = 0x02
	contracts.NetworkRegistry[1] = 0x03
	contracts.TicketPriceOracle[1] = 0x04
	contracts.WinProbOracle[1] = 0x05

	m := chainindexer.NewMetrics(prometheus.NewRegistry())
	h := chainindexer.New(contracts, cs, ts, state, &stubRPC{balance: 42, allowance: 7}, self, safe, m, nil)
	return db, cs, ts, state, h, self, contracts
}

func perform(t *testing.T, db *storage.DB, fn func(tx *storage.Tx) error) {
	t.Helper()
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return fn(tx)
	}))
}

func TestHandleLogUnknownContractReturnsError(t *testing.T) {
	db, _, _, _, h, _, _ := newFixture(t)
	var stray domain.Address
	stray[19] = 0xFF
	perform(t, db, func(tx *storage.Tx) error {
		sig, err := h.HandleLog(context.Background(), tx, chainrpc.Log{ContractAddress: stray, EventName: "ChannelOpened"}, true)
		require.ErrorIs(t, err, chainindexer.ErrUnknownContract)
		require.Nil(t, sig)
		return nil
	})
}

func TestChannelOpenedCreatesChannel(t *testing.T) {
	db, cs, _, _, h, self, contracts := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB

	perform(t, db, func(tx *storage.Tx) error {
		sig, err := h.HandleLog(context.Background(), tx, chainrpc.Log{
			ContractAddress: contracts.Channels,
			EventName:       "ChannelOpened",
			Fields:          map[string]any{"source": bob, "destination": self},
		}, true)
		require.NoError(t, err)
		require.NotNil(t, sig)
		require.Equal(t, chainindexer.SigChannelOpened, sig.Kind)
		return nil
	})

	id := domain.NewChannelID(bob, self)
	perform(t, db, func(tx *storage.Tx) error {
		ch, err := cs.Get(tx, id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusOpen, ch.Status)
		require.Equal(t, uint32(1), ch.Epoch)
		return nil
	})
}

// Replaying the same ChannelOpened log twice against an already-open
// channel is detected as an inconsistency and quarantines the row rather
// than silently reapplying the effect.
func TestChannelOpenedTwiceQuarantines(t *testing.T) {
	db, cs, _, _, h, self, contracts := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	lg := chainrpc.Log{
		ContractAddress: contracts.Channels,
		EventName:       "ChannelOpened",
		Fields:          map[string]any{"source": bob, "destination": self},
	}

	perform(t, db, func(tx *storage.Tx) error {
		_, err := h.HandleLog(context.Background(), tx, lg, true)
		return err
	})
	perform(t, db, func(tx *storage.Tx) error {
		sig, err := h.HandleLog(context.Background(), tx, lg, true)
		require.NoError(t, err)
		require.Nil(t, sig)
		return nil
	})

	id := domain.NewChannelID(bob, self)
	perform(t, db, func(tx *storage.Tx) error {
		_, err := cs.Get(tx, id)
		require.ErrorIs(t, err, channelstore.ErrCorrupted)
		return nil
	})
}

func TestTicketRedeemedMarksUniqueMatchAndNeglectsRest(t *testing.T) {
	db, cs, ts, _, h, self, contracts := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	id := domain.NewChannelID(bob, self)

	perform(t, db, func(tx *storage.Tx) error {
		return cs.Insert(tx, domain.Channel{ID: id, Source: bob, Destination: self, Balance: 10_000, Status: domain.StatusOpen, Epoch: 1})
	})
	perform(t, db, func(tx *storage.Tx) error {
		for i := uint64(0); i < 3; i++ {
			status := domain.Untouched
			if i == 1 {
				status = domain.BeingRedeemed
			}
			if err := ts.PutTicket(tx, domain.AckTicket{ChannelID: id, Epoch: 1, Index: i, IndexOffset: 1, Amount: 100, WinProb: domain.WinProbOne, Status: status}); err != nil {
				return err
			}
		}
		return nil
	})

	perform(t, db, func(tx *storage.Tx) error {
		sig, err := h.HandleLog(context.Background(), tx, chainrpc.Log{
			ContractAddress: contracts.Channels,
			EventName:       "TicketRedeemed",
			Fields:          map[string]any{"channelId": id, "newIndex": uint64(2)},
		}, true)
		require.NoError(t, err)
		require.Equal(t, chainindexer.SigTicketRedeemed, sig.Kind)
		return nil
	})

	perform(t, db, func(tx *storage.Tx) error {
		ch, err := cs.Get(tx, id)
		require.NoError(t, err)
		require.Equal(t, uint64(2), ch.TicketIndex)

		remaining, err := ts.GetTickets(tx, ticketstore.NewSelector().Channels(id))
		require.NoError(t, err)
		// Only index 0 lies strictly below the new index 2; ticket 2 stays.
		require.Len(t, remaining, 1)
		require.Equal(t, uint64(2), remaining[0].Index)
		return nil
	})

	perform(t, db, func(tx *storage.Tx) error {
		stats, err := ts.GetTicketStatistics(tx, &id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), stats.WinningTicketsCount)
		require.Equal(t, uint64(100), stats.RedeemedValue)
		require.Equal(t, uint64(100), stats.NeglectedValue)
		return nil
	})
}

func TestWinProbIncreaseRejectsBelowNewMinimum(t *testing.T) {
	db, cs, ts, state, h, self, contracts := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	id := domain.NewChannelID(bob, self)

	perform(t, db, func(tx *storage.Tx) error {
		if err := cs.Insert(tx, domain.Channel{ID: id, Source: bob, Destination: self, Balance: 10_000, Status: domain.StatusOpen, Epoch: 1}); err != nil {
			return err
		}
		return state.SetMinWinProb(tx, domain.WinProbFromFloat(0.1))
	})
	perform(t, db, func(tx *storage.Tx) error {
		return ts.PutTicket(tx, domain.AckTicket{ChannelID: id, Epoch: 1, Index: 0, IndexOffset: 1, Amount: 100, WinProb: domain.WinProbFromFloat(0.2), Status: domain.Untouched})
	})

	perform(t, db, func(tx *storage.Tx) error {
		_, err := h.HandleLog(context.Background(), tx, chainrpc.Log{
			ContractAddress: contracts.WinProbOracle,
			EventName:       "WinProbUpdated",
			Fields:          map[string]any{"newMinWinProb": uint64(domain.WinProbFromFloat(0.5))},
		}, true)
		return err
	})

	perform(t, db, func(tx *storage.Tx) error {
		remaining, err := ts.GetTickets(tx, ticketstore.NewSelector().Channels(id))
		require.NoError(t, err)
		require.Empty(t, remaining)
		stats, err := ts.GetTicketStatistics(tx, &id)
		require.NoError(t, err)
		require.Greater(t, stats.RejectedValue, uint64(0))
		return nil
	})
}
