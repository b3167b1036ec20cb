package ticketstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-corego/channelstore"
	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/storage"
	"github.com/hoprnet/hopr-corego/ticketstore"
)

const ticketValue = 1000

func newFixture(t *testing.T) (*storage.DB, *channelstore.Store, *ticketstore.Store, domain.Address) {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cs := channelstore.New()
	var self domain.Address
	self[0] = 0xAA
	ts := ticketstore.New(db, cs, self, ticketstore.TrustingVerifier{}, ticketstore.ZeroSigner{})
	return db, cs, ts, self
}

func putChannel(t *testing.T, db *storage.DB, cs *channelstore.Store, ch domain.Channel) {
	t.Helper()
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return cs.Insert(tx, ch)
	}))
}

// Aggregation: preparing a batch and then locally combining it.
func TestPrepareAggregationAndLocalAggregate(t *testing.T) {
	db, cs, ts, self := newFixture(t)

	var bob domain.Address
	bob[0] = 0xBB
	inID := domain.NewChannelID(bob, self)
	putChannel(t, db, cs, domain.Channel{ID: inID, Source: bob, Destination: self, Balance: 10 * ticketValue, Status: domain.StatusOpen, Epoch: 1})

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		for i := uint64(0); i < 5; i++ {
			tk := domain.AckTicket{
				ChannelID: inID, Epoch: 1, Index: i, IndexOffset: 1,
				Amount: ticketValue, WinProb: domain.WinProbOne, Status: domain.Untouched,
			}
			if err := ts.PutTicket(tx, tk); err != nil {
				return err
			}
		}
		return nil
	}))

	var selected []domain.AckTicket
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		var err error
		selected, err = ts.PrepareAggregation(tx, inID, ticketstore.AggregationPrerequisites{}, domain.WinProbFromFloat(0.01), 0)
		return err
	}))
	require.Len(t, selected, 5)

	outID := domain.NewChannelID(self, bob)
	putChannel(t, db, cs, domain.Channel{ID: outID, Source: self, Destination: bob, Balance: 10 * ticketValue, Status: domain.StatusOpen, Epoch: 1})

	var outTickets []domain.AckTicket
	for i := uint64(0); i < 5; i++ {
		outTickets = append(outTickets, domain.AckTicket{
			ChannelID: outID, Epoch: 1, Index: i, IndexOffset: 1, Amount: ticketValue, WinProb: domain.WinProbOne,
		})
	}

	var agg domain.AckTicket
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		var err error
		agg, err = ts.LocalAggregate(tx, outTickets, domain.WinProbFromFloat(0.01))
		return err
	}))
	require.Equal(t, uint64(0), agg.Index)
	require.Equal(t, uint32(5), agg.IndexOffset)
	require.Equal(t, uint64(5*ticketValue), agg.Amount)
	require.Equal(t, domain.WinProbOne, agg.WinProb)
	require.Equal(t, uint32(1), agg.Epoch)

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		idx, err := ts.GetOutgoingTicketIndex(tx, outID)
		require.NoError(t, err)
		require.Equal(t, uint64(5), idx.Load())
		return nil
	}))
}

// A winning-probability increase rejects every ticket that falls below it.
func TestMarkTicketsRejectedOnWinProbIncrease(t *testing.T) {
	db, cs, ts, self := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	inID := domain.NewChannelID(bob, self)
	putChannel(t, db, cs, domain.Channel{ID: inID, Source: bob, Destination: self, Balance: 100 * ticketValue, Status: domain.StatusOpen, Epoch: 1})

	probs := []float64{0.1, 1.0, 0.3, 0.2}
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		for i, p := range probs {
			tk := domain.AckTicket{
				ChannelID: inID, Epoch: 1, Index: uint64(i), IndexOffset: 1,
				Amount: ticketValue, WinProb: domain.WinProbFromFloat(p), Status: domain.Untouched,
			}
			if err := ts.PutTicket(tx, tk); err != nil {
				return err
			}
		}
		return nil
	}))

	newMin := domain.WinProbFromFloat(0.5)
	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		sel := ticketstore.NewSelector().Channels(inID).WinProbRange(0, newMin)
		_, err := ts.MarkTicketsAs(tx, sel, ticketstore.Rejected)
		return err
	}))

	var expected uint64
	for _, p := range probs {
		if p < 0.5 {
			expected += uint64(float64(ticketValue) * p)
		}
	}

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		stats, err := ts.GetTicketStatistics(tx, &inID)
		require.NoError(t, err)
		require.Equal(t, expected, stats.RejectedValue)

		remaining, err := ts.GetTickets(tx, ticketstore.NewSelector().Channels(inID))
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		return nil
	}))
}

// Startup recovery resets a ticket stranded mid-redemption.
func TestFixupOnStartupResetsBeingRedeemed(t *testing.T) {
	db, cs, ts, self := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	inID := domain.NewChannelID(bob, self)
	putChannel(t, db, cs, domain.Channel{ID: inID, Source: bob, Destination: self, Balance: 10 * ticketValue, Status: domain.StatusOpen, Epoch: 1, TicketIndex: 3})

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		return ts.PutTicket(tx, domain.AckTicket{ChannelID: inID, Epoch: 1, Index: 3, IndexOffset: 1, Amount: ticketValue, WinProb: domain.WinProbOne, Status: domain.BeingRedeemed})
	}))

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		n, err := ts.FixupOnStartup(tx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return nil
	}))

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		tks, err := ts.GetTickets(tx, ticketstore.NewSelector().Channels(inID))
		require.NoError(t, err)
		require.Len(t, tks, 1)
		require.Equal(t, domain.Untouched, tks[0].Status)
		return nil
	}))
}

func TestOutgoingTicketIndexMonotonic(t *testing.T) {
	db, cs, ts, self := newFixture(t)
	var bob domain.Address
	bob[0] = 0xBB
	outID := domain.NewChannelID(self, bob)
	putChannel(t, db, cs, domain.Channel{ID: outID, Source: self, Destination: bob, Balance: 10 * ticketValue, Status: domain.StatusOpen, Epoch: 1})

	require.NoError(t, db.Perform(context.Background(), func(_ context.Context, tx *storage.Tx) error {
		old, err := ts.IncrementOutgoingTicketIndex(tx, outID)
		require.NoError(t, err)
		require.Equal(t, uint64(0), old)

		old, err = ts.CompareAndSetOutgoingTicketIndex(tx, outID, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(1), old) // CAS with lower value is a no-op

		old, err = ts.CompareAndSetOutgoingTicketIndex(tx, outID, 10)
		require.NoError(t, err)
		require.Equal(t, uint64(1), old)
		return nil
	}))

	n, err := ts.PersistOutgoingTicketIndices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
