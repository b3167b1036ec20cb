package ticketstore

import (
	"fmt"

	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/internal/bigendian"
)

const (
	ticketPrefix byte = 't'
	statsPrefix  byte = 's'
	outIdxPrefix byte = 'o'

	globalStatsKey = "g"
)

func ticketKey(ch domain.ChannelID, index uint64) []byte {
	k := append([]byte{ticketPrefix}, ch.Bytes()...)
	return bigendian.PutUint64(k, index)
}

func ticketChannelPrefix(ch domain.ChannelID) []byte {
	return append([]byte{ticketPrefix}, ch.Bytes()...)
}

func statsKey(ch domain.ChannelID) []byte {
	return append([]byte{statsPrefix}, ch.Bytes()...)
}

func outIdxKey(ch domain.ChannelID) []byte {
	return append([]byte{outIdxPrefix}, ch.Bytes()...)
}

// encodedTicketLen is epoch(4) + offset(4) + amount(8) + winprob(7) +
// challenge(32) + response(32) + signature(64) + status(1).
const encodedTicketLen = 4 + 4 + 8 + 7 + 32 + 32 + 64 + 1

func encodeTicket(t domain.AckTicket) []byte {
	buf := make([]byte, 0, encodedTicketLen)
	buf = bigendian.PutUint32(buf, t.Epoch)
	buf = bigendian.PutUint32(buf, t.IndexOffset)
	buf = bigendian.PutUint64(buf, t.Amount)
	wp := t.WinProb.Bytes()
	buf = append(buf, wp[:]...)
	buf = append(buf, t.Challenge[:]...)
	buf = append(buf, t.Response[:]...)
	buf = append(buf, t.Signature[:]...)
	buf = append(buf, byte(t.Status))
	return buf
}

func decodeTicket(ch domain.ChannelID, index uint64, raw []byte) (domain.AckTicket, error) {
	if len(raw) != encodedTicketLen {
		return domain.AckTicket{}, fmt.Errorf("ticketstore: corrupt ticket row len %d", len(raw))
	}
	var t domain.AckTicket
	t.ChannelID = ch
	t.Index = index
	t.Epoch = bigendian.Uint32(raw[0:4])
	t.IndexOffset = bigendian.Uint32(raw[4:8])
	t.Amount = bigendian.Uint64(raw[8:16])
	var wp [7]byte
	copy(wp[:], raw[16:23])
	t.WinProb = domain.WinProbFromBytes(wp)
	copy(t.Challenge[:], raw[23:55])
	copy(t.Response[:], raw[55:87])
	copy(t.Signature[:], raw[87:151])
	t.Status = domain.TicketStatus(raw[151])
	return t, nil
}

const encodedStatsLen = 8 + 8 + 8 + 8

func encodeStats(s domain.TicketStatistics) []byte {
	buf := make([]byte, 0, encodedStatsLen)
	buf = bigendian.PutUint64(buf, s.NeglectedValue)
	buf = bigendian.PutUint64(buf, s.RedeemedValue)
	buf = bigendian.PutUint64(buf, s.RejectedValue)
	buf = bigendian.PutUint64(buf, s.WinningTicketsCount)
	return buf
}

func decodeStats(raw []byte) (domain.TicketStatistics, error) {
	if len(raw) != encodedStatsLen {
		return domain.TicketStatistics{}, fmt.Errorf("ticketstore: corrupt stats row len %d", len(raw))
	}
	return domain.TicketStatistics{
		NeglectedValue:      bigendian.Uint64(raw[0:8]),
		RedeemedValue:       bigendian.Uint64(raw[8:16]),
		RejectedValue:       bigendian.Uint64(raw[16:24]),
		WinningTicketsCount: bigendian.Uint64(raw[24:32]),
	}, nil
}
