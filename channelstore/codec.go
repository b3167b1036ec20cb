package channelstore

import (
	"fmt"

	"github.com/hoprnet/hopr-corego/domain"
	"github.com/hoprnet/hopr-corego/internal/bigendian"
)

// encodeChannel lays a Channel out as big-endian fixed-width fields so byte
// ordering matches numeric ordering.
func encodeChannel(ch domain.Channel) []byte {
	buf := make([]byte, 0, 20+20+8+8+1+4+8)
	buf = append(buf, ch.Source.Bytes()...)
	buf = append(buf, ch.Destination.Bytes()...)
	buf = bigendian.PutUint64(buf, ch.Balance)
	buf = bigendian.PutUint64(buf, ch.TicketIndex)
	buf = append(buf, byte(ch.Status))
	buf = bigendian.PutUint32(buf, ch.Epoch)
	buf = bigendian.PutUint64(buf, ch.ClosureTime)
	return buf
}

const encodedChannelLen = 20 + 20 + 8 + 8 + 1 + 4 + 8

func decodeChannel(id domain.ChannelID, raw []byte) (domain.Channel, error) {
	if len(raw) != encodedChannelLen {
		return domain.Channel{}, fmt.Errorf("channelstore: corrupt row for %s: len %d", id, len(raw))
	}
	src, err := domain.AddressFromBytes(raw[0:20])
	if err != nil {
		return domain.Channel{}, err
	}
	dst, err := domain.AddressFromBytes(raw[20:40])
	if err != nil {
		return domain.Channel{}, err
	}
	return domain.Channel{
		ID:          id,
		Source:      src,
		Destination: dst,
		Balance:     bigendian.Uint64(raw[40:48]),
		TicketIndex: bigendian.Uint64(raw[48:56]),
		Status:      domain.ChannelStatus(raw[56]),
		Epoch:       bigendian.Uint32(raw[57:61]),
		ClosureTime: bigendian.Uint64(raw[61:69]),
	}, nil
}
