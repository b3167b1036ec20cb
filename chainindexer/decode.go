package chainindexer

import (
	"fmt"

	"github.com/hoprnet/hopr-corego/chainrpc"
	"github.com/hoprnet/hopr-corego/domain"
)

// decodeEvent turns a raw log's Fields into one of the concrete Event types,
// keyed by EventName. Any missing or mistyped field is reported as
// ErrMalformedEvent; the ABI decoding that produced Fields in the first
// place lives below this package.
func decodeEvent(lg chainrpc.Log) (Event, error) {
	switch lg.EventName {
	case "KeyBinding":
		addr, err := fieldAddress(lg.Fields, "chainAddress")
		if err != nil {
			return nil, err
		}
		key, err := fieldBytes32(lg.Fields, "offchainKey")
		if err != nil {
			return nil, err
		}
		return KeyBindingEvent{ChainAddress: addr, OffchainKey: key}, nil

	case "AddressAnnouncement":
		addr, err := fieldAddress(lg.Fields, "chainAddress")
		if err != nil {
			return nil, err
		}
		ma, err := fieldString(lg.Fields, "multiaddress")
		if err != nil {
			return nil, err
		}
		return AddressAnnouncementEvent{ChainAddress: addr, MultiAddress: ma}, nil

	case "RevokeAnnouncement":
		addr, err := fieldAddress(lg.Fields, "chainAddress")
		if err != nil {
			return nil, err
		}
		return RevokeAnnouncementEvent{ChainAddress: addr}, nil

	case "ChannelOpened":
		src, err := fieldAddress(lg.Fields, "source")
		if err != nil {
			return nil, err
		}
		dst, err := fieldAddress(lg.Fields, "destination")
		if err != nil {
			return nil, err
		}
		return ChannelOpenedEvent{Source: src, Destination: dst}, nil

	case "ChannelBalanceIncreased", "ChannelBalanceDecreased":
		id, err := fieldChannelID(lg.Fields, "channelId")
		if err != nil {
			return nil, err
		}
		bal, err := fieldUint64(lg.Fields, "newBalance")
		if err != nil {
			return nil, err
		}
		return ChannelBalanceChangedEvent{ChannelID: id, NewBalance: bal, Increase: lg.EventName == "ChannelBalanceIncreased"}, nil

	case "OutgoingChannelClosureInitiated":
		id, err := fieldChannelID(lg.Fields, "channelId")
		if err != nil {
			return nil, err
		}
		t, err := fieldUint64(lg.Fields, "closureTime")
		if err != nil {
			return nil, err
		}
		return OutgoingChannelClosureInitiatedEvent{ChannelID: id, ClosureTime: t}, nil

	case "ChannelClosed":
		id, err := fieldChannelID(lg.Fields, "channelId")
		if err != nil {
			return nil, err
		}
		return ChannelClosedEvent{ChannelID: id}, nil

	case "TicketRedeemed":
		id, err := fieldChannelID(lg.Fields, "channelId")
		if err != nil {
			return nil, err
		}
		idx, err := fieldUint64(lg.Fields, "newIndex")
		if err != nil {
			return nil, err
		}
		return TicketRedeemedEvent{ChannelID: id, NewIndex: idx}, nil

	case "DomainSeparatorUpdated":
		v, err := fieldBytes32(lg.Fields, "domainSeparator")
		if err != nil {
			return nil, err
		}
		return DomainSeparatorUpdatedEvent{Slot: "channels", Value: v}, nil

	case "LedgerDomainSeparatorUpdated":
		v, err := fieldBytes32(lg.Fields, "ledgerDomainSeparator")
		if err != nil {
			return nil, err
		}
		return DomainSeparatorUpdatedEvent{Slot: "ledger", Value: v}, nil

	case "Transfer":
		from, err := fieldAddress(lg.Fields, "from")
		if err != nil {
			return nil, err
		}
		to, err := fieldAddress(lg.Fields, "to")
		if err != nil {
			return nil, err
		}
		v, err := fieldUint64(lg.Fields, "value")
		if err != nil {
			return nil, err
		}
		return TokenTransferEvent{From: from, To: to, Value: v}, nil

	case "Approval":
		owner, err := fieldAddress(lg.Fields, "owner")
		if err != nil {
			return nil, err
		}
		spender, err := fieldAddress(lg.Fields, "spender")
		if err != nil {
			return nil, err
		}
		v, err := fieldUint64(lg.Fields, "value")
		if err != nil {
			return nil, err
		}
		return TokenApprovalEvent{Owner: owner, Spender: spender, Value: v}, nil

	case "NetworkRegistryNodeRegistered", "NetworkRegistryNodeDeregistered", "NetworkRegistryNodeRegisteredByManager",
		"NetworkRegistryNodeEligibilityUpdated", "NetworkRegistryStatusUpdated":
		addr, err := fieldAddress(lg.Fields, "node")
		if err != nil {
			return nil, err
		}
		eligible, _ := fieldBool(lg.Fields, "eligible")
		registered, _ := fieldBool(lg.Fields, "registered")
		var kind NetworkRegistryKind
		switch lg.EventName {
		case "NetworkRegistryNodeRegistered":
			kind, registered = NetworkRegistryRegistered, true
		case "NetworkRegistryNodeDeregistered":
			kind, registered = NetworkRegistryDeregistered, false
		case "NetworkRegistryNodeRegisteredByManager":
			kind, registered = NetworkRegistryRegisteredByManager, true
		case "NetworkRegistryNodeEligibilityUpdated":
			kind = NetworkRegistryEligibilityUpdated
		case "NetworkRegistryStatusUpdated":
			kind = NetworkRegistryStatusUpdated
		}
		return NetworkRegistryEvent{Kind: kind, Address: addr, Eligible: eligible, Registered: registered}, nil

	case "TicketPriceUpdated":
		p, err := fieldUint64(lg.Fields, "newPrice")
		if err != nil {
			return nil, err
		}
		return TicketPriceUpdatedEvent{NewPrice: p}, nil

	case "WinProbUpdated":
		p, err := fieldUint64(lg.Fields, "newMinWinProb")
		if err != nil {
			return nil, err
		}
		return WinProbUpdatedEvent{NewMin: domain.WinProb(p)}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event name %q", ErrMalformedEvent, lg.EventName)
	}
}

func fieldAddress(fields map[string]any, key string) (domain.Address, error) {
	v, ok := fields[key]
	if !ok {
		return domain.Address{}, fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	switch a := v.(type) {
	case domain.Address:
		return a, nil
	case []byte:
		return domain.AddressFromBytes(a)
	default:
		return domain.Address{}, fmt.Errorf("%w: field %q has type %T, want address", ErrMalformedEvent, key, v)
	}
}

func fieldChannelID(fields map[string]any, key string) (domain.ChannelID, error) {
	v, ok := fields[key]
	if !ok {
		return domain.ChannelID{}, fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	switch c := v.(type) {
	case domain.ChannelID:
		return c, nil
	case []byte:
		return domain.ChannelIDFromBytes(c)
	default:
		return domain.ChannelID{}, fmt.Errorf("%w: field %q has type %T, want channel id", ErrMalformedEvent, key, v)
	}
}

func fieldBytes32(fields map[string]any, key string) ([32]byte, error) {
	v, ok := fields[key]
	if !ok {
		return [32]byte{}, fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	switch b := v.(type) {
	case [32]byte:
		return b, nil
	case []byte:
		if len(b) != 32 {
			return [32]byte{}, fmt.Errorf("%w: field %q has length %d, want 32", ErrMalformedEvent, key, len(b))
		}
		var out [32]byte
		copy(out[:], b)
		return out, nil
	default:
		return [32]byte{}, fmt.Errorf("%w: field %q has type %T, want 32 bytes", ErrMalformedEvent, key, v)
	}
}

func fieldUint64(fields map[string]any, key string) (uint64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: field %q is negative", ErrMalformedEvent, key)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("%w: field %q is negative", ErrMalformedEvent, key)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("%w: field %q has type %T, want integer", ErrMalformedEvent, key, v)
	}
}

func fieldString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q has type %T, want string", ErrMalformedEvent, key, v)
	}
	return s, nil
}

func fieldBool(fields map[string]any, key string) (bool, error) {
	v, ok := fields[key]
	if !ok {
		return false, fmt.Errorf("%w: missing field %q", ErrMalformedEvent, key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: field %q has type %T, want bool", ErrMalformedEvent, key, v)
	}
	return b, nil
}
