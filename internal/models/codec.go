package models

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Persisted records have a fixed little-endian layout so that every record of a
// kind has the same size and slot offsets never move.
const (
	OrderSize            = 1 + 8 + 8 + 8 + 8
	MarketParametersSize = IdentitySize + 2 + 2 + 2 + 8 + 8
	UserLedgerSize       = IdentitySize + 8*5 + 1 + IdentitySize + OrderSize*MaxOrders
)

// ErrInvalidRecord is returned when a persisted record cannot be decoded
var ErrInvalidRecord = errors.New("invalid record")

var le = binary.LittleEndian

func putOrder(b []byte, o *Order) {
	b[0] = byte(o.Side)
	le.PutUint64(b[1:], o.Price)
	le.PutUint64(b[9:], o.SizeRemaining)
	le.PutUint64(b[17:], uint64(o.CreationTimestamp))
	le.PutUint64(b[25:], uint64(o.ExpiryTimestamp))
}

func readOrder(b []byte, o *Order) error {
	side := Side(b[0])
	if side != SideBid && side != SideAsk {
		return fmt.Errorf("%w: unknown order side %d", ErrInvalidRecord, b[0])
	}
	o.Side = side
	o.Price = le.Uint64(b[1:])
	o.SizeRemaining = le.Uint64(b[9:])
	o.CreationTimestamp = int64(le.Uint64(b[17:]))
	o.ExpiryTimestamp = int64(le.Uint64(b[25:]))
	return nil
}

// MarshalBinary encodes the order into its OrderSize byte layout
func (o Order) MarshalBinary() ([]byte, error) {
	b := make([]byte, OrderSize)
	putOrder(b, &o)
	return b, nil
}

// UnmarshalBinary decodes an order from its OrderSize byte layout
func (o *Order) UnmarshalBinary(b []byte) error {
	if len(b) != OrderSize {
		return fmt.Errorf("%w: order is %d bytes, expected %d", ErrInvalidRecord, len(b), OrderSize)
	}
	return readOrder(b, o)
}

// MarshalBinary encodes the market into its MarketParametersSize byte layout
func (m *MarketParameters) MarshalBinary() ([]byte, error) {
	b := make([]byte, MarketParametersSize)
	copy(b, m.Authority[:])
	off := IdentitySize
	le.PutUint16(b[off:], m.MakerRebateBps)
	le.PutUint16(b[off+2:], m.TakerFeeBps)
	le.PutUint16(b[off+4:], m.ReferralBps)
	le.PutUint64(b[off+6:], m.TotalFeesCollected)
	le.PutUint64(b[off+14:], m.TotalLiquidityRewardsDistributed)
	return b, nil
}

// UnmarshalBinary decodes a market from its MarketParametersSize byte layout
func (m *MarketParameters) UnmarshalBinary(b []byte) error {
	if len(b) != MarketParametersSize {
		return fmt.Errorf("%w: market is %d bytes, expected %d", ErrInvalidRecord, len(b), MarketParametersSize)
	}
	copy(m.Authority[:], b)
	off := IdentitySize
	m.MakerRebateBps = le.Uint16(b[off:])
	m.TakerFeeBps = le.Uint16(b[off+2:])
	m.ReferralBps = le.Uint16(b[off+4:])
	m.TotalFeesCollected = le.Uint64(b[off+6:])
	m.TotalLiquidityRewardsDistributed = le.Uint64(b[off+14:])
	return nil
}

// MarshalBinary encodes the ledger into its UserLedgerSize byte layout. An
// absent referrer is written as a zero flag followed by 32 zero bytes.
func (l *UserLedger) MarshalBinary() ([]byte, error) {
	b := make([]byte, UserLedgerSize)
	copy(b, l.Authority[:])
	off := IdentitySize
	for _, v := range []uint64{l.MakerVolume, l.TakerVolume, l.MakerRebatesEarned, l.TakerFeesPaid, l.LiquidityScore} {
		le.PutUint64(b[off:], v)
		off += 8
	}
	if l.Referrer != nil {
		b[off] = 1
		copy(b[off+1:], l.Referrer[:])
	}
	off += 1 + IdentitySize
	for i := range l.Orders {
		putOrder(b[off:off+OrderSize], &l.Orders[i])
		off += OrderSize
	}
	return b, nil
}

// UnmarshalBinary decodes a ledger from its UserLedgerSize byte layout
func (l *UserLedger) UnmarshalBinary(b []byte) error {
	if len(b) != UserLedgerSize {
		return fmt.Errorf("%w: ledger is %d bytes, expected %d", ErrInvalidRecord, len(b), UserLedgerSize)
	}
	var out UserLedger
	copy(out.Authority[:], b)
	off := IdentitySize
	for _, v := range []*uint64{&out.MakerVolume, &out.TakerVolume, &out.MakerRebatesEarned, &out.TakerFeesPaid, &out.LiquidityScore} {
		*v = le.Uint64(b[off:])
		off += 8
	}
	switch b[off] {
	case 0:
	case 1:
		var ref Identity
		copy(ref[:], b[off+1:off+1+IdentitySize])
		out.Referrer = &ref
	default:
		return fmt.Errorf("%w: bad referrer flag %d", ErrInvalidRecord, b[off])
	}
	off += 1 + IdentitySize
	for i := range out.Orders {
		if err := readOrder(b[off:off+OrderSize], &out.Orders[i]); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		off += OrderSize
	}
	*l = out
	return nil
}
