package models

import (
	"golang.org/x/crypto/blake2b"
)

// Record key namespaces. A ledger key is a pure function of (market, owner), so
// the store's key uniqueness is what enforces one ledger per identity per market.
var (
	marketSeed = []byte("market")
	ledgerSeed = []byte("user_state")

	marketPrefix = []byte("m/")
	ledgerPrefix = []byte("u/")
)

func derive(seed []byte, parts ...[]byte) Identity {
	h, _ := blake2b.New256(nil)
	h.Write(seed)
	for _, p := range parts {
		h.Write(p)
	}
	var id Identity
	copy(id[:], h.Sum(nil))
	return id
}

// DeriveMarketID returns the market identity for an authority and a market label
func DeriveMarketID(authority Identity, label string) Identity {
	return derive(marketSeed, authority[:], []byte(label))
}

// DeriveLedgerAddress returns the deterministic address of a user's ledger in a market
func DeriveLedgerAddress(market, owner Identity) Identity {
	return derive(ledgerSeed, market[:], owner[:])
}

// MarketKey is the store key of a market's parameters record
func MarketKey(market Identity) []byte {
	return append(append([]byte{}, marketPrefix...), market[:]...)
}

// LedgerKey is the store key of a user's ledger record in a market
func LedgerKey(market, owner Identity) []byte {
	addr := DeriveLedgerAddress(market, owner)
	return append(append([]byte{}, ledgerPrefix...), addr[:]...)
}
