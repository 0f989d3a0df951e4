// Package wallet classifies text as cryptocurrency wallet addresses.
//
// Classification is a pure function over the candidate text: pattern and
// length checks per coin, no network lookups and no side effects. It is
// deliberately conservative; a false negative means one unprotected copy,
// a false positive means a spurious confirmation prompt.
package wallet

import (
	"regexp"
	"strings"
)

// Coin identifies the cryptocurrency an address belongs to.
type Coin string

const (
	Bitcoin  Coin = "bitcoin"
	Ethereum Coin = "ethereum"
	Litecoin Coin = "litecoin"
	Dogecoin Coin = "dogecoin"
	Solana   Coin = "solana"
	Ripple   Coin = "ripple"
	Monero   Coin = "monero"
	Cardano  Coin = "cardano"
	Tron     Coin = "tron"
)

// DisplayName returns a human-readable coin name for notifications.
func (c Coin) DisplayName() string {
	switch c {
	case Bitcoin:
		return "Bitcoin"
	case Ethereum:
		return "Ethereum"
	case Litecoin:
		return "Litecoin"
	case Dogecoin:
		return "Dogecoin"
	case Solana:
		return "Solana"
	case Ripple:
		return "XRP"
	case Monero:
		return "Monero"
	case Cardano:
		return "Cardano"
	case Tron:
		return "Tron"
	default:
		return string(c)
	}
}

// pattern pairs a compiled address regex with its coin. Order matters:
// more specific prefixes are tried before the generic base58 patterns,
// so a Litecoin "L..." address is never reported as Solana.
type pattern struct {
	re   *regexp.Regexp
	coin Coin
}

var patterns = []pattern{
	// Ethereum: 0x + 40 hex chars. Tron and others never collide.
	{regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`), Ethereum},

	// Bitcoin bech32 (BIP-173/350): bc1 + lowercase charset.
	{regexp.MustCompile(`^bc1[02-9ac-hj-np-z]{11,87}$`), Bitcoin},

	// Bitcoin legacy P2PKH (1...) and P2SH (3...), base58.
	{regexp.MustCompile(`^[13][1-9A-HJ-NP-Za-km-z]{25,34}$`), Bitcoin},

	// Litecoin legacy (L/M) and bech32 (ltc1).
	{regexp.MustCompile(`^[LM][1-9A-HJ-NP-Za-km-z]{26,33}$`), Litecoin},
	{regexp.MustCompile(`^ltc1[02-9ac-hj-np-z]{11,87}$`), Litecoin},

	// Dogecoin: D + base58, second char uppercase or digit.
	{regexp.MustCompile(`^D[5-9A-HJ-NP-U][1-9A-HJ-NP-Za-km-z]{24,33}$`), Dogecoin},

	// Ripple classic address: r + base58 (Ripple's own alphabet is a
	// permutation of base58; the charset check is identical).
	{regexp.MustCompile(`^r[1-9A-HJ-NP-Za-km-z]{24,34}$`), Ripple},

	// Tron: T + base58, fixed 34 chars total.
	{regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`), Tron},

	// Monero standard/integrated: 4 or 8 prefix, 95 or 106 chars total.
	{regexp.MustCompile(`^[48][1-9A-HJ-NP-Za-km-z]{94}$`), Monero},
	{regexp.MustCompile(`^[48][1-9A-HJ-NP-Za-km-z]{105}$`), Monero},

	// Cardano Shelley bech32.
	{regexp.MustCompile(`^addr1[02-9ac-hj-np-z]{50,103}$`), Cardano},

	// Solana: bare base58, 32-44 chars. Last because it overlaps every
	// other base58 family; the prefix-anchored patterns above win first.
	{regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`), Solana},
}

// Classification is the result of a successful classify call.
type Classification struct {
	Coin       Coin
	Normalized string
}

// Classify reports whether text is a recognized wallet address.
// The returned normalized form has surrounding whitespace removed;
// Ethereum addresses are additionally lowercased past the 0x prefix
// so checksummed and bare variants fingerprint-compare equal upstream.
func Classify(text string) (Classification, bool) {
	candidate := strings.TrimSpace(text)
	if candidate == "" || len(candidate) > 128 || strings.ContainsAny(candidate, " \t\n\r") {
		return Classification{}, false
	}

	for _, p := range patterns {
		if p.re.MatchString(candidate) {
			norm := candidate
			if p.coin == Ethereum {
				norm = "0x" + strings.ToLower(candidate[2:])
			}
			return Classification{Coin: p.coin, Normalized: norm}, true
		}
	}
	return Classification{}, false
}

// Coins returns the set of coins this classifier recognizes.
func Coins() []Coin {
	seen := make(map[Coin]bool)
	out := make([]Coin, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p.coin] {
			seen[p.coin] = true
			out = append(out, p.coin)
		}
	}
	return out
}
