package models

import "strings"

// AssetKind distinguishes the two tracked asset families.
type AssetKind string

const (
	KindIndex  AssetKind = "index"
	KindCrypto AssetKind = "crypto"
)

// SymbolEntry maps a display name to an upstream identifier.
type SymbolEntry struct {
	Name   string    `yaml:"name" json:"name"`
	Symbol string    `yaml:"symbol" json:"symbol"`
	Kind   AssetKind `yaml:"kind" json:"kind"`
}

// SymbolTable is an ordered name to identifier lookup. Alerts key on Name.
type SymbolTable struct {
	entries []SymbolEntry
}

// NewSymbolTable builds a table from entries, keeping the first entry for a
// duplicated name.
func NewSymbolTable(entries ...SymbolEntry) *SymbolTable {
	t := &SymbolTable{}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		t.entries = append(t.entries, e)
	}
	return t
}

// DefaultIndices are the tracked equity indices.
var DefaultIndices = []SymbolEntry{
	{Name: "CAC 40", Symbol: "^FCHI", Kind: KindIndex},
	{Name: "S&P 500", Symbol: "^GSPC", Kind: KindIndex},
	{Name: "NASDAQ", Symbol: "^IXIC", Kind: KindIndex},
	{Name: "FTSE 100", Symbol: "^FTSE", Kind: KindIndex},
	{Name: "DAX", Symbol: "^GDAXI", Kind: KindIndex},
	{Name: "Nikkei 225", Symbol: "^N225", Kind: KindIndex},
}

// DefaultCrypto are the tracked crypto pairs.
var DefaultCrypto = []SymbolEntry{
	{Name: "Bitcoin", Symbol: "BINANCE:BTCUSDT", Kind: KindCrypto},
	{Name: "Ethereum", Symbol: "BINANCE:ETHUSDT", Kind: KindCrypto},
	{Name: "Binance Coin", Symbol: "BINANCE:BNBUSDT", Kind: KindCrypto},
	{Name: "Solana", Symbol: "BINANCE:SOLUSDT", Kind: KindCrypto},
	{Name: "Cardano", Symbol: "BINANCE:ADAUSDT", Kind: KindCrypto},
	{Name: "XRP", Symbol: "BINANCE:XRPUSDT", Kind: KindCrypto},
}

// DefaultSymbolTable returns indices followed by crypto pairs.
func DefaultSymbolTable() *SymbolTable {
	all := make([]SymbolEntry, 0, len(DefaultIndices)+len(DefaultCrypto))
	all = append(all, DefaultIndices...)
	all = append(all, DefaultCrypto...)
	return NewSymbolTable(all...)
}

// Entries returns a copy of the table in order.
func (t *SymbolTable) Entries() []SymbolEntry {
	out := make([]SymbolEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Kind returns the entries of one asset family.
func (t *SymbolTable) Kind(kind AssetKind) []SymbolEntry {
	var out []SymbolEntry
	for _, e := range t.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ByName looks up an entry by display name, case-insensitively.
func (t *SymbolTable) ByName(name string) (SymbolEntry, bool) {
	for _, e := range t.entries {
		if strings.EqualFold(e.Name, strings.TrimSpace(name)) {
			return e, true
		}
	}
	return SymbolEntry{}, false
}

// BySymbol looks up an entry by upstream identifier.
func (t *SymbolTable) BySymbol(symbol string) (SymbolEntry, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, e := range t.entries {
		if e.Symbol == symbol {
			return e, true
		}
	}
	return SymbolEntry{}, false
}

// Resolve accepts either a display name or an identifier.
func (t *SymbolTable) Resolve(ref string) (SymbolEntry, bool) {
	if e, ok := t.ByName(ref); ok {
		return e, true
	}
	return t.BySymbol(ref)
}

// Len returns the number of entries.
func (t *SymbolTable) Len() int {
	return len(t.entries)
}

// IsCryptoSymbol reports whether symbol uses the exchange pair notation.
func IsCryptoSymbol(symbol string) bool {
	return strings.HasPrefix(strings.ToUpper(symbol), "BINANCE:")
}
