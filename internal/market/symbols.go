package market

import "strings"

// PatchSymbol appends the default exchange suffix when the raw ticker
// carries no exchange qualifier. Tickers that already contain a qualifier
// separator pass through unchanged.
func PatchSymbol(raw, suffix string) string {
	if strings.Contains(raw, ".") {
		return raw
	}
	return raw + suffix
}

// UniqueSymbols collapses raw tickers to the set of distinct canonical
// symbols. Order of the result is unspecified.
func UniqueSymbols(raw []string, suffix string) []string {
	seen := make(map[string]struct{}, len(raw))
	symbols := make([]string, 0, len(raw))
	for _, ticker := range raw {
		symbol := PatchSymbol(ticker, suffix)
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	return symbols
}
