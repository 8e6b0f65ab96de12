package domain

// Source identifies the upstream market-data feed a record came from.
type Source string

const (
	SourceCoinGecko   Source = "coingecko"
	SourceDexScreener Source = "dexscreener"
	SourceStatic      Source = "static"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a known value.
func (s Source) IsValid() bool {
	switch s {
	case SourceCoinGecko, SourceDexScreener, SourceStatic:
		return true
	}
	return false
}
