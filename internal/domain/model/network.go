package model

// Network identifies the source chain of a transaction. The values are
// stored verbatim in the transactions table, so they must stay stable.
type Network string

const (
	NetworkBase Network = "BASE"
	NetworkTON  Network = "TON"
)

func (n Network) String() string {
	return string(n)
}

// Valid reports whether n is a known network tag.
func (n Network) Valid() bool {
	return n == NetworkBase || n == NetworkTON
}
