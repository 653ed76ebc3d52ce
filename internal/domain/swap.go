package domain

// SwapQuote is an executable exchange quote for inMint -> outMint returned by
// the swap aggregator. Raw holds the aggregator's full quote payload; it must
// be passed back verbatim when building the transaction.
type SwapQuote struct {
	InMint    string
	OutMint   string
	InAmount  uint64
	OutAmount uint64
	Raw       []byte
}

// Settlement is the acknowledgement that a submitted transaction reached
// finality on the underlying market infrastructure.
type Settlement struct {
	Signature string
	FeeSOL    float64
}
