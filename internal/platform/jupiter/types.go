package jupiter

// apiQuote is the wire shape of a /v6/quote response. Amount fields are
// decimal strings of base units.
type apiQuote struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error,omitempty"`
}

// apiSwapRequest is the payload for /v6/swap.
type apiSwapRequest struct {
	QuoteResponse           any    `json:"quoteResponse"`
	UserPublicKey           string `json:"userPublicKey"`
	WrapAndUnwrapSol        bool   `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool   `json:"dynamicComputeUnitLimit"`
	PrioritizationFee       string `json:"prioritizationFeeLamports"`
}

// apiSwapResponse is the wire shape of a /v6/swap response.
type apiSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"` // base64 serialized transaction
	Error           string `json:"error,omitempty"`
}

// apiPriceResponse is the wire shape of a /price/v2 response.
type apiPriceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}
