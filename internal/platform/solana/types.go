package solana

import "encoding/json"

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// contextValue unwraps RPC results of the form {"context": ..., "value": V}.
type contextValue[V any] struct {
	Value V `json:"value"`
}

// tokenAccountList is the jsonParsed result of getTokenAccountsByOwner.
type tokenAccountList struct {
	Value []struct {
		Pubkey  string `json:"pubkey"`
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount string `json:"amount"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// signatureStatus is one entry of a getSignatureStatuses result.
type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// latestBlockhash is the value of a getLatestBlockhash result.
type latestBlockhash struct {
	Blockhash string `json:"blockhash"`
}

// transactionMeta carries the fee of a confirmed transaction.
type transactionMeta struct {
	Meta struct {
		Fee uint64 `json:"fee"`
	} `json:"meta"`
}
