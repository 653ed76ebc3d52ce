package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// rpcHandler routes incoming JSON-RPC calls to per-method responders, each
// returning the raw JSON for the result field.
type rpcHandler struct {
	methods map[string]func(params []json.RawMessage) string
	calls   map[string]int
}

func newRPCHandler() *rpcHandler {
	return &rpcHandler{
		methods: map[string]func([]json.RawMessage) string{},
		calls:   map[string]int{},
	}
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64             `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.calls[req.Method]++
	fn, ok := h.methods[req.Method]
	if !ok {
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, req.ID)
		return
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, fn(req.Params))
}

func newRPCClient(t *testing.T, h *rpcHandler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(ClientConfig{
		RPCURL:          srv.URL,
		Commitment:      "confirmed",
		ConfirmTimeout:  time.Second,
		ConfirmInterval: 5 * time.Millisecond,
	}, nil)
}

func TestBalance(t *testing.T) {
	h := newRPCHandler()
	h.methods["getBalance"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":1500000000}`
	}

	c := newRPCClient(t, h)
	got, err := c.Balance(context.Background(), "ownerPubkey")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), got)
}

func TestTokenBalanceSumsAccounts(t *testing.T) {
	h := newRPCHandler()
	h.methods["getTokenAccountsByOwner"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":[
			{"pubkey":"acct1","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"1000000"}}}}}},
			{"pubkey":"acct2","account":{"data":{"parsed":{"info":{"tokenAmount":{"amount":"250000"}}}}}}
		]}`
	}

	c := newRPCClient(t, h)
	amount, account, err := c.TokenBalance(context.Background(), "owner", "mintA")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_250_000), amount)
	assert.Equal(t, "acct1", account)
}

func TestTokenBalanceMissingAccountReadsZero(t *testing.T) {
	h := newRPCHandler()
	h.methods["getTokenAccountsByOwner"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":[]}`
	}

	c := newRPCClient(t, h)
	amount, account, err := c.TokenBalance(context.Background(), "owner", "mintA")
	require.NoError(t, err)
	assert.Zero(t, amount)
	assert.Empty(t, account)
}

func TestLatestBlockhash(t *testing.T) {
	h := newRPCHandler()
	h.methods["getLatestBlockhash"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":{"blockhash":"FwRYtTPRk5N4wUeP87rTw9kQVSwigB6kbikGzzeCMrW5"}}`
	}

	c := newRPCClient(t, h)
	hash, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FwRYtTPRk5N4wUeP87rTw9kQVSwigB6kbikGzzeCMrW5", hash)
}

func TestSubmitAndConfirm(t *testing.T) {
	h := newRPCHandler()
	polls := 0
	h.methods["sendTransaction"] = func([]json.RawMessage) string {
		return `"txsig111"`
	}
	h.methods["getSignatureStatuses"] = func([]json.RawMessage) string {
		polls++
		if polls < 3 {
			return `{"context":{"slot":1},"value":[null]}`
		}
		return `{"context":{"slot":1},"value":[{"confirmationStatus":"confirmed","err":null}]}`
	}
	h.methods["getTransaction"] = func([]json.RawMessage) string {
		return `{"meta":{"fee":5000}}`
	}

	c := newRPCClient(t, h)
	settlement, err := c.SubmitAndConfirm(context.Background(), []byte("signed"))
	require.NoError(t, err)
	assert.Equal(t, "txsig111", settlement.Signature)
	assert.InDelta(t, 0.000005, settlement.FeeSOL, 1e-12)
	assert.GreaterOrEqual(t, polls, 3, "confirmation is polled until the status lands")
}

func TestSubmitAndConfirmOnChainFailure(t *testing.T) {
	h := newRPCHandler()
	h.methods["sendTransaction"] = func([]json.RawMessage) string {
		return `"txsig222"`
	}
	h.methods["getSignatureStatuses"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":[{"confirmationStatus":"processed","err":{"InstructionError":[2,{"Custom":6001}]}}]}`
	}

	c := newRPCClient(t, h)
	_, err := c.SubmitAndConfirm(context.Background(), []byte("signed"))
	assert.ErrorIs(t, err, domain.ErrSettlementFailed)
}

func TestSubmitAndConfirmTimeout(t *testing.T) {
	h := newRPCHandler()
	h.methods["sendTransaction"] = func([]json.RawMessage) string {
		return `"txsig333"`
	}
	h.methods["getSignatureStatuses"] = func([]json.RawMessage) string {
		return `{"context":{"slot":1},"value":[null]}`
	}

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(ClientConfig{
		RPCURL:          srv.URL,
		ConfirmTimeout:  30 * time.Millisecond,
		ConfirmInterval: 5 * time.Millisecond,
	}, nil)

	_, err := c.SubmitAndConfirm(context.Background(), []byte("signed"))
	assert.ErrorIs(t, err, domain.ErrSettlementFailed)
}

func TestCallSurfacesRPCErrors(t *testing.T) {
	h := newRPCHandler() // no methods registered, every call errors

	c := newRPCClient(t, h)
	_, err := c.Balance(context.Background(), "owner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestBuildCloseAccountMessage(t *testing.T) {
	owner := "4Nd1mY5c6vBhDrmZqqCTWBYpA36rcE5arYVgi6fKLmfq"
	account := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	blockhash := "FwRYtTPRk5N4wUeP87rTw9kQVSwigB6kbikGzzeCMrW5"

	msg, err := buildCloseAccountMessage(owner, account, blockhash)
	require.NoError(t, err)

	// Header, key count, 3 keys, blockhash, then the instruction.
	require.Len(t, msg, 3+1+3*32+32+1+1+4+2)
	assert.Equal(t, []byte{1, 0, 1}, msg[:3])
	assert.Equal(t, byte(3), msg[3])
	tail := msg[len(msg)-8:]
	assert.Equal(t, []byte{1, 2, 3, 1, 0, 0, 1, 9}, tail)
}

func TestBuildCloseAccountMessageRejectsBadKeys(t *testing.T) {
	_, err := buildCloseAccountMessage("short", "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "FwRYtTPRk5N4wUeP87rTw9kQVSwigB6kbikGzzeCMrW5")
	assert.Error(t, err)
}
