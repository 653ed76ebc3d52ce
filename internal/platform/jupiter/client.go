// Package jupiter is the REST client for the Jupiter swap aggregator. It
// serves two roles for the engine: the swap execution boundary (quote and
// transaction build) and the price oracle (pair rate and SOL/USD valuation).
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// SOLMint is the wrapped-SOL mint address used as the quote asset.
const SOLMint = "So11111111111111111111111111111111111111112"

// priceProbeLamports is the SOL amount quoted to derive a spot price.
// Small enough to avoid moving thin books, large enough to get a route.
const priceProbeLamports = 1_000_000

// Client is the Jupiter REST client.
type Client struct {
	quoteHost  string
	priceHost  string
	httpClient *http.Client
}

// New creates a Jupiter client.
//
// quoteHost is the quote/swap API root, e.g. "https://quote-api.jup.ag".
// priceHost is the price API root, e.g. "https://lite-api.jup.ag".
func New(quoteHost, priceHost string) *Client {
	return &Client{
		quoteHost: quoteHost,
		priceHost: priceHost,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Quote requests an executable quote for swapping amount base units of
// inMint into outMint at the given slippage tolerance.
func (c *Client) Quote(ctx context.Context, inMint, outMint string, amount uint64, slippageBps int) (domain.SwapQuote, error) {
	params := url.Values{}
	params.Set("inputMint", inMint)
	params.Set("outputMint", outMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	body, err := c.doGet(ctx, c.quoteHost+"/v6/quote?"+params.Encode())
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: quote %s->%s: %w", inMint, outMint, err)
	}

	var q apiQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	if q.Error != "" {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: quote %s->%s: %s: %w", inMint, outMint, q.Error, domain.ErrNoQuote)
	}

	inAmt, err := strconv.ParseUint(q.InAmount, 10, 64)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: parse inAmount %q: %w", q.InAmount, err)
	}
	outAmt, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: parse outAmount %q: %w", q.OutAmount, err)
	}
	if outAmt == 0 {
		return domain.SwapQuote{}, fmt.Errorf("jupiter: quote %s->%s returned zero out: %w", inMint, outMint, domain.ErrNoQuote)
	}

	return domain.SwapQuote{
		InMint:    inMint,
		OutMint:   outMint,
		InAmount:  inAmt,
		OutAmount: outAmt,
		Raw:       body,
	}, nil
}

// BuildSwap exchanges a quote for a serialized, signable transaction. The
// quote's raw payload is forwarded verbatim, as the aggregator requires.
func (c *Client) BuildSwap(ctx context.Context, quote domain.SwapQuote, userPublicKey string) ([]byte, error) {
	req := apiSwapRequest{
		QuoteResponse:           json.RawMessage(quote.Raw),
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		PrioritizationFee:       "auto",
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.quoteHost+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("jupiter: create swap request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jupiter: post swap: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter: read swap response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jupiter: swap status %d: %s", resp.StatusCode, string(body))
	}

	var sr apiSwapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("jupiter: decode swap response: %w", err)
	}
	if sr.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter: swap response missing transaction (%s)", sr.Error)
	}

	tx, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter: decode swap transaction: %w", err)
	}
	return tx, nil
}

// PriceOf returns the current rate in SOL per base unit of mint, derived
// from a small probe quote. A quote with no route reports zero with a nil
// error: an unreadable price is a policy signal (forced exit), not a fault.
// Transport failures are returned as errors so the caller can distinguish
// an unreachable oracle from a delisted asset.
func (c *Client) PriceOf(ctx context.Context, mint string) (float64, error) {
	params := url.Values{}
	params.Set("inputMint", SOLMint)
	params.Set("outputMint", mint)
	params.Set("amount", strconv.Itoa(priceProbeLamports))
	params.Set("slippageBps", "100")

	body, err := c.doGet(ctx, c.quoteHost+"/v6/quote?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("jupiter: price probe %s: %w", mint, err)
	}

	var q apiQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return 0, fmt.Errorf("jupiter: decode price probe: %w", err)
	}
	if q.Error != "" {
		// No route: illiquid or delisted. Reads as zero by design.
		return 0, nil
	}
	outAmt, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil || outAmt == 0 {
		return 0, nil
	}

	solIn := float64(priceProbeLamports) / 1e9
	return solIn / float64(outAmt), nil
}

// SolPriceUSD returns the USD valuation rate for SOL, or zero when the
// price API has no answer. Zero means PnL accounting runs degraded; it is
// never treated as a trading error.
func (c *Client) SolPriceUSD(ctx context.Context) (float64, error) {
	body, err := c.doGet(ctx, c.priceHost+"/price/v2?ids="+SOLMint)
	if err != nil {
		return 0, fmt.Errorf("jupiter: sol price: %w", err)
	}

	var pr apiPriceResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return 0, fmt.Errorf("jupiter: decode sol price: %w", err)
	}

	entry, ok := pr.Data[SOLMint]
	if !ok {
		return 0, nil
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: parse sol price %q: %w", entry.Price, err)
	}
	return price, nil
}

// doGet performs a GET and returns the response body for 2xx statuses.
func (c *Client) doGet(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
