// Package solana is a JSON-RPC client for the Solana chain covering the
// narrow surface the engine needs: balance reads, transaction submission
// with confirmation, and token-account cleanup.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/crypto"
	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// LamportsPerSOL converts between lamports and SOL.
const LamportsPerSOL = 1_000_000_000

// tokenProgramID is the SPL token program that owns all token accounts.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// Signer produces the one signature a close-account transaction needs. It is
// satisfied by *crypto.Wallet.
type Signer interface {
	PublicKey() string
	SignMessage(msg []byte) ([]byte, error)
}

// ClientConfig holds RPC endpoint parameters.
type ClientConfig struct {
	RPCURL          string
	Commitment      string        // "confirmed" or "finalized"
	ConfirmTimeout  time.Duration // how long SubmitAndConfirm waits for finality
	ConfirmInterval time.Duration // polling cadence for signature status
}

// Client is the Solana RPC client.
type Client struct {
	cfg        ClientConfig
	signer     Signer
	httpClient *http.Client
	nextID     atomic.Int64
}

// New creates a Client. Zero-valued timeouts fall back to 60s confirmation
// with a 2s polling interval.
func New(cfg ClientConfig, signer Signer) *Client {
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 2 * time.Second
	}
	return &Client{
		cfg:    cfg,
		signer: signer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// call performs one JSON-RPC request and unmarshals the result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("solana: marshal %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("solana: create %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("solana: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("solana: read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("solana: %s status %d: %s", method, resp.StatusCode, string(body))
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("solana: decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("solana: %s rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("solana: decode %s result: %w", method, err)
		}
	}
	return nil
}

// Balance returns the wallet's SOL balance in lamports.
func (c *Client) Balance(ctx context.Context, pubkey string) (uint64, error) {
	var result contextValue[uint64]
	err := c.call(ctx, "getBalance",
		[]any{pubkey, map[string]any{"commitment": c.cfg.Commitment}}, &result)
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// TokenBalance returns the live base-unit balance the owner holds of mint,
// plus the address of the holding token account. A missing token account
// reads as a zero balance, which the engine treats as an externally closed
// position.
func (c *Client) TokenBalance(ctx context.Context, owner, mint string) (uint64, string, error) {
	var result tokenAccountList
	err := c.call(ctx, "getTokenAccountsByOwner",
		[]any{
			owner,
			map[string]any{"mint": mint},
			map[string]any{"encoding": "jsonParsed", "commitment": c.cfg.Commitment},
		}, &result)
	if err != nil {
		return 0, "", err
	}
	if len(result.Value) == 0 {
		return 0, "", nil
	}

	var total uint64
	for _, acc := range result.Value {
		amt, parseErr := strconv.ParseUint(acc.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if parseErr != nil {
			return 0, "", fmt.Errorf("solana: parse token amount %q: %w", acc.Account.Data.Parsed.Info.TokenAmount.Amount, parseErr)
		}
		total += amt
	}
	return total, result.Value[0].Pubkey, nil
}

// LatestBlockhash returns a recent blockhash for transaction construction.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	var result contextValue[latestBlockhash]
	err := c.call(ctx, "getLatestBlockhash",
		[]any{map[string]any{"commitment": c.cfg.Commitment}}, &result)
	if err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

// SubmitAndConfirm broadcasts a signed transaction and polls its signature
// status until the configured commitment is reached or the confirmation
// window expires. On success it best-effort fetches the fee paid.
func (c *Client) SubmitAndConfirm(ctx context.Context, signedTx []byte) (domain.Settlement, error) {
	var signature string
	err := c.call(ctx, "sendTransaction",
		[]any{
			base64.StdEncoding.EncodeToString(signedTx),
			map[string]any{"encoding": "base64", "skipPreflight": true, "maxRetries": 2},
		}, &signature)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("broadcast: %w", err)
	}

	if err := c.awaitConfirmation(ctx, signature); err != nil {
		return domain.Settlement{}, err
	}

	return domain.Settlement{
		Signature: signature,
		FeeSOL:    c.transactionFee(ctx, signature),
	}, nil
}

// awaitConfirmation polls getSignatureStatuses until the signature reaches
// the configured commitment, fails on-chain, or the window expires.
func (c *Client) awaitConfirmation(ctx context.Context, signature string) error {
	deadline := time.Now().Add(c.cfg.ConfirmTimeout)
	ticker := time.NewTicker(c.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		var result contextValue[[]*signatureStatus]
		err := c.call(ctx, "getSignatureStatuses",
			[]any{[]string{signature}, map[string]any{"searchTransactionHistory": false}}, &result)
		if err == nil && len(result.Value) == 1 && result.Value[0] != nil {
			st := result.Value[0]
			if len(st.Err) > 0 && string(st.Err) != "null" {
				return fmt.Errorf("transaction %s failed on-chain: %s: %w", signature, string(st.Err), domain.ErrSettlementFailed)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("transaction %s unconfirmed after %s: %w", signature, c.cfg.ConfirmTimeout, domain.ErrSettlementFailed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// transactionFee fetches the fee paid by a confirmed transaction in SOL.
// Failures read as zero; the fee is informational only.
func (c *Client) transactionFee(ctx context.Context, signature string) float64 {
	var result transactionMeta
	err := c.call(ctx, "getTransaction",
		[]any{signature, map[string]any{"maxSupportedTransactionVersion": 0, "commitment": c.cfg.Commitment}}, &result)
	if err != nil {
		return 0
	}
	return float64(result.Meta.Fee) / LamportsPerSOL
}

// CloseTokenAccount reclaims the rent of an empty token account by building,
// signing, and submitting an SPL close-account instruction. tokenAccount is
// the address previously reported by TokenBalance.
func (c *Client) CloseTokenAccount(ctx context.Context, tokenAccount string) error {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("solana: close account blockhash: %w", err)
	}

	msg, err := buildCloseAccountMessage(c.signer.PublicKey(), tokenAccount, blockhash)
	if err != nil {
		return fmt.Errorf("solana: build close account message: %w", err)
	}

	tx, err := c.signer.SignMessage(msg)
	if err != nil {
		return fmt.Errorf("solana: sign close account: %w", err)
	}

	if _, err := c.SubmitAndConfirm(ctx, tx); err != nil {
		return fmt.Errorf("solana: close account %s: %w", tokenAccount, err)
	}
	return nil
}

// buildCloseAccountMessage serializes a legacy transaction message with a
// single SPL CloseAccount instruction. Account order follows the message
// format: writable signers first, then writable non-signers, then readonly.
func buildCloseAccountMessage(owner, tokenAccount, blockhash string) ([]byte, error) {
	ownerKey, err := crypto.Base58Decode(owner)
	if err != nil || len(ownerKey) != 32 {
		return nil, fmt.Errorf("bad owner key %q", owner)
	}
	accountKey, err := crypto.Base58Decode(tokenAccount)
	if err != nil || len(accountKey) != 32 {
		return nil, fmt.Errorf("bad token account %q", tokenAccount)
	}
	programKey, err := crypto.Base58Decode(tokenProgramID)
	if err != nil {
		return nil, fmt.Errorf("bad program id: %w", err)
	}
	hash, err := crypto.Base58Decode(blockhash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("bad blockhash %q", blockhash)
	}

	var msg []byte
	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned.
	msg = append(msg, 1, 0, 1)
	// Account keys: owner (signer, writable; also the rent destination),
	// token account (writable), token program (readonly).
	msg = append(msg, 3)
	msg = append(msg, ownerKey...)
	msg = append(msg, accountKey...)
	msg = append(msg, programKey...)
	msg = append(msg, hash...)
	// One instruction: CloseAccount(9) with accounts [account, dest, owner].
	msg = append(msg, 1)
	msg = append(msg, 2)          // program id index
	msg = append(msg, 3, 1, 0, 0) // account indexes
	msg = append(msg, 1, 9)       // data: [9]
	return msg, nil
}
