package escrow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/common"
)

const (
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Client talks to the escrow program through a Solana JSON-RPC node.
type Client struct {
	rpc    *resty.Client
	logger *slog.Logger

	Mint string

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	BalanceTimeout time.Duration
}

func NewClient(endpoint, mint string, timeout time.Duration) *Client {
	rpc := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{
		rpc:            rpc,
		logger:         slog.Default(),
		Mint:           mint,
		ConfirmTimeout: 30 * time.Second,
		PollInterval:   time.Second,
		BalanceTimeout: 5 * time.Second,
	}
}

func NewEscrowService(i do.Injector) (*Client, error) {
	endpoint := do.MustInvokeNamed[string](i, "solana-rpc-url")
	mint := do.MustInvokeNamed[string](i, "token-mint")
	rules := do.MustInvokeNamed[*common.Rules](i, "rules")

	client := NewClient(endpoint, mint, 15*time.Second)
	client.logger = common.Logger(i).With("service", "escrow")
	client.BalanceTimeout = rules.BalanceTimeout.Duration

	return client, nil
}

type accountInfo struct {
	Value *struct {
		Data  []string `json:"data"`
		Owner string   `json:"owner"`
	} `json:"value"`
}

// Status reads the challenge account's status byte.
func (c *Client) Status(ctx context.Context, ref string) (OnChainStatus, error) {
	var info accountInfo

	err := c.call(ctx, "status", "getAccountInfo", []any{
		ref,
		map[string]any{"encoding": "base64", "commitment": CommitmentConfirmed},
	}, &info)
	if err != nil {
		return 0, err
	}

	if info.Value == nil || len(info.Value.Data) == 0 {
		return 0, newError("status", KindNotFound, fmt.Errorf("account %s not found", ref))
	}

	data, err := base64.StdEncoding.DecodeString(info.Value.Data[0])
	if err != nil {
		return 0, newError("status", KindUnknown, fmt.Errorf("failed to decode account data: %w", err))
	}

	if len(data) <= StatusOffset {
		return 0, newError("status", KindUnknown, fmt.Errorf("account data too short: %d bytes", len(data)))
	}

	return OnChainStatus(data[StatusOffset]), nil
}

type signatureStatus struct {
	Slot               uint64          `json:"slot"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

type signatureStatuses struct {
	Value []*signatureStatus `json:"value"`
}

func (c *Client) signatureStatus(ctx context.Context, op, signature string) (*signatureStatus, error) {
	var statuses signatureStatuses

	err := c.call(ctx, op, "getSignatureStatuses", []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}, &statuses)
	if err != nil {
		return nil, err
	}

	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return nil, nil
	}

	status := statuses.Value[0]

	if len(status.Err) > 0 && string(status.Err) != "null" {
		kind, ok := classifyCustom(status.Err)
		if !ok {
			kind = KindUnknown
		}

		return nil, newError(op, kind, fmt.Errorf("transaction %s failed: %s", signature, string(status.Err)))
	}

	return status, nil
}

func confirmed(status *signatureStatus) bool {
	return status != nil &&
		(status.ConfirmationStatus == CommitmentConfirmed || status.ConfirmationStatus == CommitmentFinalized)
}

type transaction struct {
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// VerifyDeposit checks that the entry-fee transfer landed: confirmed, and
// signed over both the depositor and the challenge account.
func (c *Client) VerifyDeposit(ctx context.Context, ref, wallet, signature string) error {
	status, err := c.signatureStatus(ctx, "deposit", signature)
	if err != nil {
		return err
	}

	if !confirmed(status) {
		return newError("deposit", KindUnconfirmed, fmt.Errorf("transaction %s not confirmed", signature))
	}

	var tx *transaction

	err = c.call(ctx, "deposit", "getTransaction", []any{
		signature,
		map[string]any{"encoding": "json", "commitment": CommitmentConfirmed, "maxSupportedTransactionVersion": 0},
	}, &tx)
	if err != nil {
		return err
	}

	if tx == nil {
		return newError("deposit", KindNotFound, fmt.Errorf("transaction %s not found", signature))
	}

	keys := tx.Transaction.Message.AccountKeys
	if !slices.Contains(keys, wallet) || !slices.Contains(keys, ref) {
		return newError("deposit", KindUnknown, errors.New("transaction does not move funds from this wallet into this escrow"))
	}

	return nil
}

// Release relays the winner-signed release transaction and waits for it to be
// confirmed. A transaction still unconfirmed at ConfirmTimeout is reported as
// KindPending with its signature.
func (c *Client) Release(ctx context.Context, ref, winner, signedTx string) (string, error) {
	var signature string

	err := c.call(ctx, "release", "sendTransaction", []any{
		signedTx,
		map[string]any{"encoding": "base64", "preflightCommitment": CommitmentConfirmed, "maxRetries": 0},
	}, &signature)
	if err != nil {
		return "", err
	}

	c.logger.Info("release submitted", "escrow", ref, "winner", winner, "signature", signature)

	return signature, c.waitConfirmed(ctx, "release", signature)
}

func (c *Client) waitConfirmed(ctx context.Context, op, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, c.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.signatureStatus(ctx, op, signature)

		switch {
		case err != nil && KindOf(err) != KindTimeout:
			return err
		case confirmed(status):
			return nil
		}

		select {
		case <-ctx.Done():
			return &Error{Kind: KindPending, Op: op, Signature: signature, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

type tokenAccounts struct {
	Value []struct {
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

// Balance sums the owner's token accounts for the arena mint, in base units.
func (c *Client) Balance(ctx context.Context, owner string) (int64, error) {
	var accounts tokenAccounts

	err := c.call(ctx, "balance", "getTokenAccountsByOwner", []any{
		owner,
		map[string]any{"mint": c.Mint},
		map[string]any{"encoding": "jsonParsed", "commitment": CommitmentConfirmed},
	}, &accounts)
	if err != nil {
		return 0, err
	}

	var total int64

	for _, account := range accounts.Value {
		amount, err := strconv.ParseInt(account.Account.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
		if err != nil {
			return 0, newError("balance", KindUnknown, fmt.Errorf("invalid token amount: %w", err))
		}

		total += amount
	}

	return total, nil
}

// BalanceOrZero is Balance bounded by BalanceTimeout; any failure reads as
// zero so a slow node never blocks the caller.
func (c *Client) BalanceOrZero(ctx context.Context, owner string) int64 {
	ctx, cancel := context.WithTimeout(ctx, c.BalanceTimeout)
	defer cancel()

	balance, err := c.Balance(ctx, owner)
	if err != nil {
		c.logger.Debug("balance read failed", "owner", owner, "error", err)

		return 0
	}

	return balance
}
