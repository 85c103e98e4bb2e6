package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// program error codes of the escrow program (anchor offsets them by 6000)
const (
	programErrNotOpen             = 6000
	programErrNotInProgress       = 6001
	programErrInsufficientFunds   = 6004
	programErrChallengeExpired    = 6005
	programErrConfirmationExpired = 6015
	programErrFundingExpired      = 6016

	// spl-token's InsufficientFunds
	tokenErrInsufficientFunds = 1
)

var requestID atomic.Uint64

func (c *Client) call(ctx context.Context, op, method string, params []any, out any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	var resp rpcResponse

	r, err := c.rpc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return newError(op, KindTimeout, err)
		}

		return newError(op, KindUnknown, err)
	}

	if r.IsError() {
		return newError(op, KindUnknown, fmt.Errorf("rpc http status %d", r.StatusCode()))
	}

	if resp.Error != nil {
		return newError(op, classify(resp.Error), resp.Error)
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(resp.Result, out)
	if err != nil {
		return newError(op, KindUnknown, fmt.Errorf("failed to decode %s result: %w", method, err))
	}

	return nil
}

type simulationData struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

// classify turns a JSON-RPC failure into a Kind. This is the only place that
// looks at the node's messages.
func classify(e *rpcError) Kind {
	var data simulationData
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &data)
	}

	if kind, ok := classifyCustom(data.Err); ok {
		return kind
	}

	text := strings.ToLower(e.Message + " " + strings.Join(data.Logs, " "))

	switch {
	case strings.Contains(text, "already been processed"), strings.Contains(text, "alreadyprocessed"):
		return KindAlreadyProcessed
	case strings.Contains(text, "insufficient"):
		return KindInsufficientFunds
	case strings.Contains(text, "blockhash not found"), strings.Contains(text, "expired"):
		return KindExpired
	case strings.Contains(text, "not open"):
		return KindNotOpen
	default:
		return KindUnknown
	}
}

// classifyCustom reads {"InstructionError":[0,{"Custom":6005}]}.
func classifyCustom(raw json.RawMessage) (Kind, bool) {
	if len(raw) == 0 {
		return KindUnknown, false
	}

	var txErr struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}

	err := json.Unmarshal(raw, &txErr)
	if err != nil || len(txErr.InstructionError) != 2 {
		return KindUnknown, false
	}

	var custom struct {
		Custom *int `json:"Custom"`
	}

	err = json.Unmarshal(txErr.InstructionError[1], &custom)
	if err != nil || custom.Custom == nil {
		return KindUnknown, false
	}

	switch *custom.Custom {
	case programErrNotOpen, programErrNotInProgress:
		return KindNotOpen, true
	case programErrInsufficientFunds, tokenErrInsufficientFunds:
		return KindInsufficientFunds, true
	case programErrChallengeExpired, programErrConfirmationExpired, programErrFundingExpired:
		return KindExpired, true
	default:
		return KindUnknown, false
	}
}
