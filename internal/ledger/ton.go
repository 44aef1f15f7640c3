package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backend/internal/logger"

	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

const (
	existsMethodName = "election_exists"
	tallyMethodName  = "election_tally"

	// entries per tally cell before parsing follows the next reference
	tallyEntriesPerCell = 3

	// maxTallyEntries bounds the entry count reported by the contract so a
	// garbage reply cannot drive the allocation below
	maxTallyEntries = 4096
)

type TONClient struct {
	client          *tonapi.Client
	contractAddress string
	timeout         time.Duration
}

func NewTONClient(contractAddress string, apiToken string, timeout time.Duration) (*TONClient, error) {
	if _, err := ton.ParseAccountID(contractAddress); err != nil {
		return nil, fmt.Errorf("invalid election contract address %q: %w", contractAddress, err)
	}

	client, err := tonapi.NewClient(tonapi.TonApiURL, tonapi.WithToken(apiToken))
	if err != nil {
		return nil, err
	}

	return &TONClient{
		client:          client,
		contractAddress: contractAddress,
		timeout:         timeout,
	}, nil
}

type callFunc[T any] func() (T, error)

// rateLimitRetry retries a tonapi call once after a 429. User-facing read
// paths get exactly one bounded retry; anything more belongs to an
// out-of-band job.
func rateLimitRetry[T any](fn callFunc[T]) (T, error) {
	result, err := fn()
	if err != nil {
		var e *tonapi.ErrorStatusCode
		if errors.As(errors.Unwrap(err), &e) && e.StatusCode == 429 {
			time.Sleep(500 * time.Millisecond)
			return fn()
		}
	}

	return result, err
}

func (c *TONClient) Exists(ctx context.Context, handle int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := rateLimitRetry(
		func() (*tonapi.MethodExecutionResult, error) {
			return c.client.ExecGetMethodForBlockchainAccount(ctx, tonapi.ExecGetMethodForBlockchainAccountParams{
				AccountID:  c.contractAddress,
				MethodName: existsMethodName,
				Args:       []string{strconv.FormatInt(handle, 10)},
			})
		})
	if err != nil {
		logger.Warn("ledger exists check failed", zap.Int64("handle", handle), zap.Error(err))
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if !result.GetSuccess() {
		return false, nil
	}

	value, err := parseStackNum(result, 0)
	if err != nil {
		return false, err
	}

	return value != 0, nil
}

func (c *TONClient) GetTally(ctx context.Context, handle int64) ([]TallyEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := rateLimitRetry(
		func() (*tonapi.MethodExecutionResult, error) {
			return c.client.ExecGetMethodForBlockchainAccount(ctx, tonapi.ExecGetMethodForBlockchainAccountParams{
				AccountID:  c.contractAddress,
				MethodName: tallyMethodName,
				Args:       []string{strconv.FormatInt(handle, 10)},
			})
		})
	if err != nil {
		logger.Warn("ledger tally fetch failed", zap.Int64("handle", handle), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if !result.GetSuccess() {
		return nil, fmt.Errorf("%s get method failed for handle %d", tallyMethodName, handle)
	}

	return parseTallyResult(result, handle)
}

// parseTallyResult turns a successful get-method reply into tally entries.
// Every field of the reply is contract output and gets bounds-checked; a
// malformed reply is an error for this election only, never a panic.
func parseTallyResult(result *tonapi.MethodExecutionResult, handle int64) ([]TallyEntry, error) {
	count, err := parseStackNum(result, 0)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return []TallyEntry{}, nil
	}

	if count < 0 || count > maxTallyEntries {
		return nil, fmt.Errorf("%s returned implausible entry count %d for handle %d", tallyMethodName, count, handle)
	}

	stack := result.GetStack()
	if len(stack) < 2 {
		return nil, fmt.Errorf("%s returned %d stack entries for handle %d, want 2", tallyMethodName, len(stack), handle)
	}

	cellHex, ok := stack[1].GetCell().Get()
	if !ok {
		return nil, fmt.Errorf("%s returned no tally cell for handle %d", tallyMethodName, handle)
	}

	cells, err := boc.DeserializeBocHex(cellHex)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize tally cell: %w", err)
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("%s returned an empty tally boc for handle %d", tallyMethodName, handle)
	}

	return parseTallyCell(cells[0], count)
}

// parseTallyCell reads (256-bit opaque id, 32-bit count) pairs. Each cell
// carries up to tallyEntriesPerCell entries, then one reference to the
// continuation cell.
func parseTallyCell(cell *boc.Cell, count int64) ([]TallyEntry, error) {
	entries := make([]TallyEntry, 0, count)

	for i := int64(0); i < count; i++ {
		if i > 0 && i%tallyEntriesPerCell == 0 {
			next, err := cell.NextRef()
			if err != nil {
				return nil, fmt.Errorf("tally cell chain ended after %d of %d entries: %w", i, count, err)
			}
			cell = next
		}

		opaqueID := make([]byte, 32)
		for word := 0; word < 4; word++ {
			value, err := cell.ReadUint(64)
			if err != nil {
				return nil, fmt.Errorf("failed to read tally entry %d: %w", i, err)
			}
			binary.BigEndian.PutUint64(opaqueID[word*8:], value)
		}

		voteCount, err := cell.ReadUint(32)
		if err != nil {
			return nil, fmt.Errorf("failed to read tally entry %d count: %w", i, err)
		}

		entries = append(entries, TallyEntry{
			OpaqueID: hex.EncodeToString(opaqueID),
			Count:    int64(voteCount),
		})
	}

	return entries, nil
}

func parseStackNum(result *tonapi.MethodExecutionResult, index int) (int64, error) {
	stack := result.GetStack()
	if len(stack) <= index {
		return 0, fmt.Errorf("get method returned %d stack entries, want at least %d", len(stack), index+1)
	}

	numString, ok := stack[index].GetNum().Get()
	if !ok {
		return 0, fmt.Errorf("stack entry %d is not a number", index)
	}

	value, err := strconv.ParseInt(strings.TrimPrefix(numString, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stack entry %d: %w", index, err)
	}

	return value, nil
}
