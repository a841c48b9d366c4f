package ledger

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meme-cmd/memexp2000/errors"
)

type fakeFetcher struct {
	results []fetchOutcome
	calls   int
}

type fetchOutcome struct {
	res *rpc.GetTransactionResult
	err error
}

func (f *fakeFetcher) GetTransaction(_ context.Context, _ solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	outcome := f.results[len(f.results)-1]
	if f.calls < len(f.results) {
		outcome = f.results[f.calls]
	}
	f.calls++
	return outcome.res, outcome.err
}

func fastRetry() *errors.RetryConfig {
	return &errors.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}
}

// systemTransferData encodes a system program transfer instruction payload.
func systemTransferData(lamports uint64) []byte {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return data
}

func legacyTransferTx(t *testing.T, from, to solana.PublicKey, lamports uint64) *solana.Transaction {
	t.Helper()
	return &solana.Transaction{
		Signatures: []solana.Signature{{}},
		Message: solana.Message{
			Header: solana.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys:     []solana.PublicKey{from, to, solana.SystemProgramID},
			RecentBlockhash: solana.Hash{},
			Instructions: []solana.CompiledInstruction{
				{
					ProgramIDIndex: 2,
					Accounts:       []uint16{0, 1},
					Data:           solana.Base58(systemTransferData(lamports)),
				},
			},
		},
	}
}

func envelopeFor(t *testing.T, tx *solana.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	payload, err := json.Marshal([]interface{}{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)
	var envelope rpc.TransactionResultEnvelope
	require.NoError(t, json.Unmarshal(payload, &envelope))
	return &envelope
}

func resultFor(t *testing.T, tx *solana.Transaction, meta *rpc.TransactionMeta) *rpc.GetTransactionResult {
	t.Helper()
	return &rpc.GetTransactionResult{
		Slot:        42,
		Transaction: envelopeFor(t, tx),
		Meta:        meta,
	}
}

func testSignature() string {
	var sig solana.Signature
	sig[0] = 7
	return sig.String()
}

func TestFetchTransactionInvalidSignature(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchOutcome{{}}}
	reader := NewReaderWithClient(fetcher, "confirmed", fastRetry(), zerolog.Nop())

	_, err := reader.FetchTransaction(context.Background(), "not-base58!!")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	assert.Equal(t, 0, fetcher.calls, "malformed signatures must not reach the RPC node")
}

func TestFetchTransactionRetriesTransientErrors(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	success := resultFor(t, legacyTransferTx(t, from, to, 5000), &rpc.TransactionMeta{
		Fee:          5000,
		PreBalances:  []uint64{1_000_000, 0, 1},
		PostBalances: []uint64{990_000, 5000, 1},
	})

	fetcher := &fakeFetcher{results: []fetchOutcome{
		{err: fmt.Errorf("connection reset")},
		{res: nil},
		{res: success},
	}}
	reader := NewReaderWithClient(fetcher, "confirmed", fastRetry(), zerolog.Nop())

	tx, err := reader.FetchTransaction(context.Background(), testSignature())

	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, uint64(42), tx.Slot)
	assert.False(t, tx.Failed)
	require.Len(t, tx.AccountKeys, 3)
	assert.Equal(t, from.String(), tx.AccountKeys[0])
	assert.Equal(t, to.String(), tx.AccountKeys[1])
	assert.Equal(t, solana.SystemProgramID.String(), tx.AccountKeys[2])
	require.Len(t, tx.Instructions, 1)
	assert.Equal(t, systemTransferData(5000), tx.Instructions[0].Data)
}

func TestFetchTransactionNotFoundAfterRetries(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchOutcome{{res: nil}}}
	reader := NewReaderWithClient(fetcher, "confirmed", fastRetry(), zerolog.Nop())

	_, err := reader.FetchTransaction(context.Background(), testSignature())

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTxNotFound))
	assert.Equal(t, 3, fetcher.calls)
}

func TestFetchTransactionContextCancellation(t *testing.T) {
	fetcher := &fakeFetcher{results: []fetchOutcome{{err: fmt.Errorf("unreachable")}}}
	reader := NewReaderWithClient(fetcher, "confirmed", &errors.RetryConfig{MaxAttempts: 5, Delay: time.Minute}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.FetchTransaction(ctx, testSignature())

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fetcher.calls)
}

func TestNormalizeFailedTransaction(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	res := resultFor(t, legacyTransferTx(t, from, to, 5000), &rpc.TransactionMeta{
		Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	})

	tx, err := normalize(testSignature(), res)

	require.NoError(t, err)
	assert.True(t, tx.Failed)
}

func TestNormalizeVersionedMessageResolvesLoadedAddresses(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	loadedWritable := solana.NewWallet().PublicKey()
	loadedReadOnly := solana.NewWallet().PublicKey()

	tx := legacyTransferTx(t, from, to, 5000)
	tx.Message.SetVersion(solana.MessageVersionV0)

	res := resultFor(t, tx, &rpc.TransactionMeta{
		LoadedAddresses: rpc.LoadedAddresses{
			Writable: []solana.PublicKey{loadedWritable},
			ReadOnly: []solana.PublicKey{loadedReadOnly},
		},
	})

	normalized, err := normalize(testSignature(), res)

	require.NoError(t, err)
	require.Len(t, normalized.AccountKeys, 5)
	assert.Equal(t, loadedWritable.String(), normalized.AccountKeys[3])
	assert.Equal(t, loadedReadOnly.String(), normalized.AccountKeys[4])
}

func TestNormalizeTokenBalances(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	res := resultFor(t, legacyTransferTx(t, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1), &rpc.TransactionMeta{
		PostTokenBalances: []rpc.TokenBalance{
			{
				AccountIndex: 1,
				Mint:         mint,
				Owner:        &owner,
				UiTokenAmount: &rpc.UiTokenAmount{
					Amount:   "12345",
					Decimals: 6,
				},
			},
		},
	})

	normalized, err := normalize(testSignature(), res)

	require.NoError(t, err)
	require.Len(t, normalized.PostTokenBalances, 1)
	balance := normalized.PostTokenBalances[0]
	assert.Equal(t, uint16(1), balance.AccountIndex)
	assert.Equal(t, mint.String(), balance.Mint)
	assert.Equal(t, owner.String(), balance.Owner)
	assert.Equal(t, uint64(12345), balance.Amount)
	assert.Equal(t, uint8(6), balance.Decimals)
}

func TestNormalizeInnerInstructions(t *testing.T) {
	res := resultFor(t, legacyTransferTx(t, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 1), &rpc.TransactionMeta{
		InnerInstructions: []rpc.InnerInstruction{
			{
				Index: 0,
				Instructions: []rpc.CompiledInstruction{
					{
						ProgramIDIndex: 2,
						Accounts:       []uint16{0, 1},
						Data:           solana.Base58(systemTransferData(750)),
					},
				},
			},
		},
	})

	normalized, err := normalize(testSignature(), res)

	require.NoError(t, err)
	require.Len(t, normalized.InnerInstructions, 1)
	group := normalized.InnerInstructions[0]
	assert.Equal(t, uint16(0), group.Index)
	require.Len(t, group.Instructions, 1)
	inner := group.Instructions[0]
	assert.Equal(t, uint16(2), inner.ProgramIDIndex)
	assert.Equal(t, []uint16{0, 1}, inner.Accounts)
	assert.Equal(t, systemTransferData(750), inner.Data)
}

func TestAccountIndexLookup(t *testing.T) {
	tx := &Transaction{AccountKeys: []string{"alpha", "beta"}}

	assert.Equal(t, 1, tx.AccountIndex("beta"))
	assert.Equal(t, -1, tx.AccountIndex("gamma"))
	assert.Equal(t, "alpha", tx.AccountAt(0))
	assert.Equal(t, "", tx.AccountAt(9))
}
