package chain_test

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ctx = context.Background()

type fakeRPC struct {
	mu sync.Mutex

	blockhash solana.Hash
	sendErr   error
	sent      []*solana.Transaction

	// statuses are returned in order, the last one repeats.
	statuses []*rpc.SignatureStatusesResult
	polls    int

	// statusErr is returned by the first statusErrs status requests, or by
	// every request when statusErrs is zero.
	statusErr  error
	statusErrs int

	airdrops map[solana.PublicKey]uint64
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		blockhash: solana.Hash{1, 2, 3},
		airdrops:  make(map[solana.PublicKey]uint64),
	}
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash, LastValidBlockHeight: 10},
	}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statusErr != nil && (f.statusErrs == 0 || f.polls < f.statusErrs) {
		f.polls++
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, rpc.ErrNotFound
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	if f.statuses[i] == nil {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{f.statuses[i]}}, nil
}

func (f *fakeRPC) RequestAirdrop(_ context.Context, account solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lamports == 0 {
		return solana.Signature{}, errors.New("invalid amount")
	}
	f.airdrops[account] += lamports
	return solana.Signature{9}, nil
}

func status(s rpc.ConfirmationStatusType) *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{ConfirmationStatus: s}
}
