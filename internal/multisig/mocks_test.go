package multisig_test

import (
	"bytes"
	"context"
	"testing"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
	"github.com/stretchr/testify/require"

	"reviewer-multisig-go/internal/multisig"
)

var ctx = context.Background()

// fakeRPC serves account data from memory, like a validator that only knows
// the accounts a test put there.
type fakeRPC struct {
	accounts  map[solana.PublicKey][]byte
	blockhash solana.Hash
	reads     int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		accounts:  make(map[solana.PublicKey][]byte),
		blockhash: solana.HashFromBytes(bytes.Repeat([]byte{7}, 32)),
	}
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.reads++
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{
		Value: &rpc.Account{
			Owner: squads_multisig_program.ProgramID,
			Data:  rpc.DataBytesOrJSONFromBytes(data),
		},
	}, nil
}

func (f *fakeRPC) GetLatestBlockhash(_ context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            f.blockhash,
			LastValidBlockHeight: 100,
		},
	}, nil
}

func (f *fakeRPC) putMultisig(t *testing.T, address solana.PublicKey, threshold uint16, index uint64, members []multisig.Member) {
	t.Helper()

	ms := squads_multisig_program.Multisig{
		Threshold:        threshold,
		TransactionIndex: index,
	}
	for _, m := range members {
		ms.Members = append(ms.Members, squads_multisig_program.Member{
			Key:         m.Key,
			Permissions: squads_multisig_program.Permissions{Mask: m.Permissions},
		})
	}

	buf := new(bytes.Buffer)
	require.NoError(t, ms.MarshalWithEncoder(ag_binary.NewBorshEncoder(buf)))
	f.accounts[address] = buf.Bytes()
}

func (f *fakeRPC) putProgramConfig(t *testing.T, address, treasury solana.PublicKey) {
	t.Helper()

	cfg := squads_multisig_program.ProgramConfig{Treasury: treasury}
	buf := new(bytes.Buffer)
	require.NoError(t, cfg.MarshalWithEncoder(ag_binary.NewBorshEncoder(buf)))
	f.accounts[address] = buf.Bytes()
}

func newTestBuilder(t *testing.T) (*multisig.InstructionBuilder, *fakeRPC) {
	t.Helper()

	client := newFakeRPC()
	b := multisig.NewInstructionBuilder(client, multisig.Config{
		CreateKey: solana.NewWallet().PublicKey(),
		Creator:   solana.NewWallet().PublicKey(),
	})
	return b, client
}
