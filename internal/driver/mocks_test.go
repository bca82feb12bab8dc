package driver_test

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/mock"

	"reviewer-multisig-go/internal/ledger"
	"reviewer-multisig-go/internal/multisig"
	"reviewer-multisig-go/internal/rewards"
)

// driver.Builder
type mockBuilder struct {
	mock.Mock
	multisig solana.PublicKey
	vault    solana.PublicKey
}

func (m *mockBuilder) MultisigPDA() solana.PublicKey { return m.multisig }
func (m *mockBuilder) VaultPDA() solana.PublicKey    { return m.vault }

func (m *mockBuilder) CreateMultisig(ctx context.Context, threshold uint16, members []multisig.Member, timeLock uint32) (solana.Instruction, error) {
	args := m.Called(threshold, members, timeLock)
	var ix solana.Instruction
	if a := args.Get(0); a != nil {
		ix = a.(solana.Instruction)
	}
	return ix, args.Error(1)
}

func (m *mockBuilder) AddMember(ctx context.Context, member multisig.Member) ([]solana.Instruction, error) {
	args := m.Called(member)
	var ixs []solana.Instruction
	if a := args.Get(0); a != nil {
		ixs = a.([]solana.Instruction)
	}
	return ixs, args.Error(1)
}

func (m *mockBuilder) RemoveMember(ctx context.Context, key solana.PublicKey) ([]solana.Instruction, error) {
	args := m.Called(key)
	var ixs []solana.Instruction
	if a := args.Get(0); a != nil {
		ixs = a.([]solana.Instruction)
	}
	return ixs, args.Error(1)
}

func (m *mockBuilder) GetMultisigMembers(ctx context.Context) ([]multisig.Member, error) {
	args := m.Called()
	var members []multisig.Member
	if a := args.Get(0); a != nil {
		members = a.([]multisig.Member)
	}
	return members, args.Error(1)
}

func (m *mockBuilder) PrepareTransferToManyWallets(ctx context.Context, results []rewards.Result) (*multisig.PreparedTransfer, error) {
	args := m.Called(results)
	var res *multisig.PreparedTransfer
	if a := args.Get(0); a != nil {
		res = a.(*multisig.PreparedTransfer)
	}
	return res, args.Error(1)
}

func (m *mockBuilder) ExecuteVaultTransaction(ctx context.Context, index uint64) (*solana.Transaction, error) {
	args := m.Called(index)
	var tx *solana.Transaction
	if a := args.Get(0); a != nil {
		tx = a.(*solana.Transaction)
	}
	return tx, args.Error(1)
}

// driver.Submitter
type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Airdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	args := m.Called(account, lamports)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockSubmitter) Submit(ctx context.Context, instructions []solana.Instruction, payer solana.PrivateKey, signers ...solana.PrivateKey) (solana.Signature, error) {
	args := m.Called(instructions, payer, signers)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockSubmitter) SubmitTransaction(ctx context.Context, tx *solana.Transaction, signers ...solana.PrivateKey) (solana.Signature, error) {
	args := m.Called(tx, signers)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockSubmitter) Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error {
	args := m.Called(sig, commitment)
	return args.Error(0)
}

// driver.Ledger
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RecordPrepared(multisig string, index uint64, prepareSignature string, results []rewards.Result) (*ledger.Batch, error) {
	args := m.Called(multisig, index, prepareSignature, results)
	var b *ledger.Batch
	if a := args.Get(0); a != nil {
		b = a.(*ledger.Batch)
	}
	return b, args.Error(1)
}

func (m *mockLedger) MarkExecuted(multisig string, index uint64, signature string) error {
	args := m.Called(multisig, index, signature)
	return args.Error(0)
}
