package driver_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewer-multisig-go/internal/driver"
	"reviewer-multisig-go/internal/multisig"
	"reviewer-multisig-go/internal/rewards"
)

var ctx = context.Background()

type fixture struct {
	builder   *mockBuilder
	submitter *mockSubmitter
	ledger    *mockLedger
	cfg       driver.Config
	out       *bytes.Buffer
}

func newFixture() *fixture {
	out := new(bytes.Buffer)
	return &fixture{
		builder: &mockBuilder{
			multisig: solana.NewWallet().PublicKey(),
			vault:    solana.NewWallet().PublicKey(),
		},
		submitter: &mockSubmitter{},
		ledger:    &mockLedger{},
		out:       out,
		cfg: driver.Config{
			Creator:              solana.NewWallet().PrivateKey,
			CreateKey:            solana.NewWallet().PrivateKey,
			SecondMember:         solana.NewWallet().PublicKey(),
			NewMember:            solana.NewWallet().PublicKey(),
			NumRewardKeys:        3,
			RewardCap:            rewards.DefaultMaxSum,
			AirdropLamports:      5 * solana.LAMPORTS_PER_SOL,
			VaultFundingLamports: solana.LAMPORTS_PER_SOL,
			Rand:                 rand.New(rand.NewSource(1)),
			Out:                  out,
		},
	}
}

func (f *fixture) deps() driver.Deps {
	return driver.Deps{Builder: f.builder, Submitter: f.submitter, Ledger: f.ledger}
}

func dummyInstructions(n int) []solana.Instruction {
	ixs := make([]solana.Instruction, n)
	for i := range ixs {
		ixs[i] = solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{}, []byte{byte(i)})
	}
	return ixs
}

func memoText(t *testing.T, ix solana.Instruction) string {
	t.Helper()
	require.Equal(t, solana.MemoProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	return string(data)
}

func TestRun(t *testing.T) {
	f := newFixture()
	creator := f.cfg.Creator.PublicKey()
	createKey := f.cfg.CreateKey
	prepareSig := solana.Signature{5}
	executeSig := solana.Signature{6}
	executeTx := &solana.Transaction{}

	members := []multisig.Member{
		{Key: creator, Permissions: multisig.PermissionAll},
		{Key: f.cfg.SecondMember, Permissions: multisig.PermissionVote},
	}

	f.submitter.On("Airdrop", creator, 5*solana.LAMPORTS_PER_SOL).Return(solana.Signature{1}, nil)
	f.builder.On("CreateMultisig", uint16(1), members, uint32(0)).Return(dummyInstructions(1)[0], nil)
	f.builder.On("AddMember", multisig.Member{Key: f.cfg.NewMember, Permissions: multisig.PermissionInitiate}).
		Return(dummyInstructions(4), nil)
	f.builder.On("RemoveMember", f.cfg.NewMember).Return(dummyInstructions(4), nil)
	f.builder.On("GetMultisigMembers").Return(members, nil)
	f.builder.On("PrepareTransferToManyWallets", mock.Anything).Return(&multisig.PreparedTransfer{
		Index:   4,
		Prepare: dummyInstructions(3),
	}, nil)
	f.builder.On("ExecuteVaultTransaction", uint64(4)).Return(executeTx, nil)

	f.submitter.On("Submit", mock.Anything, f.cfg.Creator, []solana.PrivateKey{createKey}).Return(solana.Signature{2}, nil).Once()
	f.submitter.On("Submit", mock.Anything, f.cfg.Creator, []solana.PrivateKey(nil)).Return(solana.Signature{3}, nil).Once()
	f.submitter.On("Submit", mock.Anything, f.cfg.Creator, []solana.PrivateKey(nil)).Return(solana.Signature{4}, nil).Once()
	f.submitter.On("Submit", mock.Anything, f.cfg.Creator, []solana.PrivateKey(nil)).Return(prepareSig, nil).Once()
	f.submitter.On("SubmitTransaction", executeTx, []solana.PrivateKey{f.cfg.Creator}).Return(executeSig, nil)
	f.submitter.On("Confirm", prepareSig, rpc.CommitmentFinalized).Return(nil)
	f.submitter.On("Confirm", mock.Anything, rpc.CommitmentConfirmed).Return(nil)

	f.ledger.On("RecordPrepared", f.builder.multisig.String(), uint64(4), prepareSig.String(), mock.Anything).Return(nil, nil)
	f.ledger.On("MarkExecuted", f.builder.multisig.String(), uint64(4), executeSig.String()).Return(nil)

	report, err := driver.Run(ctx, f.deps(), f.cfg)
	require.NoError(t, err)

	f.builder.AssertExpectations(t)
	f.submitter.AssertExpectations(t)
	f.ledger.AssertExpectations(t)

	require.Equal(t, creator, report.Creator)
	require.Equal(t, createKey.PublicKey(), report.CreateKey)
	require.Equal(t, f.builder.multisig, report.Multisig)
	require.Equal(t, f.builder.vault, report.Vault)
	require.EqualValues(t, 4, report.TransactionIndex)
	require.Equal(t, prepareSig, report.PrepareSignature)
	require.Equal(t, executeSig, report.ExecuteSignature)
	require.Len(t, report.Rewards, 3)
	for _, r := range report.Rewards {
		require.True(t, r.Sum.LessThan(decimal.RequireFromString("0.05")))
		require.Equal(t, rewards.PlaceholderSignature, r.Signature)
	}

	var submits [][]solana.Instruction
	for _, call := range f.submitter.Calls {
		if call.Method == "Submit" {
			submits = append(submits, call.Arguments.Get(0).([]solana.Instruction))
		}
	}
	require.Len(t, submits, 4)

	// funding transfer, create, memo
	create := submits[0]
	require.Len(t, create, 3)
	require.Equal(t, solana.SystemProgramID, create[0].ProgramID())
	accounts := create[0].Accounts()
	require.Equal(t, creator, accounts[0].PublicKey)
	require.Equal(t, f.builder.vault, accounts[1].PublicKey)
	data, err := create[0].Data()
	require.NoError(t, err)
	decoded, err := system.DecodeInstruction(accounts, data)
	require.NoError(t, err)
	require.EqualValues(t, solana.LAMPORTS_PER_SOL, *decoded.Impl.(*system.Transfer).Lamports)
	require.Equal(t, "User "+creator.String()+" has added document with deposit 1 SOL.", memoText(t, create[2]))

	require.Len(t, submits[1], 5)
	require.Equal(t, "User "+f.cfg.NewMember.String()+" was added to multisig "+f.builder.multisig.String()+".", memoText(t, submits[1][4]))
	require.Len(t, submits[2], 5)
	require.Equal(t, "User "+f.cfg.NewMember.String()+" was removed from multisig "+f.builder.multisig.String()+".", memoText(t, submits[2][4]))
	require.Len(t, submits[3], 4)
	require.Equal(t, "Prepare for sending money to reward receivers", memoText(t, submits[3][3]))

	// members are printed after the add and after the remove
	require.Equal(t, 4, strings.Count(f.out.String(), "\n"))
	require.Contains(t, f.out.String(), creator.String()+" permissions=111")
}

func TestRunWithoutLedger(t *testing.T) {
	f := newFixture()
	f.cfg.NumRewardKeys = 1

	f.submitter.On("Airdrop", mock.Anything, mock.Anything).Return(solana.Signature{}, nil)
	f.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{7}, nil)
	f.submitter.On("SubmitTransaction", mock.Anything, mock.Anything).Return(solana.Signature{8}, nil)
	f.submitter.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	f.builder.On("CreateMultisig", mock.Anything, mock.Anything, mock.Anything).Return(dummyInstructions(1)[0], nil)
	f.builder.On("AddMember", mock.Anything).Return(dummyInstructions(4), nil)
	f.builder.On("RemoveMember", mock.Anything).Return(dummyInstructions(4), nil)
	f.builder.On("GetMultisigMembers").Return([]multisig.Member{}, nil)
	f.builder.On("PrepareTransferToManyWallets", mock.Anything).Return(&multisig.PreparedTransfer{Index: 1, Prepare: dummyInstructions(3)}, nil)
	f.builder.On("ExecuteVaultTransaction", uint64(1)).Return(&solana.Transaction{}, nil)

	deps := f.deps()
	deps.Ledger = nil

	report, err := driver.Run(ctx, deps, f.cfg)
	require.NoError(t, err)
	require.Equal(t, solana.Signature{8}, report.ExecuteSignature)
	f.ledger.AssertNotCalled(t, "RecordPrepared", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStopsOnFailure(t *testing.T) {
	f := newFixture()
	sendErr := errors.New("insufficient funds")

	f.submitter.On("Airdrop", mock.Anything, mock.Anything).Return(solana.Signature{}, nil)
	f.builder.On("CreateMultisig", mock.Anything, mock.Anything, mock.Anything).Return(dummyInstructions(1)[0], nil)
	f.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{2}, nil).Once()
	f.submitter.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	f.builder.On("AddMember", mock.Anything).Return(dummyInstructions(4), nil)
	f.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{}, sendErr).Once()

	_, err := driver.Run(ctx, f.deps(), f.cfg)
	require.ErrorIs(t, err, sendErr)
	require.ErrorContains(t, err, "add member")
	f.builder.AssertNotCalled(t, "RemoveMember", mock.Anything)
}

func TestRunThresholdPrecondition(t *testing.T) {
	f := newFixture()

	f.submitter.On("Airdrop", mock.Anything, mock.Anything).Return(solana.Signature{}, nil)
	f.builder.On("CreateMultisig", mock.Anything, mock.Anything, mock.Anything).Return(dummyInstructions(1)[0], nil)
	f.submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{2}, nil)
	f.submitter.On("Confirm", mock.Anything, mock.Anything).Return(nil)
	f.builder.On("AddMember", mock.Anything).Return(nil, multisig.ErrThresholdNotOne)

	_, err := driver.Run(ctx, f.deps(), f.cfg)
	require.ErrorIs(t, err, multisig.ErrThresholdNotOne)
}
