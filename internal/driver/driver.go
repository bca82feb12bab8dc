package driver

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"reviewer-multisig-go/internal/chain"
	"reviewer-multisig-go/internal/ledger"
	"reviewer-multisig-go/internal/multisig"
	"reviewer-multisig-go/internal/rewards"
)

// Builder assembles the multisig instructions the demo submits.
type Builder interface {
	MultisigPDA() solana.PublicKey
	VaultPDA() solana.PublicKey
	CreateMultisig(ctx context.Context, threshold uint16, members []multisig.Member, timeLock uint32) (solana.Instruction, error)
	AddMember(ctx context.Context, member multisig.Member) ([]solana.Instruction, error)
	RemoveMember(ctx context.Context, key solana.PublicKey) ([]solana.Instruction, error)
	GetMultisigMembers(ctx context.Context) ([]multisig.Member, error)
	PrepareTransferToManyWallets(ctx context.Context, results []rewards.Result) (*multisig.PreparedTransfer, error)
	ExecuteVaultTransaction(ctx context.Context, index uint64) (*solana.Transaction, error)
}

// Submitter signs, sends and confirms transactions.
type Submitter interface {
	Airdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error)
	Submit(ctx context.Context, instructions []solana.Instruction, payer solana.PrivateKey, signers ...solana.PrivateKey) (solana.Signature, error)
	SubmitTransaction(ctx context.Context, tx *solana.Transaction, signers ...solana.PrivateKey) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error
}

// Ledger records reward batches.
type Ledger interface {
	RecordPrepared(multisig string, index uint64, prepareSignature string, results []rewards.Result) (*ledger.Batch, error)
	MarkExecuted(multisig string, index uint64, signature string) error
}

// Deps are the collaborators Run drives.
type Deps struct {
	Builder   Builder
	Submitter Submitter
	// Ledger is optional.
	Ledger Ledger
}

// Config parameterizes a single Run.
type Config struct {
	Creator   solana.PrivateKey
	CreateKey solana.PrivateKey
	// SecondMember joins at creation with vote permission. Generated when
	// zero.
	SecondMember solana.PublicKey
	// NewMember is added and then removed again. Generated when zero.
	NewMember solana.PublicKey

	NumRewardKeys        int
	RewardCap            decimal.Decimal
	AirdropLamports      uint64
	VaultFundingLamports uint64

	// Rand draws the reward sums. Defaults to a time-seeded source.
	Rand *rand.Rand
	// Out receives the member listings. Defaults to io.Discard.
	Out io.Writer
}

// Report summarizes a completed run.
type Report struct {
	Creator          solana.PublicKey
	CreateKey        solana.PublicKey
	Multisig         solana.PublicKey
	Vault            solana.PublicKey
	TransactionIndex uint64
	Rewards          []rewards.Result
	PrepareSignature solana.Signature
	ExecuteSignature solana.Signature
}

// Run drives a full multisig lifecycle: create and fund, add a member,
// remove it, then pay rewards out of the vault in two phases.
func Run(ctx context.Context, deps Deps, cfg Config) (*Report, error) {
	if cfg.SecondMember.IsZero() {
		cfg.SecondMember = solana.NewWallet().PublicKey()
	}
	if cfg.NewMember.IsZero() {
		cfg.NewMember = solana.NewWallet().PublicKey()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	r := &runner{deps: deps, cfg: cfg, creator: cfg.Creator.PublicKey()}
	report := &Report{
		Creator:   r.creator,
		CreateKey: cfg.CreateKey.PublicKey(),
		Multisig:  deps.Builder.MultisigPDA(),
		Vault:     deps.Builder.VaultPDA(),
		Rewards:   rewards.Generate(cfg.NumRewardKeys, cfg.RewardCap, cfg.Rand),
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"create multisig", r.createMultisig},
		{"add member", r.addMember},
		{"remove member", r.removeMember},
		{"pay rewards", func(ctx context.Context) error { return r.payRewards(ctx, report) }},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return report, nil
}

type runner struct {
	deps    Deps
	cfg     Config
	creator solana.PublicKey
}

func (r *runner) createMultisig(ctx context.Context) error {
	if _, err := r.deps.Submitter.Airdrop(ctx, r.creator, r.cfg.AirdropLamports); err != nil {
		return err
	}

	members := []multisig.Member{
		{Key: r.creator, Permissions: multisig.PermissionAll},
		{Key: r.cfg.SecondMember, Permissions: multisig.PermissionVote},
	}
	create, err := r.deps.Builder.CreateMultisig(ctx, 1, members, 0)
	if err != nil {
		return err
	}

	vault := r.deps.Builder.VaultPDA()
	log.Infof("vault : %s", vault)

	deposit := decimal.NewFromInt(int64(r.cfg.VaultFundingLamports)).Shift(-9)
	instructions := []solana.Instruction{
		system.NewTransferInstruction(r.cfg.VaultFundingLamports, r.creator, vault).Build(),
		create,
		chain.Memo(r.creator, fmt.Sprintf("User %s has added document with deposit %s SOL.", r.creator, deposit)),
	}
	return r.submitAndConfirm(ctx, instructions, rpc.CommitmentConfirmed, r.cfg.CreateKey)
}

func (r *runner) addMember(ctx context.Context) error {
	instructions, err := r.deps.Builder.AddMember(ctx, multisig.Member{
		Key:         r.cfg.NewMember,
		Permissions: multisig.PermissionInitiate,
	})
	if err != nil {
		return err
	}
	log.Infof("Add member %s to multisig", r.cfg.NewMember)

	instructions = append(instructions, chain.Memo(r.creator,
		fmt.Sprintf("User %s was added to multisig %s.", r.cfg.NewMember, r.deps.Builder.MultisigPDA())))
	if err := r.submitAndConfirm(ctx, instructions, rpc.CommitmentConfirmed); err != nil {
		return err
	}
	return r.printMembers(ctx)
}

func (r *runner) removeMember(ctx context.Context) error {
	instructions, err := r.deps.Builder.RemoveMember(ctx, r.cfg.NewMember)
	if err != nil {
		return err
	}
	log.Infof("Remove member %s from multisig", r.cfg.NewMember)

	instructions = append(instructions, chain.Memo(r.creator,
		fmt.Sprintf("User %s was removed from multisig %s.", r.cfg.NewMember, r.deps.Builder.MultisigPDA())))
	if err := r.submitAndConfirm(ctx, instructions, rpc.CommitmentConfirmed); err != nil {
		return err
	}
	return r.printMembers(ctx)
}

func (r *runner) payRewards(ctx context.Context, report *Report) error {
	prepared, err := r.deps.Builder.PrepareTransferToManyWallets(ctx, report.Rewards)
	if err != nil {
		return err
	}
	log.Info("Transfer money from multisig")

	instructions := append(prepared.Prepare, chain.Memo(r.creator, "Prepare for sending money to reward receivers"))
	prepareSig, err := r.deps.Submitter.Submit(ctx, instructions, r.cfg.Creator)
	if err != nil {
		return err
	}
	// Execution reads the stored vault transaction, so the prepare
	// transaction must be finalized first.
	if err := r.deps.Submitter.Confirm(ctx, prepareSig, rpc.CommitmentFinalized); err != nil {
		return err
	}

	multisigAddr := r.deps.Builder.MultisigPDA().String()
	if r.deps.Ledger != nil {
		if _, err := r.deps.Ledger.RecordPrepared(multisigAddr, prepared.Index, prepareSig.String(), report.Rewards); err != nil {
			return err
		}
	}

	execute, err := r.deps.Builder.ExecuteVaultTransaction(ctx, prepared.Index)
	if err != nil {
		return err
	}
	executeSig, err := r.deps.Submitter.SubmitTransaction(ctx, execute, r.cfg.Creator)
	if err != nil {
		return err
	}
	if err := r.deps.Submitter.Confirm(ctx, executeSig, rpc.CommitmentConfirmed); err != nil {
		return err
	}

	if r.deps.Ledger != nil {
		if err := r.deps.Ledger.MarkExecuted(multisigAddr, prepared.Index, executeSig.String()); err != nil {
			return err
		}
	}

	report.TransactionIndex = prepared.Index
	report.PrepareSignature = prepareSig
	report.ExecuteSignature = executeSig
	return nil
}

func (r *runner) submitAndConfirm(
	ctx context.Context,
	instructions []solana.Instruction,
	commitment rpc.CommitmentType,
	signers ...solana.PrivateKey,
) error {
	sig, err := r.deps.Submitter.Submit(ctx, instructions, r.cfg.Creator, signers...)
	if err != nil {
		return err
	}
	return r.deps.Submitter.Confirm(ctx, sig, commitment)
}

func (r *runner) printMembers(ctx context.Context) error {
	members, err := r.deps.Builder.GetMultisigMembers(ctx)
	if err != nil {
		return err
	}
	for _, m := range members {
		fmt.Fprintf(r.cfg.Out, "%s permissions=%03b\n", m.Key, m.Permissions)
	}
	return nil
}
