package multisig

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
	sqds "github.com/hogyzen12/squads-go/pkg/multisig"
	log "github.com/sirupsen/logrus"

	"reviewer-multisig-go/internal/rewards"
)

const defaultEphemeralSigners = 1

// Config holds the fixed parameters of an InstructionBuilder.
type Config struct {
	// CreateKey seeds the multisig address. Its private key only signs the
	// creation transaction.
	CreateKey solana.PublicKey
	// Multisig overrides the address derived from CreateKey. A builder
	// without CreateKey cannot create the multisig.
	Multisig solana.PublicKey
	// Creator proposes, approves, executes and pays rent for every
	// transaction the builder assembles.
	Creator solana.PublicKey
	// VaultIndex selects the vault the transfers draw from.
	VaultIndex uint8
	// EphemeralSigners is reserved on every vault transaction. Zero means 1.
	EphemeralSigners uint8
	// Commitment used to fetch blockhashes. Empty means confirmed.
	Commitment rpc.CommitmentType
}

// InstructionBuilder assembles multisig instruction sequences. Every method
// reads fresh on-chain state, so two calls are not consistent with each
// other and concurrent callers may compute the same transaction index.
type InstructionBuilder struct {
	rpc    RPC
	cfg    Config
	logger *log.Entry

	multisigPDA      solana.PublicKey
	vaultPDA         solana.PublicKey
	programConfigPDA solana.PublicKey
}

// NewInstructionBuilder derives the multisig, vault and program config
// addresses from cfg. An explicit cfg.Multisig wins over the create key.
func NewInstructionBuilder(client RPC, cfg Config) *InstructionBuilder {
	if cfg.EphemeralSigners == 0 {
		cfg.EphemeralSigners = defaultEphemeralSigners
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}

	multisigPDA := cfg.Multisig
	if multisigPDA.IsZero() {
		multisigPDA, _ = sqds.GetMultisigPDA(cfg.CreateKey, squads_multisig_program.ProgramID)
	}
	vaultPDA, _ := sqds.GetVaultPDA(multisigPDA, cfg.VaultIndex, squads_multisig_program.ProgramID)
	programConfigPDA, _ := sqds.GetProgramConfigPDA(squads_multisig_program.ProgramID)

	return &InstructionBuilder{
		rpc:              client,
		cfg:              cfg,
		logger:           log.WithField("multisig", multisigPDA.String()),
		multisigPDA:      multisigPDA,
		vaultPDA:         vaultPDA,
		programConfigPDA: programConfigPDA,
	}
}

// MultisigPDA is the multisig account address.
func (b *InstructionBuilder) MultisigPDA() solana.PublicKey { return b.multisigPDA }

// VaultPDA is the address of the vault transfers draw from.
func (b *InstructionBuilder) VaultPDA() solana.PublicKey { return b.vaultPDA }

// ProgramConfigPDA is the Squads program config account address.
func (b *InstructionBuilder) ProgramConfigPDA() solana.PublicKey { return b.programConfigPDA }

// Creator is the member that proposes, approves, executes and pays.
func (b *InstructionBuilder) Creator() solana.PublicKey { return b.cfg.Creator }

// CreateMultisig returns the multisig_create_v2 instruction. The caller adds
// any funding and signs with both the creator and the create key.
func (b *InstructionBuilder) CreateMultisig(
	ctx context.Context,
	threshold uint16,
	members []Member,
	timeLock uint32,
) (solana.Instruction, error) {
	if b.cfg.CreateKey.IsZero() {
		return nil, fmt.Errorf("creating a multisig requires the create key")
	}
	programConfig, err := fetchProgramConfig(ctx, b.rpc, b.programConfigPDA)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch program config: %w", err)
	}

	args := squads_multisig_program.MultisigCreateArgsV2{
		ConfigAuthority: nil,
		Threshold:       threshold,
		Members:         toProgramMembers(members),
		TimeLock:        timeLock,
		RentCollector:   nil,
		Memo:            nil,
	}

	return squads_multisig_program.NewMultisigCreateV2Instruction(
		args,
		b.programConfigPDA,
		programConfig.Treasury,
		b.multisigPDA,
		b.cfg.CreateKey,
		b.cfg.Creator,
		solana.SystemProgramID,
	).Build(), nil
}

// AddMember returns the four instructions that add member in one
// transaction: config transaction create, proposal create, proposal approve
// and config transaction execute.
func (b *InstructionBuilder) AddMember(ctx context.Context, member Member) ([]solana.Instruction, error) {
	return b.configTransaction(ctx, &squads_multisig_program.ConfigActionAddMember{
		NewMember: member.toProgram(),
	})
}

// AddMultipleMembers adds every key with the initiate permission in a single
// config transaction.
func (b *InstructionBuilder) AddMultipleMembers(ctx context.Context, keys []solana.PublicKey) ([]solana.Instruction, error) {
	actions := make([]squads_multisig_program.ConfigAction, 0, len(keys))
	for _, m := range MembersFromKeys(keys, PermissionInitiate) {
		actions = append(actions, &squads_multisig_program.ConfigActionAddMember{
			NewMember: m.toProgram(),
		})
	}
	return b.configTransaction(ctx, actions...)
}

// RemoveMember returns the four instructions that remove key.
func (b *InstructionBuilder) RemoveMember(ctx context.Context, key solana.PublicKey) ([]solana.Instruction, error) {
	return b.configTransaction(ctx, &squads_multisig_program.ConfigActionRemoveMember{
		OldMember: key,
	})
}

func (b *InstructionBuilder) configTransaction(
	ctx context.Context,
	actions ...squads_multisig_program.ConfigAction,
) ([]solana.Instruction, error) {
	index, err := b.nextSingleApproverIndex(ctx)
	if err != nil {
		return nil, err
	}

	transactionPDA, _ := sqds.GetTransactionPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)
	proposalPDA, _ := sqds.GetProposalPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)

	create := squads_multisig_program.NewConfigTransactionCreateInstruction(
		squads_multisig_program.ConfigTransactionCreateArgs{
			Actions: actions,
			Memo:    nil,
		},
		b.multisigPDA,
		transactionPDA,
		b.cfg.Creator,
		b.cfg.Creator,
		solana.SystemProgramID,
	).Build()

	execute := squads_multisig_program.NewConfigTransactionExecuteInstruction(
		b.multisigPDA,
		b.cfg.Creator,
		proposalPDA,
		transactionPDA,
		b.cfg.Creator,
		solana.SystemProgramID,
	).Build()

	propose, approve := b.proposeAndApprove(index, proposalPDA)

	b.logger.WithField("index", index).Debugf("built config transaction with %d action(s)", len(actions))

	return []solana.Instruction{create, propose, approve, execute}, nil
}

func (b *InstructionBuilder) proposeAndApprove(index uint64, proposalPDA solana.PublicKey) (solana.Instruction, solana.Instruction) {
	propose := squads_multisig_program.NewProposalCreateInstruction(
		squads_multisig_program.ProposalCreateArgs{
			TransactionIndex: index,
			Draft:            false,
		},
		b.multisigPDA,
		proposalPDA,
		b.cfg.Creator,
		b.cfg.Creator,
		solana.SystemProgramID,
	).Build()

	approve := squads_multisig_program.NewProposalApproveInstruction(
		squads_multisig_program.ProposalVoteArgs{Memo: nil},
		b.multisigPDA,
		b.cfg.Creator,
		proposalPDA,
	).Build()

	return propose, approve
}

// nextSingleApproverIndex reads the multisig, fails unless one approval is
// enough to pass a proposal, and returns the index the next transaction
// must use.
func (b *InstructionBuilder) nextSingleApproverIndex(ctx context.Context) (uint64, error) {
	ms, err := fetchMultisig(ctx, b.rpc, b.multisigPDA)
	if err != nil {
		return 0, err
	}
	if ms.Threshold > 1 {
		return 0, fmt.Errorf("%w: threshold is %d", ErrThresholdNotOne, ms.Threshold)
	}
	return ms.TransactionIndex + 1, nil
}

// VaultTransfer is a two-phase vault transfer. Prepare must be submitted and
// confirmed before Execute is sent.
type VaultTransfer struct {
	Index   uint64
	Message *VaultMessage
	Prepare []solana.Instruction
	// Execute is unsigned; the creator pays its fee.
	Execute *solana.Transaction
}

// PreparedTransfer is the first phase of a vault transfer. Execute it later
// with ExecuteVaultTransaction(Index).
type PreparedTransfer struct {
	Index   uint64
	Message *VaultMessage
	Prepare []solana.Instruction
}

// TransferFromVault moves lamports from the vault to target.
func (b *InstructionBuilder) TransferFromVault(ctx context.Context, target solana.PublicKey, lamports uint64) (*VaultTransfer, error) {
	memo := fmt.Sprintf("Transfer %d lamports to %s", lamports, target)
	return b.transferWithExecute(ctx, []solana.Instruction{b.transfer(target, lamports)}, memo)
}

// TransferToMultipleTargets sends lamportsEach to every target in one vault
// transaction.
func (b *InstructionBuilder) TransferToMultipleTargets(ctx context.Context, targets []solana.PublicKey, lamportsEach uint64) (*VaultTransfer, error) {
	if len(targets) == 0 {
		return nil, ErrNoRecipients
	}

	transfers := make([]solana.Instruction, 0, len(targets))
	var memo strings.Builder
	fmt.Fprintf(&memo, "Transfer %d lamports to\n", lamportsEach)
	for _, target := range targets {
		transfers = append(transfers, b.transfer(target, lamportsEach))
		memo.WriteString(target.String())
		memo.WriteString("\n")
	}
	return b.transferWithExecute(ctx, transfers, memo.String())
}

// PrepareTransferToManyWallets builds the prepare phase paying every reward
// its own amount.
func (b *InstructionBuilder) PrepareTransferToManyWallets(ctx context.Context, results []rewards.Result) (*PreparedTransfer, error) {
	if len(results) == 0 {
		return nil, ErrNoRecipients
	}

	transfers := make([]solana.Instruction, 0, len(results))
	for _, r := range results {
		wallet, err := r.PublicKey()
		if err != nil {
			return nil, err
		}
		lamports, err := r.Lamports()
		if err != nil {
			return nil, fmt.Errorf("reward for %s: %w", r.Wallet, err)
		}
		transfers = append(transfers, b.transfer(wallet, lamports))
		b.logger.Infof("Sending %d lamports to %s", lamports, r.Wallet)
	}

	return b.prepareTransfer(ctx, transfers, "Transfer lamports to each participant")
}

func (b *InstructionBuilder) transferWithExecute(ctx context.Context, transfers []solana.Instruction, memo string) (*VaultTransfer, error) {
	prepared, err := b.prepareTransfer(ctx, transfers, memo)
	if err != nil {
		return nil, err
	}

	execute, err := b.executeTransaction(ctx, prepared.Index, prepared.Message)
	if err != nil {
		return nil, err
	}

	return &VaultTransfer{
		Index:   prepared.Index,
		Message: prepared.Message,
		Prepare: prepared.Prepare,
		Execute: execute,
	}, nil
}

func (b *InstructionBuilder) prepareTransfer(ctx context.Context, transfers []solana.Instruction, memo string) (*PreparedTransfer, error) {
	index, err := b.nextSingleApproverIndex(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := CompileVaultMessage(b.vaultPDA, transfers)
	if err != nil {
		return nil, err
	}
	msgBytes, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode vault message: %w", err)
	}

	transactionPDA, _ := sqds.GetTransactionPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)
	proposalPDA, _ := sqds.GetProposalPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)

	create := squads_multisig_program.NewVaultTransactionCreateInstruction(
		squads_multisig_program.VaultTransactionCreateArgs{
			VaultIndex:         b.cfg.VaultIndex,
			EphemeralSigners:   b.cfg.EphemeralSigners,
			TransactionMessage: msgBytes,
			Memo:               &memo,
		},
		b.multisigPDA,
		transactionPDA,
		b.cfg.Creator,
		b.cfg.Creator,
		solana.SystemProgramID,
	).Build()

	propose, approve := b.proposeAndApprove(index, proposalPDA)

	b.logger.WithField("index", index).Debugf("prepared vault transaction with %d transfer(s)", len(transfers))

	return &PreparedTransfer{
		Index:   index,
		Message: msg,
		Prepare: []solana.Instruction{create, propose, approve},
	}, nil
}

// ExecuteVaultTransaction builds the execute transaction for a vault
// transaction prepared earlier. Its proposal must already be approved.
func (b *InstructionBuilder) ExecuteVaultTransaction(ctx context.Context, index uint64) (*solana.Transaction, error) {
	transactionPDA, _ := sqds.GetTransactionPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)

	vt, err := fetchVaultTransaction(ctx, b.rpc, transactionPDA)
	if err != nil {
		return nil, err
	}
	return b.executeTransaction(ctx, index, &vt.Message)
}

func (b *InstructionBuilder) executeTransaction(ctx context.Context, index uint64, msg *VaultMessage) (*solana.Transaction, error) {
	transactionPDA, _ := sqds.GetTransactionPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)
	proposalPDA, _ := sqds.GetProposalPDA(b.multisigPDA, index, squads_multisig_program.ProgramID)

	remaining, err := msg.RemainingAccounts()
	if err != nil {
		return nil, err
	}

	ix := squads_multisig_program.NewVaultTransactionExecuteInstruction(
		b.multisigPDA,
		proposalPDA,
		transactionPDA,
		b.cfg.Creator,
	).Build()

	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode vault execute: %w", err)
	}
	accounts := append(ix.Accounts(), remaining...)
	execute := solana.NewInstruction(ix.ProgramID(), accounts, data)

	hash, err := b.rpc.GetLatestBlockhash(ctx, b.cfg.Commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{execute},
		hash.Value.Blockhash,
		solana.TransactionPayer(b.cfg.Creator),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execute transaction: %w", err)
	}
	return tx, nil
}

// GetMultisigMembers returns the current member list.
func (b *InstructionBuilder) GetMultisigMembers(ctx context.Context) ([]Member, error) {
	ms, err := fetchMultisig(ctx, b.rpc, b.multisigPDA)
	if err != nil {
		return nil, err
	}
	return fromProgramMembers(ms.Members), nil
}

// Info returns a snapshot of the multisig account.
func (b *InstructionBuilder) Info(ctx context.Context) (*Info, error) {
	ms, err := fetchMultisig(ctx, b.rpc, b.multisigPDA)
	if err != nil {
		return nil, err
	}
	return &Info{
		Address:               b.multisigPDA,
		Vault:                 b.vaultPDA,
		Threshold:             ms.Threshold,
		TimeLock:              ms.TimeLock,
		TransactionIndex:      ms.TransactionIndex,
		StaleTransactionIndex: ms.StaleTransactionIndex,
		Members:               fromProgramMembers(ms.Members),
	}, nil
}

func (b *InstructionBuilder) transfer(to solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, b.vaultPDA, to).Build()
}
