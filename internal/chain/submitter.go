package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/memo"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultTimeout      = 90 * time.Second
)

// RPC is the subset of the Solana JSON-RPC client the submitter uses.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
}

// Options tunes a Submitter. Zero values fall back to defaults.
type Options struct {
	// Commitment for blockhashes and preflight. Empty means confirmed.
	Commitment rpc.CommitmentType
	// PollInterval between signature status checks.
	PollInterval time.Duration
	// Timeout bounds a single Confirm call.
	Timeout time.Duration
}

// Submitter signs, sends and confirms transactions.
type Submitter struct {
	rpc          RPC
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	timeout      time.Duration
}

// NewSubmitter fills unset options with their defaults.
func NewSubmitter(client RPC, opts Options) *Submitter {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Submitter{
		rpc:          client,
		commitment:   opts.Commitment,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
	}
}

// Submit builds a transaction from instructions with payer as fee payer,
// signs it with payer and signers and sends it.
func (s *Submitter) Submit(
	ctx context.Context,
	instructions []solana.Instruction,
	payer solana.PrivateKey,
	signers ...solana.PrivateKey,
) (solana.Signature, error) {
	recent, err := s.rpc.GetLatestBlockhash(ctx, s.commitment)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	return s.SubmitTransaction(ctx, tx, append([]solana.PrivateKey{payer}, signers...)...)
}

// SubmitTransaction signs a prebuilt transaction and sends it. Every
// required signer of tx must be among signers.
func (s *Submitter) SubmitTransaction(ctx context.Context, tx *solana.Transaction, signers ...solana.PrivateKey) (solana.Signature, error) {
	if _, err := tx.Sign(keyGetter(signers)); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		mFailed.Inc()
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	mSubmitted.Inc()

	log.WithField("signature", sig.String()).Debug("transaction sent")
	return sig, nil
}

// Airdrop requests lamports for account and waits until the airdrop is
// confirmed.
func (s *Submitter) Airdrop(ctx context.Context, account solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := s.rpc.RequestAirdrop(ctx, account, lamports, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to request airdrop: %w", err)
	}
	if err := s.Confirm(ctx, sig, rpc.CommitmentConfirmed); err != nil {
		return sig, fmt.Errorf("airdrop %s: %w", sig, err)
	}

	log.Infof("Airdropped %d lamports to %s", lamports, account)
	return sig, nil
}

// Memo returns a memo program instruction signed by signer. The generated
// memo builder length-prefixes the message, the program expects raw UTF-8.
func Memo(signer solana.PublicKey, text string) solana.Instruction {
	return solana.NewInstruction(
		memo.ProgramID,
		solana.AccountMetaSlice{solana.Meta(signer).SIGNER()},
		[]byte(text),
	)
}

func keyGetter(keys []solana.PrivateKey) func(solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	}
}
