package multisig

import (
	"context"
	"errors"
	"fmt"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
)

// RPC is the subset of the Solana JSON-RPC client the builder reads from.
// *rpc.Client satisfies it.
type RPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

// Info is a snapshot of the multisig account.
type Info struct {
	Address               solana.PublicKey `json:"address"`
	Vault                 solana.PublicKey `json:"vault"`
	Threshold             uint16           `json:"threshold"`
	TimeLock              uint32           `json:"time_lock"`
	TransactionIndex      uint64           `json:"transaction_index"`
	StaleTransactionIndex uint64           `json:"stale_transaction_index"`
	Members               []Member         `json:"members"`
}

func fetchAccountData(ctx context.Context, client RPC, address solana.PublicKey) ([]byte, error) {
	acc, err := client.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}

	data := acc.GetBinary()
	if len(data) <= 8 {
		return nil, fmt.Errorf("account %s data too short", address)
	}
	return data, nil
}

// fetchMultisig loads and decodes the multisig account.
func fetchMultisig(ctx context.Context, client RPC, address solana.PublicKey) (*squads_multisig_program.Multisig, error) {
	data, err := fetchAccountData(ctx, client, address)
	if err != nil {
		return nil, err
	}

	var ms squads_multisig_program.Multisig
	if err := ms.UnmarshalWithDecoder(ag_binary.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("failed to decode multisig %s: %w", address, err)
	}
	return &ms, nil
}

// fetchProgramConfig loads the program-wide config holding the treasury
// that receives multisig creation fees.
func fetchProgramConfig(ctx context.Context, client RPC, address solana.PublicKey) (*squads_multisig_program.ProgramConfig, error) {
	data, err := fetchAccountData(ctx, client, address)
	if err != nil {
		return nil, err
	}

	var cfg squads_multisig_program.ProgramConfig
	if err := cfg.UnmarshalWithDecoder(ag_binary.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("failed to decode program config: %w", err)
	}
	return &cfg, nil
}

// fetchVaultTransaction loads a stored vault transaction and its message.
func fetchVaultTransaction(ctx context.Context, client RPC, address solana.PublicKey) (*vaultTransaction, error) {
	data, err := fetchAccountData(ctx, client, address)
	if err != nil {
		return nil, err
	}

	vt, err := decodeVaultTransaction(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault transaction %s: %w", address, err)
	}
	return vt, nil
}
