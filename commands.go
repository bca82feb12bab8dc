package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"reviewer-multisig-go/internal/api"
	"reviewer-multisig-go/internal/chain"
	"reviewer-multisig-go/internal/config"
	"reviewer-multisig-go/internal/driver"
	"reviewer-multisig-go/internal/ledger"
	"reviewer-multisig-go/internal/multisig"
)

var (
	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "run the full multisig lifecycle against a validator",
		Long: "this command airdrops to the creator, creates and funds a multisig, " +
			"adds and removes a member and pays random rewards out of the vault",
		Args: cobra.NoArgs,
		RunE: runDemo,
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "print the multisig account",
		Args:  cobra.NoArgs,
		RunE:  runInfo,
	}
	membersCmd = &cobra.Command{
		Use:   "members",
		Short: "print the multisig members",
		Args:  cobra.NoArgs,
		RunE:  runMembers,
	}
	executeCmd = &cobra.Command{
		Use:   "execute <transaction-index>",
		Short: "execute an approved vault transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runExecute,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "serve multisig and ledger state over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

type app struct {
	cfg       *config.Config
	builder   *multisig.InstructionBuilder
	submitter *chain.Submitter
	ledger    *ledger.Ledger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// newApp wires the clients for cfg. The ledger is only opened when withLedger
// is set, so read-only commands never create the database file.
func newApp(cfg *config.Config, withLedger bool) (*app, error) {
	msCfg := multisig.Config{
		Multisig:   cfg.Multisig,
		VaultIndex: cfg.VaultIndex,
	}
	if cfg.CreateKey != nil {
		msCfg.CreateKey = cfg.CreateKey.PublicKey()
	}
	if cfg.Creator != nil {
		msCfg.Creator = cfg.Creator.PublicKey()
	}

	client := rpc.New(cfg.RPCURL)
	a := &app{
		cfg:     cfg,
		builder: multisig.NewInstructionBuilder(client, msCfg),
		submitter: chain.NewSubmitter(client, chain.Options{
			Timeout:      cfg.ConfirmTimeout,
			PollInterval: cfg.PollInterval,
		}),
	}

	if withLedger && cfg.LedgerPath != "" {
		var err error
		if a.ledger, err = ledger.Open(cfg.LedgerPath); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"rpc":      cfg.RPCURL,
		"multisig": a.builder.MultisigPDA().String(),
		"creator":  a.builder.Creator().String(),
	}).Debug("configured")
	return a, nil
}

// newReader wires an app for commands that only need the multisig address.
func newReader() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireMultisig(); err != nil {
		return nil, err
	}
	return newApp(cfg, false)
}

func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	generated, err := cfg.GenerateMissingKeys()
	if err != nil {
		return err
	}
	printGeneratedKeys(cmd.ErrOrStderr(), cfg, generated)

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := driver.Deps{Builder: a.builder, Submitter: a.submitter}
	if a.ledger != nil {
		deps.Ledger = a.ledger
	}

	report, err := driver.Run(cmd.Context(), deps, driver.Config{
		Creator:              cfg.Creator,
		CreateKey:            cfg.CreateKey,
		NumRewardKeys:        cfg.NumRewardKeys,
		RewardCap:            cfg.RewardCap,
		AirdropLamports:      cfg.AirdropLamports,
		VaultFundingLamports: cfg.VaultFundingLamports,
		Out:                  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}

// printGeneratedKeys writes the keys demo made up as shell exports, so later
// commands can reach the same multisig.
func printGeneratedKeys(w io.Writer, cfg *config.Config, generated []string) {
	if len(generated) == 0 {
		return
	}
	log.Warnf("generated %s, export them to reuse this multisig", strings.Join(generated, " and "))
	for _, key := range generated {
		secret := cfg.Creator
		if key == config.CreateKeyKey {
			secret = cfg.CreateKey
		}
		fmt.Fprintf(w, "export REVIEWER_%s=%s\n", key, base58.Encode(secret))
	}
}

func runInfo(cmd *cobra.Command, _ []string) error {
	a, err := newReader()
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.builder.Info(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), info)
}

func runMembers(cmd *cobra.Command, _ []string) error {
	a, err := newReader()
	if err != nil {
		return err
	}
	defer a.Close()

	members, err := a.builder.GetMultisigMembers(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), members)
}

func runExecute(cmd *cobra.Command, args []string) error {
	index, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid transaction index %q: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireMultisig(); err != nil {
		return err
	}
	if err := cfg.RequireCreator(); err != nil {
		return err
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	tx, err := a.builder.ExecuteVaultTransaction(ctx, index)
	if err != nil {
		return err
	}
	sig, err := a.submitter.SubmitTransaction(ctx, tx, cfg.Creator)
	if err != nil {
		return err
	}
	if err := a.submitter.Confirm(ctx, sig, rpc.CommitmentConfirmed); err != nil {
		return err
	}

	if a.ledger != nil {
		err := a.ledger.MarkExecuted(a.builder.MultisigPDA().String(), index, sig.String())
		if err != nil {
			log.WithError(err).Warnf("executed transaction %d is not in the ledger", index)
		}
	}

	log.Infof("Executed vault transaction %d: %s", index, sig)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireMultisig(); err != nil {
		return err
	}
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var store api.BatchStore
	if a.ledger != nil {
		store = a.ledger
	}
	srv := api.NewServer(a.builder, store, a.builder.MultisigPDA())
	return srv.ListenAndServe(cmd.Context(), fmt.Sprintf(":%d", a.cfg.Port))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
