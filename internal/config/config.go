package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
	sqds "github.com/hogyzen12/squads-go/pkg/multisig"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"reviewer-multisig-go/internal/rewards"
)

const (
	// RPCURLKey is the key to customize the Solana JSON-RPC endpoint.
	RPCURLKey = "RPC_URL"
	// LogLevelKey is the key to customize the logrus level (0 panic to 6 trace).
	LogLevelKey = "LOG_LEVEL"
	// LedgerPathKey is the key to customize the sqlite payout ledger file.
	// An empty value disables the ledger.
	LedgerPathKey = "LEDGER_PATH"
	// CreatorKeyKey is the key for the base58 secret key of the multisig
	// creator.
	CreatorKeyKey = "CREATOR_KEY"
	// CreateKeyKey is the key for the base58 secret key that seeds the
	// multisig address.
	CreateKeyKey = "CREATE_KEY"
	// MultisigKey is the key for the base58 multisig address. It stands in
	// for CreateKeyKey on commands that only read or execute.
	MultisigKey = "MULTISIG"
	// VaultIndexKey is the key to select the vault transfers draw from.
	VaultIndexKey = "VAULT_INDEX"
	// NumRewardKeysKey is the key to customize how many reward recipients the
	// demo generates.
	NumRewardKeysKey = "NUM_REWARD_KEYS"
	// RewardCapKey is the key to customize the maximum reward in SOL.
	RewardCapKey = "REWARD_CAP"
	// AirdropKey is the key to customize the SOL airdropped to the creator.
	AirdropKey = "AIRDROP"
	// VaultFundingKey is the key to customize the SOL moved into the vault
	// when the multisig is created.
	VaultFundingKey = "VAULT_FUNDING"
	// ConfirmTimeoutKey is the key to customize, in seconds, how long to wait
	// for a transaction to reach its commitment.
	ConfirmTimeoutKey = "CONFIRM_TIMEOUT"
	// PollIntervalKey is the key to customize, in milliseconds, the interval
	// between signature status checks.
	PollIntervalKey = "POLL_INTERVAL"
	// PortKey is the key to customize the port the read API listens on.
	PortKey = "PORT"
)

var (
	vip *viper.Viper

	defaultRPCURL         = "http://localhost:8899"
	defaultLogLevel       = int(log.InfoLevel)
	defaultLedgerPath     = "reviewer.db"
	defaultNumRewardKeys  = 5
	defaultRewardCap      = "0.05"
	defaultAirdrop        = "5"
	defaultVaultFunding   = "1"
	defaultConfirmTimeout = 90
	defaultPollInterval   = 500
	defaultPort           = 8080

	maxRewardKeys = 10

	// ErrNoMultisig is returned when neither the multisig address nor the
	// create key is configured.
	ErrNoMultisig = errors.New("no multisig configured, set REVIEWER_MULTISIG or REVIEWER_CREATE_KEY")
	// ErrNoCreator is returned when the creator key is required but unset.
	ErrNoCreator = errors.New("no creator key configured, set REVIEWER_CREATOR_KEY")
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("REVIEWER")
	vip.AutomaticEnv()

	vip.SetDefault(RPCURLKey, defaultRPCURL)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(LedgerPathKey, defaultLedgerPath)
	vip.SetDefault(VaultIndexKey, 0)
	vip.SetDefault(NumRewardKeysKey, defaultNumRewardKeys)
	vip.SetDefault(RewardCapKey, defaultRewardCap)
	vip.SetDefault(AirdropKey, defaultAirdrop)
	vip.SetDefault(VaultFundingKey, defaultVaultFunding)
	vip.SetDefault(ConfirmTimeoutKey, defaultConfirmTimeout)
	vip.SetDefault(PollIntervalKey, defaultPollInterval)
	vip.SetDefault(PortKey, defaultPort)
}

// Config is the validated runtime configuration. Creator, CreateKey and
// Multisig are left empty when unset.
type Config struct {
	RPCURL               string
	LogLevel             log.Level
	LedgerPath           string
	Creator              solana.PrivateKey
	CreateKey            solana.PrivateKey
	Multisig             solana.PublicKey
	VaultIndex           uint8
	NumRewardKeys        int
	RewardCap            decimal.Decimal
	AirdropLamports      uint64
	VaultFundingLamports uint64
	ConfirmTimeout       time.Duration
	PollInterval         time.Duration
	Port                 int
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:         GetString(RPCURLKey),
		LedgerPath:     GetString(LedgerPathKey),
		NumRewardKeys:  GetInt(NumRewardKeysKey),
		ConfirmTimeout: time.Duration(GetInt(ConfirmTimeoutKey)) * time.Second,
		PollInterval:   time.Duration(GetInt(PollIntervalKey)) * time.Millisecond,
		Port:           GetInt(PortKey),
	}

	if len(cfg.RPCURL) == 0 {
		return nil, fmt.Errorf("rpc url must not be null")
	}

	level := GetInt(LogLevelKey)
	if level < int(log.PanicLevel) || level > int(log.TraceLevel) {
		return nil, fmt.Errorf("log level must be in range [%d, %d]", log.PanicLevel, log.TraceLevel)
	}
	cfg.LogLevel = log.Level(level)

	vaultIndex := GetInt(VaultIndexKey)
	if vaultIndex < 0 || vaultIndex > 255 {
		return nil, fmt.Errorf("vault index must be in range [0, 255]")
	}
	cfg.VaultIndex = uint8(vaultIndex)

	if cfg.NumRewardKeys < 1 || cfg.NumRewardKeys > maxRewardKeys {
		return nil, fmt.Errorf("number of reward keys must be in range [1, %d]", maxRewardKeys)
	}
	if cfg.ConfirmTimeout <= 0 {
		return nil, fmt.Errorf("confirm timeout must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	var err error
	if cfg.RewardCap, err = parseSol(RewardCapKey); err != nil {
		return nil, err
	}
	if cfg.RewardCap.IsZero() {
		return nil, fmt.Errorf("%s must be greater than zero", RewardCapKey)
	}

	if cfg.AirdropLamports, err = parseLamports(AirdropKey); err != nil {
		return nil, err
	}
	if cfg.VaultFundingLamports, err = parseLamports(VaultFundingKey); err != nil {
		return nil, err
	}

	if cfg.Creator, err = parsePrivateKey(CreatorKeyKey); err != nil {
		return nil, err
	}
	if cfg.CreateKey, err = parsePrivateKey(CreateKeyKey); err != nil {
		return nil, err
	}
	if cfg.Multisig, err = parsePublicKey(MultisigKey); err != nil {
		return nil, err
	}
	if !cfg.Multisig.IsZero() && cfg.CreateKey != nil {
		derived, _ := sqds.GetMultisigPDA(cfg.CreateKey.PublicKey(), squads_multisig_program.ProgramID)
		if !derived.Equals(cfg.Multisig) {
			return nil, fmt.Errorf("%s %s does not match %s, which derives %s", MultisigKey, cfg.Multisig, CreateKeyKey, derived)
		}
	}

	return cfg, nil
}

// GenerateMissingKeys fills an unset creator or create key with a fresh one
// and returns the config keys it generated. It refuses to invent a create
// key for an existing multisig address.
func (c *Config) GenerateMissingKeys() ([]string, error) {
	var generated []string
	if c.Creator == nil {
		c.Creator = solana.NewWallet().PrivateKey
		generated = append(generated, CreatorKeyKey)
	}
	if c.CreateKey == nil {
		if !c.Multisig.IsZero() {
			return nil, fmt.Errorf("%s is set, a new multisig needs %s instead", MultisigKey, CreateKeyKey)
		}
		c.CreateKey = solana.NewWallet().PrivateKey
		generated = append(generated, CreateKeyKey)
	}
	return generated, nil
}

// RequireMultisig fails with ErrNoMultisig unless the multisig address can be
// resolved.
func (c *Config) RequireMultisig() error {
	if c.Multisig.IsZero() && c.CreateKey == nil {
		return ErrNoMultisig
	}
	return nil
}

// RequireCreator fails with ErrNoCreator unless the creator key is set.
func (c *Config) RequireCreator() error {
	if c.Creator == nil {
		return ErrNoCreator
	}
	return nil
}

func parseSol(key string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return amount, nil
}

func parseLamports(key string) (uint64, error) {
	sol, err := parseSol(key)
	if err != nil {
		return 0, err
	}
	lamports, err := rewards.ToLamports(sol)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return lamports, nil
}

// parsePrivateKey decodes a base58 ed25519 secret key. An unset key is nil.
func parsePrivateKey(key string) (solana.PrivateKey, error) {
	encoded := strings.TrimSpace(GetString(key))
	if encoded == "" {
		return nil, nil
	}

	buf, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, must be base58: %w", key, err)
	}
	if len(buf) != 64 {
		return nil, fmt.Errorf("invalid %s length, must be exactly 64 bytes", key)
	}
	return solana.PrivateKey(buf), nil
}

func parsePublicKey(key string) (solana.PublicKey, error) {
	encoded := strings.TrimSpace(GetString(key))
	if encoded == "" {
		return solana.PublicKey{}, nil
	}
	pub, err := solana.PublicKeyFromBase58(encoded)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pub, nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}
