package rewards

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/rand"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PlaceholderSignature is what every generated result carries until a payout
// signature is known.
const PlaceholderSignature = "placeholder"

var (
	// DefaultMaxSum is the reward cap in SOL used by the demo.
	DefaultMaxSum = decimal.RequireFromString("0.05")

	lamportsPerSol = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))
	maxLamports    = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

	ErrNegativeSum      = errors.New("reward sum is negative")
	ErrLamportsOverflow = errors.New("amount does not fit in a u64 of lamports")
)

// Result is a single reward owed to a wallet.
type Result struct {
	Wallet    string          `json:"wallet"`
	Sum       decimal.Decimal `json:"sum"`
	Signature string          `json:"signature"`
}

// PublicKey parses the wallet address.
func (r Result) PublicKey() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(r.Wallet)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid wallet address %q: %w", r.Wallet, err)
	}
	return key, nil
}

// Lamports converts the SOL sum to lamports, rounding down.
func (r Result) Lamports() (uint64, error) {
	if r.Sum.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeSum, r.Sum)
	}
	return ToLamports(r.Sum)
}

// ToLamports converts a non-negative SOL amount to lamports, rounding down.
func ToLamports(sol decimal.Decimal) (uint64, error) {
	lamports := sol.Mul(lamportsPerSol).Floor()
	if lamports.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeSum, sol)
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: %s SOL", ErrLamportsOverflow, sol)
	}
	return lamports.BigInt().Uint64(), nil
}

// Generate builds n results for freshly generated wallets, each with a sum
// drawn uniformly from [0, maxSum).
func Generate(n int, maxSum decimal.Decimal, rnd *rand.Rand) []Result {
	results := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		wallet := solana.NewWallet()

		// Truncating to lamport precision keeps the sum strictly below maxSum.
		sum := decimal.NewFromFloat(rnd.Float64()).Mul(maxSum).Truncate(9)

		results = append(results, Result{
			Wallet:    wallet.PublicKey().String(),
			Sum:       sum,
			Signature: PlaceholderSignature,
		})
	}
	return results
}

// Total returns the sum of all rewards in SOL.
func Total(results []Result) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.Sum)
	}
	return total
}
