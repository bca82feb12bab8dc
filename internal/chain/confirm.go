package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrTransactionFailed is returned when a transaction lands with an error.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrConfirmTimeout is returned when the commitment is not reached in time.
	ErrConfirmTimeout = errors.New("timed out waiting for confirmation")
	// ErrStatusUnavailable is returned when the status request keeps failing.
	ErrStatusUnavailable = errors.New("signature status unavailable")
)

// maxStatusErrors is the number of consecutive failed status requests Confirm
// tolerates.
const maxStatusErrors = 5

var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

func rankOf(commitment rpc.CommitmentType) int {
	switch commitment {
	case rpc.CommitmentProcessed:
		return 1
	case rpc.CommitmentFinalized:
		return 3
	default:
		return 2
	}
}

// Confirm polls the signature status until it reaches commitment. It fails
// with ErrTransactionFailed if the transaction errored on chain and with
// ErrConfirmTimeout once the submitter timeout expires. Unknown signatures are
// retried, but maxStatusErrors failed requests in a row end with
// ErrStatusUnavailable.
func (s *Submitter) Confirm(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"signature":  sig.String(),
		"commitment": string(commitment),
	})
	want := rankOf(commitment)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		done, rpcErr, err := s.checkStatus(ctx, sig, want)
		if err != nil {
			mFailed.Inc()
			return err
		}
		if rpcErr != nil {
			failures++
			logger.WithError(rpcErr).Warnf("signature status request failed (%d/%d)", failures, maxStatusErrors)
			if failures >= maxStatusErrors {
				mFailed.Inc()
				return fmt.Errorf("%w: %s: %v", ErrStatusUnavailable, sig, rpcErr)
			}
		} else {
			failures = 0
		}
		if done {
			mConfirmed.Inc()
			logger.Debug("transaction confirmed")
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// checkStatus reports whether sig reached want. A failed status request is
// returned as rpcErr, a transaction that failed on chain as err.
func (s *Submitter) checkStatus(ctx context.Context, sig solana.Signature, want int) (done bool, rpcErr, err error) {
	out, err := s.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || ctx.Err() != nil {
			log.Debugf("status of %s not available yet", sig)
			return false, nil, nil
		}
		return false, err, nil
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return false, nil, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err)
	}
	return commitmentRank[status.ConfirmationStatus] >= want, nil, nil
}
