package multisig

import "errors"

var (
	ErrAccountNotFound = errors.New("account does not exist")

	// ErrThresholdNotOne is returned by the flows that create, approve and
	// execute a proposal in one go. A single approval only passes a
	// proposal when the threshold is 1.
	ErrThresholdNotOne = errors.New("multisig threshold must be 1 for single-approver flows")

	ErrNoRecipients = errors.New("no transfer recipients")

	ErrAddressLookupTables = errors.New("vault transactions using address lookup tables are not supported")
)
