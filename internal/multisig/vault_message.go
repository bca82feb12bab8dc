package multisig

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// VaultMessage is the inner transaction a vault runs once its proposal is
// approved. Account keys are ordered signers first (writable before
// read-only), then non-signers (writable before read-only).
type VaultMessage struct {
	NumSigners            uint8                 `json:"num_signers"`
	NumWritableSigners    uint8                 `json:"num_writable_signers"`
	NumWritableNonSigners uint8                 `json:"num_writable_non_signers"`
	AccountKeys           []solana.PublicKey    `json:"account_keys"`
	Instructions          []CompiledInstruction `json:"instructions"`
	AddressTableLookups   []AddressTableLookup  `json:"address_table_lookups"`
}

// CompiledInstruction references its program and accounts by index into
// VaultMessage.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8   `json:"program_id_index"`
	AccountIndexes []uint8 `json:"account_indexes"`
	Data           []byte  `json:"data"`
}

// AddressTableLookup loads extra accounts from an address lookup table.
type AddressTableLookup struct {
	AccountKey      solana.PublicKey `json:"account_key"`
	WritableIndexes []uint8          `json:"writable_indexes"`
	ReadonlyIndexes []uint8          `json:"readonly_indexes"`
}

// CompileVaultMessage compiles instructions with the vault as payer, using
// the same account ordering as a regular legacy transaction.
func CompileVaultMessage(vault solana.PublicKey, instructions []solana.Instruction) (*VaultMessage, error) {
	// The blockhash is not part of the vault message, any value compiles.
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(vault))
	if err != nil {
		return nil, fmt.Errorf("failed to compile vault message: %w", err)
	}

	msg := tx.Message
	if len(msg.AccountKeys) > math.MaxUint8 {
		return nil, fmt.Errorf("vault message references %d accounts, max is %d", len(msg.AccountKeys), math.MaxUint8)
	}
	if len(msg.Instructions) > math.MaxUint8 {
		return nil, fmt.Errorf("vault message has %d instructions, max is %d", len(msg.Instructions), math.MaxUint8)
	}

	header := msg.Header
	numNonSigners := len(msg.AccountKeys) - int(header.NumRequiredSignatures)

	out := &VaultMessage{
		NumSigners:            header.NumRequiredSignatures,
		NumWritableSigners:    header.NumRequiredSignatures - header.NumReadonlySignedAccounts,
		NumWritableNonSigners: uint8(numNonSigners - int(header.NumReadonlyUnsignedAccounts)),
		AccountKeys:           append([]solana.PublicKey(nil), msg.AccountKeys...),
		Instructions:          make([]CompiledInstruction, 0, len(msg.Instructions)),
	}

	for _, ci := range msg.Instructions {
		if len(ci.Data) > math.MaxUint16 {
			return nil, fmt.Errorf("instruction data of %d bytes is too large", len(ci.Data))
		}
		indexes := make([]uint8, len(ci.Accounts))
		for i, idx := range ci.Accounts {
			indexes[i] = uint8(idx)
		}
		out.Instructions = append(out.Instructions, CompiledInstruction{
			ProgramIDIndex: uint8(ci.ProgramIDIndex),
			AccountIndexes: indexes,
			Data:           append([]byte(nil), ci.Data...),
		})
	}

	return out, nil
}

// IsSigner reports whether the account at index i signs the inner message.
func (m *VaultMessage) IsSigner(i int) bool {
	return i < int(m.NumSigners)
}

// IsWritable reports whether the static account at index i is writable.
func (m *VaultMessage) IsWritable(i int) bool {
	if i < int(m.NumSigners) {
		return i < int(m.NumWritableSigners)
	}
	return i-int(m.NumSigners) < int(m.NumWritableNonSigners)
}

// ProgramID resolves the program invoked by the instruction at index i.
func (m *VaultMessage) ProgramID(i int) (solana.PublicKey, error) {
	if i < 0 || i >= len(m.Instructions) {
		return solana.PublicKey{}, fmt.Errorf("instruction index %d out of range", i)
	}
	idx := int(m.Instructions[i].ProgramIDIndex)
	if idx >= len(m.AccountKeys) {
		return solana.PublicKey{}, fmt.Errorf("program id index %d out of range", idx)
	}
	return m.AccountKeys[idx], nil
}

// RemainingAccounts lists the accounts vault_transaction_execute needs after
// its fixed accounts. Message signers are program-derived (the vault and any
// ephemeral signers) so none of them sign the outer transaction.
func (m *VaultMessage) RemainingAccounts() ([]*solana.AccountMeta, error) {
	if len(m.AddressTableLookups) > 0 {
		return nil, ErrAddressLookupTables
	}

	metas := make([]*solana.AccountMeta, 0, len(m.AccountKeys))
	for i, key := range m.AccountKeys {
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  key,
			IsWritable: m.IsWritable(i),
			IsSigner:   false,
		})
	}
	return metas, nil
}

// MarshalBinary encodes the message in the compact form
// vault_transaction_create takes as its transaction_message argument: u8
// lengths for every vector except instruction data, which uses a
// little-endian u16.
func (m *VaultMessage) MarshalBinary() ([]byte, error) {
	if len(m.AccountKeys) > math.MaxUint8 || len(m.Instructions) > math.MaxUint8 || len(m.AddressTableLookups) > math.MaxUint8 {
		return nil, errors.New("vault message vector exceeds 255 entries")
	}

	buf := new(bytes.Buffer)
	enc := ag_binary.NewBorshEncoder(buf)

	writeSmallVec := func(b []uint8) error {
		if len(b) > math.MaxUint8 {
			return fmt.Errorf("index vector of %d entries exceeds 255", len(b))
		}
		if err := enc.WriteUint8(uint8(len(b))); err != nil {
			return err
		}
		return enc.WriteBytes(b, false)
	}

	for _, v := range []uint8{m.NumSigners, m.NumWritableSigners, m.NumWritableNonSigners} {
		if err := enc.WriteUint8(v); err != nil {
			return nil, err
		}
	}

	if err := enc.WriteUint8(uint8(len(m.AccountKeys))); err != nil {
		return nil, err
	}
	for _, key := range m.AccountKeys {
		if err := enc.WriteBytes(key[:], false); err != nil {
			return nil, err
		}
	}

	if err := enc.WriteUint8(uint8(len(m.Instructions))); err != nil {
		return nil, err
	}
	for _, ix := range m.Instructions {
		if err := enc.WriteUint8(ix.ProgramIDIndex); err != nil {
			return nil, err
		}
		if err := writeSmallVec(ix.AccountIndexes); err != nil {
			return nil, err
		}
		if len(ix.Data) > math.MaxUint16 {
			return nil, fmt.Errorf("instruction data of %d bytes is too large", len(ix.Data))
		}
		if err := enc.WriteUint16(uint16(len(ix.Data)), ag_binary.LE); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(ix.Data, false); err != nil {
			return nil, err
		}
	}

	if err := enc.WriteUint8(uint8(len(m.AddressTableLookups))); err != nil {
		return nil, err
	}
	for _, l := range m.AddressTableLookups {
		if err := enc.WriteBytes(l.AccountKey[:], false); err != nil {
			return nil, err
		}
		if err := writeSmallVec(l.WritableIndexes); err != nil {
			return nil, err
		}
		if err := writeSmallVec(l.ReadonlyIndexes); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the compact form written by MarshalBinary.
func (m *VaultMessage) UnmarshalBinary(data []byte) error {
	r := &vecReader{dec: ag_binary.NewBorshDecoder(data), length: func(d *ag_binary.Decoder) (int, error) {
		n, err := d.ReadUint8()
		return int(n), err
	}}
	return r.readMessage(m, func(d *ag_binary.Decoder) (int, error) {
		n, err := d.ReadUint16(ag_binary.LE)
		return int(n), err
	})
}

// vaultTransaction is the stored vault transaction account.
type vaultTransaction struct {
	Multisig             solana.PublicKey
	Creator              solana.PublicKey
	Index                uint64
	Bump                 uint8
	VaultIndex           uint8
	VaultBump            uint8
	EphemeralSignerBumps []uint8
	Message              VaultMessage
}

// decodeVaultTransaction reads the account layout the program stores after
// vault_transaction_create. Unlike the instruction argument, every vector in
// the stored message carries a u32 length.
func decodeVaultTransaction(data []byte) (*vaultTransaction, error) {
	dec := ag_binary.NewBorshDecoder(data)
	if err := dec.Discard(8); err != nil {
		return nil, fmt.Errorf("read discriminator: %w", err)
	}

	r := &vecReader{dec: dec, length: func(d *ag_binary.Decoder) (int, error) {
		n, err := d.ReadUint32(ag_binary.LE)
		return int(n), err
	}}

	var vt vaultTransaction
	var err error
	if vt.Multisig, err = r.readKey(); err != nil {
		return nil, err
	}
	if vt.Creator, err = r.readKey(); err != nil {
		return nil, err
	}
	if vt.Index, err = dec.ReadUint64(ag_binary.LE); err != nil {
		return nil, err
	}
	if vt.Bump, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if vt.VaultIndex, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if vt.VaultBump, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if vt.EphemeralSignerBumps, err = r.readBytes(); err != nil {
		return nil, err
	}
	if err := r.readMessage(&vt.Message, r.length); err != nil {
		return nil, err
	}
	return &vt, nil
}

// vecReader decodes both message layouts; they differ only in how vector
// lengths are prefixed.
type vecReader struct {
	dec    *ag_binary.Decoder
	length func(*ag_binary.Decoder) (int, error)
}

func (r *vecReader) readLen(elemSize int) (int, error) {
	n, err := r.length(r.dec)
	if err != nil {
		return 0, err
	}
	if n*elemSize > r.dec.Remaining() {
		return 0, fmt.Errorf("vector of %d entries exceeds remaining %d bytes", n, r.dec.Remaining())
	}
	return n, nil
}

func (r *vecReader) readKey() (solana.PublicKey, error) {
	b, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func (r *vecReader) readBytes() ([]byte, error) {
	n, err := r.readLen(1)
	if err != nil {
		return nil, err
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *vecReader) readMessage(m *VaultMessage, dataLength func(*ag_binary.Decoder) (int, error)) error {
	var err error
	if m.NumSigners, err = r.dec.ReadUint8(); err != nil {
		return err
	}
	if m.NumWritableSigners, err = r.dec.ReadUint8(); err != nil {
		return err
	}
	if m.NumWritableNonSigners, err = r.dec.ReadUint8(); err != nil {
		return err
	}

	numKeys, err := r.readLen(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("read account keys: %w", err)
	}
	m.AccountKeys = make([]solana.PublicKey, numKeys)
	for i := range m.AccountKeys {
		if m.AccountKeys[i], err = r.readKey(); err != nil {
			return err
		}
	}

	numInstructions, err := r.readLen(1)
	if err != nil {
		return fmt.Errorf("read instructions: %w", err)
	}
	m.Instructions = make([]CompiledInstruction, numInstructions)
	for i := range m.Instructions {
		ix := &m.Instructions[i]
		if ix.ProgramIDIndex, err = r.dec.ReadUint8(); err != nil {
			return err
		}
		if ix.AccountIndexes, err = r.readBytes(); err != nil {
			return err
		}
		n, err := dataLength(r.dec)
		if err != nil {
			return err
		}
		if n > r.dec.Remaining() {
			return fmt.Errorf("instruction data of %d bytes exceeds remaining %d", n, r.dec.Remaining())
		}
		data, err := r.dec.ReadNBytes(n)
		if err != nil {
			return err
		}
		ix.Data = append([]byte(nil), data...)
	}

	numLookups, err := r.readLen(solana.PublicKeyLength)
	if err != nil {
		return fmt.Errorf("read address table lookups: %w", err)
	}
	m.AddressTableLookups = make([]AddressTableLookup, numLookups)
	for i := range m.AddressTableLookups {
		l := &m.AddressTableLookups[i]
		if l.AccountKey, err = r.readKey(); err != nil {
			return err
		}
		if l.WritableIndexes, err = r.readBytes(); err != nil {
			return err
		}
		if l.ReadonlyIndexes, err = r.readBytes(); err != nil {
			return err
		}
	}
	return nil
}
