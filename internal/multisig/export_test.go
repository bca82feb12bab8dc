package multisig

import (
	"bytes"

	ag_binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// EncodeStoredVaultTransaction writes the account layout the program keeps
// for a vault transaction.
func EncodeStoredVaultTransaction(multisig, creator solana.PublicKey, index uint64, msg *VaultMessage) []byte {
	buf := new(bytes.Buffer)
	enc := ag_binary.NewBorshEncoder(buf)

	vec := func(n int) { _ = enc.WriteUint32(uint32(n), ag_binary.LE) }

	_ = enc.WriteBytes(make([]byte, 8), false)
	_ = enc.WriteBytes(multisig[:], false)
	_ = enc.WriteBytes(creator[:], false)
	_ = enc.WriteUint64(index, ag_binary.LE)
	_ = enc.WriteUint8(255)
	_ = enc.WriteUint8(0)
	_ = enc.WriteUint8(254)
	vec(1)
	_ = enc.WriteUint8(253)

	_ = enc.WriteUint8(msg.NumSigners)
	_ = enc.WriteUint8(msg.NumWritableSigners)
	_ = enc.WriteUint8(msg.NumWritableNonSigners)
	vec(len(msg.AccountKeys))
	for _, k := range msg.AccountKeys {
		_ = enc.WriteBytes(k[:], false)
	}
	vec(len(msg.Instructions))
	for _, ix := range msg.Instructions {
		_ = enc.WriteUint8(ix.ProgramIDIndex)
		vec(len(ix.AccountIndexes))
		_ = enc.WriteBytes(ix.AccountIndexes, false)
		vec(len(ix.Data))
		_ = enc.WriteBytes(ix.Data, false)
	}
	vec(len(msg.AddressTableLookups))
	for _, l := range msg.AddressTableLookups {
		_ = enc.WriteBytes(l.AccountKey[:], false)
		vec(len(l.WritableIndexes))
		_ = enc.WriteBytes(l.WritableIndexes, false)
		vec(len(l.ReadonlyIndexes))
		_ = enc.WriteBytes(l.ReadonlyIndexes, false)
	}
	return buf.Bytes()
}

// DecodeStoredVaultTransaction exposes the account decoder to tests.
func DecodeStoredVaultTransaction(data []byte) (uint64, *VaultMessage, error) {
	vt, err := decodeVaultTransaction(data)
	if err != nil {
		return 0, nil, err
	}
	return vt.Index, &vt.Message, nil
}
