package multisig

import (
	"github.com/gagliardetto/solana-go"
	"github.com/hogyzen12/squads-go/generated/squads_multisig_program"
)

// Permission bits as the multisig program defines them.
const (
	PermissionInitiate uint8 = 1 << 0
	PermissionVote     uint8 = 1 << 1
	PermissionExecute  uint8 = 1 << 2
	PermissionAll            = PermissionInitiate | PermissionVote | PermissionExecute
)

// Member is a multisig member and its permission mask.
type Member struct {
	Key         solana.PublicKey `json:"key"`
	Permissions uint8            `json:"permissions"`
}

// Has reports whether the member holds every bit in perm.
func (m Member) Has(perm uint8) bool {
	return m.Permissions&perm == perm
}

// MembersFromKeys gives every key the same permission mask.
func MembersFromKeys(keys []solana.PublicKey, permissions uint8) []Member {
	members := make([]Member, 0, len(keys))
	for _, key := range keys {
		members = append(members, Member{Key: key, Permissions: permissions})
	}
	return members
}

func (m Member) toProgram() squads_multisig_program.Member {
	return squads_multisig_program.Member{
		Key: m.Key,
		Permissions: squads_multisig_program.Permissions{
			Mask: m.Permissions,
		},
	}
}

func toProgramMembers(members []Member) []squads_multisig_program.Member {
	out := make([]squads_multisig_program.Member, len(members))
	for i, m := range members {
		out[i] = m.toProgram()
	}
	return out
}

func fromProgramMembers(members []squads_multisig_program.Member) []Member {
	out := make([]Member, len(members))
	for i, m := range members {
		out[i] = Member{Key: m.Key, Permissions: m.Permissions.Mask}
	}
	return out
}
