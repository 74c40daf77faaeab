package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	ScopeParticipant AccountScope = iota
	ScopeSystem
	ScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Participant sub-types
	SubTypePrize AccountSubType = iota
	SubTypeStakeRefund

	// System sub-types
	SubTypeStakeEscrow // entity ID is the tournament ID
	SubTypeJudgeFees   // global accumulator owed to the admin

	// External boundary sub-types
	SubTypeExternalStakes
	SubTypeExternalFees
	SubTypeExternalWithdrawals
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

// SettlementAsset denominates every stake, fee, and payout.
const SettlementAsset = "AZERO"

var (
	assetToID = map[string]AssetID{
		"AZERO": 1,
		"ETH":   2,
		"BTC":   3,
		"USDC":  4,
	}
	idToAsset = map[AssetID]string{
		1: "AZERO",
		2: "ETH",
		3: "BTC",
		4: "USDC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// SettlementAssetID returns the numeric ID of the settlement asset.
func SettlementAssetID() AssetID {
	return assetToID[SettlementAsset]
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // participant account, or tournament ID for escrow
	SubType  AccountSubType
	AssetID  AssetID
}

// NewParticipantAccountKey creates a key for a participant-owned account
func NewParticipantAccountKey(account uuid.UUID, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    ScopeParticipant,
		EntityID: account,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewEscrowAccountKey creates the stake-escrow key for a tournament
func NewEscrowAccountKey(tournamentID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    ScopeSystem,
		EntityID: tournamentID,
		SubType:  SubTypeStakeEscrow,
		AssetID:  assetID,
	}
}

// NewJudgeFeesAccountKey creates the global judge-fee accumulator key
func NewJudgeFeesAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   ScopeSystem,
		SubType: SubTypeJudgeFees,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   ScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case ScopeParticipant:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("participant:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case ScopeSystem:
		if k.EntityID == [16]byte{} {
			return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
		}
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("system:%s:%s:%s", k.subTypeName(), uid.String(), assetName)
	case ScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath inverts AccountPath. Used when restoring balances from
// a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	if len(parts) < 3 {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}

	var key AccountKey
	var subName, assetName string

	switch parts[0] {
	case "participant":
		if len(parts) != 4 {
			return AccountKey{}, fmt.Errorf("malformed participant path %q", path)
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		key.Scope = ScopeParticipant
		key.EntityID = id
		subName, assetName = parts[2], parts[3]
	case "system":
		key.Scope = ScopeSystem
		switch len(parts) {
		case 3:
			subName, assetName = parts[1], parts[2]
		case 4:
			id, err := uuid.Parse(parts[2])
			if err != nil {
				return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
			}
			key.EntityID = id
			subName, assetName = parts[1], parts[3]
		default:
			return AccountKey{}, fmt.Errorf("malformed system path %q", path)
		}
	case "external":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed external path %q", path)
		}
		key.Scope = ScopeExternal
		subName, assetName = parts[1], parts[2]
	default:
		return AccountKey{}, fmt.Errorf("unknown scope in account path %q", path)
	}

	subType, ok := subTypeFromName(subName)
	if !ok {
		return AccountKey{}, fmt.Errorf("unknown sub-type in account path %q", path)
	}
	assetID, ok := GetAssetID(assetName)
	if !ok {
		return AccountKey{}, fmt.Errorf("unknown asset in account path %q", path)
	}

	key.SubType = subType
	key.AssetID = assetID
	return key, nil
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypePrize:
		return "prize"
	case SubTypeStakeRefund:
		return "stake_refund"
	case SubTypeStakeEscrow:
		return "stake_escrow"
	case SubTypeJudgeFees:
		return "judge_fees"
	case SubTypeExternalStakes:
		return "stakes"
	case SubTypeExternalFees:
		return "fees"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "prize":
		return SubTypePrize, true
	case "stake_refund":
		return SubTypeStakeRefund, true
	case "stake_escrow":
		return SubTypeStakeEscrow, true
	case "judge_fees":
		return SubTypeJudgeFees, true
	case "stakes":
		return SubTypeExternalStakes, true
	case "fees":
		return SubTypeExternalFees, true
	case "withdrawals":
		return SubTypeExternalWithdrawals, true
	default:
		return 0, false
	}
}
