package engine

import (
	"math/big"
	"time"

	"github.com/giveth/pledge-sync/src/sync/store"
	"github.com/giveth/pledge-sync/src/sync/types"
)

// Mutation is the structured result of reconciling a donation against the
// destination pledge. Optional fields are either set (non-nil pointer) or
// explicitly removed (Clear flag); absent-and-unchanged is the zero value.
type Mutation struct {
	Amount        *big.Int
	Status        string
	PaymentStatus string
	PledgeID      uint64
	Owner         uint64
	OwnerID       uint64
	OwnerType     string
	CommitTime    time.Time

	Intended      *types.PledgeAdmin
	ClearIntended bool
	Delegate      *types.PledgeAdmin
	ClearDelegate bool
}

// deriveStatus computes a donation's status from the destination pledge's
// perspective. Order matters: payment lifecycle wins over approval state.
func deriveStatus(pledge types.Pledge, ownerType string) string {
	switch {
	case pledge.State == types.PledgePaying:
		return types.StatusPaying
	case pledge.State == types.PledgePaid:
		return types.StatusPaid
	case pledge.IntendedProject != 0:
		return types.StatusToApprove
	case ownerType == types.AdminGiver || pledge.NDelegates > 0:
		return types.StatusWaiting
	default:
		return types.StatusCommitted
	}
}

// commitTime prefers the pledge's on-chain commit time; a pledge that never
// committed falls back to the block's wall-clock time.
func commitTime(pledge types.Pledge, blockTime time.Time) time.Time {
	if pledge.CommitTime != 0 {
		return time.Unix(int64(pledge.CommitTime), 0)
	}
	return blockTime
}

// computeMutation derives the donation mutation for a transfer landing on
// toPledge. prev is the donation being rewritten (nil when creating from a
// mint); it decides whether absent optional fields need explicit removal.
func computeMutation(toPledge types.Pledge, toAdmin *types.PledgeAdmin,
	delegate, intended *types.PledgeAdmin, prev *types.Donation,
	amount *big.Int, blockTime time.Time) Mutation {

	m := Mutation{
		Amount:        amount,
		Status:        deriveStatus(toPledge, toAdmin.Type),
		PaymentStatus: toPledge.State.String(),
		PledgeID:      toPledge.ID,
		Owner:         toPledge.Owner,
		OwnerID:       toAdmin.TypeID,
		OwnerType:     toAdmin.Type,
		CommitTime:    commitTime(toPledge, blockTime),
	}

	if intended != nil {
		m.Intended = intended
	} else if prev != nil && prev.IntendedProject != nil {
		m.ClearIntended = true
	}

	// Delegation rights are revoked once payment starts.
	if toPledge.State == types.PledgePaying {
		m.ClearDelegate = true
	} else if delegate != nil {
		m.Delegate = delegate
	} else if prev != nil && prev.Delegate != nil {
		m.ClearDelegate = true
	}

	return m
}

func (m Mutation) patch() store.Patch {
	set := map[string]interface{}{
		"amount":         m.Amount.String(),
		"status":         m.Status,
		"payment_status": m.PaymentStatus,
		"pledge_id":      m.PledgeID,
		"owner":          m.Owner,
		"owner_id":       m.OwnerID,
		"owner_type":     m.OwnerType,
		"commit_time":    m.CommitTime,
	}
	var unset []string
	if m.Intended != nil {
		set["intended_project"] = m.Intended.ID
		set["intended_project_id"] = m.Intended.TypeID
		set["intended_project_type"] = m.Intended.Type
	} else if m.ClearIntended {
		unset = append(unset, "intended_project", "intended_project_id", "intended_project_type")
	}
	if m.Delegate != nil {
		set["delegate"] = m.Delegate.ID
		set["delegate_id"] = m.Delegate.TypeID
	} else if m.ClearDelegate {
		unset = append(unset, "delegate", "delegate_id")
	}
	return store.Patch{Set: set, Unset: unset}
}

// newDonation builds the split-off donation: a copy of the original with the
// destination mutation applied. Generated fields (id, timestamps,
// confirmation counter, joins) are not carried over.
func (m Mutation) newDonation(orig *types.Donation) *types.Donation {
	d := &types.Donation{
		GiverAddress:  orig.GiverAddress,
		Amount:        m.Amount.String(),
		PledgeID:      m.PledgeID,
		Owner:         m.Owner,
		OwnerID:       m.OwnerID,
		OwnerType:     m.OwnerType,
		Status:        m.Status,
		PaymentStatus: m.PaymentStatus,
		CommitTime:    m.CommitTime,
		TxHash:        orig.TxHash,
	}
	if m.Intended != nil {
		id, typeID, typ := m.Intended.ID, m.Intended.TypeID, m.Intended.Type
		d.IntendedProject = &id
		d.IntendedProjectID = &typeID
		d.IntendedProjectType = &typ
	}
	if m.Delegate != nil {
		id, typeID := m.Delegate.ID, m.Delegate.TypeID
		d.Delegate = &id
		d.DelegateID = &typeID
	}
	return d
}
