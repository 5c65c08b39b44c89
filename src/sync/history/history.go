package history

import (
	"context"
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/giveth/pledge-sync/src/sync/types"
)

// Store is the append-only sink for audit entries.
type Store interface {
	Create(ctx context.Context, h *types.DonationHistory) error
}

// Context carries everything known about a processed transfer.
type Context struct {
	FromPledge types.Pledge
	ToPledge   types.Pledge
	FromAdmin  *types.PledgeAdmin // may be nil when the reference row is missing
	ToAdmin    *types.PledgeAdmin
	Delegate   *types.PledgeAdmin
	Intended   *types.PledgeAdmin

	Donation      *types.Donation // the matched (and mutated) donation
	SplitDonation *types.Donation // non-nil when the transfer split off a new donation

	Amount    *big.Int
	Timestamp time.Time
}

// Tracker derives at most one audit entry per transfer.
type Tracker struct {
	store Store
	log   *log.Entry
}

func New(store Store) *Tracker {
	return &Tracker{store: store, log: log.WithField("component", "history")}
}

// Record classifies the transfer and appends an entry when one applies.
// Only transfers whose destination pledge is in the Normal state are
// recorded; payment-lifecycle and vetoed-delegation transitions are
// deliberately left without entries for now.
func (t *Tracker) Record(ctx context.Context, c Context) error {
	if c.ToPledge.State != types.PledgeNormal {
		return nil
	}

	kind := classify(c)
	if kind == "" {
		return nil
	}

	entry := &types.DonationHistory{
		Kind:         kind,
		FromPledgeID: c.FromPledge.ID,
		ToPledgeID:   c.ToPledge.ID,
		Amount:       c.Amount.String(),
		Timestamp:    c.Timestamp,
	}
	if c.ToAdmin != nil {
		entry.Owner = c.ToAdmin.ID
		entry.OwnerType = c.ToAdmin.Type
	}

	if kind == types.HistoryRegularTransfer {
		entry.DonationID = c.SplitDonation.ID
		from := c.Donation.ID
		entry.FromDonationID = &from
		if c.FromAdmin != nil {
			owner := c.FromAdmin.ID
			ownerType := c.FromAdmin.Type
			entry.FromOwner = &owner
			entry.FromOwnerType = &ownerType
		}
	} else {
		entry.DonationID = c.Donation.ID
	}

	if err := t.store.Create(ctx, entry); err != nil {
		t.log.WithFields(log.Fields{
			"kind":        kind,
			"donation_id": entry.DonationID,
			"from_pledge": c.FromPledge.ID,
			"to_pledge":   c.ToPledge.ID,
			"err":         err,
		}).Error("failed to append history entry")
		return err
	}
	return nil
}

func classify(c Context) string {
	if c.SplitDonation != nil {
		return types.HistoryRegularTransfer
	}
	if isNewDonation(c) {
		return types.HistoryNewDonation
	}
	if c.FromPledge.IntendedProject != 0 && c.FromPledge.IntendedProject == c.ToPledge.Owner {
		return types.HistoryCommittedDelegation
	}
	if c.FromAdmin != nil && c.ToAdmin != nil &&
		c.FromAdmin.Type == types.AdminCampaign && c.ToAdmin.Type == types.AdminMilestone {
		return types.HistoryCampaignToMilestone
	}
	return ""
}

// isNewDonation: the source pledge has no predecessor, the destination has no
// intended project, and the destination admin is not a plain giver unless the
// pledge's sole delegate link points at it.
func isNewDonation(c Context) bool {
	if c.FromPledge.OldPledge != 0 {
		return false
	}
	if c.ToPledge.IntendedProject != 0 {
		return false
	}
	if c.ToAdmin == nil {
		return false
	}
	if c.ToAdmin.Type == types.AdminGiver && c.ToPledge.NDelegates != 1 {
		return false
	}
	return true
}
