package history

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giveth/pledge-sync/src/sync/types"
)

type memStore struct {
	entries []types.DonationHistory
}

func (m *memStore) Create(_ context.Context, h *types.DonationHistory) error {
	m.entries = append(m.entries, *h)
	return nil
}

func admin(id uint64, typ string) *types.PledgeAdmin {
	return &types.PledgeAdmin{ID: id, Type: typ, TypeID: id * 10}
}

func baseContext() Context {
	return Context{
		FromPledge: types.Pledge{ID: 2, State: types.PledgeNormal},
		ToPledge:   types.Pledge{ID: 3, Owner: 4, State: types.PledgeNormal},
		FromAdmin:  admin(1, types.AdminGiver),
		ToAdmin:    admin(4, types.AdminCampaign),
		Donation:   &types.Donation{ID: 10},
		Amount:     big.NewInt(500),
		Timestamp:  time.Unix(1700000000, 0),
	}
}

func TestNewDonationEntry(t *testing.T) {
	st := &memStore{}
	c := baseContext()

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	e := st.entries[0]
	require.Equal(t, types.HistoryNewDonation, e.Kind)
	require.Equal(t, uint64(10), e.DonationID)
	require.Nil(t, e.FromDonationID)
	require.Equal(t, uint64(4), e.Owner)
	require.Equal(t, types.AdminCampaign, e.OwnerType)
	require.Equal(t, "500", e.Amount)
}

func TestNewDonationRequiresFreshSource(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	c.FromPledge.OldPledge = 1 // source has a predecessor

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Empty(t, st.entries)
}

func TestNewDonationGiverNeedsSoleDelegateLink(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	c.ToAdmin = admin(4, types.AdminGiver)

	// Plain giver destination with no delegate link: not a new donation.
	require.NoError(t, New(st).Record(context.Background(), c))
	require.Empty(t, st.entries)

	// With exactly one delegate link it counts.
	c.ToPledge.NDelegates = 1
	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	require.Equal(t, types.HistoryNewDonation, st.entries[0].Kind)
}

func TestCommittedDelegationEntry(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	c.FromPledge.OldPledge = 1
	c.FromPledge.IntendedProject = 4 // matches destination owner

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	require.Equal(t, types.HistoryCommittedDelegation, st.entries[0].Kind)
}

func TestCampaignToMilestoneEntry(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	c.FromPledge.OldPledge = 1
	c.FromAdmin = admin(5, types.AdminCampaign)
	c.ToAdmin = admin(6, types.AdminMilestone)

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	require.Equal(t, types.HistoryCampaignToMilestone, st.entries[0].Kind)
}

func TestRegularTransferEntry(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	c.SplitDonation = &types.Donation{ID: 11}

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	e := st.entries[0]
	require.Equal(t, types.HistoryRegularTransfer, e.Kind)
	require.Equal(t, uint64(11), e.DonationID)
	require.NotNil(t, e.FromDonationID)
	require.Equal(t, uint64(10), *e.FromDonationID)
	require.NotNil(t, e.FromOwner)
	require.Equal(t, uint64(1), *e.FromOwner)
	require.Equal(t, types.AdminGiver, *e.FromOwnerType)
}

func TestNoEntryOutsideNormalState(t *testing.T) {
	for _, state := range []types.PledgeState{types.PledgePaying, types.PledgePaid} {
		st := &memStore{}
		c := baseContext()
		c.ToPledge.State = state
		c.SplitDonation = &types.Donation{ID: 11}

		require.NoError(t, New(st).Record(context.Background(), c))
		require.Empty(t, st.entries)
	}
}

func TestAtMostOneEntry(t *testing.T) {
	st := &memStore{}
	c := baseContext()
	// Qualifies as new-donation and (via intended project) committed
	// delegation; only the first classification is recorded.
	c.FromPledge.IntendedProject = 4

	require.NoError(t, New(st).Record(context.Background(), c))
	require.Len(t, st.entries, 1)
	require.Equal(t, types.HistoryNewDonation, st.entries[0].Kind)
}
