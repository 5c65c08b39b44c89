package types

import (
	"math/big"
	"time"
)

// PledgeState mirrors the on-chain pledge lifecycle enum.
type PledgeState uint8

const (
	PledgeNormal PledgeState = 0
	PledgePaying PledgeState = 1
	PledgePaid   PledgeState = 2
)

func (s PledgeState) String() string {
	switch s {
	case PledgePaying:
		return "Paying"
	case PledgePaid:
		return "Paid"
	default:
		return "Pledged"
	}
}

// Donation statuses
const (
	StatusWaiting   = "waiting"
	StatusToApprove = "to_approve"
	StatusCommitted = "committed"
	StatusPaying    = "paying"
	StatusPaid      = "paid"
)

// Pledge admin types
const (
	AdminGiver     = "giver"
	AdminDac       = "dac"
	AdminCampaign  = "campaign"
	AdminMilestone = "milestone"
)

// Pledge is the on-chain pledge record, fetched live and never persisted.
type Pledge struct {
	ID              uint64
	Amount          *big.Int
	Owner           uint64
	NDelegates      uint64
	IntendedProject uint64
	CommitTime      uint64 // epoch seconds, 0 = none
	OldPledge       uint64 // predecessor pledge id, 0 = none
	State           PledgeState
}

// Donations ledger
type Donation struct {
	ID                  uint64 `gorm:"primaryKey"`
	GiverAddress        string `gorm:"size:64;not null"`
	Amount              string `gorm:"size:78;not null"` // integer string, wei
	PledgeID            uint64 `gorm:"index;not null"`
	Owner               uint64 `gorm:"not null"` // pledge admin id
	OwnerID             uint64 `gorm:"not null"` // id in the owner type's collection
	OwnerType           string `gorm:"size:16;not null"`
	Status              string `gorm:"size:16;not null"`
	PaymentStatus       string `gorm:"size:16;not null"`
	IntendedProject     *uint64
	IntendedProjectID   *uint64
	IntendedProjectType *string `gorm:"size:16"`
	Delegate            *uint64
	DelegateID          *uint64
	CommitTime          time.Time
	TxHash              string `gorm:"size:66;index;not null"`
	Confirmations       uint32 `gorm:"default:0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
	History             []DonationHistory `gorm:"foreignKey:DonationID"`
}

// AmountInt parses the stored amount. Returns zero on a malformed column.
func (d *Donation) AmountInt() *big.Int {
	n, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// Audit trail, append-only
type DonationHistory struct {
	ID             uint64 `gorm:"primaryKey"`
	DonationID     uint64 `gorm:"index;not null"`
	FromDonationID *uint64
	Kind           string `gorm:"size:32;not null"`
	FromPledgeID   uint64
	ToPledgeID     uint64
	Owner          uint64
	OwnerType      string `gorm:"size:16"`
	FromOwner      *uint64
	FromOwnerType  *string `gorm:"size:16"`
	Amount         string  `gorm:"size:78;not null"`
	Timestamp      time.Time
	CreatedAt      time.Time
	Donation       Donation `gorm:"foreignKey:DonationID"`
}

// History entry kinds
const (
	HistoryNewDonation         = "new_donation"
	HistoryCommittedDelegation = "committed_delegation"
	HistoryCampaignToMilestone = "campaign_to_milestone"
	HistoryRegularTransfer     = "regular_transfer"
)

// PledgeAdmin is the off-chain identity behind an on-chain admin id.
type PledgeAdmin struct {
	ID      uint64 `gorm:"primaryKey"` // on-chain admin id
	Type    string `gorm:"size:16;not null"`
	TypeID  uint64 `gorm:"not null"` // id in the giver/dac/campaign/milestone collection
	Address string `gorm:"size:64;not null"`
	Title   string `gorm:"size:255"`
	Email   string `gorm:"size:256"`
}

type Milestone struct {
	ID        uint64 `gorm:"primaryKey"`
	Title     string `gorm:"size:255"`
	Status    string `gorm:"size:16"`
	Mined     bool   `gorm:"default:false"`
	UpdatedAt time.Time
}

// RawEvent is the transfer envelope as delivered by the event feed.
type RawEvent struct {
	Event       string
	From        uint64
	To          uint64
	Amount      *big.Int
	TxHash      string
	BlockNumber uint64
}
