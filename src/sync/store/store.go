package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/giveth/pledge-sync/src/sync/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DonationQuery is the narrow find contract the engine matches donations with.
// Nil fields are unconstrained.
type DonationQuery struct {
	PledgeID *uint64
	TxHash   *string
	Amount   *string
}

// Patch is a partial mutation: Set assigns columns, Unset nulls them out.
// Optional fields (delegate pair, intended-project triple) are removed via
// Unset rather than written as zero values.
type Patch struct {
	Set   map[string]interface{}
	Unset []string
}

func (p Patch) updates() map[string]interface{} {
	m := make(map[string]interface{}, len(p.Set)+len(p.Unset))
	for k, v := range p.Set {
		m[k] = v
	}
	for _, k := range p.Unset {
		m[k] = nil
	}
	return m
}

// Donations persists the donation ledger.
type Donations struct {
	db *gorm.DB
}

func NewDonations(db *gorm.DB) *Donations {
	return &Donations{db: db}
}

func (s *Donations) Find(ctx context.Context, q DonationQuery) ([]types.Donation, error) {
	tx := s.db.WithContext(ctx).Model(&types.Donation{})
	if q.PledgeID != nil {
		tx = tx.Where("pledge_id = ?", *q.PledgeID)
	}
	if q.TxHash != nil {
		tx = tx.Where("tx_hash = ?", *q.TxHash)
	}
	if q.Amount != nil {
		tx = tx.Where("amount = ?", *q.Amount)
	}
	var out []types.Donation
	if err := tx.Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: find donations: %w", err)
	}
	return out, nil
}

func (s *Donations) Get(ctx context.Context, id uint64) (*types.Donation, error) {
	var d types.Donation
	err := s.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get donation %d: %w", id, err)
	}
	return &d, nil
}

func (s *Donations) Create(ctx context.Context, d *types.Donation) (*types.Donation, error) {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, fmt.Errorf("store: create donation: %w", err)
	}
	return d, nil
}

func (s *Donations) Patch(ctx context.Context, id uint64, p Patch) (*types.Donation, error) {
	res := s.db.WithContext(ctx).Model(&types.Donation{}).Where("id = ?", id).Updates(p.updates())
	if res.Error != nil {
		return nil, fmt.Errorf("store: patch donation %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Donations) List(ctx context.Context, limit, offset int) ([]types.Donation, error) {
	var out []types.Donation
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Offset(offset).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list donations: %w", err)
	}
	return out, nil
}

// Histories persists the append-only audit trail.
type Histories struct {
	db *gorm.DB
}

func NewHistories(db *gorm.DB) *Histories {
	return &Histories{db: db}
}

func (s *Histories) Create(ctx context.Context, h *types.DonationHistory) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("store: create history: %w", err)
	}
	return nil
}

func (s *Histories) ListByDonation(ctx context.Context, donationID uint64) ([]types.DonationHistory, error) {
	var out []types.DonationHistory
	err := s.db.WithContext(ctx).Where("donation_id = ?", donationID).Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: list history: %w", err)
	}
	return out, nil
}

// Admins reads pledge-admin identities. The rows are owned by the collaborator
// web service; this side only reads them.
type Admins struct {
	db *gorm.DB
}

func NewAdmins(db *gorm.DB) *Admins {
	return &Admins{db: db}
}

func (s *Admins) Get(ctx context.Context, id uint64) (*types.PledgeAdmin, error) {
	var a types.PledgeAdmin
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get admin %d: %w", id, err)
	}
	return &a, nil
}

// Milestones receives the payment-lifecycle side effect.
type Milestones struct {
	db *gorm.DB
}

func NewMilestones(db *gorm.DB) *Milestones {
	return &Milestones{db: db}
}

func (s *Milestones) Patch(ctx context.Context, id uint64, status string, mined bool) error {
	err := s.db.WithContext(ctx).Model(&types.Milestone{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "mined": mined}).Error
	if err != nil {
		return fmt.Errorf("store: patch milestone %d: %w", id, err)
	}
	return nil
}
