package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/giveth/pledge-sync/src/sync/chain"
	"github.com/giveth/pledge-sync/src/sync/history"
	"github.com/giveth/pledge-sync/src/sync/queue"
	"github.com/giveth/pledge-sync/src/sync/store"
	"github.com/giveth/pledge-sync/src/sync/types"
)

// Collaborator contracts. The engine only ever needs this narrow surface, so
// tests run against in-memory fakes.

type DonationStore interface {
	Find(ctx context.Context, q store.DonationQuery) ([]types.Donation, error)
	Create(ctx context.Context, d *types.Donation) (*types.Donation, error)
	Patch(ctx context.Context, id uint64, p store.Patch) (*types.Donation, error)
}

type AdminStore interface {
	Get(ctx context.Context, id uint64) (*types.PledgeAdmin, error)
}

type MilestoneStore interface {
	Patch(ctx context.Context, id uint64, status string, mined bool) error
}

type BlockTimes interface {
	Resolve(ctx context.Context, number uint64) (time.Time, error)
}

type HistoryTracker interface {
	Record(ctx context.Context, c history.Context) error
}

// Result describes one processed event, for ack publishing and tests.
type Result struct {
	TraceID         string
	Event           types.RawEvent
	Action          string
	DonationID      uint64
	SplitDonationID uint64
	Err             error
}

// Result actions
const (
	ActionCreated        = "created"
	ActionPatched        = "patched"
	ActionSplit          = "split"
	ActionRetryScheduled = "retry_scheduled"
	ActionDropped        = "dropped"
)

// TiebreakPolicy picks one donation out of several equally plausible
// candidates. It is only consulted with a non-empty slice.
type TiebreakPolicy func(candidates []*types.Donation) *types.Donation

// TiebreakFirstMatch preserves the historical behavior: take the first
// candidate in store return order.
var TiebreakFirstMatch TiebreakPolicy = func(candidates []*types.Donation) *types.Donation {
	return candidates[0]
}

type Config struct {
	Pledges    chain.PledgeReader
	Blocks     BlockTimes
	Donations  DonationStore
	Admins     AdminStore
	Milestones MilestoneStore
	History    HistoryTracker

	Queue      *queue.TxQueue
	Scheduler  Scheduler
	RetryDelay time.Duration
	// Tiebreak resolves ambiguous donation matches; defaults to
	// TiebreakFirstMatch.
	Tiebreak TiebreakPolicy

	// Notify, when set, receives a Result per processed event.
	Notify func(Result)
}

// Engine reconciles on-chain Transfer events into the donation ledger.
type Engine struct {
	cfg   Config
	mints *mintTracker
	log   *log.Entry
}

func New(cfg Config) *Engine {
	if cfg.Queue == nil {
		cfg.Queue = queue.New()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Tiebreak == nil {
		cfg.Tiebreak = TiebreakFirstMatch
	}
	return &Engine{
		cfg:   cfg,
		mints: newMintTracker(),
		log:   log.WithField("component", "engine"),
	}
}

// Queue exposes the ordering queue for ops reporting.
func (e *Engine) Queue() *queue.TxQueue { return e.cfg.Queue }

// OnTransferEvent is the single entry point. It validates the envelope and
// enqueues the event under its transaction hash so events sharing a tx are
// applied strictly in arrival order.
func (e *Engine) OnTransferEvent(ctx context.Context, raw types.RawEvent) error {
	if raw.Event != "Transfer" {
		return fmt.Errorf("%w: got %q", ErrNotTransfer, raw.Event)
	}
	if raw.Amount == nil || raw.TxHash == "" {
		return fmt.Errorf("%w: missing amount or tx hash", ErrNotTransfer)
	}
	e.enqueue(ctx, raw, false)
	return nil
}

func (e *Engine) enqueue(ctx context.Context, ev types.RawEvent, isRetry bool) {
	e.cfg.Queue.Add(ev.TxHash, func() {
		defer e.cfg.Queue.Purge(ev.TxHash)
		e.process(ctx, ev, isRetry)
	})
}

func (e *Engine) process(ctx context.Context, ev types.RawEvent, isRetry bool) {
	trace := uuid.NewString()
	l := e.log.WithFields(log.Fields{
		"trace":  trace,
		"from":   ev.From,
		"to":     ev.To,
		"amount": ev.Amount.String(),
		"tx":     ev.TxHash,
		"block":  ev.BlockNumber,
	})

	var res Result
	var err error
	if ev.From == 0 {
		res, err = e.processMint(ctx, l, ev, isRetry)
	} else {
		res, err = e.processTransfer(ctx, l, ev)
	}
	res.TraceID = trace
	res.Event = ev
	res.Err = err
	if err != nil && res.Action == "" {
		res.Action = ActionDropped
	}
	if e.cfg.Notify != nil {
		e.cfg.Notify(res)
	}
}

// ---------- mint (from == 0) ----------

func (e *Engine) processMint(ctx context.Context, l *log.Entry, ev types.RawEvent, isRetry bool) (Result, error) {
	res, err := e.reconcileMint(ctx, l, ev, isRetry)
	if err != nil && isRetry {
		// The retried attempt died before it could create or patch. Clear
		// the tracker so a redelivered event can schedule a fresh retry
		// instead of wedging on the stale retry-scheduled state.
		e.mints.fail(ev.TxHash)
	}
	return res, err
}

func (e *Engine) reconcileMint(ctx context.Context, l *log.Entry, ev types.RawEvent, isRetry bool) (Result, error) {
	pledge, err := e.cfg.Pledges.GetPledge(ctx, ev.To)
	if err != nil {
		l.WithField("err", err).Error("mint: failed to read destination pledge")
		return Result{}, err
	}
	admin, err := e.cfg.Admins.Get(ctx, pledge.Owner)
	if err != nil {
		l.WithFields(log.Fields{"owner": pledge.Owner, "err": err}).Error("mint: failed to read owning admin")
		return Result{}, err
	}
	delegate, intended, err := e.resolveLinks(ctx, l, pledge)
	if err != nil {
		return Result{}, err
	}
	blockTime, err := e.cfg.Blocks.Resolve(ctx, ev.BlockNumber)
	if err != nil {
		l.WithField("err", err).Error("mint: failed to resolve block time")
		return Result{}, err
	}

	existing, err := e.cfg.Donations.Find(ctx, store.DonationQuery{TxHash: &ev.TxHash})
	if err != nil {
		l.WithField("err", err).Error("mint: donation lookup failed")
		return Result{}, err
	}

	if len(existing) == 0 && !isRetry {
		// The ledger record may still be in flight from the giver's create
		// call (fast local mining). Reschedule once.
		if e.mints.scheduleRetry(ev.TxHash) {
			l.WithField("delay", e.cfg.RetryDelay).Info("mint: donation not found yet, rescheduling")
			e.cfg.Scheduler.After(e.cfg.RetryDelay, func() {
				e.enqueue(ctx, ev, true)
			})
		}
		return Result{Action: ActionRetryScheduled}, ErrRetryableNotFound
	}

	if len(existing) == 0 {
		// Retry attempt and still nothing: create the record ourselves.
		m := computeMutation(pledge, admin, delegate, intended, nil, ev.Amount, blockTime)
		d := m.newDonation(&types.Donation{TxHash: ev.TxHash})
		if admin.Type == types.AdminGiver {
			d.GiverAddress = admin.Address
		}
		created, err := e.cfg.Donations.Create(ctx, d)
		if err != nil {
			l.WithField("err", err).Error("mint: failed to create donation")
			return Result{}, err
		}
		e.mints.resolve(ev.TxHash)
		l.WithField("donation_id", created.ID).Info("mint: donation created")
		return Result{Action: ActionCreated, DonationID: created.ID}, nil
	}

	d := existing[0]
	m := computeMutation(pledge, admin, delegate, intended, &d, ev.Amount, blockTime)
	patched, err := e.cfg.Donations.Patch(ctx, d.ID, m.patch())
	if err != nil {
		l.WithFields(log.Fields{"donation_id": d.ID, "err": err}).Error("mint: failed to patch donation")
		return Result{}, err
	}
	e.mints.resolve(ev.TxHash)
	l.WithField("donation_id", patched.ID).Info("mint: donation patched")
	return Result{Action: ActionPatched, DonationID: patched.ID}, nil
}

// ---------- transfer between live pledges ----------

func (e *Engine) processTransfer(ctx context.Context, l *log.Entry, ev types.RawEvent) (Result, error) {
	fromPledge, err := e.cfg.Pledges.GetPledge(ctx, ev.From)
	if err != nil {
		l.WithField("err", err).Error("transfer: failed to read source pledge")
		return Result{}, err
	}
	toPledge, err := e.cfg.Pledges.GetPledge(ctx, ev.To)
	if err != nil {
		l.WithField("err", err).Error("transfer: failed to read destination pledge")
		return Result{}, err
	}

	toAdmin, err := e.cfg.Admins.Get(ctx, toPledge.Owner)
	if err != nil {
		l.WithFields(log.Fields{"owner": toPledge.Owner, "err": err}).Error("transfer: failed to read destination admin")
		return Result{}, err
	}
	fromAdmin, err := e.cfg.Admins.Get(ctx, fromPledge.Owner)
	if err != nil {
		// Best-effort: the mutation only needs the destination side.
		l.WithFields(log.Fields{"owner": fromPledge.Owner, "err": err}).Warn("transfer: source admin missing")
		fromAdmin = nil
	}

	delegate, intended, err := e.resolveLinks(ctx, l, toPledge)
	if err != nil {
		return Result{}, err
	}

	blockTime, err := e.cfg.Blocks.Resolve(ctx, ev.BlockNumber)
	if err != nil {
		l.WithField("err", err).Error("transfer: failed to resolve block time")
		return Result{}, err
	}

	donation, err := e.matchDonation(ctx, l, ev)
	if err != nil {
		return Result{}, err
	}

	m := computeMutation(toPledge, toAdmin, delegate, intended, donation, ev.Amount, blockTime)

	hctx := history.Context{
		FromPledge: fromPledge,
		ToPledge:   toPledge,
		FromAdmin:  fromAdmin,
		ToAdmin:    toAdmin,
		Delegate:   delegate,
		Intended:   intended,
		Amount:     ev.Amount,
		Timestamp:  blockTime,
	}

	var res Result
	if donation.AmountInt().Cmp(ev.Amount) == 0 {
		res, err = e.applyFullTransfer(ctx, l, donation, m, &hctx)
	} else {
		res, err = e.applySplit(ctx, l, donation, fromPledge, fromAdmin, m, ev.Amount, &hctx)
	}
	if err != nil {
		return Result{}, err
	}

	e.patchMilestone(ctx, l, toPledge, toAdmin)

	if err := e.cfg.History.Record(ctx, hctx); err != nil {
		// Ledger state is already correct; a missing audit row is logged
		// upstream and does not fail the event.
		l.WithField("err", err).Warn("transfer: history entry not recorded")
	}
	return res, nil
}

func (e *Engine) applyFullTransfer(ctx context.Context, l *log.Entry, donation *types.Donation,
	m Mutation, hctx *history.Context) (Result, error) {

	patched, err := e.cfg.Donations.Patch(ctx, donation.ID, m.patch())
	if err != nil {
		l.WithFields(log.Fields{"donation_id": donation.ID, "err": err}).Error("transfer: failed to patch donation")
		return Result{}, err
	}
	hctx.Donation = patched
	l.WithField("donation_id", patched.ID).Info("transfer: donation moved")
	return Result{Action: ActionPatched, DonationID: patched.ID}, nil
}

func (e *Engine) applySplit(ctx context.Context, l *log.Entry, donation *types.Donation,
	fromPledge types.Pledge, fromAdmin *types.PledgeAdmin, m Mutation,
	amount *big.Int, hctx *history.Context) (Result, error) {

	remaining := new(big.Int).Sub(donation.AmountInt(), amount)

	srcOwnerType := ""
	if fromAdmin != nil {
		srcOwnerType = fromAdmin.Type
	}
	srcStatus := deriveStatus(fromPledge, srcOwnerType)
	if remaining.Sign() == 0 || amount.Sign() == 0 {
		srcStatus = types.StatusPaid
	}

	patched, err := e.cfg.Donations.Patch(ctx, donation.ID, store.Patch{Set: map[string]interface{}{
		"amount": remaining.String(),
		"status": srcStatus,
	}})
	if err != nil {
		l.WithFields(log.Fields{"donation_id": donation.ID, "err": err}).Error("split: failed to shrink donation")
		return Result{}, err
	}

	created, err := e.cfg.Donations.Create(ctx, m.newDonation(donation))
	if err != nil {
		l.WithFields(log.Fields{"donation_id": donation.ID, "err": err}).Error("split: failed to create donation")
		return Result{}, err
	}

	hctx.Donation = patched
	hctx.SplitDonation = created
	l.WithFields(log.Fields{
		"donation_id":     patched.ID,
		"new_donation_id": created.ID,
		"remaining":       remaining.String(),
	}).Info("split: donation divided")
	return Result{Action: ActionSplit, DonationID: patched.ID, SplitDonationID: created.ID}, nil
}

// resolveLinks fetches the active delegate (only the last entry of the chain
// is recognized) and the intended-project admin, when the pledge has them.
func (e *Engine) resolveLinks(ctx context.Context, l *log.Entry, pledge types.Pledge) (delegate, intended *types.PledgeAdmin, err error) {
	if pledge.NDelegates > 0 {
		id, derr := e.cfg.Pledges.GetPledgeDelegate(ctx, pledge.ID, pledge.NDelegates)
		if derr != nil {
			l.WithFields(log.Fields{"pledge": pledge.ID, "err": derr}).Error("failed to read pledge delegate")
			return nil, nil, derr
		}
		delegate, derr = e.cfg.Admins.Get(ctx, id)
		if derr != nil {
			l.WithFields(log.Fields{"delegate": id, "err": fmt.Errorf("%w: %v", ErrMissingContext, derr)}).
				Warn("delegate admin missing")
			delegate = nil
		}
	}
	if pledge.IntendedProject != 0 {
		var ierr error
		intended, ierr = e.cfg.Admins.Get(ctx, pledge.IntendedProject)
		if ierr != nil {
			l.WithFields(log.Fields{"intended_project": pledge.IntendedProject, "err": fmt.Errorf("%w: %v", ErrMissingContext, ierr)}).
				Warn("intended-project admin missing")
			intended = nil
		}
	}
	return delegate, intended, nil
}

// matchDonation locates the donation a transfer applies to: unique match on
// the source pledge id, else by tx hash among the candidates, else by amount,
// resolving ambiguity through the configured TiebreakPolicy. No match at all
// is unrecoverable.
func (e *Engine) matchDonation(ctx context.Context, l *log.Entry, ev types.RawEvent) (*types.Donation, error) {
	cands, err := e.cfg.Donations.Find(ctx, store.DonationQuery{PledgeID: &ev.From})
	if err != nil {
		l.WithField("err", err).Error("transfer: donation lookup failed")
		return nil, err
	}
	if len(cands) == 0 {
		l.Error("transfer: no donation for source pledge, dropping event")
		return nil, fmt.Errorf("%w: pledge %d tx %s", ErrUnresolvableMatch, ev.From, ev.TxHash)
	}
	if len(cands) == 1 {
		return &cands[0], nil
	}

	var byTx []*types.Donation
	for i := range cands {
		if cands[i].TxHash == ev.TxHash {
			byTx = append(byTx, &cands[i])
		}
	}
	if len(byTx) >= 1 {
		if len(byTx) > 1 {
			l.WithField("candidates", donationIDs(byTx)).Warn("transfer: ambiguous tx-hash match")
		}
		return e.cfg.Tiebreak(byTx), nil
	}

	amt := ev.Amount.String()
	var byAmount []*types.Donation
	for i := range cands {
		if cands[i].Amount == amt {
			byAmount = append(byAmount, &cands[i])
		}
	}
	if len(byAmount) >= 1 {
		if len(byAmount) > 1 {
			l.WithField("candidates", donationIDs(byAmount)).Warn("transfer: ambiguous amount match")
		}
		return e.cfg.Tiebreak(byAmount), nil
	}

	l.WithField("candidates", len(cands)).Error("transfer: no donation matches by tx hash or amount, dropping event")
	return nil, fmt.Errorf("%w: pledge %d tx %s amount %s", ErrUnresolvableMatch, ev.From, ev.TxHash, amt)
}

func donationIDs(ds []*types.Donation) []uint64 {
	ids := make([]uint64, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}

// patchMilestone mirrors the payment lifecycle onto the owning milestone.
// Fire-and-forget: a failure is logged, never propagated.
func (e *Engine) patchMilestone(ctx context.Context, l *log.Entry, pledge types.Pledge, admin *types.PledgeAdmin) {
	if admin.Type != types.AdminMilestone {
		return
	}
	if pledge.State != types.PledgePaying && pledge.State != types.PledgePaid {
		return
	}
	if err := e.cfg.Milestones.Patch(ctx, admin.TypeID, pledge.State.String(), true); err != nil {
		l.WithFields(log.Fields{"milestone": admin.TypeID, "err": err}).Warn("failed to patch milestone status")
	}
}

// IsRetryable reports whether err is the transient mint condition.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryableNotFound)
}
