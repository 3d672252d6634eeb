package proposal

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateProposal(ctx context.Context, p *Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// ListProposals returns the user's proposals, newest first.
func (r *Repo) ListProposals(ctx context.Context, userID uint64, limit int) ([]Proposal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []Proposal
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteProposalOwned deletes only when both id and owner match. A zero
// rows-affected result is reported as not found, never touching another
// user's record.
func (r *Repo) DeleteProposalOwned(ctx context.Context, userID uint64, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Proposal{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetUsage returns the user's entitlement row, or nil when none exists yet
// (records are created lazily).
func (r *Repo) GetUsage(ctx context.Context, userID uint64) (*UsageRecord, error) {
	var u UsageRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementProposals advances the lifetime counter by exactly one with a
// storage-side atomic upsert, so concurrent increments never lose updates.
func (r *Repo) IncrementProposals(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"proposals_created": gorm.Expr("proposals_created + 1"),
		}),
	}).Create(&UsageRecord{UserID: userID, ProposalsCreated: 1}).Error
}

// MarkEventProcessed records a payment-provider event id. The insert is the
// idempotency lock: it returns false when the event was already recorded by
// this or a concurrent delivery.
func (r *Repo) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	err := r.db.WithContext(ctx).Create(&StripeEvent{EventID: eventID, Type: eventType}).Error
	if err == nil {
		return true, nil
	}

	var existing StripeEvent
	getErr := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&existing).Error
	if getErr == nil {
		return false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return false, err
	}
	return false, getErr
}

// ActivateSubscription applies a completed checkout to the entitlement row.
func (r *Repo) ActivateSubscription(ctx context.Context, userID uint64, customerID, subscriptionID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"is_paid":                true,
			"subscription_status":    StatusActive,
			"stripe_customer_id":     customerID,
			"stripe_subscription_id": subscriptionID,
		}),
	}).Create(&UsageRecord{
		UserID:               userID,
		IsPaid:               true,
		SubscriptionStatus:   StatusActive,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
	}).Error
}

// CancelByCustomer marks the subscription cancelled and clears the
// subscription id.
func (r *Repo) CancelByCustomer(ctx context.Context, customerID string) error {
	return r.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(map[string]any{
			"is_paid":                false,
			"subscription_status":    StatusCancelled,
			"stripe_subscription_id": "",
		}).Error
}

// UpdateStatusByCustomer mirrors a provider-reported subscription status.
func (r *Repo) UpdateStatusByCustomer(ctx context.Context, customerID, status string) error {
	return r.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("stripe_customer_id = ?", customerID).
		Updates(map[string]any{
			"is_paid":             status == StatusActive,
			"subscription_status": status,
		}).Error
}

// MarkPastDueByCustomer records payment delinquency; is_paid is left
// unchanged until the provider sends a subscription update.
func (r *Repo) MarkPastDueByCustomer(ctx context.Context, customerID string) error {
	return r.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("stripe_customer_id = ?", customerID).
		Update("subscription_status", StatusPastDue).Error
}

// Job CRUD

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, proposalID string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobSucceeded,
			"result_proposal_id": proposalID,
			"error":              nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             JobFailed,
			"error":              errMsg,
			"result_proposal_id": nil,
		}).Error
}

func (r *Repo) getJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*Job, error) {
	var job Job
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job, but if (user_id,
// idempotency_key) already exists, it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.getJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
