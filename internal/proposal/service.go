package proposal

import (
	"context"
	"errors"
	"log"

	"github.com/teianlab/teian-api/internal/common"
)

// ErrLimitExceeded signals the free-tier cap; callers surface it as a
// distinct, user-actionable status rather than a system fault.
var ErrLimitExceeded = errors.New("free proposal limit exceeded")

const DefaultFreeLimit = 3

type Service struct {
	repo      *Repo
	gen       *Generator
	freeLimit int
}

func NewService(repo *Repo, gen *Generator, freeLimit int) *Service {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeLimit
	}
	return &Service{repo: repo, gen: gen, freeLimit: freeLimit}
}

// CanGenerate enforces the entitlement gate: an authenticated caller may
// never exceed the free lifetime cap unless their subscription is active.
// A lapsed paid account (past_due/cancelled) is treated as over-limit the
// same as a free one.
func (s *Service) CanGenerate(ctx context.Context, userID uint64) error {
	usage, err := s.repo.GetUsage(ctx, userID)
	if err != nil {
		return err
	}
	if usage == nil {
		// lazily created on first generation
		return nil
	}
	if usage.IsActivePro() {
		return nil
	}
	if usage.ProposalsCreated >= s.freeLimit {
		return ErrLimitExceeded
	}
	return nil
}

// Generate runs the full pipeline for an authenticated user in fixed order:
// gate, generation, proposal insert, counter increment. The insert failing
// surfaces an error; the increment failing after a successful insert is
// tolerated as an under-count and logged.
func (s *Service) Generate(ctx context.Context, userID uint64, in ProposalInput) (*Proposal, error) {
	if err := s.CanGenerate(ctx, userID); err != nil {
		return nil, err
	}

	out, _ := s.gen.Generate(ctx, in)

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	p := &Proposal{
		ID:     id,
		UserID: userID,
		Input:  in,
		Output: out,
	}
	if err := s.repo.CreateProposal(ctx, p); err != nil {
		return nil, err
	}

	if err := s.repo.IncrementProposals(ctx, userID); err != nil {
		log.Printf("usage increment failed user=%d proposal=%s err=%v", userID, p.ID, err)
	}
	return p, nil
}

// GenerateAnonymous serves the ephemeral mode: no persistence, no quota.
func (s *Service) GenerateAnonymous(ctx context.Context, in ProposalInput) ProposalOutput {
	out, _ := s.gen.Generate(ctx, in)
	return out
}

func (s *Service) ListProposals(ctx context.Context, userID uint64, limit int) ([]Proposal, error) {
	return s.repo.ListProposals(ctx, userID, limit)
}

func (s *Service) DeleteProposal(ctx context.Context, userID uint64, id string) error {
	return s.repo.DeleteProposalOwned(ctx, userID, id)
}

func (s *Service) Usage(ctx context.Context, userID uint64) (*UsageRecord, error) {
	return s.repo.GetUsage(ctx, userID)
}

func (s *Service) FreeLimit() int { return s.freeLimit }

// Async jobs

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RunJob executes one queued generation job end to end. The entitlement gate
// already ran when the job was accepted; the worker re-checks it so a queued
// backlog cannot blow past the cap.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	p, err := s.Generate(ctx, j.UserID, j.Input)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return s.repo.MarkJobSucceeded(ctx, jobID, p.ID)
}
