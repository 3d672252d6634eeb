package proposal

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/common"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Proposal{}, &UsageRecord{}, &StripeEvent{}, &Job{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	return NewService(repo, NewGenerator(nil, time.Second), 3), repo
}

func TestGenerate_PersistsAndIncrements(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9001

	p, err := svc.Generate(ctx, userID, testInput)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(p.ID) != 26 {
		t.Fatalf("proposal id must be a ULID, got %q", p.ID)
	}

	usage, err := repo.GetUsage(ctx, userID)
	if err != nil || usage == nil {
		t.Fatalf("usage row missing after first generation: %v", err)
	}
	if usage.ProposalsCreated != 1 {
		t.Fatalf("proposals_created: got %d want 1", usage.ProposalsCreated)
	}

	list, err := svc.ListProposals(ctx, userID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("list: got %d proposals", len(list))
	}
	if !reflect.DeepEqual(list[0].Input, testInput) {
		t.Fatalf("stored input does not round-trip")
	}
}

func TestGenerate_FreeLimitBoundary(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9002

	if err := repo.db.Create(&UsageRecord{UserID: userID, ProposalsCreated: 2}).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	// third lifetime generation is still allowed
	if _, err := svc.Generate(ctx, userID, testInput); err != nil {
		t.Fatalf("generation under the cap rejected: %v", err)
	}

	// fourth is not
	if _, err := svc.Generate(ctx, userID, testInput); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	list, _ := svc.ListProposals(ctx, userID, 0)
	if len(list) != 1 {
		t.Fatalf("rejected generation must not persist: got %d proposals", len(list))
	}
}

func TestGenerate_ActiveProBypassesLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9003

	if err := repo.db.Create(&UsageRecord{
		UserID:             userID,
		ProposalsCreated:   1000,
		IsPaid:             true,
		SubscriptionStatus: StatusActive,
	}).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	if _, err := svc.Generate(ctx, userID, testInput); err != nil {
		t.Fatalf("active subscriber must not be capped: %v", err)
	}
}

func TestGenerate_LapsedSubscriberIsCapped(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	for userID, status := range map[uint64]string{
		9004: StatusPastDue,
		9005: StatusCancelled,
	} {
		if err := repo.db.Create(&UsageRecord{
			UserID:             userID,
			ProposalsCreated:   3,
			IsPaid:             true,
			SubscriptionStatus: status,
		}).Error; err != nil {
			t.Fatalf("seed usage: %v", err)
		}
		if _, err := svc.Generate(ctx, userID, testInput); !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("status %q over the cap: expected ErrLimitExceeded, got %v", status, err)
		}
	}
}

func TestGenerateAnonymous_NoPersistence(t *testing.T) {
	svc, repo := newTestService(t)

	out := svc.GenerateAnonymous(context.Background(), testInput)
	if !reflect.DeepEqual(out, FallbackProposal(testInput)) {
		t.Fatalf("anonymous output mismatch")
	}

	var n int64
	repo.db.Model(&Proposal{}).Count(&n)
	// rows may exist from other tests in this shared DB, but anonymous
	// generation never writes one with user_id 0
	var zero int64
	repo.db.Model(&Proposal{}).Where("user_id = 0").Count(&zero)
	_ = n
	if zero != 0 {
		t.Fatalf("anonymous generation must not persist: found %d rows", zero)
	}
}

func TestDeleteProposal_OwnershipScoped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const owner, other = 9006, 9007

	p, err := svc.Generate(ctx, owner, testInput)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if err := svc.DeleteProposal(ctx, other, p.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("foreign delete must look like not-found, got %v", err)
	}
	if list, _ := svc.ListProposals(ctx, owner, 0); len(list) != 1 {
		t.Fatalf("foreign delete must not remove the owner's record")
	}

	if err := svc.DeleteProposal(ctx, owner, p.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if list, _ := svc.ListProposals(ctx, owner, 0); len(list) != 0 {
		t.Fatalf("record still present after owner delete")
	}
}

func TestIncrementProposals_LazyAndAtomic(t *testing.T) {
	_, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9008

	if err := repo.IncrementProposals(ctx, userID); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if err := repo.IncrementProposals(ctx, userID); err != nil {
		t.Fatalf("second increment: %v", err)
	}

	usage, err := repo.GetUsage(ctx, userID)
	if err != nil || usage == nil {
		t.Fatalf("usage row missing: %v", err)
	}
	if usage.ProposalsCreated != 2 {
		t.Fatalf("proposals_created: got %d want 2", usage.ProposalsCreated)
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	const userID = 9009
	key := "req-9009-a"

	id1, err := common.NewULID()
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	j1, created, err := svc.CreateJobOrGetExisting(ctx, &Job{
		ID: id1, UserID: userID, Input: testInput, IdempotencyKey: &key, Status: JobQueued,
	})
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	id2, _ := common.NewULID()
	j2, created, err := svc.CreateJobOrGetExisting(ctx, &Job{
		ID: id2, UserID: userID, Input: testInput, IdempotencyKey: &key, Status: JobQueued,
	})
	if err != nil {
		t.Fatalf("replay create: %v", err)
	}
	if created {
		t.Fatalf("replay with the same key must not create a new job")
	}
	if j2.ID != j1.ID {
		t.Fatalf("replay returned a different job: %s vs %s", j2.ID, j1.ID)
	}
}

func TestRunJob_Succeeds(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9010

	id, _ := common.NewULID()
	if _, _, err := svc.CreateJobOrGetExisting(ctx, &Job{
		ID: id, UserID: userID, Input: testInput, Status: JobQueued,
	}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.RunJob(ctx, id); err != nil {
		t.Fatalf("run job: %v", err)
	}

	j, err := repo.GetJobByID(ctx, id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Status != JobSucceeded || j.ResultProposalID == nil {
		t.Fatalf("job not marked succeeded: status=%s", j.Status)
	}

	list, _ := svc.ListProposals(ctx, userID, 0)
	if len(list) != 1 || list[0].ID != *j.ResultProposalID {
		t.Fatalf("result proposal missing or mismatched")
	}
}

func TestRunJob_OverLimitFails(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	const userID = 9011

	if err := repo.db.Create(&UsageRecord{UserID: userID, ProposalsCreated: 3}).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	id, _ := common.NewULID()
	if _, _, err := svc.CreateJobOrGetExisting(ctx, &Job{
		ID: id, UserID: userID, Input: testInput, Status: JobQueued,
	}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.RunJob(ctx, id); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	j, _ := repo.GetJobByID(ctx, id)
	if j.Status != JobFailed || j.Error == nil {
		t.Fatalf("job not marked failed: status=%s", j.Status)
	}
}

func TestMarkEventProcessed_InsertIsTheLock(t *testing.T) {
	_, repo := newTestService(t)
	ctx := context.Background()

	first, err := repo.MarkEventProcessed(ctx, "evt_lock_1", "checkout.session.completed")
	if err != nil || !first {
		t.Fatalf("first delivery: first=%v err=%v", first, err)
	}
	again, err := repo.MarkEventProcessed(ctx, "evt_lock_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}
	if again {
		t.Fatalf("duplicate delivery must report already-processed")
	}
}
