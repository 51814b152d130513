package syncop

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akela-hq/akela/core"
)

type fakeRepo struct {
	applied    map[string]AppliedOp
	updatedAt  map[string]time.Time // entity/id -> server version
	applyErr   error
	appliedIDs []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		applied:   make(map[string]AppliedOp),
		updatedAt: make(map[string]time.Time),
	}
}

func (r *fakeRepo) GetAppliedOp(_ context.Context, opID string, _ ...core.DBExecutor) (AppliedOp, error) {
	if rec, ok := r.applied[opID]; ok {
		return rec, nil
	}
	return AppliedOp{}, ErrOpNotFound
}

func (r *fakeRepo) RecordAppliedOp(_ context.Context, rec AppliedOp, _ ...core.DBExecutor) error {
	r.applied[rec.OpID] = rec
	return nil
}

func (r *fakeRepo) EntityUpdatedAt(_ context.Context, _, entity, entityID string, _ ...core.DBExecutor) (time.Time, error) {
	at, ok := r.updatedAt[entity+"/"+entityID]
	if !ok {
		return time.Time{}, ErrEntityNotFound
	}
	return at, nil
}

func (r *fakeRepo) ApplyOp(_ context.Context, _, _ string, op Op, _ ...core.DBExecutor) (string, error) {
	if r.applyErr != nil {
		return "", r.applyErr
	}
	id := op.EntityID
	if id == "" {
		id = uuid.NewString()
	}
	r.appliedIDs = append(r.appliedIDs, op.OpID)
	return id, nil
}

func (r *fakeRepo) QueryChanges(_ context.Context, _ string, _ time.Time, _ ...core.DBExecutor) ([]Change, error) {
	return nil, nil
}

func TestApplyBatch_CreateThenDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo)

	op := Op{OpID: uuid.NewString(), Entity: EntityMember, Action: ActionCreate}

	results := svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{op})
	require.Len(t, results, 1)
	assert.Equal(t, OpApplied, results[0].Status)
	assert.NotEmpty(t, results[0].EntityID)

	// replaying the same op_id is a no-op reporting the original entity id
	replay := svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{op})
	require.Len(t, replay, 1)
	assert.Equal(t, OpDuplicate, replay[0].Status)
	assert.Equal(t, results[0].EntityID, replay[0].EntityID)
	assert.Len(t, repo.appliedIDs, 1)
}

func TestApplyBatch_ConflictOnStaleBase(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo)

	serverAt := time.Now().UTC()
	base := serverAt.Add(-time.Hour)
	repo.updatedAt[EntityMeeting+"/mtg-1"] = serverAt

	op := Op{
		OpID:          uuid.NewString(),
		Entity:        EntityMeeting,
		Action:        ActionUpdate,
		EntityID:      "mtg-1",
		BaseUpdatedAt: &base,
	}
	results := svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{op})
	require.Len(t, results, 1)
	assert.Equal(t, OpConflict, results[0].Status)
	assert.Empty(t, repo.appliedIDs)

	// conflicts are not recorded, so a resolved replay applies
	op.BaseUpdatedAt = &serverAt
	results = svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{op})
	require.Len(t, results, 1)
	assert.Equal(t, OpApplied, results[0].Status)
}

func TestApplyBatch_DeleteOfMissingEntityIsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo)

	base := time.Now().UTC()
	op := Op{
		OpID:          uuid.NewString(),
		Entity:        EntityGuardian,
		Action:        ActionDelete,
		EntityID:      "grd-1",
		BaseUpdatedAt: &base,
	}
	results := svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{op})
	require.Len(t, results, 1)
	assert.Equal(t, OpDuplicate, results[0].Status)
}

func TestApplyBatch_ErrorDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewService(repo)

	repo.applyErr = errors.New("boom")
	bad := Op{OpID: uuid.NewString(), Entity: EntityMember, Action: ActionCreate}
	results := svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{bad})
	require.Len(t, results, 1)
	assert.Equal(t, OpError, results[0].Status)

	repo.applyErr = nil
	good := Op{OpID: uuid.NewString(), Entity: EntityMember, Action: ActionCreate}
	results = svc.ApplyBatch(ctx, "unit-1", "user-1", []Op{bad, good})
	require.Len(t, results, 2)
	assert.Equal(t, OpDuplicate, results[0].Status) // the failed op was recorded
	assert.Equal(t, OpApplied, results[1].Status)
}
