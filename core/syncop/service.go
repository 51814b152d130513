package syncop

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrOpNotFound     = errors.New("sync op not found")
	ErrEntityNotFound = errors.New("entity not found")
)

type (
	Repository interface {
		// GetAppliedOp returns the idempotency record for opID, or ErrOpNotFound.
		GetAppliedOp(ctx context.Context, opID string, exec ...core.DBExecutor) (AppliedOp, error)
		RecordAppliedOp(ctx context.Context, rec AppliedOp, exec ...core.DBExecutor) error

		// EntityUpdatedAt returns the server-side updated_at of the targeted row,
		// or ErrEntityNotFound when no such row exists in the unit.
		EntityUpdatedAt(ctx context.Context, unitID, entity, entityID string, exec ...core.DBExecutor) (time.Time, error)

		// ApplyOp performs the op against the targeted table and returns the
		// entity id (newly minted for creates).
		ApplyOp(ctx context.Context, unitID, userID string, op Op, exec ...core.DBExecutor) (string, error)

		// QueryChanges lists rows of all synced entities changed since the given
		// time, tombstones included.
		QueryChanges(ctx context.Context, unitID string, since time.Time, exec ...core.DBExecutor) ([]Change, error)
	}

	Service interface {
		// ApplyBatch replays client ops in order. Each op succeeds or fails on
		// its own; a bad op never aborts the batch.
		ApplyBatch(ctx context.Context, unitID, userID string, ops []Op) []OpResult
		Changes(ctx context.Context, unitID string, since time.Time) ([]Change, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) ApplyBatch(ctx context.Context, unitID, userID string, ops []Op) []OpResult {
	results := make([]OpResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, svc.applyOne(ctx, unitID, userID, op))
	}
	return results
}

func (svc *service) applyOne(ctx context.Context, unitID, userID string, op Op) OpResult {
	res := OpResult{OpID: op.OpID, EntityID: op.EntityID}

	prev, err := svc.repo.GetAppliedOp(ctx, op.OpID)
	if err == nil {
		res.Status = OpDuplicate
		res.EntityID = prev.EntityID
		return res
	}
	if errors.Cause(err) != ErrOpNotFound {
		res.Status = OpError
		res.Detail = "could not check op"
		return res
	}

	res.Status, res.EntityID, res.Detail = svc.attempt(ctx, unitID, userID, op)

	// conflicts are not recorded; the client resolves and replays under the same op_id
	if res.Status != OpConflict {
		rec := AppliedOp{
			OpID:      op.OpID,
			UnitID:    unitID,
			UserID:    userID,
			Entity:    op.Entity,
			Action:    op.Action,
			EntityID:  res.EntityID,
			Status:    res.Status,
			Detail:    res.Detail,
			CreatedAt: time.Now().UTC(),
		}
		if err := svc.repo.RecordAppliedOp(ctx, rec); err != nil {
			res.Status = OpError
			res.Detail = "could not record op"
		}
	}
	return res
}

func (svc *service) attempt(ctx context.Context, unitID, userID string, op Op) (status, entityID, detail string) {
	if op.Action != ActionCreate && op.BaseUpdatedAt != nil {
		serverAt, err := svc.repo.EntityUpdatedAt(ctx, unitID, op.Entity, op.EntityID)
		switch {
		case errors.Cause(err) == ErrEntityNotFound:
			if op.Action == ActionDelete {
				return OpDuplicate, op.EntityID, "already deleted"
			}
			return OpConflict, op.EntityID, "entity no longer exists"
		case err != nil:
			return OpError, op.EntityID, "could not check entity version"
		case serverAt.Truncate(time.Millisecond).After(op.BaseUpdatedAt.Truncate(time.Millisecond)):
			return OpConflict, op.EntityID, "entity changed on the server"
		}
	}

	entityID, err := svc.repo.ApplyOp(ctx, unitID, userID, op)
	if err != nil {
		return OpError, op.EntityID, err.Error()
	}
	return OpApplied, entityID, ""
}

func (svc *service) Changes(ctx context.Context, unitID string, since time.Time) ([]Change, error) {
	changes, err := svc.repo.QueryChanges(ctx, unitID, since)
	return changes, errors.Wrap(err, "querying changes")
}
