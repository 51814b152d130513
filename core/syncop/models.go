package syncop

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// entities an offline client may replay ops against
const (
	EntityMember     = "members"
	EntityGuardian   = "guardians"
	EntityMeeting    = "meetings"
	EntityAttendance = "attendance"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// per-op outcomes
const (
	OpApplied   = "applied"
	OpDuplicate = "duplicate"
	OpConflict  = "conflict"
	OpError     = "error"
)

var (
	AllEntities = []string{EntityMember, EntityGuardian, EntityMeeting, EntityAttendance}
	AllActions  = []string{ActionCreate, ActionUpdate, ActionDelete}
)

type (
	// Op is a single client-generated outbox operation. OpID is minted by the
	// client so a replayed batch never applies twice.
	Op struct {
		OpID          string          `json:"op_id" validate:"required,uuid4"`
		Entity        string          `json:"entity" validate:"required,syncentity"`
		Action        string          `json:"action" validate:"required,syncaction"`
		EntityID      string          `json:"entity_id" validate:"required_unless=Action create"`
		Payload       json.RawMessage `json:"payload"`
		BaseUpdatedAt *time.Time      `json:"base_updated_at"` // server row version the client last saw
	}

	// OpResult reports how one op ended up.
	OpResult struct {
		OpID     string `json:"op_id"`
		Status   string `json:"status"`
		EntityID string `json:"entity_id,omitempty"`
		Detail   string `json:"detail,omitempty"`
	}

	// AppliedOp is the idempotency record kept for every op ever accepted.
	AppliedOp struct {
		OpID      string    `json:"op_id"`
		UnitID    string    `json:"unit_id"`
		UserID    string    `json:"user_id"`
		Entity    string    `json:"entity"`
		Action    string    `json:"action"`
		EntityID  string    `json:"entity_id"`
		Status    string    `json:"status"`
		Detail    string    `json:"detail"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	// Change is one changed row returned to a pulling client.
	Change struct {
		Entity    string          `json:"entity"`
		EntityID  string          `json:"entity_id"`
		Payload   json.RawMessage `json:"payload"`
		Deleted   bool            `json:"deleted"`
		UpdatedAt time.Time       `json:"updated_at"`
	}

	// Batch is the request body of a sync push.
	Batch struct {
		Ops []Op `json:"ops" validate:"required,max=100,dive"`
	}
)

func (b Batch) Validate(ctx context.Context, validate *validator.Validate) error {
	return validate.StructCtx(ctx, b)
}

// InitValidators registers the sync tags on the shared validator.
func InitValidators(validate *validator.Validate) {
	_ = validate.RegisterValidation("syncentity", func(fl validator.FieldLevel) bool {
		return contains(AllEntities, fl.Field().String())
	})
	_ = validate.RegisterValidation("syncaction", func(fl validator.FieldLevel) bool {
		return contains(AllActions, fl.Field().String())
	})
}

func contains(vals []string, v string) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}
