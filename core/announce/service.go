package announce

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

var (
	// errors
	ErrNotFound      = errors.New("announcement not found")
	ErrNotEditable   = errors.New("only draft or scheduled announcements can be changed")
	ErrNotCancelable = errors.New("announcement has already been dispatched")
)

type (
	Repository interface {
		CreateAnnouncement(ctx context.Context, ann Announcement, exec ...core.DBExecutor) (Announcement, error)
		GetAnnouncement(ctx context.Context, unitID, id string, exec ...core.DBExecutor) (Announcement, error)
		QueryAnnouncements(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Announcement, error)
		UpdateAnnouncement(ctx context.Context, ann Announcement, exec ...core.DBExecutor) (Announcement, error)

		// ClaimDue atomically moves up to limit due announcements from
		// "scheduled" to "sending" and returns them. Implementations must use
		// row locking (FOR UPDATE SKIP LOCKED) so concurrent dispatchers never
		// claim the same announcement.
		ClaimDue(ctx context.Context, now time.Time, limit int, exec ...core.DBExecutor) ([]Announcement, error)
		// MarkDispatched records the delivery rows and the announcement's final
		// status and counts in a single transaction.
		MarkDispatched(ctx context.Context, ann Announcement, deliveries []Delivery, exec ...core.DBExecutor) error
		QueryDeliveries(ctx context.Context, announcementID string, exec ...core.DBExecutor) ([]Delivery, error)
	}

	// RecipientSource resolves an announcement's audience to concrete recipients.
	RecipientSource interface {
		GuardiansForUnit(ctx context.Context, unitID string) ([]Recipient, error)
		GuardiansForMembers(ctx context.Context, unitID string, memberIDs []string) ([]Recipient, error)
		LeadersForUnit(ctx context.Context, unitID string) ([]Recipient, error)
		// EnabledChannels reports which notification channels the unit has switched on.
		EnabledChannels(ctx context.Context, unitID string) ([]string, error)
	}

	Service interface {
		Create(ctx context.Context, unitID, authorID string, na NewAnnouncement) (Announcement, error)
		GetByID(ctx context.Context, unitID, id string) (Announcement, error)
		Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Announcement, error)
		Update(ctx context.Context, unitID, id string, ua UpdateAnnouncement) (Announcement, error)
		Publish(ctx context.Context, unitID, id string) (Announcement, error)
		Cancel(ctx context.Context, unitID, id string) (Announcement, error)
		Deliveries(ctx context.Context, unitID, id string) ([]Delivery, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, unitID, authorID string, na NewAnnouncement) (Announcement, error) {
	now := time.Now().UTC()
	status := StatusScheduled
	if na.Draft {
		status = StatusDraft
	}
	var schedAt *time.Time
	if na.ScheduledAt != nil {
		t := na.ScheduledAt.UTC()
		schedAt = &t
	}
	ann := Announcement{
		UnitID:      unitID,
		AuthorID:    authorID,
		Subject:     na.Subject,
		Body:        na.Body,
		Audience:    na.Audience,
		MemberIDs:   na.MemberIDs,
		Channels:    na.Channels,
		ScheduledAt: schedAt,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAnnouncement(ctx, ann)
}

func (svc *service) GetByID(ctx context.Context, unitID, id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(ctx, unitID, id)
}

func (svc *service) Query(ctx context.Context, unitID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, unitID, filter, ordering)
}

func (svc *service) Update(ctx context.Context, unitID, id string, ua UpdateAnnouncement) (Announcement, error) {
	orig, err := svc.repo.GetAnnouncement(ctx, unitID, id)
	if err != nil {
		return Announcement{}, err
	}
	if orig.Status != StatusDraft && orig.Status != StatusScheduled {
		return Announcement{}, core.NewValidationError(ErrNotEditable)
	}
	ann := orig
	if ua.Subject != "" {
		ann.Subject = ua.Subject
	}
	if ua.Body != "" {
		ann.Body = ua.Body
	}
	if ua.Audience != "" {
		ann.Audience = ua.Audience
	}
	if ua.MemberIDs != nil {
		ann.MemberIDs = ua.MemberIDs
	}
	if ua.Channels != nil {
		ann.Channels = ua.Channels
	}
	if ua.ScheduledAt != nil {
		t := ua.ScheduledAt.UTC()
		ann.ScheduledAt = &t
	}
	ann.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAnnouncement(ctx, ann)
}

// Publish moves a draft to scheduled, making it visible to the dispatcher.
func (svc *service) Publish(ctx context.Context, unitID, id string) (Announcement, error) {
	ann, err := svc.repo.GetAnnouncement(ctx, unitID, id)
	if err != nil {
		return Announcement{}, err
	}
	if ann.Status != StatusDraft {
		return Announcement{}, core.NewValidationError(ErrNotEditable)
	}
	ann.Status = StatusScheduled
	ann.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAnnouncement(ctx, ann)
}

func (svc *service) Cancel(ctx context.Context, unitID, id string) (Announcement, error) {
	ann, err := svc.repo.GetAnnouncement(ctx, unitID, id)
	if err != nil {
		return Announcement{}, err
	}
	if ann.Status != StatusDraft && ann.Status != StatusScheduled {
		return Announcement{}, core.NewValidationError(ErrNotCancelable)
	}
	ann.Status = StatusCancelled
	ann.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAnnouncement(ctx, ann)
}

func (svc *service) Deliveries(ctx context.Context, unitID, id string) ([]Delivery, error) {
	if _, err := svc.repo.GetAnnouncement(ctx, unitID, id); err != nil {
		return nil, err
	}
	return svc.repo.QueryDeliveries(ctx, id)
}
