package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/unit"
)

type announceRepository struct {
	db *DB
}

var (
	_ announce.Repository      = (*announceRepository)(nil) // interface compliance check
	_ announce.RecipientSource = (*announceRepository)(nil)
)

func NewAnnounceRepository(db *DB) *announceRepository {
	return &announceRepository{db: db}
}

func (repo *announceRepository) CreateAnnouncement(_ context.Context, ann announce.Announcement, _ ...core.DBExecutor) (announce.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ann.ID = uuid.NewString()
	repo.db.anns[ann.ID] = &ann
	return ann, nil
}

func (repo *announceRepository) GetAnnouncement(_ context.Context, unitID, id string, _ ...core.DBExecutor) (announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ann, ok := repo.db.anns[id]; ok && ann.UnitID == unitID {
		return *ann, nil
	}
	return announce.Announcement{}, announce.ErrNotFound
}

func (repo *announceRepository) QueryAnnouncements(_ context.Context, unitID string, filter *announce.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]announce.Announcement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var anns []announce.Announcement
	for _, ann := range repo.db.anns {
		if ann.UnitID != unitID {
			continue
		}
		if filter != nil && filter.Status != "" && ann.Status != filter.Status {
			continue
		}
		anns = append(anns, *ann)
	}
	sort.Slice(anns, func(i, j int) bool { return anns[i].CreatedAt.After(anns[j].CreatedAt) })
	return anns, nil
}

func (repo *announceRepository) UpdateAnnouncement(_ context.Context, ann announce.Announcement, _ ...core.DBExecutor) (announce.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing, ok := repo.db.anns[ann.ID]
	if !ok || existing.UnitID != ann.UnitID {
		return announce.Announcement{}, announce.ErrNotFound
	}
	ann.UpdatedAt = time.Now().UTC()
	repo.db.anns[ann.ID] = &ann
	return ann, nil
}

func (repo *announceRepository) ClaimDue(_ context.Context, now time.Time, limit int, _ ...core.DBExecutor) ([]announce.Announcement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var claimed []announce.Announcement
	for _, ann := range repo.db.anns {
		if len(claimed) >= limit {
			break
		}
		if ann.Status == announce.StatusScheduled && ann.IsDue(now) {
			ann.Status = announce.StatusSending
			claimed = append(claimed, *ann)
		}
	}
	return claimed, nil
}

func (repo *announceRepository) MarkDispatched(_ context.Context, ann announce.Announcement, deliveries []announce.Delivery, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if existing, ok := repo.db.anns[ann.ID]; ok {
		*existing = ann
	}
	for i := range deliveries {
		deliveries[i].ID = uuid.NewString()
	}
	repo.db.deliveries[ann.ID] = append(repo.db.deliveries[ann.ID], deliveries...)
	return nil
}

func (repo *announceRepository) QueryDeliveries(_ context.Context, announcementID string, _ ...core.DBExecutor) ([]announce.Delivery, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return append([]announce.Delivery(nil), repo.db.deliveries[announcementID]...), nil
}

func (repo *announceRepository) GuardiansForUnit(_ context.Context, unitID string) ([]announce.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var recipients []announce.Recipient
	for _, grd := range repo.db.guardians {
		if grd.UnitID == unitID {
			recipients = append(recipients, announce.Recipient{
				Type:          "guardian",
				ID:            grd.ID,
				Name:          grd.Name,
				Email:         grd.Email,
				Phone:         grd.Phone,
				WhatsAppOptIn: grd.WhatsAppOptIn,
				PushSub:       grd.PushSub,
			})
		}
	}
	return recipients, nil
}

func (repo *announceRepository) GuardiansForMembers(_ context.Context, unitID string, memberIDs []string) ([]announce.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	wanted := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		wanted[id] = true
	}

	seen := make(map[string]bool)
	var recipients []announce.Recipient
	for _, link := range repo.db.links {
		if !wanted[link.MemberID] || seen[link.GuardianID] {
			continue
		}
		grd, ok := repo.db.guardians[link.GuardianID]
		if !ok || grd.UnitID != unitID {
			continue
		}
		seen[grd.ID] = true
		recipients = append(recipients, announce.Recipient{
			Type:          "guardian",
			ID:            grd.ID,
			Name:          grd.Name,
			Email:         grd.Email,
			Phone:         grd.Phone,
			WhatsAppOptIn: grd.WhatsAppOptIn,
			PushSub:       grd.PushSub,
		})
	}
	return recipients, nil
}

func (repo *announceRepository) LeadersForUnit(_ context.Context, unitID string) ([]announce.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var recipients []announce.Recipient
	for _, m := range repo.db.memberships {
		if m.UnitID != unitID || unit.RolePriority(m.Role) < unit.RolePriority(unit.RoleLeader) {
			continue
		}
		usr, ok := repo.db.users[m.UserID]
		if !ok || !usr.Active() {
			continue
		}
		recipients = append(recipients, announce.Recipient{
			Type:    "user",
			ID:      usr.ID,
			Name:    usr.Name,
			Email:   usr.Email,
			Phone:   usr.Phone,
			PushSub: usr.PushSub,
		})
	}
	return recipients, nil
}

func (repo *announceRepository) EnabledChannels(_ context.Context, unitID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	un, ok := repo.db.units[unitID]
	if !ok {
		return nil, unit.ErrNotFound
	}
	var channels []string
	if un.Settings.EmailEnabled {
		channels = append(channels, announce.ChannelEmail)
	}
	if un.Settings.PushEnabled {
		channels = append(channels, announce.ChannelPush)
	}
	if un.Settings.WhatsAppEnabled {
		channels = append(channels, announce.ChannelWhatsApp)
	}
	return channels, nil
}
