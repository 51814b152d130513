package announce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akela-hq/akela/core"
)

type fakeRepo struct {
	mu         sync.Mutex
	due        []Announcement
	dispatched []Announcement
	deliveries []Delivery
}

func (r *fakeRepo) CreateAnnouncement(_ context.Context, ann Announcement, _ ...core.DBExecutor) (Announcement, error) {
	return ann, nil
}
func (r *fakeRepo) GetAnnouncement(_ context.Context, _, _ string, _ ...core.DBExecutor) (Announcement, error) {
	return Announcement{}, ErrNotFound
}
func (r *fakeRepo) QueryAnnouncements(_ context.Context, _ string, _ *QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]Announcement, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateAnnouncement(_ context.Context, ann Announcement, _ ...core.DBExecutor) (Announcement, error) {
	return ann, nil
}

func (r *fakeRepo) ClaimDue(_ context.Context, now time.Time, limit int, _ ...core.DBExecutor) ([]Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []Announcement
	var rest []Announcement
	for _, ann := range r.due {
		if len(claimed) < limit && ann.IsDue(now) {
			ann.Status = StatusSending
			claimed = append(claimed, ann)
		} else {
			rest = append(rest, ann)
		}
	}
	r.due = rest
	return claimed, nil
}

func (r *fakeRepo) MarkDispatched(_ context.Context, ann Announcement, deliveries []Delivery, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatched = append(r.dispatched, ann)
	r.deliveries = append(r.deliveries, deliveries...)
	return nil
}

func (r *fakeRepo) QueryDeliveries(_ context.Context, id string, _ ...core.DBExecutor) ([]Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Delivery
	for _, dlv := range r.deliveries {
		if dlv.AnnouncementID == id {
			out = append(out, dlv)
		}
	}
	return out, nil
}

type fakeRecipients struct {
	guardians []Recipient
	leaders   []Recipient
	enabled   []string
}

func (r *fakeRecipients) GuardiansForUnit(_ context.Context, _ string) ([]Recipient, error) {
	return r.guardians, nil
}
func (r *fakeRecipients) GuardiansForMembers(_ context.Context, _ string, _ []string) ([]Recipient, error) {
	return r.guardians, nil
}
func (r *fakeRecipients) LeadersForUnit(_ context.Context, _ string) ([]Recipient, error) {
	return r.leaders, nil
}
func (r *fakeRecipients) EnabledChannels(_ context.Context, _ string) ([]string, error) {
	return r.enabled, nil
}

type mailRecorder struct {
	mu   sync.Mutex
	msgs []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, messages...)
}

type pushStub struct{ res core.PushResult }

func (p pushStub) Send(core.PushMessage) core.PushResult { return p.res }

type waStub struct{ res core.WhatsAppResult }

func (w waStub) Send(core.WhatsAppMessage) core.WhatsAppResult { return w.res }

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConf() *core.Config {
	return &core.Config{
		FrontendBaseURL: "http://localhost:3000",
		Dispatch:        core.DispatchConfig{PollInterval: time.Minute, Channel: "announcement_due"},
	}
}

func newTestDispatcher(repo *fakeRepo, rcps *fakeRecipients, push core.PushService, wa core.WhatsAppService) (*Dispatcher, *mailRecorder) {
	mailSvc := &mailRecorder{}
	d := NewDispatcher(repo, rcps, mailSvc, push, wa, nopLogger{}, testConf(), "")
	return d, mailSvc
}

func TestDispatchDue_EmailAndPush(t *testing.T) {
	repo := &fakeRepo{
		due: []Announcement{{
			ID:       "ann-1",
			UnitID:   "unit-1",
			Subject:  "Summer camp",
			Body:     "Pack your bags.",
			Audience: AudienceAllGuardians,
			Channels: []string{ChannelEmail, ChannelPush},
			Status:   StatusScheduled,
		}},
	}
	rcps := &fakeRecipients{
		guardians: []Recipient{
			{Type: "guardian", ID: "g-1", Name: "Ann", Email: "ann@test.test", PushSub: core.PushSubscription{Endpoint: "https://push.test/1", P256dh: "k", Auth: "a"}},
			{Type: "guardian", ID: "g-2", Name: "Bob", Email: "bob@test.test"}, // no push subscription
		},
		enabled: []string{ChannelEmail, ChannelPush},
	}
	d, mailSvc := newTestDispatcher(repo, rcps, pushStub{res: core.PushResult{Status: core.PushOK}}, waStub{})

	d.dispatchDue(context.Background())

	require.Len(t, repo.dispatched, 1)
	ann := repo.dispatched[0]
	assert.Equal(t, StatusSent, ann.Status)
	assert.Equal(t, 3, ann.SentCount) // 2 emails + 1 push
	assert.Equal(t, 0, ann.FailedCount)
	assert.Equal(t, 1, ann.SkipCount) // Bob has no subscription
	assert.False(t, ann.SentAt.IsZero())
	assert.Len(t, repo.deliveries, 4)
	assert.Len(t, mailSvc.msgs, 2)

	// nothing left to claim
	d.dispatchDue(context.Background())
	assert.Len(t, repo.dispatched, 1)
}

func TestDispatchDue_AllFailuresMarksFailed(t *testing.T) {
	repo := &fakeRepo{
		due: []Announcement{{
			ID:       "ann-2",
			UnitID:   "unit-1",
			Subject:  "Reminder",
			Body:     "Bring boots.",
			Audience: AudienceAllGuardians,
			Channels: []string{ChannelWhatsApp},
			Status:   StatusScheduled,
		}},
	}
	rcps := &fakeRecipients{
		guardians: []Recipient{
			{Type: "guardian", ID: "g-1", Name: "Ann", Phone: "+32470000001", WhatsAppOptIn: true},
		},
		enabled: []string{ChannelWhatsApp},
	}
	d, _ := newTestDispatcher(repo, rcps, pushStub{}, waStub{res: core.WhatsAppResult{Status: "failed", Detail: "rate limited"}})

	d.dispatchDue(context.Background())

	require.Len(t, repo.dispatched, 1)
	ann := repo.dispatched[0]
	assert.Equal(t, StatusFailed, ann.Status)
	assert.Equal(t, 0, ann.SentCount)
	assert.Equal(t, 1, ann.FailedCount)
	require.Len(t, repo.deliveries, 1)
	assert.Equal(t, "rate limited", repo.deliveries[0].Detail)
}

func TestDispatchDue_SkipsRecipientsWithoutOptIn(t *testing.T) {
	repo := &fakeRepo{
		due: []Announcement{{
			ID:       "ann-3",
			UnitID:   "unit-1",
			Subject:  "Hike",
			Body:     "Sunday 9am.",
			Audience: AudienceAllGuardians,
			Channels: []string{ChannelWhatsApp},
			Status:   StatusScheduled,
		}},
	}
	rcps := &fakeRecipients{
		guardians: []Recipient{
			{Type: "guardian", ID: "g-1", Name: "Ann", Phone: "+32470000001"}, // no opt-in
			{Type: "guardian", ID: "g-2", Name: "Bob", WhatsAppOptIn: true},   // no phone
		},
		enabled: []string{ChannelWhatsApp},
	}
	d, _ := newTestDispatcher(repo, rcps, pushStub{}, waStub{res: core.WhatsAppResult{Status: "sent"}})

	d.dispatchDue(context.Background())

	require.Len(t, repo.dispatched, 1)
	ann := repo.dispatched[0]
	assert.Equal(t, StatusSent, ann.Status)
	assert.Equal(t, 0, ann.SentCount)
	assert.Equal(t, 0, ann.FailedCount)
	assert.Equal(t, 2, ann.SkipCount)
}

func TestDispatchDue_DisabledChannelIsDropped(t *testing.T) {
	repo := &fakeRepo{
		due: []Announcement{{
			ID:       "ann-4",
			UnitID:   "unit-1",
			Subject:  "News",
			Body:     "Hello.",
			Audience: AudienceAllGuardians,
			Channels: []string{ChannelEmail, ChannelWhatsApp},
			Status:   StatusScheduled,
		}},
	}
	rcps := &fakeRecipients{
		guardians: []Recipient{
			{Type: "guardian", ID: "g-1", Name: "Ann", Email: "ann@test.test", Phone: "+32470000001", WhatsAppOptIn: true},
		},
		enabled: []string{ChannelEmail}, // unit switched WhatsApp off
	}
	d, mailSvc := newTestDispatcher(repo, rcps, pushStub{}, waStub{res: core.WhatsAppResult{Status: "sent"}})

	d.dispatchDue(context.Background())

	require.Len(t, repo.deliveries, 1)
	assert.Equal(t, ChannelEmail, repo.deliveries[0].Channel)
	assert.Len(t, mailSvc.msgs, 1)
}

func TestDispatchDue_ScheduledInFutureNotClaimed(t *testing.T) {
	future := time.Now().Add(time.Hour).UTC()
	repo := &fakeRepo{
		due: []Announcement{{
			ID:          "ann-5",
			UnitID:      "unit-1",
			Subject:     "Later",
			Body:        "Not yet.",
			Audience:    AudienceAllGuardians,
			Channels:    []string{ChannelEmail},
			ScheduledAt: &future,
			Status:      StatusScheduled,
		}},
	}
	rcps := &fakeRecipients{enabled: []string{ChannelEmail}}
	d, _ := newTestDispatcher(repo, rcps, pushStub{}, waStub{})

	d.dispatchDue(context.Background())

	assert.Empty(t, repo.dispatched)
	assert.Len(t, repo.due, 1)
}
