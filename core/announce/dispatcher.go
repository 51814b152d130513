package announce

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core"
)

const claimBatchSize = 10

// Dispatcher delivers due announcements over their requested channels.
//
// It wakes up on Postgres NOTIFYs (sent by a trigger whenever a due or
// immediate announcement lands) and on a polling ticker as fallback; a NOTIFY
// is only a hint, the due-query is the authority. Multiple dispatchers may run
// concurrently: claiming is serialized by the repository's row locking.
type Dispatcher struct {
	repo       Repository
	recipients RecipientSource
	mailSvc    core.EmailService
	pushSvc    core.PushService
	waSvc      core.WhatsAppService
	logger     core.Logger
	conf       *core.Config
	dsn        string
}

func NewDispatcher(
	repo Repository,
	recipients RecipientSource,
	mailSvc core.EmailService,
	pushSvc core.PushService,
	waSvc core.WhatsAppService,
	logger core.Logger,
	conf *core.Config,
	dsn string,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		recipients: recipients,
		mailSvc:    mailSvc,
		pushSvc:    pushSvc,
		waSvc:      waSvc,
		logger:     logger,
		conf:       conf,
		dsn:        dsn,
	}
}

// Run blocks until ctx is done, dispatching due announcements as they arrive.
func (d *Dispatcher) Run(ctx context.Context) error {
	listener := pq.NewListener(d.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			d.logger.Error(fmt.Sprintf("announcement listener: %v", err), err)
		}
	})
	defer func() { _ = listener.Close() }()

	if err := listener.Listen(d.conf.Dispatch.Channel); err != nil {
		return errors.Wrapf(err, "listening on %s", d.conf.Dispatch.Channel)
	}

	// catch up on anything that came due while we were down
	d.dispatchDue(ctx)

	ticker := time.NewTicker(d.conf.Dispatch.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listener.Notify:
			// a nil notification signals a listener reconnect; NOTIFYs may have
			// been missed while disconnected, so re-poll in both cases
			d.dispatchDue(ctx)
		case <-ticker.C:
			d.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims and dispatches due announcements until none remain.
func (d *Dispatcher) dispatchDue(ctx context.Context) {
	for {
		anns, err := d.repo.ClaimDue(ctx, time.Now().UTC(), claimBatchSize)
		if err != nil {
			d.logger.Error(fmt.Sprintf("claiming due announcements: %v", err), err)
			return
		}
		if len(anns) == 0 {
			return
		}
		for _, ann := range anns {
			if err := d.dispatchOne(ctx, ann); err != nil {
				d.logger.Error(fmt.Sprintf("dispatching announcement %s: %v", ann.ID, err), err)
			}
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ann Announcement) error {
	recipients, err := d.resolveAudience(ctx, ann)
	if err != nil {
		ann.Status = StatusFailed
		ann.UpdatedAt = time.Now().UTC()
		if markErr := d.repo.MarkDispatched(ctx, ann, nil); markErr != nil {
			return markErr
		}
		return errors.Wrap(err, "resolving audience")
	}

	enabled, err := d.recipients.EnabledChannels(ctx, ann.UnitID)
	if err != nil {
		return errors.Wrap(err, "loading unit channels")
	}
	channels := intersect(ann.Channels, enabled)

	now := time.Now().UTC()
	var deliveries []Delivery
	for _, rcp := range recipients {
		for _, ch := range channels {
			dlv := Delivery{
				AnnouncementID: ann.ID,
				RecipientType:  rcp.Type,
				RecipientID:    rcp.ID,
				RecipientName:  rcp.Name,
				Channel:        ch,
				CreatedAt:      now,
			}
			dlv.Status, dlv.Detail = d.deliver(ann, rcp, ch)
			deliveries = append(deliveries, dlv)
		}
	}

	ann.SentCount, ann.FailedCount, ann.SkipCount = tally(deliveries)
	if ann.SentCount == 0 && ann.FailedCount > 0 {
		ann.Status = StatusFailed
	} else {
		ann.Status = StatusSent
	}
	ann.SentAt = now
	ann.UpdatedAt = now
	return d.repo.MarkDispatched(ctx, ann, deliveries)
}

func (d *Dispatcher) resolveAudience(ctx context.Context, ann Announcement) ([]Recipient, error) {
	switch ann.Audience {
	case AudienceAllGuardians:
		return d.recipients.GuardiansForUnit(ctx, ann.UnitID)
	case AudienceMembers:
		return d.recipients.GuardiansForMembers(ctx, ann.UnitID, ann.MemberIDs)
	case AudienceLeaders:
		return d.recipients.LeadersForUnit(ctx, ann.UnitID)
	}
	return nil, errors.Errorf("unknown audience %q", ann.Audience)
}

// deliver sends over a single channel and reports the delivery outcome.
func (d *Dispatcher) deliver(ann Announcement, rcp Recipient, channel string) (status, detail string) {
	switch channel {
	case ChannelEmail:
		if rcp.Email == "" {
			return DeliverySkipped, "no email address"
		}
		// email delivery is queued asynchronously; a queued message counts as sent
		d.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: rcp.Name, Address: rcp.Email}},
			Subject:      ann.Subject,
			TemplateName: "announcement",
			TemplateData: struct {
				Name    string
				Subject string
				Body    string
			}{rcp.Name, ann.Subject, ann.Body},
		})
		return DeliverySent, ""

	case ChannelPush:
		if !rcp.PushSub.IsZero() {
			res := d.pushSvc.Send(core.PushMessage{
				Subscription: rcp.PushSub,
				Title:        ann.Subject,
				Body:         ann.Body,
				URL:          d.conf.FrontendBaseURL + "/announcements/" + ann.ID,
			})
			switch res.Status {
			case core.PushOK:
				return DeliverySent, ""
			case core.PushGone:
				return DeliverySkipped, "subscription gone"
			}
			return DeliveryFailed, res.Detail
		}
		return DeliverySkipped, "no push subscription"

	case ChannelWhatsApp:
		if !rcp.WhatsAppOptIn {
			return DeliverySkipped, "not opted in"
		}
		if rcp.Phone == "" {
			return DeliverySkipped, "no phone number"
		}
		res := d.waSvc.Send(core.WhatsAppMessage{
			Phone: rcp.Phone,
			Body:  ann.Subject + "\n\n" + ann.Body,
		})
		if res.Status == core.WhatsAppOK {
			return DeliverySent, ""
		}
		return DeliveryFailed, res.Detail
	}
	return DeliveryFailed, fmt.Sprintf("unknown channel %q", channel)
}

func intersect(requested, enabled []string) []string {
	on := make(map[string]bool, len(enabled))
	for _, ch := range enabled {
		on[ch] = true
	}
	out := make([]string, 0, len(requested))
	for _, ch := range requested {
		if on[ch] {
			out = append(out, ch)
		}
	}
	return out
}

func tally(deliveries []Delivery) (sent, failed, skipped int) {
	for _, dlv := range deliveries {
		switch dlv.Status {
		case DeliverySent:
			sent++
		case DeliveryFailed:
			failed++
		case DeliverySkipped:
			skipped++
		}
	}
	return sent, failed, skipped
}
