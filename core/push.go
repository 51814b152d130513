package core

// PushSubscription holds a browser Web Push subscription as sent by the SPA.
type PushSubscription struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	P256dh   string `json:"p256dh" validate:"required"`
	Auth     string `json:"auth" validate:"required"`
}

func (s PushSubscription) IsZero() bool { return s.Endpoint == "" }

// PushMessage is a notification destined for one Web Push subscription.
type PushMessage struct {
	Subscription PushSubscription
	Title        string
	Body         string
	URL          string // SPA route to open on click
}

var (
	// PushResult statuses recorded by implementations.
	PushOK   = "sent"
	PushGone = "gone" // subscription expired or unsubscribed; caller should prune it
	PushErr  = "failed"
)

type PushResult struct {
	Status string
	Detail string
}

// PushService is any service that can deliver Web Push notifications.
type PushService interface {
	// Send delivers a single message synchronously and reports the outcome.
	Send(msg PushMessage) PushResult
}
