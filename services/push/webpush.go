package pushsvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/akela-hq/akela/core"
)

type webPushService struct {
	options webpush.Options
	logger  core.Logger
}

var _ core.PushService = (*webPushService)(nil)

func NewWebPushService(logger core.Logger) *webPushService {
	return &webPushService{
		options: webpush.Options{
			Subscriber:      core.Conf.Push.Subscriber,
			VAPIDPublicKey:  core.Conf.Push.VAPIDPublicKey,
			VAPIDPrivateKey: core.Conf.Push.VAPIDPrivateKey,
			TTL:             int((12 * time.Hour).Seconds()),
		},
		logger: logger,
	}
}

func (svc webPushService) Send(msg core.PushMessage) core.PushResult {
	payload, err := json.Marshal(struct {
		Title string `json:"title"`
		Body  string `json:"body"`
		URL   string `json:"url,omitempty"`
	}{msg.Title, msg.Body, msg.URL})
	if err != nil {
		return core.PushResult{Status: core.PushErr, Detail: err.Error()}
	}

	sub := &webpush.Subscription{
		Endpoint: msg.Subscription.Endpoint,
		Keys: webpush.Keys{
			P256dh: msg.Subscription.P256dh,
			Auth:   msg.Subscription.Auth,
		},
	}
	res, err := webpush.SendNotification(payload, sub, &svc.options)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending push: %v", err), err)
		return core.PushResult{Status: core.PushErr, Detail: err.Error()}
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone:
		// the endpoint no longer honors this subscription
		return core.PushResult{Status: core.PushGone, Detail: "subscription expired"}
	case res.StatusCode >= http.StatusBadRequest:
		detail := fmt.Sprintf("push endpoint status %d", res.StatusCode)
		svc.logger.Error(detail)
		return core.PushResult{Status: core.PushErr, Detail: detail}
	}
	return core.PushResult{Status: core.PushOK}
}
