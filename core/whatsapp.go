package core

// WhatsAppMessage is a text message destined for one phone number.
type WhatsAppMessage struct {
	Phone string // E.164, no formatting
	Body  string
}

var (
	// WhatsAppResult statuses recorded by implementations.
	WhatsAppOK  = "sent"
	WhatsAppErr = "failed"
)

type WhatsAppResult struct {
	Status string
	Detail string
}

// WhatsAppService is any service that can deliver WhatsApp messages.
type WhatsAppService interface {
	// Send delivers a single message synchronously and reports the outcome.
	Send(msg WhatsAppMessage) WhatsAppResult
}
