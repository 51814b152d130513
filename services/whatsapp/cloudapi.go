package whatsappsvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akela-hq/akela/core"
)

// cloudAPIService delivers messages through the WhatsApp Business Cloud API.
type cloudAPIService struct {
	client *http.Client
	logger core.Logger
}

var _ core.WhatsAppService = (*cloudAPIService)(nil)

func NewCloudAPIService(logger core.Logger) *cloudAPIService {
	return &cloudAPIService{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type cloudAPIRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             cloudAPIBodyText `json:"text"`
}

type cloudAPIBodyText struct {
	Body string `json:"body"`
}

func (svc cloudAPIService) Send(msg core.WhatsAppMessage) core.WhatsAppResult {
	conf := core.Conf.WhatsApp
	payload, err := json.Marshal(cloudAPIRequest{
		MessagingProduct: "whatsapp",
		To:               msg.Phone,
		Type:             "text",
		Text:             cloudAPIBodyText{Body: msg.Body},
	})
	if err != nil {
		return core.WhatsAppResult{Status: core.WhatsAppErr, Detail: err.Error()}
	}

	url := fmt.Sprintf("%s/%s/messages", conf.APIBase, conf.PhoneID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return core.WhatsAppResult{Status: core.WhatsAppErr, Detail: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+conf.Token)
	req.Header.Set("Content-Type", "application/json")

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending whatsapp message: %v", err), err)
		return core.WhatsAppResult{Status: core.WhatsAppErr, Detail: err.Error()}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		detail := fmt.Sprintf("whatsapp api status %d: %s", res.StatusCode, body)
		svc.logger.Error(detail)
		return core.WhatsAppResult{Status: core.WhatsAppErr, Detail: detail}
	}
	return core.WhatsAppResult{Status: core.WhatsAppOK}
}
