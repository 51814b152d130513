package whatsappsvc

import (
	"fmt"

	"github.com/akela-hq/akela/core"
)

// consoleService prints messages instead of delivering them. Dev only.
type consoleService struct {
	logger core.Logger
}

var _ core.WhatsAppService = (*consoleService)(nil)

func NewConsoleService(logger core.Logger) *consoleService {
	return &consoleService{logger: logger}
}

func (svc consoleService) Send(msg core.WhatsAppMessage) core.WhatsAppResult {
	svc.logger.Info(fmt.Sprintf("whatsapp to %s: %s", msg.Phone, msg.Body))
	return core.WhatsAppResult{Status: core.WhatsAppOK}
}
