package pushsvc

import (
	"fmt"

	"github.com/akela-hq/akela/core"
)

// consoleService prints notifications instead of delivering them. Dev only.
type consoleService struct {
	logger core.Logger
}

var _ core.PushService = (*consoleService)(nil)

func NewConsoleService(logger core.Logger) *consoleService {
	return &consoleService{logger: logger}
}

func (svc consoleService) Send(msg core.PushMessage) core.PushResult {
	svc.logger.Info(fmt.Sprintf("push to %s: %s - %s", msg.Subscription.Endpoint, msg.Title, msg.Body))
	return core.PushResult{Status: core.PushOK}
}
