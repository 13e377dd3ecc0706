package notify

import (
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/AutoSentinel/AutoSentinel/internal/common/logger"
)

// Notifier delivers user-facing messages, e.g. report-ready mail.
type Notifier interface {
	Send(title, message string) error
}

// Noop drops every message. Used when no delivery URL is configured.
type Noop struct{}

func (Noop) Send(string, string) error { return nil }

// ShoutrrrNotifier delivers through a shoutrrr URL (smtp://, discord://,
// and so on).
type ShoutrrrNotifier struct {
	sender *router.ServiceRouter
	log    logger.Logger
}

// New builds a notifier for the configured URL. An empty URL yields a Noop.
func New(url string, log logger.Logger) (Notifier, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Noop{}, nil
	}
	sender, err := shoutrrr.CreateSender(url)
	if err != nil {
		return nil, fmt.Errorf("create notification sender: %w", err)
	}
	sender.Timeout = 15 * time.Second
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	return &ShoutrrrNotifier{sender: sender, log: log}, nil
}

func (n *ShoutrrrNotifier) Send(title, message string) error {
	if n == nil || n.sender == nil {
		return fmt.Errorf("notifier not initialized")
	}
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	errs := n.sender.Send(message, &params)
	for _, e := range errs {
		if e != nil {
			n.log.Errorf("notification delivery failed: %v", e)
			return e
		}
	}
	return nil
}
