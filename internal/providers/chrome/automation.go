package chrome

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/copper/internal/domain/session"
	"github.com/GriffinCanCode/copper/internal/infrastructure/logging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Automation attaches go-rod clients to launched browsers
type Automation struct {
	logger *zap.Logger
}

func NewAutomation(log *zap.Logger) *Automation {
	log = logging.Or(log)
	return &Automation{logger: log}
}

// Handle is an attached browser client focused on one page
type Handle struct {
	Browser *rod.Browser
	Page    *rod.Page
	cancel  context.CancelFunc
}

// Close detaches the client and leaves the browser running
func (h *Handle) Close() error {
	h.cancel()
	return nil
}

// Attach implements session.Attacher
func (a *Automation) Attach(ctx context.Context, debugURL string) (session.AutomationHandle, error) {
	// the connection lives until Close, not until the request ends
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	browser := rod.New().ControlURL(debugURL).Context(connCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect devtools: %w", err)
	}

	page, err := firstPage(browser.Context(ctx))
	if err != nil {
		cancel()
		return nil, err
	}

	a.logger.Debug("automation attached", zap.String("target", string(page.TargetID)))
	return &Handle{Browser: browser, Page: page.Context(connCtx), cancel: cancel}, nil
}

func firstPage(browser *rod.Browser) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First(), nil
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return page, nil
}
