// Package notifications lists notifications and polls the unread count.
package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"katha/internal/models"
	"katha/internal/utils"
)

// API is the slice of *api.Client this package needs.
type API interface {
	Notifications(ctx context.Context) ([]*models.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id int) error
	MarkAllNotificationsRead(ctx context.Context) error
}

type Auth interface {
	IsLoggedIn() bool
}

type Service struct {
	api    API
	auth   Auth
	logger *slog.Logger
}

func NewService(api API, auth Auth, logger *slog.Logger) *Service {
	if logger == nil {
		logger = utils.DiscardLogger()
	}
	return &Service{api: api, auth: auth, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]*models.Notification, error) {
	if !s.auth.IsLoggedIn() {
		return nil, utils.NewNotLoggedInError("see notifications")
	}
	return s.api.Notifications(ctx)
}

func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	if !s.auth.IsLoggedIn() {
		return 0, utils.NewNotLoggedInError("see notifications")
	}
	return s.api.UnreadCount(ctx)
}

func (s *Service) MarkRead(ctx context.Context, id int) error {
	if !s.auth.IsLoggedIn() {
		return utils.NewNotLoggedInError("see notifications")
	}
	return s.api.MarkNotificationRead(ctx, id)
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	if !s.auth.IsLoggedIn() {
		return utils.NewNotLoggedInError("see notifications")
	}
	return s.api.MarkAllNotificationsRead(ctx)
}

// Unread returns the unread entries of list.
func Unread(list []*models.Notification) []*models.Notification {
	var out []*models.Notification
	for _, n := range list {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// Poller fetches the unread count on a fixed interval and hands each value
// to a callback. It stops on context cancellation, on Stop, or once the
// session is logged out.
type Poller struct {
	svc      *Service
	interval time.Duration
	onCount  func(int)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPoller(svc *Service, interval time.Duration, onCount func(int)) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		svc:      svc,
		interval: interval,
		onCount:  onCount,
		stopCh:   make(chan struct{}),
	}
}

// Start polls once immediately and then every interval until stopped.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends polling and waits for the loop to exit. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

// Done is closed once Stop has been called.
func (p *Poller) Done() <-chan struct{} {
	return p.stopCh
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if !p.poll(ctx) {
		p.stopOnce.Do(func() { close(p.stopCh) })
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !p.poll(ctx) {
				p.stopOnce.Do(func() { close(p.stopCh) })
				return
			}
		}
	}
}

// poll reports whether polling should continue.
func (p *Poller) poll(ctx context.Context) bool {
	if !p.svc.auth.IsLoggedIn() {
		p.svc.logger.Debug("unread poller stopping: logged out")
		return false
	}
	count, err := p.svc.api.UnreadCount(ctx)
	if err != nil {
		p.svc.logger.Warn("fetching unread count failed", "error", err)
		return true
	}
	if p.onCount != nil {
		p.onCount(count)
	}
	return true
}
