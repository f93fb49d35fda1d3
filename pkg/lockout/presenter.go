package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// View is what the login form renders.
type View struct {
	AttemptsRemaining int
	Blocked           bool
	Permanent         bool
	LockUntil         *time.Time
	Message           string
}

// Presenter keeps the login form's lock display in sync with the server.
// The mirror gives an instant first paint; every submit still asks the
// server, and the server answer always overwrites the mirror.
type Presenter struct {
	store       Storage
	checker     StatusChecker
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time

	mu     sync.Mutex
	active *countdown
}

// countdown is one running ticker. Both StartCountdown (when a newer
// countdown replaces it) and the caller's stop func cancel through the
// same sync.Once, so the channel is closed exactly once no matter how
// the two paths interleave.
type countdown struct {
	ch   chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() { close(c.ch) })
}

// NewPresenter creates a presenter. maxAttempts is the server's limit and
// only affects the remaining-attempts display.
func NewPresenter(store Storage, checker StatusChecker, maxAttempts int, logger *slog.Logger) *Presenter {
	return &Presenter{
		store:       store,
		checker:     checker,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Mount loads the stored mirror for the first paint. An expired lock is
// cleared immediately; the next submit still re-validates with the server.
func (p *Presenter) Mount(email string) View {
	mirror, err := p.store.LoadMirror(email)
	if err != nil {
		p.logger.Warn("failed to load lockout mirror", slog.Any("error", err))
		return p.openView(p.maxAttempts)
	}
	if mirror == nil {
		return p.openView(p.maxAttempts)
	}

	if mirror.Permanent {
		return permanentView()
	}

	if mirror.LockUntil != nil {
		if p.now().Before(*mirror.LockUntil) {
			return p.blockedView(*mirror.LockUntil)
		}
		if err := p.store.ClearMirror(email); err != nil {
			p.logger.Warn("failed to clear expired mirror", slog.Any("error", err))
		}
		return p.openView(p.maxAttempts)
	}

	return p.openView(max(0, p.maxAttempts-mirror.FailedAttempts))
}

// PreCheck asks the server whether a submit may proceed. A check error
// degrades to "proceed": a status outage must not lock the form.
func (p *Presenter) PreCheck(ctx context.Context, email string) (View, bool) {
	status, err := p.checker.CheckStatus(ctx, email)
	if err != nil {
		p.logger.Warn("lockout status check failed, proceeding", slog.Any("error", err))
		return p.openView(p.maxAttempts), true
	}

	p.saveMirror(email, status)

	if !status.IsBlocked {
		return p.openView(status.AttemptsRemaining), true
	}
	if status.Permanent {
		return permanentView(), false
	}
	if status.BlockUntil != nil {
		return p.blockedView(*status.BlockUntil), false
	}
	return permanentView(), false
}

// ApplyFailure records a credential failure in the local log and renders
// the authoritative post-failure status.
func (p *Presenter) ApplyFailure(email string, status Status) View {
	p.saveMirror(email, status)
	p.appendAttempt(email, false)

	if status.IsBlocked {
		if status.Permanent {
			return permanentView()
		}
		if status.BlockUntil != nil {
			return p.blockedView(*status.BlockUntil)
		}
		return permanentView()
	}

	view := p.openView(status.AttemptsRemaining)
	view.Message = fmt.Sprintf("Invalid email or password. %d attempts remaining.", status.AttemptsRemaining)
	return view
}

// ApplySuccess clears all local state for the email after a login.
func (p *Presenter) ApplySuccess(email string) {
	if err := p.store.ClearMirror(email); err != nil {
		p.logger.Warn("failed to clear lockout mirror", slog.Any("error", err))
	}
	p.appendAttempt(email, true)
}

// StartCountdown ticks once per second until the deadline and then calls
// onExpired once. The returned stop function tears the ticker down and is
// safe to call more than once; starting a new countdown stops the previous
// one.
func (p *Presenter) StartCountdown(until time.Time, onTick func(remaining time.Duration), onExpired func()) (stop func()) {
	cd := &countdown{ch: make(chan struct{})}

	p.mu.Lock()
	if p.active != nil {
		p.active.cancel()
	}
	p.active = cd
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		if remaining := until.Sub(p.now()); remaining > 0 {
			onTick(remaining)
		}

		for {
			select {
			case <-ticker.C:
				remaining := until.Sub(p.now())
				if remaining <= 0 {
					onExpired()
					return
				}
				onTick(remaining)
			case <-cd.ch:
				return
			}
		}
	}()

	return func() {
		cd.cancel()
		p.mu.Lock()
		if p.active == cd {
			p.active = nil
		}
		p.mu.Unlock()
	}
}

// FormatCountdown renders a duration as MM:SS, rounding up to whole seconds.
func FormatCountdown(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	secs := int((remaining + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func (p *Presenter) saveMirror(email string, status Status) {
	if err := p.store.SaveMirror(mirrorFromStatus(email, status, p.now())); err != nil {
		p.logger.Warn("failed to save lockout mirror", slog.Any("error", err))
	}
}

func (p *Presenter) appendAttempt(email string, success bool) {
	err := p.store.AppendAttempt(AttemptEntry{
		Email:     email,
		Timestamp: p.now().UTC(),
		Success:   success,
	})
	if err != nil {
		p.logger.Warn("failed to append attempt log entry", slog.Any("error", err))
	}
}

func (p *Presenter) openView(remaining int) View {
	return View{AttemptsRemaining: remaining}
}

func (p *Presenter) blockedView(until time.Time) View {
	u := until
	return View{
		Blocked:   true,
		LockUntil: &u,
		Message:   fmt.Sprintf("Too many failed attempts. Try again in %s.", FormatCountdown(until.Sub(p.now()))),
	}
}

func permanentView() View {
	return View{
		Blocked:   true,
		Permanent: true,
		Message:   "This account has been locked. Please contact parish support.",
	}
}
