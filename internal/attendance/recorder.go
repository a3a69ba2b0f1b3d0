package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

const recordTimeout = 10 * time.Second

// Recorder runs session bookkeeping in the background after the login or
// logout response has been decided. Failures go to a dedicated error sink.
type Recorder struct {
	manager *Manager
	sink    *zap.SugaredLogger
	wg      sync.WaitGroup
}

func NewRecorder(m *Manager, sink *zap.SugaredLogger) *Recorder {
	return &Recorder{manager: m, sink: sink}
}

// Login opens a session for p without blocking the caller.
func (r *Recorder) Login(ctx context.Context, p principal.Principal, device string, geo entity.Geo) {
	r.run(ctx, "open", p, func(ctx context.Context) error {
		_, err := r.manager.OpenSession(ctx, p, device, geo)
		return err
	})
}

// Logout closes the latest open session for p without blocking the caller.
func (r *Recorder) Logout(ctx context.Context, p principal.Principal) {
	r.run(ctx, "close", p, func(ctx context.Context) error {
		_, err := r.manager.CloseSession(ctx, p)
		return err
	})
}

func (r *Recorder) run(parent context.Context, op string, p principal.Principal, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.sink.Errorw("attendance task panicked", "op", op, "principal_id", p.PrincipalID(), "panic", fmt.Sprint(rec))
			}
		}()
		// outlive the request but keep its values
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), recordTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.sink.Errorw("attendance task failed",
				"op", op, "principal_id", p.PrincipalID(), "user_type", string(p.Origin()), "err", err)
		}
	}()
}

// Wait blocks until in-flight tasks finish or ctx is done.
func (r *Recorder) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
