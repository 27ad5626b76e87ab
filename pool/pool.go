// Package pool implements the bounded session pool described in
// spec.md §4.7 (C7): disjoint free/used/terminated session sets guarded
// by a single condition variable, recycle-by-age, liveness probing, and
// graceful vs. forced shutdown.
package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/coredb-go/mysqlwire"
)

// Options configures a Pool, per spec.md §6 "Pool options".
type Options struct {
	MinSize     int           // >= 0
	MaxSize     int           // >= MinSize
	PoolRecycle time.Duration // < 0 disables recycling
	Echo        bool
}

// Pool owns a bounded set of mysqlwire.Session values. All mutation
// happens under cond.L, matching spec.md §5 "Shared resources".
type Pool struct {
	cfg  *mysqlwire.Config
	opts Options

	mu   sync.Mutex
	cond *sync.Cond

	free       *list.List // of *mysqlwire.Session, most-recently-released at back
	used       map[*mysqlwire.Session]struct{}
	terminated map[*mysqlwire.Session]struct{}

	acquiring int
	closing   bool
	closed    bool
}

// New builds a Pool against cfg and eagerly fills it to opts.MinSize,
// per spec.md §4.7 "fill_free_pool".
func New(ctx context.Context, cfg *mysqlwire.Config, opts Options) (*Pool, error) {
	if opts.MinSize < 0 {
		return nil, newMisuseError("minsize must be >= 0")
	}
	if opts.MaxSize < opts.MinSize {
		return nil, newMisuseError("maxsize must be >= minsize")
	}

	p := &Pool{
		cfg:        cfg,
		opts:       opts,
		free:       list.New(),
		used:       make(map[*mysqlwire.Session]struct{}),
		terminated: make(map[*mysqlwire.Session]struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fillFreePoolLocked(ctx, false); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) size() int {
	return p.free.Len() + len(p.used) + p.acquiring
}

// fillFreePoolLocked implements spec.md §4.7 "fill_free_pool": sweep
// free from the tail dropping dead or aged-out entries, then top up to
// minsize, and one more if overrideMin asks and the pool is still
// empty. Must be called with p.mu held.
func (p *Pool) fillFreePoolLocked(ctx context.Context, overrideMin bool) error {
	for e := p.free.Back(); e != nil; {
		prev := e.Prev()
		sess := e.Value.(*mysqlwire.Session)
		dead := sess.Err() != nil
		aged := p.opts.PoolRecycle >= 0 && time.Since(sess.LastUsed()) > p.opts.PoolRecycle
		if dead || aged {
			p.free.Remove(e)
			_ = sess.Close()
		}
		e = prev
	}

	for p.size() < p.opts.MinSize {
		if err := p.spawnLocked(ctx); err != nil {
			return err
		}
	}

	if overrideMin && p.free.Len() == 0 && p.size() < p.opts.MaxSize {
		if err := p.spawnLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// spawnLocked dials one new session and pushes it onto free, counting
// the in-flight dial via acquiring so concurrent Acquire callers see an
// accurate size() while the dial is outstanding.
func (p *Pool) spawnLocked(ctx context.Context) error {
	p.acquiring++
	p.mu.Unlock()
	sess, err := mysqlwire.Dial(ctx, p.cfg)
	p.mu.Lock()
	p.acquiring--
	if err != nil {
		return err
	}
	sess.Touch()
	p.free.PushBack(sess)
	p.cond.Broadcast()
	return nil
}

// Acquire implements spec.md §4.7 "Acquire": refill, then pop from free
// into used, waiting on the condition while the pool is at capacity and
// empty.
func (p *Pool) Acquire(ctx context.Context) (*mysqlwire.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing || p.closed {
		return nil, newMisuseError("acquire called on a closing or closed pool")
	}

	for {
		if err := p.fillFreePoolLocked(ctx, true); err != nil {
			return nil, err
		}
		if e := p.free.Front(); e != nil {
			sess := e.Value.(*mysqlwire.Session)
			p.free.Remove(e)
			p.used[sess] = struct{}{}
			if p.opts.Echo {
				sess.LogAcquire()
			}
			return sess, nil
		}
		if p.size() >= p.opts.MaxSize {
			if waitErr := p.waitOrCancel(ctx); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		if err := p.spawnLocked(ctx); err != nil {
			return nil, err
		}
	}
}

// waitOrCancel blocks on the condition until signalled or ctx is done.
// sync.Cond has no context-aware wait, so cancellation is observed by a
// helper goroutine that broadcasts when ctx ends.
func (p *Pool) waitOrCancel(ctx context.Context) error {
	if ctx == nil || ctx.Done() == nil {
		p.cond.Wait()
		return nil
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-stopped:
		}
		close(done)
	}()
	p.cond.Wait()
	close(stopped)
	<-done
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Release implements spec.md §4.7 "Release": terminated sessions are
// dropped silently, in-transaction or pool-closing sessions are closed,
// everything else returns to free.
func (p *Pool) Release(sess *mysqlwire.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.used, sess)

	if _, ok := p.terminated[sess]; ok {
		delete(p.terminated, sess)
		_ = sess.Close()
		p.cond.Broadcast()
		return
	}

	if sess.GetTransactionStatus() || sess.Err() != nil || p.closing {
		_ = sess.Close()
		p.cond.Broadcast()
		return
	}

	sess.Touch()
	p.free.PushBack(sess)
	if p.opts.Echo {
		sess.LogRelease()
	}
	p.cond.Broadcast()
}

// Close marks the pool closing: no further Acquire succeeds, but
// sessions currently in use are allowed to finish and Release normally
// (spec.md §4.7 "Close / terminate").
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closing = true
	p.cond.Broadcast()
	return nil
}

// Terminate additionally drops every in-use session into terminated, so
// the next Release for each discards it instead of returning it to
// free.
func (p *Pool) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closing = true
	for sess := range p.used {
		p.terminated[sess] = struct{}{}
		delete(p.used, sess)
	}
	p.cond.Broadcast()
	return nil
}

// WaitClosed closes every free session, then blocks until no session is
// outstanding (used and terminated are both empty), per spec.md §4.7.
// Calling it before Close or Terminate is a misuse error.
func (p *Pool) WaitClosed(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closing {
		return newMisuseError("wait_closed called before close")
	}

	for e := p.free.Front(); e != nil; e = e.Next() {
		_ = e.Value.(*mysqlwire.Session).Close()
	}
	p.free.Init()

	for len(p.used) > 0 || len(p.terminated) > 0 {
		if err := p.waitOrCancel(ctx); err != nil {
			return err
		}
	}
	p.closed = true
	return nil
}

// Stats reports a point-in-time snapshot satisfying spec.md §8's pool
// invariant: Free+Used+Acquiring <= MaxSize.
type Stats struct {
	Free      int
	Used      int
	Acquiring int
	MaxSize   int
	MinSize   int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Free:      p.free.Len(),
		Used:      len(p.used),
		Acquiring: p.acquiring,
		MaxSize:   p.opts.MaxSize,
		MinSize:   p.opts.MinSize,
	}
}

// misuseError is the pool's RuntimeError-equivalent for programmer
// errors (spec.md §7 "The pool surfaces RuntimeError for misuse").
type misuseError struct{ msg string }

func (e *misuseError) Error() string { return "mysqlwire/pool: " + e.msg }

func newMisuseError(msg string) error { return &misuseError{msg: msg} }
