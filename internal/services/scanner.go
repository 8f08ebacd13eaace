package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lyallcooper/moleui/internal/config"
	"github.com/lyallcooper/moleui/internal/engine"
	"github.com/lyallcooper/moleui/internal/parser"
	"github.com/lyallcooper/moleui/internal/scanner"
	"github.com/lyallcooper/moleui/internal/trash"
	"github.com/lyallcooper/moleui/internal/types"
)

// Pseudo-verbs for the filesystem scans, which share the token machinery.
const (
	VerbArtifacts  = "artifacts"
	VerbInstallers = "installers"
)

// ErrUnknownVerb is returned for verbs with no grammar or scanner.
var ErrUnknownVerb = errors.New("unknown verb")

// subscriber wraps a channel with safe close handling
type subscriber struct {
	ch        chan *types.ScanUpdate
	closeOnce sync.Once
	closed    atomic.Bool
}

func (sub *subscriber) close() {
	sub.closeOnce.Do(func() {
		sub.closed.Store(true)
		close(sub.ch)
	})
}

func (sub *subscriber) send(update *types.ScanUpdate) bool {
	if sub.closed.Load() {
		return false
	}
	select {
	case sub.ch <- update:
		return true
	default:
		return false
	}
}

type envelopeKind int

const (
	kindStarted envelopeKind = iota
	kindEvent
	kindFound
	kindSized
	kindFinished
)

// envelope is one state change tagged with the scan it came from.
type envelope struct {
	verb  string
	token uint64
	kind  envelopeKind
	at    time.Time

	dryRun bool
	event  parser.Event
	found  []scanner.DiscoveredPath
	index  int
	size   int64
	err    error
}

// ScanOptions are the engine flags for one scan.
type ScanOptions struct {
	DryRun  bool
	Details bool
	Extra   []string
}

// Scanner orchestrates engine and filesystem scans. Every scan gets a token
// from a monotonic counter; the latest token per verb is the only one whose
// events are applied. All state changes pass through one channel and are
// applied by a single consumer goroutine.
type Scanner struct {
	runner    engine.Runner
	cfg       *config.Config
	mover     trash.Mover
	sizer     *scanner.Sizer
	home      string
	log       *logrus.Entry
	preflight func() error

	tokens    atomic.Uint64
	discarded atomic.Uint64
	events    chan envelope

	// Latest tokens and the views they own
	mu     sync.RWMutex
	latest map[string]uint64
	views  map[string]*scanView

	// SSE subscribers, keyed by verb
	subMu       sync.RWMutex
	subscribers map[string][]*subscriber

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Deps are the collaborators of a Scanner.
type Deps struct {
	Runner engine.Runner
	Config *config.Config
	Mover  trash.Mover
	Sizer  *scanner.Sizer
	Home   string
	Log    *logrus.Entry
	// Preflight, when set, runs before each engine scan so a missing engine
	// is reported synchronously.
	Preflight func() error
}

// NewScanner creates the service and starts its consumer goroutine. Call
// Close to stop it.
func NewScanner(d Deps) *Scanner {
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg := d.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	sizer := d.Sizer
	if sizer == nil {
		sizer = scanner.NewSizer(cfg.SizeConcurrency, log)
	}
	mover := d.Mover
	if mover == nil {
		mover = trash.New(d.Home)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		runner:      d.Runner,
		cfg:         cfg,
		mover:       mover,
		sizer:       sizer,
		home:        d.Home,
		log:         log.WithField("component", "scanner"),
		preflight:   d.Preflight,
		events:      make(chan envelope, 256),
		latest:      make(map[string]uint64),
		views:       make(map[string]*scanView),
		subscribers: make(map[string][]*subscriber),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go s.consume()
	return s
}

// Close stops running scans and the consumer, then closes all subscriber
// channels.
func (s *Scanner) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		s.wg.Wait()
		<-s.stopped

		s.subMu.Lock()
		for verb, subs := range s.subscribers {
			for _, sub := range subs {
				sub.close()
			}
			delete(s.subscribers, verb)
		}
		s.subMu.Unlock()
	})
}

// Subscribe subscribes to updates for a verb
func (s *Scanner) Subscribe(verb string) chan *types.ScanUpdate {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan *types.ScanUpdate, 64),
	}
	s.subscribers[verb] = append(s.subscribers[verb], sub)
	return sub.ch
}

// Unsubscribe removes a subscriber
func (s *Scanner) Unsubscribe(verb string, ch chan *types.ScanUpdate) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := s.subscribers[verb]
	for i, sub := range subs {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			s.subscribers[verb] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	if len(s.subscribers[verb]) == 0 {
		delete(s.subscribers, verb)
	}
}

// broadcast sends an update to all subscribers of its verb. The read lock
// is held across the non-blocking sends so Unsubscribe cannot close a
// channel mid-send.
func (s *Scanner) broadcast(update *types.ScanUpdate) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subscribers[update.Verb] {
		sub.send(update)
	}
}

// issue hands out the next token for verb and makes it the latest.
func (s *Scanner) issue(verb string) uint64 {
	token := s.tokens.Add(1)
	s.mu.Lock()
	s.latest[verb] = token
	s.mu.Unlock()
	return token
}

// publish queues an envelope for the consumer. It returns false once the
// scanner is closed.
func (s *Scanner) publish(env envelope) bool {
	if env.at.IsZero() {
		env.at = time.Now()
	}
	select {
	case s.events <- env:
		return true
	case <-s.done:
		return false
	}
}

func (s *Scanner) consume() {
	defer close(s.stopped)
	for {
		select {
		case env := <-s.events:
			if update := s.apply(env); update != nil {
				s.broadcast(update)
			}
		case <-s.done:
			return
		}
	}
}

// apply folds env into the view for its verb if env carries the latest
// token. Stale envelopes are counted and dropped.
func (s *Scanner) apply(env envelope) *types.ScanUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.token != s.latest[env.verb] {
		s.discarded.Add(1)
		s.log.WithFields(logrus.Fields{"verb": env.verb, "token": env.token, "latest": s.latest[env.verb]}).Debug("Discarding stale scan output")
		return nil
	}

	update := &types.ScanUpdate{Verb: env.verb, Token: env.token, Status: types.StatusRunning}
	if env.kind == kindStarted {
		s.views[env.verb] = &scanView{
			verb:      env.verb,
			token:     env.token,
			status:    types.StatusRunning,
			dryRun:    env.dryRun,
			startedAt: env.at,
		}
		return update
	}

	v := s.views[env.verb]
	if v == nil || v.token != env.token {
		return nil
	}

	switch env.kind {
	case kindEvent:
		v.result.Apply(env.event)
		ev := env.event
		update.Event = &ev
	case kindFound:
		// Subscribers read their copy on other goroutines while later sizes
		// land in v.found.
		v.found = env.found
		update.Found = append([]scanner.DiscoveredPath(nil), env.found...)
	case kindSized:
		if env.index < 0 || env.index >= len(v.found) {
			return nil
		}
		size := env.size
		v.found[env.index].SizeBytes = &size
		update.Sized = &types.SizedPath{ID: v.found[env.index].ID, SizeBytes: size}
	case kindFinished:
		at := env.at
		v.finishedAt = &at
		v.result.Activity = ""
		if env.err != nil {
			v.status = types.StatusFailed
			v.err = env.err
			update.Error = env.err.Error()
		} else {
			v.status = types.StatusCompleted
		}
		update.Status = v.status
	}
	return update
}

// Discarded reports how many stale envelopes were dropped.
func (s *Scanner) Discarded() uint64 {
	return s.discarded.Load()
}

// StartScan begins a streaming engine scan for verb and returns its token.
// A newer scan of the same verb supersedes this one; its remaining output
// is ignored while the old process drains.
func (s *Scanner) StartScan(verb string, opts ScanOptions) (uint64, error) {
	g, err := parser.ForVerb(verb)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownVerb, verb)
	}
	if s.runner == nil {
		return 0, engine.ErrEngineNotFound
	}
	if s.preflight != nil {
		if err := s.preflight(); err != nil {
			return 0, err
		}
	}
	select {
	case <-s.done:
		return 0, errors.New("scanner closed")
	default:
	}

	token := s.issue(verb)
	s.publish(envelope{verb: verb, token: token, kind: kindStarted, dryRun: opts.DryRun})

	inv := engine.Invocation{Verb: verb, DryRun: opts.DryRun, Details: opts.Details, Extra: opts.Extra}
	s.log.WithFields(logrus.Fields{"verb": verb, "token": token, "args": inv.Args()}).Info("Starting scan")

	s.wg.Add(1)
	go s.runScan(g, inv, token)
	return token, nil
}

func (s *Scanner) runScan(g *parser.Grammar, inv engine.Invocation, token uint64) {
	defer s.wg.Done()
	verb := inv.Verb

	p := parser.New(g, func(ev parser.Event) {
		s.publish(envelope{verb: verb, token: token, kind: kindEvent, event: ev})
	})
	err := s.runner.RunStreaming(s.ctx, inv, p.Feed)
	res := p.Close()

	fields := logrus.Fields{"verb": verb, "token": token, "categories": len(res.Categories)}
	if err != nil {
		fields["error"] = err
		s.log.WithFields(fields).Warn("Scan failed")
	} else {
		s.log.WithFields(fields).Info("Scan finished")
	}
	s.publish(envelope{verb: verb, token: token, kind: kindFinished, err: err})
}

// RunBuffered runs verb to completion without streaming and parses the
// output. It does not touch the live views.
func (s *Scanner) RunBuffered(ctx context.Context, verb string, opts ScanOptions) (parser.Result, error) {
	g, err := parser.ForVerb(verb)
	if err != nil {
		return parser.Result{}, fmt.Errorf("%w: %s", ErrUnknownVerb, verb)
	}
	if s.runner == nil {
		return parser.Result{}, engine.ErrEngineNotFound
	}
	inv := engine.Invocation{Verb: verb, DryRun: opts.DryRun, Details: opts.Details, Extra: opts.Extra}
	out, err := s.runner.RunBuffered(ctx, inv, engine.BufferedOptions{
		Timeout:        s.cfg.ScanTimeout,
		MaxOutputBytes: s.cfg.MaxOutputBytes,
	})
	if err != nil {
		return parser.Result{}, err
	}
	return parser.ParseText(g, out), nil
}
