package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"railhaul/internal/domain"
	"railhaul/internal/ledger"
	"railhaul/internal/metrics"
	"railhaul/internal/policy"
	"railhaul/internal/valuation"
	"railhaul/internal/world"
)

// Session is the main connection to the game server.
type Session interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	Upgrade(ctx context.Context, u domain.Upgrade) error
	Turn(ctx context.Context) error
}

// Pool sends one move over the helper connection bound to slot.
type Pool interface {
	Move(ctx context.Context, slot int, mv domain.Move) error
}

type Bus interface {
	Publish(ev domain.TickEvent) error
}

type Metrics interface {
	RecordTick(status string, duration time.Duration)
	RecordRollback()
	RecordMove(result string)
	RecordStall()
	RecordRouteFallback()
	RecordIdle(reason string)
	UpdateEconomy(gameTick int, spentArmor, score float64)
}

type Config struct {
	// Owner is the player id whose trains are scheduled.
	Owner                 string
	Rules                 policy.Rules
	ConservativeFootprint bool
	Debug                 bool
	// RetryBackoff spaces out failed ticks when Run has no interval.
	// Zero means 500ms.
	RetryBackoff          time.Duration
}

type Scheduler struct {
	session Session
	pool    Pool
	bus     Bus
	metrics Metrics
	policy  *policy.Engine
	cfg     Config
	logger  *log.Logger

	world  *world.World
	model  *valuation.Model
	ledger *ledger.Ledger

	mu       sync.RWMutex
	targets  map[int]int
	gameTick int
	spent    float64
	last     domain.TickEvent
}

// New wires a scheduler for the world w. A nil bus disables event
// publishing and nil metrics records into a private registry.
func New(w *world.World, session Session, pool Pool, bus Bus, m Metrics, cfg Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Scheduler{
		session: session,
		pool:    pool,
		bus:     bus,
		metrics: m,
		policy:  policy.New(cfg.Rules),
		cfg:     cfg,
		logger:  logger,
		world:   w,
		model:   valuation.New(w),
		ledger:  ledger.New(w.Graph(), cfg.Owner, cfg.ConservativeFootprint),
		targets: make(map[int]int),
	}
}

// economy is the part of the scheduler state a rejected tick restores.
type economy struct {
	gameTick int
	spent    float64
}

func (s *Scheduler) begin() economy {
	return economy{gameTick: s.gameTick, spent: s.spent}
}

func (s *Scheduler) rollback(tx economy) {
	s.gameTick = tx.gameTick
	s.spent = tx.spent
}

// Tick runs one full decision cycle against the server. Moves already
// dispatched are not retracted when the upgrade or end of turn is rejected;
// spend and the tick counter are.
func (s *Scheduler) Tick(ctx context.Context) error {
	started := time.Now()
	ev := domain.TickEvent{ID: uuid.NewString(), CreatedAt: started.UTC()}

	snap, err := s.session.Snapshot(ctx)
	if err != nil {
		return s.finish(&ev, started, domain.TickStatusFailed, fmt.Errorf("fetch snapshot: %w", err))
	}

	s.mu.Lock()
	tx := s.begin()
	p, err := s.plan(snap)
	ev.GameTick = s.gameTick
	ev.Upgrade = p.upgrade
	ev.Moves = p.moves
	ev.Decisions = p.decisions
	if err != nil {
		s.rollback(tx)
		s.mu.Unlock()
		return s.finish(&ev, started, domain.TickStatusFailed, err)
	}
	s.mu.Unlock()

	if !p.upgrade.Empty() {
		if err := s.session.Upgrade(ctx, p.upgrade); err != nil {
			return s.abort(&ev, started, tx, fmt.Errorf("upgrade: %w", err))
		}
	}

	s.dispatch(ctx, p.moves)

	if err := s.session.Turn(ctx); err != nil {
		return s.abort(&ev, started, tx, fmt.Errorf("end turn: %w", err))
	}
	return s.finish(&ev, started, domain.TickStatusCommitted, nil)
}

func (s *Scheduler) abort(ev *domain.TickEvent, started time.Time, tx economy, err error) error {
	s.mu.Lock()
	s.rollback(tx)
	s.mu.Unlock()
	s.metrics.RecordRollback()
	return s.finish(ev, started, domain.TickStatusRolledBack, err)
}

func (s *Scheduler) finish(ev *domain.TickEvent, started time.Time, status domain.TickStatus, err error) error {
	s.mu.Lock()
	ev.Status = status
	ev.SpentArmor = s.spent
	ev.Score = s.world.Score(s.spent)
	ev.Duration = time.Since(started)
	if err != nil {
		ev.Error = err.Error()
	}
	s.last = *ev
	gameTick, spent, score := s.gameTick, s.spent, ev.Score
	s.mu.Unlock()

	s.metrics.RecordTick(string(status), ev.Duration)
	s.metrics.UpdateEconomy(gameTick, spent, score)
	if s.bus != nil {
		if perr := s.bus.Publish(*ev); perr != nil {
			s.logger.Printf("publish tick event tick=%d: %v", ev.GameTick, perr)
		}
	}
	return err
}

// dispatch sends every move concurrently, each over its own pool slot, and
// waits for all of them. Individual failures are logged and counted only.
func (s *Scheduler) dispatch(ctx context.Context, moves []domain.Move) {
	var wg sync.WaitGroup
	for slot, mv := range moves {
		slot, mv := slot, mv
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.pool.Move(ctx, slot, mv); err != nil {
				s.logger.Printf("move failed train=%d line=%d speed=%d: %v", mv.TrainID, mv.LineID, mv.Speed, err)
				s.metrics.RecordMove("error")
				return
			}
			s.metrics.RecordMove("ok")
		}()
	}
	wg.Wait()
}

// Run ticks until ctx is done or maxTicks ticks have run. A zero interval
// ticks back to back, which suits servers that block the end of turn until
// the next game tick; a failed tick then waits RetryBackoff before the next
// attempt. Failed ticks are logged and the loop goes on.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, maxTicks int) error {
	var tickC <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for n := 0; maxTicks <= 0 || n < maxTicks; n++ {
		err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			switch {
			case errors.Is(err, domain.ErrRemoteRejected):
				s.logger.Printf("tick rolled back tick=%d: %v", s.GameTick(), err)
			default:
				s.logger.Printf("tick failed tick=%d: %v", s.GameTick(), err)
			}
		}

		wait := tickC
		if wait == nil {
			if err == nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			wait = time.After(s.cfg.RetryBackoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
	return nil
}

// State is a consistent view of the scheduler for rendering.
type State struct {
	GameTick   int              `json:"game_tick"`
	SpentArmor float64          `json:"spent_armor"`
	Score      float64          `json:"score"`
	Trains     []domain.Train   `json:"trains"`
	Posts      []domain.Post    `json:"posts"`
	Targets    map[int]int      `json:"targets"`
	LastTick   domain.TickEvent `json:"last_tick"`
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		GameTick:   s.gameTick,
		SpentArmor: s.spent,
		Score:      s.world.Score(s.spent),
		Trains:     s.world.Trains(),
		Posts:      s.world.Posts(),
		Targets:    s.targetPosts(),
		LastTick:   s.last,
	}
}

func (s *Scheduler) Trains() []domain.Train {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Trains()
}

func (s *Scheduler) Posts() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Posts()
}

func (s *Scheduler) Score() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world.Score(s.spent)
}

func (s *Scheduler) GameTick() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gameTick
}

func (s *Scheduler) SpentArmor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spent
}

// Targets maps train ids to the post id each train is heading for.
func (s *Scheduler) Targets() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetPosts()
}

func (s *Scheduler) targetPosts() map[int]int {
	out := make(map[int]int, len(s.targets))
	for trainID, v := range s.targets {
		out[trainID] = s.world.Post(v).ID
	}
	return out
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
