package room

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/events"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/rng"
	"github.com/cory-johannsen/daguai/internal/game/rules"
)

// DefaultInactivityTimeout is how long a room survives without activity.
const DefaultInactivityTimeout = 30 * time.Minute

// roomIDSpace bounds generated room ids to [0, roomIDSpace).
const roomIDSpace = 1_000_000

// maxIDAttempts bounds the search for an unused generated id.
const maxIDAttempts = 32

type entry struct {
	room         *Room
	lastActiveAt time.Time
	expiresAt    time.Time
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	InactivityTimeout time.Duration
	DefaultDecks      int
	MaxDecks          int
}

// Registry owns every room. Its lock guards only the id → room map and the
// expiry bookkeeping; it is never held while a room lock is taken.
type Registry struct {
	cfg       RegistryConfig
	factory   rules.Factory
	src       rng.Source
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	rooms map[string]*entry
}

// NewRegistry creates an empty Registry.
//
// Precondition: factory, src, publisher, and logger must be non-nil.
// Postcondition: Returns a Registry with no rooms.
func NewRegistry(cfg RegistryConfig, factory rules.Factory, src rng.Source, publisher events.Publisher, logger *zap.Logger) *Registry {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = DefaultInactivityTimeout
	}
	if cfg.DefaultDecks < 1 {
		cfg.DefaultDecks = 1
	}
	if cfg.MaxDecks < cfg.DefaultDecks {
		cfg.MaxDecks = cfg.DefaultDecks
	}
	return &Registry{
		cfg:       cfg,
		factory:   factory,
		src:       src,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		rooms:     make(map[string]*entry),
	}
}

// SetClock replaces the time source. Intended for tests.
func (g *Registry) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *Registry) clampDecks(n int) int {
	switch {
	case n <= 0:
		return g.cfg.DefaultDecks
	case n > g.cfg.MaxDecks:
		return g.cfg.MaxDecks
	default:
		return n
	}
}

// Create registers a new room. An empty id asks for a generated numeric id;
// numDecks <= 0 uses the configured default.
//
// Postcondition: the returned room is reachable through Get until evicted.
func (g *Registry) Create(ctx context.Context, id string, numDecks int) (*Room, error) {
	g.mu.Lock()
	if id == "" {
		var err error
		if id, err = g.generateIDLocked(); err != nil {
			g.mu.Unlock()
			return nil, err
		}
	} else if _, exists := g.rooms[id]; exists {
		g.mu.Unlock()
		return nil, gameerr.Conflict("room %s already exists", id)
	}
	r := g.insertLocked(id, numDecks)
	g.mu.Unlock()

	g.publish(ctx, events.Event{Kind: events.RoomCreated, RoomID: id})
	return r, nil
}

// GetOrCreate returns the room with id, creating it when absent.
func (g *Registry) GetOrCreate(ctx context.Context, id string) (*Room, error) {
	if id == "" {
		return nil, gameerr.Invalid("missing room id")
	}
	g.mu.Lock()
	if e, ok := g.rooms[id]; ok {
		g.touchLocked(e)
		g.mu.Unlock()
		return e.room, nil
	}
	r := g.insertLocked(id, 0)
	g.mu.Unlock()

	g.publish(ctx, events.Event{Kind: events.RoomCreated, RoomID: id})
	return r, nil
}

func (g *Registry) generateIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := strconv.Itoa(g.src.Intn(roomIDSpace))
		if _, exists := g.rooms[id]; !exists {
			return id, nil
		}
	}
	return "", gameerr.Conflict("could not allocate a room id")
}

func (g *Registry) insertLocked(id string, numDecks int) *Room {
	r := New(Options{
		ID:       id,
		NumDecks: g.clampDecks(numDecks),
		Factory:  g.factory,
		Source:   g.src,
	})
	e := &entry{room: r}
	g.touchLocked(e)
	g.rooms[id] = e
	g.logger.Info("room created", zap.String("room_id", id), zap.Int("decks", r.NumDecks()))
	return r
}

func (g *Registry) touchLocked(e *entry) {
	e.lastActiveAt = g.now()
	e.expiresAt = e.lastActiveAt.Add(g.cfg.InactivityTimeout)
}

// Get returns the room with id.
func (g *Registry) Get(id string) (*Room, error) {
	if id == "" {
		return nil, gameerr.Invalid("missing room id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[id]
	if !ok {
		return nil, gameerr.NotFound("room %s not found", id)
	}
	return e.room, nil
}

// Resolve returns the room with id and records activity on it.
func (g *Registry) Resolve(id string) (*Room, error) {
	if id == "" {
		return nil, gameerr.Invalid("missing room id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[id]
	if !ok {
		return nil, gameerr.NotFound("room %s not found", id)
	}
	g.touchLocked(e)
	return e.room, nil
}

// Touch records activity on id, pushing its expiry forward.
func (g *Registry) Touch(id string) error {
	_, err := g.Resolve(id)
	return err
}

// Evict removes id and tears down its connections.
func (g *Registry) Evict(ctx context.Context, id string) error {
	g.mu.Lock()
	e, ok := g.rooms[id]
	if ok {
		delete(g.rooms, id)
	}
	g.mu.Unlock()

	if !ok {
		return gameerr.NotFound("room %s not found", id)
	}
	g.teardown(ctx, e.room)
	return nil
}

func (g *Registry) teardown(ctx context.Context, r *Room) {
	for _, c := range r.DetachAll() {
		_ = c.Close()
	}
	r.Close()
	g.logger.Info("room evicted", zap.String("room_id", r.ID()))
	g.publish(ctx, events.Event{Kind: events.RoomEvicted, RoomID: r.ID()})
}

// Sweep evicts every room whose expiry is not after the current time and
// returns the evicted ids.
func (g *Registry) Sweep(ctx context.Context) []string {
	g.mu.Lock()
	now := g.now()
	var expired []*Room
	for id, e := range g.rooms {
		if !e.expiresAt.After(now) {
			expired = append(expired, e.room)
			delete(g.rooms, id)
		}
	}
	g.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, r := range expired {
		g.teardown(ctx, r)
		ids = append(ids, r.ID())
	}
	slices.Sort(ids)
	return ids
}

// Rooms returns a snapshot of the live rooms.
func (g *Registry) Rooms() []*Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, e := range g.rooms {
		out = append(out, e.room)
	}
	return out
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// LastActive returns when id last saw activity.
func (g *Registry) LastActive(id string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.rooms[id]
	if !ok {
		return time.Time{}, false
	}
	return e.lastActiveAt, true
}

func (g *Registry) publish(ctx context.Context, ev events.Event) {
	if ev.Timestamp.IsZero() {
		g.mu.Lock()
		ev.Timestamp = g.now()
		g.mu.Unlock()
	}
	if err := g.publisher.Publish(ctx, ev); err != nil {
		g.logger.Warn("publishing event", zap.String("kind", string(ev.Kind)), zap.String("room_id", ev.RoomID), zap.Error(err))
	}
}

// Publish forwards room-produced events.
func (g *Registry) Publish(ctx context.Context, evs []events.Event) {
	for _, ev := range evs {
		g.publish(ctx, ev)
	}
}
