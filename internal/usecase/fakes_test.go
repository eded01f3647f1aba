package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/rocketscienceinc/polyhex-backend/internal/apperror"
	"github.com/rocketscienceinc/polyhex-backend/internal/entity"
)

var errSessionExists = errors.New("session already exists")

// memorySessionRepo keeps serialised copies so callers never share state,
// and enforces the same version check as the redis store.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string][]byte
	queues   map[string][]string
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{
		sessions: make(map[string][]byte),
		queues:   make(map[string][]string),
	}
}

func (that *memorySessionRepo) Create(_ context.Context, session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[session.ID]; ok {
		return errSessionExists
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	that.sessions[session.ID] = data

	return nil
}

func (that *memorySessionRepo) Update(_ context.Context, session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	data, ok := that.sessions[session.ID]
	if !ok {
		return apperror.ErrSessionNotFound
	}

	var stored entity.Session
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	if stored.Version != session.Version {
		return apperror.ErrConcurrentUpdate
	}

	next := *session
	next.Version++

	data, err := json.Marshal(&next)
	if err != nil {
		return err
	}

	that.sessions[session.ID] = data
	session.Version = next.Version

	return nil
}

func (that *memorySessionRepo) GetByID(_ context.Context, id string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	data, ok := that.sessions[id]
	if !ok {
		return &entity.Session{}, apperror.ErrSessionNotFound
	}

	var session entity.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return &entity.Session{}, err
	}

	return &session, nil
}

func (that *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.sessions[id]; !ok {
		return apperror.ErrSessionNotFound
	}

	delete(that.sessions, id)

	return nil
}

func (that *memorySessionRepo) DequeueOrEnqueue(_ context.Context, stake decimal.Decimal, sessionID string) (string, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	queue := that.queues[stake.String()]
	if len(queue) == 0 {
		that.queues[stake.String()] = append(queue, sessionID)
		return "", nil
	}

	that.queues[stake.String()] = queue[1:]

	return queue[0], nil
}

// push queues a session directly, as another server instance would.
func (that *memorySessionRepo) push(stake decimal.Decimal, sessionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.queues[stake.String()] = append(that.queues[stake.String()], sessionID)
}

func (that *memorySessionRepo) count() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.sessions)
}

func (that *memorySessionRepo) RemoveFromQueue(_ context.Context, stake decimal.Decimal, sessionID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	queue := that.queues[stake.String()]
	kept := queue[:0]
	for _, id := range queue {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	that.queues[stake.String()] = kept

	return nil
}

func (that *memorySessionRepo) queueLen(stake decimal.Decimal) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.queues[stake.String()])
}

type memoryPlayerRepo struct {
	mu      sync.Mutex
	players map[string]entity.Player
}

func newMemoryPlayerRepo() *memoryPlayerRepo {
	return &memoryPlayerRepo{
		players: make(map[string]entity.Player),
	}
}

func (that *memoryPlayerRepo) CreateOrUpdate(_ context.Context, player *entity.Player) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.players[player.ID] = *player

	return nil
}

func (that *memoryPlayerRepo) GetByID(_ context.Context, id string) (*entity.Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[id]
	if !ok {
		return &entity.Player{}, apperror.ErrPlayerNotFound
	}

	return &player, nil
}

func (that *memoryPlayerRepo) Release(_ context.Context, playerID, sessionID string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.players[playerID]
	if !ok {
		return false, apperror.ErrPlayerNotFound
	}

	if player.SessionID != sessionID {
		return false, nil
	}

	player.Leave()
	that.players[playerID] = player

	return true, nil
}

type mockLedger struct {
	mock.Mock
}

func (that *mockLedger) Credit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	args := that.Called(ctx, playerID, amount, reference)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (that *mockLedger) Debit(ctx context.Context, playerID string, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	args := that.Called(ctx, playerID, amount, reference)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (that *mockLedger) Balance(ctx context.Context, playerID string) (decimal.Decimal, error) {
	args := that.Called(ctx, playerID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func amountOf(value string) interface{} {
	want := decimal.RequireFromString(value)

	return mock.MatchedBy(func(got decimal.Decimal) bool {
		return got.Equal(want)
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (that *fakeClock) Now() time.Time {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.now
}

func (that *fakeClock) Advance(d time.Duration) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.now = that.now.Add(d)
}
