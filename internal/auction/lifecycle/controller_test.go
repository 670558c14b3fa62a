package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/bazaar/internal/auction/events"
	"github.com/bazaarhq/bazaar/internal/auction/lifecycle"
	"github.com/bazaarhq/bazaar/internal/auction/repository"
	"github.com/bazaarhq/bazaar/internal/auction/timer"
	"github.com/bazaarhq/bazaar/internal/models"
)

// --- fakes ---

type fakeStore struct {
	mu sync.Mutex

	started     []uuid.UUID
	startErr    error
	resolved    []uuid.UUID
	resolveErr  error
	resolutions map[uuid.UUID]*repository.Resolution
	schedules   []models.AuctionSchedule
	listErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{resolutions: make(map[uuid.UUID]*repository.Resolution)}
}

func (s *fakeStore) MarkStarted(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = append(s.started, id)
	return nil
}

func (s *fakeStore) MarkEndedAndResolve(_ context.Context, id uuid.UUID) (*repository.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	s.resolved = append(s.resolved, id)
	return s.resolutions[id], nil
}

func (s *fakeStore) ListPendingOrActive(_ context.Context) ([]models.AuctionSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.schedules, nil
}

func (s *fakeStore) startedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.started...)
}

func (s *fakeStore) resolvedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.resolved...)
}

type fakeNotifier struct {
	mu        sync.Mutex
	won       []string
	noBids    []uuid.UUID
	returnErr error
}

func (n *fakeNotifier) AuctionWon(_ context.Context, to string, _ uuid.UUID, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.won = append(n.won, to)
	return n.returnErr
}

func (n *fakeNotifier) AuctionEndedWithoutBids(_ context.Context, auctionID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.noBids = append(n.noBids, auctionID)
	return n.returnErr
}

func (n *fakeNotifier) wonRecipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.won...)
}

func (n *fakeNotifier) noBidAuctions() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.noBids...)
}

func newController(store *fakeStore, notifier *fakeNotifier) (*lifecycle.Controller, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return lifecycle.NewController(store, timer.New(clock), clock, notifier), clock
}

func waitStartEvent(t *testing.T, ch <-chan events.AuctionStartedPayload) events.AuctionStartedPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for start event")
		return events.AuctionStartedPayload{}
	}
}

func waitEndEvent(t *testing.T, ch <-chan events.AuctionEndedPayload) events.AuctionEndedPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for end event")
		return events.AuctionEndedPayload{}
	}
}

// --- tests ---

func TestStartTimerMarksStartedAndEmits(t *testing.T) {
	store := newFakeStore()
	ctrl, clock := newController(store, &fakeNotifier{})

	startCh := make(chan events.AuctionStartedPayload, 1)
	ctrl.OnAuctionStart(func(p events.AuctionStartedPayload) { startCh <- p })

	auctionID := uuid.New()
	ctrl.ScheduleStart(auctionID, clock.Now().Add(time.Hour))

	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	p := waitStartEvent(t, startCh)
	require.Equal(t, auctionID, p.AuctionID)
	require.Equal(t, []uuid.UUID{auctionID}, store.startedIDs())
}

func TestStartFailureSuppressesEmit(t *testing.T) {
	store := newFakeStore()
	store.startErr = errors.New("connection refused")
	ctrl, clock := newController(store, &fakeNotifier{})

	startCh := make(chan events.AuctionStartedPayload, 1)
	ctrl.OnAuctionStart(func(p events.AuctionStartedPayload) { startCh <- p })

	ctrl.ScheduleStart(uuid.New(), clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	select {
	case <-startCh:
		t.Fatal("start event emitted despite store failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEndTimerResolvesAndNotifiesWinner(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ctrl, clock := newController(store, notifier)

	auctionID := uuid.New()
	winnerID := uuid.New()
	email := "winner@example.com"
	amount := int64(5000)
	store.resolutions[auctionID] = &repository.Resolution{
		AuctionID:   auctionID,
		WinnerID:    &winnerID,
		WinnerEmail: &email,
		Amount:      &amount,
	}

	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	ctrl.ScheduleEnd(auctionID, clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	p := waitEndEvent(t, endCh)
	require.Equal(t, auctionID, p.AuctionID)
	require.NotNil(t, p.WinnerID)
	require.Equal(t, winnerID, *p.WinnerID)
	require.NotNil(t, p.Amount)
	require.Equal(t, amount, *p.Amount)

	require.Eventually(t, func() bool {
		return len(notifier.wonRecipients()) == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{email}, notifier.wonRecipients())
}

func TestEndWithoutBidsNotifiesOps(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ctrl, clock := newController(store, notifier)

	auctionID := uuid.New()
	store.resolutions[auctionID] = &repository.Resolution{AuctionID: auctionID}

	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	ctrl.ScheduleEnd(auctionID, clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	p := waitEndEvent(t, endCh)
	require.Nil(t, p.WinnerID)
	require.Nil(t, p.Amount)

	require.Eventually(t, func() bool {
		return len(notifier.noBidAuctions()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotifierFailureDoesNotAffectTransition(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{returnErr: errors.New("smtp down")}
	ctrl, clock := newController(store, notifier)

	auctionID := uuid.New()
	store.resolutions[auctionID] = &repository.Resolution{AuctionID: auctionID}

	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	ctrl.ScheduleEnd(auctionID, clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	waitEndEvent(t, endCh)
	require.Equal(t, []uuid.UUID{auctionID}, store.resolvedIDs())
}

func TestResolveFailureSuppressesEmit(t *testing.T) {
	store := newFakeStore()
	store.resolveErr = errors.New("connection refused")
	ctrl, clock := newController(store, &fakeNotifier{})

	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	ctrl.ScheduleEnd(uuid.New(), clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	select {
	case <-endCh:
		t.Fatal("end event emitted despite store failure")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestVanishedAuctionEmitsNothing(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	ctrl, clock := newController(store, notifier)

	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	// No resolution registered: the store returns (nil, nil).
	ctrl.ScheduleEnd(uuid.New(), clock.Now().Add(time.Hour))
	clock.BlockUntil(1)
	clock.Advance(time.Hour)

	select {
	case <-endCh:
		t.Fatal("end event emitted for vanished auction")
	case <-time.After(100 * time.Millisecond):
	}
	require.Empty(t, notifier.wonRecipients())
	require.Empty(t, notifier.noBidAuctions())
}

func TestCancelClearsBothTimers(t *testing.T) {
	store := newFakeStore()
	ctrl, clock := newController(store, &fakeNotifier{})

	startCh := make(chan events.AuctionStartedPayload, 1)
	endCh := make(chan events.AuctionEndedPayload, 1)
	ctrl.OnAuctionStart(func(p events.AuctionStartedPayload) { startCh <- p })
	ctrl.OnAuctionEnd(func(p events.AuctionEndedPayload) { endCh <- p })

	auctionID := uuid.New()
	ctrl.ScheduleStart(auctionID, clock.Now().Add(time.Hour))
	ctrl.ScheduleEnd(auctionID, clock.Now().Add(2*time.Hour))
	clock.BlockUntil(2)

	ctrl.Cancel(auctionID)
	clock.Advance(3 * time.Hour)

	select {
	case <-startCh:
		t.Fatal("start fired after cancel")
	case <-endCh:
		t.Fatal("end fired after cancel")
	case <-time.After(100 * time.Millisecond):
	}
	require.Empty(t, store.startedIDs())
	require.Empty(t, store.resolvedIDs())
}
