package relationships

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidfriends/friendships/internal/models"
	"github.com/vidfriends/friendships/internal/repositories"
)

var (
	alice = models.UserKey("alice")
	bob   = models.UserKey("bob")
	carol = models.UserKey("carol")
)

func countPair(t *testing.T, store repositories.RelationshipRepository, a, b models.ParticipantKey) int {
	t.Helper()
	rels, err := store.FindAllInvolving(context.Background(), a)
	require.NoError(t, err)
	n := 0
	for _, rel := range rels {
		if rel.PairKey() == models.PairKey(a, b) {
			n++
		}
	}
	return n
}

func TestSendRequestIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		first, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, first.Status)
		assert.NotEmpty(t, first.ID)

		for i := 0; i < 3; i++ {
			_, err := engine.SendRequest(ctx, alice, bob)
			require.ErrorIs(t, err, ErrDuplicateRequest)
		}

		rel, err := engine.RelationshipWith(ctx, bob, alice)
		require.NoError(t, err)
		assert.Equal(t, first.ID, rel.ID)
		assert.Equal(t, alice, rel.Sender)
		assert.Equal(t, bob, rel.Recipient)
		assert.Equal(t, models.StatusPending, rel.Status)
		assert.Equal(t, 1, countPair(t, store, alice, bob))
	})
}

func TestMutualRequestAutoAccepts(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		rel, err := engine.SendRequest(ctx, bob, alice)
		require.NoError(t, err)

		assert.Equal(t, models.StatusAccepted, rel.Status)
		assert.Equal(t, alice, rel.Sender)
		assert.Equal(t, 1, countPair(t, store, alice, bob))

		for _, pair := range [][2]models.ParticipantKey{{alice, bob}, {bob, alice}} {
			ok, err := engine.HasAcceptedRelationshipWith(ctx, pair[0], pair[1])
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = engine.IsFriendWith(ctx, pair[0], pair[1])
			require.NoError(t, err)
			assert.True(t, ok)
		}

		_, err = engine.SendRequest(ctx, alice, bob)
		assert.ErrorIs(t, err, ErrAlreadyFriends)
	})
}

func TestSelfReferenceRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.SendRequest(ctx, alice, alice)
		assert.ErrorIs(t, err, ErrSelfReference)
		_, err = engine.Block(ctx, alice, alice)
		assert.ErrorIs(t, err, ErrSelfReference)
		assert.ErrorIs(t, engine.RemoveRelationship(ctx, alice, alice), ErrSelfReference)
		assert.ErrorIs(t, engine.Unblock(ctx, alice, alice), ErrSelfReference)

		rels, err := store.FindAllInvolving(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, rels)
	})
}

func TestInvalidParticipant(t *testing.T) {
	engine := NewEngine(repositories.NewInMemoryRelationshipRepository())

	_, err := engine.SendRequest(context.Background(), alice, models.UserKey("  "))
	assert.ErrorIs(t, err, ErrInvalidParticipant)
	_, err = engine.SendRequest(context.Background(), nil, bob)
	assert.ErrorIs(t, err, ErrInvalidParticipant)
}

func TestDenyThenRerequestReopens(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		denied, err := engine.DenyRequest(ctx, bob, alice)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDenied, denied.Status)

		can, err := engine.CanSendRequest(ctx, alice, bob)
		require.NoError(t, err)
		assert.True(t, can)

		rel, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, rel.Status)
		assert.Equal(t, alice, rel.Sender)
		assert.Equal(t, denied.ID, rel.ID)
		assert.Equal(t, 1, countPair(t, store, alice, bob))
	})
}

func TestDenierRerequestFlipsDirection(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		_, err = engine.DenyRequest(ctx, bob, alice)
		require.NoError(t, err)

		rel, err := engine.SendRequest(ctx, bob, alice)
		require.NoError(t, err)
		assert.Equal(t, bob, rel.Sender)
		assert.Equal(t, alice, rel.Recipient)

		pending, err := engine.HasPendingRequestFrom(ctx, alice, bob)
		require.NoError(t, err)
		assert.True(t, pending)
	})
}

func TestAcceptRequiresPendingInDirection(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.AcceptRequest(ctx, bob, alice)
		assert.ErrorIs(t, err, ErrNoPendingRequest)

		_, err = engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)

		_, err = engine.AcceptRequest(ctx, alice, bob)
		assert.ErrorIs(t, err, ErrNoPendingRequest)
		_, err = engine.DenyRequest(ctx, alice, bob)
		assert.ErrorIs(t, err, ErrNoPendingRequest)

		pending, err := engine.HasPendingRequestFrom(ctx, bob, alice)
		require.NoError(t, err)
		assert.True(t, pending)
		pending, err = engine.HasPendingRequestFrom(ctx, alice, bob)
		require.NoError(t, err)
		assert.False(t, pending)

		rel, err := engine.AcceptRequest(ctx, bob, alice)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, rel.Status)

		_, err = engine.AcceptRequest(ctx, bob, alice)
		assert.ErrorIs(t, err, ErrNoPendingRequest)
	})
}

func TestBlockBlocksInboundRequests(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		blocked, err := engine.Block(ctx, alice, bob)
		require.NoError(t, err)

		_, err = engine.SendRequest(ctx, bob, alice)
		require.ErrorIs(t, err, ErrBlocked)

		rel, err := engine.RelationshipWith(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, blocked.ID, rel.ID)
		assert.Equal(t, models.StatusBlocked, rel.Status)
		assert.Equal(t, alice, rel.Sender)
		assert.Equal(t, 1, countPair(t, store, alice, bob))

		hasBlocked, err := engine.HasBlocked(ctx, alice, bob)
		require.NoError(t, err)
		assert.True(t, hasBlocked)
		isBlocked, err := engine.IsBlockedBy(ctx, bob, alice)
		require.NoError(t, err)
		assert.True(t, isBlocked)
		isBlocked, err = engine.IsBlockedBy(ctx, alice, bob)
		require.NoError(t, err)
		assert.False(t, isBlocked)

		can, err := engine.CanSendRequest(ctx, bob, alice)
		require.NoError(t, err)
		assert.False(t, can)
	})
}

func TestBlockIsIdempotentAndReplacesFriendship(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.SendRequest(ctx, bob, alice)
		require.NoError(t, err)
		_, err = engine.AcceptRequest(ctx, alice, bob)
		require.NoError(t, err)

		first, err := engine.Block(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, alice, first.Sender)
		assert.Equal(t, models.StatusBlocked, first.Status)

		second, err := engine.Block(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, countPair(t, store, alice, bob))

		friends, err := engine.IsFriendWith(ctx, alice, bob)
		require.NoError(t, err)
		assert.False(t, friends)
	})
}

func TestBlockerRequestReopensAsPending(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.Block(ctx, alice, bob)
		require.NoError(t, err)

		rel, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, rel.Status)
		assert.Equal(t, alice, rel.Sender)
	})
}

func TestUnblockOnlyByBlocker(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		_, err := engine.Block(ctx, alice, bob)
		require.NoError(t, err)

		require.ErrorIs(t, engine.Unblock(ctx, bob, alice), ErrNotBlockedByYou)
		rel, err := engine.RelationshipWith(ctx, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, models.StatusBlocked, rel.Status)

		require.NoError(t, engine.Unblock(ctx, alice, bob))
		_, err = engine.RelationshipWith(ctx, alice, bob)
		assert.ErrorIs(t, err, ErrNoRelationship)

		assert.ErrorIs(t, engine.Unblock(ctx, alice, bob), ErrNotBlockedByYou)
	})
}

func TestRemoveRelationship(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
		ctx := context.Background()
		engine := NewEngine(store)

		require.NoError(t, engine.RemoveRelationship(ctx, alice, bob))

		_, err := engine.SendRequest(ctx, alice, bob)
		require.NoError(t, err)
		require.NoError(t, engine.RemoveRelationship(ctx, bob, alice))
		_, err = engine.RelationshipWith(ctx, alice, bob)
		assert.ErrorIs(t, err, ErrNoRelationship)

		_, err = engine.SendRequest(ctx, alice, carol)
		require.NoError(t, err)
		_, err = engine.DenyRequest(ctx, carol, alice)
		require.NoError(t, err)
		require.NoError(t, engine.RemoveRelationship(ctx, alice, carol))
		rel, err := engine.RelationshipWith(ctx, alice, carol)
		require.NoError(t, err)
		assert.Equal(t, models.StatusDenied, rel.Status)
	})
}

func TestObserverSeesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	var seen []Transition
	engine := NewEngine(repositories.NewInMemoryRelationshipRepository(),
		WithObserver(Observers{LogObserver{}, ObserverFunc(func(_ context.Context, tr Transition) {
			seen = append(seen, tr)
		})}),
	)

	_, err := engine.SendRequest(ctx, alice, bob)
	require.NoError(t, err)
	_, err = engine.SendRequest(ctx, alice, bob)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	_, err = engine.AcceptRequest(ctx, bob, alice)
	require.NoError(t, err)
	require.NoError(t, engine.RemoveRelationship(ctx, alice, bob))
	require.NoError(t, engine.RemoveRelationship(ctx, alice, bob))

	require.Len(t, seen, 3)
	assert.Equal(t, ActionRequest, seen[0].Action)
	assert.Nil(t, seen[0].From)
	assert.Equal(t, models.StatusPending, seen[0].To.Status)
	assert.Equal(t, ActionAccept, seen[1].Action)
	assert.Equal(t, models.StatusPending, seen[1].From.Status)
	assert.Equal(t, models.StatusAccepted, seen[1].To.Status)
	assert.Equal(t, ActionRemove, seen[2].Action)
	assert.Nil(t, seen[2].To)
}

// failingStore fails every call with err.
type failingStore struct {
	repositories.RelationshipRepository
	err error
}

func (s failingStore) FindBetween(context.Context, models.ParticipantKey, models.ParticipantKey) (models.Relationship, error) {
	return models.Relationship{}, s.err
}

func (s failingStore) ExistsBetweenWithStatus(context.Context, models.ParticipantKey, models.ParticipantKey, ...models.Status) (bool, error) {
	return false, s.err
}

func (s failingStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.RelationshipRepository) error) error {
	return fn(ctx, s)
}

func TestStoreFailuresSurfaceAsStoreError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")
	engine := NewEngine(failingStore{err: boom})

	_, err := engine.SendRequest(ctx, alice, bob)
	require.ErrorIs(t, err, ErrStore)
	require.ErrorIs(t, err, boom)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, string(ActionRequest), storeErr.Op)

	_, err = engine.IsFriendWith(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrStore)
	_, err = engine.HasBlocked(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrStore)
}

// racingStore makes every Create lose to a concurrent writer.
type racingStore struct {
	*repositories.InMemoryRelationshipRepository
	creates int
}

func (s *racingStore) Create(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	s.creates++
	return models.Relationship{}, repositories.ErrConflict
}

func (s *racingStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.RelationshipRepository) error) error {
	return fn(ctx, s)
}

func TestRepeatedRaceLossSurfacesAsStoreError(t *testing.T) {
	store := &racingStore{InMemoryRelationshipRepository: repositories.NewInMemoryRelationshipRepository()}
	engine := NewEngine(store)

	_, err := engine.SendRequest(context.Background(), alice, bob)
	require.ErrorIs(t, err, ErrStore)
	require.ErrorIs(t, err, repositories.ErrConflict)
	assert.Equal(t, 2, store.creates)
}

// lateWriterStore lets a competing request land between the read and the
// first insert.
type lateWriterStore struct {
	*repositories.InMemoryRelationshipRepository
	once sync.Once
}

func (s *lateWriterStore) Create(ctx context.Context, rel models.Relationship) (models.Relationship, error) {
	s.once.Do(func() {
		_, _ = s.InMemoryRelationshipRepository.Create(ctx, models.Relationship{
			Sender:    rel.Recipient,
			Recipient: rel.Sender,
			Status:    models.StatusPending,
		})
	})
	return s.InMemoryRelationshipRepository.Create(ctx, rel)
}

func (s *lateWriterStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.RelationshipRepository) error) error {
	return fn(ctx, s)
}

func TestLostInsertIsReconciled(t *testing.T) {
	store := &lateWriterStore{InMemoryRelationshipRepository: repositories.NewInMemoryRelationshipRepository()}
	engine := NewEngine(store)

	rel, err := engine.SendRequest(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, rel.Status)
	assert.Equal(t, bob, rel.Sender)
	assert.Equal(t, 1, store.Len())
}

func TestConcurrentOppositeRequestsConverge(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := repositories.NewInMemoryRelationshipRepository()
		engine := NewEngine(store)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j, pair := range [][2]models.ParticipantKey{{alice, bob}, {bob, alice}} {
			j, pair := j, pair
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = engine.SendRequest(context.Background(), pair[0], pair[1])
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrDuplicateRequest)
			}
		}
		require.Equal(t, 1, store.Len())

		rel, err := engine.RelationshipWith(context.Background(), alice, bob)
		require.NoError(t, err)
		assert.Contains(t, []models.Status{models.StatusPending, models.StatusAccepted}, rel.Status)
	}
}

func TestConcurrentDuplicateRequestsCollapse(t *testing.T) {
	store := repositories.NewInMemoryRelationshipRepository()
	engine := NewEngine(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.SendRequest(context.Background(), alice, bob)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrDuplicateRequest)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, store.Len())
}

// slowReadStore stretches the read phase of every transaction so concurrent
// operations on the same pair overlap.
type slowReadStore struct {
	repositories.RelationshipRepository
	delay time.Duration
}

func (s slowReadStore) FindBetween(ctx context.Context, a, b models.ParticipantKey) (models.Relationship, error) {
	time.Sleep(s.delay)
	return s.RelationshipRepository.FindBetween(ctx, a, b)
}

func (s slowReadStore) WithinTx(ctx context.Context, fn func(context.Context, repositories.RelationshipRepository) error) error {
	return s.RelationshipRepository.WithinTx(ctx, func(ctx context.Context, repo repositories.RelationshipRepository) error {
		return fn(ctx, slowReadStore{RelationshipRepository: repo, delay: s.delay})
	})
}

type pairOp struct {
	run     func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error
	allowed error
}

func TestConcurrentTransitionsOnSamePairSerialize(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error
		ops        []pairOp
		wantStatus models.Status
	}{
		{
			name: "block races accept",
			setup: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
				_, err := e.SendRequest(ctx, a, b)
				return err
			},
			ops: []pairOp{
				{run: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
					_, err := e.Block(ctx, a, b)
					return err
				}},
				{run: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
					_, err := e.AcceptRequest(ctx, b, a)
					return err
				}, allowed: ErrNoPendingRequest},
			},
			wantStatus: models.StatusBlocked,
		},
		{
			name: "unblock races request",
			setup: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
				_, err := e.Block(ctx, a, b)
				return err
			},
			ops: []pairOp{
				{run: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
					return e.Unblock(ctx, a, b)
				}, allowed: ErrNotBlockedByYou},
				{run: func(ctx context.Context, e *Engine, a, b models.ParticipantKey) error {
					_, err := e.SendRequest(ctx, a, b)
					return err
				}},
			},
			wantStatus: models.StatusPending,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			forEachStore(t, func(t *testing.T, store repositories.RelationshipRepository) {
				ctx := context.Background()
				engine := NewEngine(slowReadStore{RelationshipRepository: store, delay: 2 * time.Millisecond})

				for i := 0; i < 10; i++ {
					a := models.UserKey(fmt.Sprintf("a%d", i))
					b := models.UserKey(fmt.Sprintf("b%d", i))
					require.NoError(t, tc.setup(ctx, engine, a, b))

					var wg sync.WaitGroup
					errs := make([]error, len(tc.ops))
					for j, op := range tc.ops {
						j, op := j, op
						wg.Add(1)
						go func() {
							defer wg.Done()
							errs[j] = op.run(ctx, engine, a, b)
						}()
					}
					wg.Wait()

					for j, err := range errs {
						if err != nil && (tc.ops[j].allowed == nil || !errors.Is(err, tc.ops[j].allowed)) {
							t.Fatalf("round %d op %d: unexpected error %v", i, j, err)
						}
					}

					rel, err := engine.RelationshipWith(ctx, a, b)
					require.NoError(t, err, "round %d", i)
					assert.Equal(t, tc.wantStatus, rel.Status, "round %d", i)
					assert.Equal(t, a, rel.Sender, "round %d", i)
					assert.Equal(t, 1, countPair(t, store, a, b))
				}
			})
		})
	}
}

func TestTimeoutBoundsOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(failingStore{err: context.Canceled}, WithTimeout(time.Second))
	_, err := engine.SendRequest(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, context.Canceled)
}
