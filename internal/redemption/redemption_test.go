package redemption

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-promo/internal/events"
	"github.com/noah-isme/storefront-promo/internal/lock"
)

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (c *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	if c.err != nil {
		return nil, c.err
	}
	return &asynq.TaskInfo{ID: "x", Type: task.Type()}, nil
}

type memStore struct {
	mu   sync.Mutex
	seen map[string]bool
	used map[uuid.UUID]int
	err  error
}

func newMemStore() *memStore {
	return &memStore{seen: map[string]bool{}, used: map[uuid.UUID]int{}}
}

func (s *memStore) Record(_ context.Context, id, checkoutID uuid.UUID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	key := id.String() + "/" + checkoutID.String()
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.used[id]++
	return true, nil
}

type captureEmitter struct {
	topics []string
	ids    []uuid.UUID
}

func (c *captureEmitter) EmitLogged(_ context.Context, topic string, id uuid.UUID, _ any) {
	c.topics = append(c.topics, topic)
	c.ids = append(c.ids, id)
}

func newProcessor(t *testing.T, store Store) (*Processor, *captureEmitter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	emitter := &captureEmitter{}
	return &Processor{
		Store:   store,
		Locker:  lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, MaxWait: time.Second},
		LockTTL: time.Second,
		Events:  emitter,
		Logger:  zerolog.Nop(),
	}, emitter
}

func taskFor(t *testing.T, checkoutID uuid.UUID, orderID string, ids ...string) *asynq.Task {
	t.Helper()
	task, err := NewTask(Payload{CheckoutID: checkoutID, OrderID: orderID, PromotionIDs: ids})
	require.NoError(t, err)
	return task
}

func TestNewTaskRequiresCheckoutAndOrderID(t *testing.T) {
	checkoutID := uuid.MustParse("3e0c2b6a-9f41-4d57-8b2e-6a1d0c9f7e35")

	_, err := NewTask(Payload{OrderID: "KKO-123456"})
	require.Error(t, err)
	_, err = NewTask(Payload{CheckoutID: checkoutID, OrderID: "  "})
	require.Error(t, err)

	task, err := NewTask(Payload{CheckoutID: checkoutID, OrderID: " KKO-123456 ", PromotionIDs: []string{"a"}})
	require.NoError(t, err)
	require.Equal(t, TypeRedeem, task.Type())

	var p Payload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, checkoutID, p.CheckoutID)
	require.Equal(t, "KKO-123456", p.OrderID)
	require.Equal(t, "redeem:3e0c2b6a-9f41-4d57-8b2e-6a1d0c9f7e35", TaskID(p.CheckoutID))
}

func TestEnqueueSkipsOrdersWithoutPromotions(t *testing.T) {
	client := &stubClient{}
	require.NoError(t, Enqueuer{Client: client}.EnqueueRedemption(context.Background(), uuid.New(), "KKO-1", nil))
	require.Empty(t, client.tasks)
}

func TestEnqueueTreatsQueuedOrderAsDone(t *testing.T) {
	client := &stubClient{err: asynq.ErrTaskIDConflict}
	require.NoError(t, Enqueuer{Client: client}.EnqueueRedemption(context.Background(), uuid.New(), "KKO-1", []string{uuid.NewString()}))
	require.Len(t, client.tasks, 1)

	client = &stubClient{err: errors.New("redis down")}
	err := Enqueuer{Client: client}.EnqueueRedemption(context.Background(), uuid.New(), "KKO-1", []string{uuid.NewString()})
	require.Error(t, err)
}

func TestEnqueueWithoutClient(t *testing.T) {
	require.Error(t, Enqueuer{}.EnqueueRedemption(context.Background(), uuid.New(), "KKO-1", []string{"x"}))
}

func TestProcessRecordsEachPromotionOnce(t *testing.T) {
	store := newMemStore()
	proc, emitter := newProcessor(t, store)
	a, b := uuid.New(), uuid.New()
	task := taskFor(t, uuid.New(), "KKO-100001", a.String(), b.String())

	require.NoError(t, proc.ProcessTask(context.Background(), task))
	require.NoError(t, proc.ProcessTask(context.Background(), task))

	require.Equal(t, 1, store.used[a])
	require.Equal(t, 1, store.used[b])
	require.Equal(t, []string{events.TopicPromotionRedeemed, events.TopicPromotionRedeemed}, emitter.topics)
	require.Equal(t, []uuid.UUID{a, b}, emitter.ids)
}

func TestProcessCountsCheckoutsSharingAnOrderID(t *testing.T) {
	store := newMemStore()
	proc, _ := newProcessor(t, store)
	promo := uuid.New()

	require.NoError(t, proc.ProcessTask(context.Background(), taskFor(t, uuid.New(), "KKO-555555", promo.String())))
	require.NoError(t, proc.ProcessTask(context.Background(), taskFor(t, uuid.New(), "KKO-555555", promo.String())))
	require.Equal(t, 2, store.used[promo])
}

func TestEnqueueKeysTaskOnCheckout(t *testing.T) {
	client := &stubClient{}
	first, second := uuid.New(), uuid.New()
	require.NoError(t, Enqueuer{Client: client}.EnqueueRedemption(context.Background(), first, "KKO-1", []string{uuid.NewString()}))
	require.NoError(t, Enqueuer{Client: client}.EnqueueRedemption(context.Background(), second, "KKO-1", []string{uuid.NewString()}))
	require.Len(t, client.tasks, 2)

	var a, b Payload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &a))
	require.NoError(t, json.Unmarshal(client.tasks[1].Payload(), &b))
	require.Equal(t, first, a.CheckoutID)
	require.Equal(t, second, b.CheckoutID)
	require.NotEqual(t, TaskID(a.CheckoutID), TaskID(b.CheckoutID))
}

func TestProcessSkipsInvalidPromotionIDs(t *testing.T) {
	store := newMemStore()
	proc, _ := newProcessor(t, store)
	good := uuid.New()

	require.NoError(t, proc.ProcessTask(context.Background(), taskFor(t, uuid.New(), "KKO-100002", "not-a-uuid", good.String())))
	require.Equal(t, 1, store.used[good])
}

func TestProcessMalformedPayloadIsNotRetried(t *testing.T) {
	proc, _ := newProcessor(t, newMemStore())

	err := proc.ProcessTask(context.Background(), asynq.NewTask(TypeRedeem, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = proc.ProcessTask(context.Background(), asynq.NewTask(TypeRedeem, []byte(`{"order_id":"KKO-1","promotion_ids":["x"]}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = proc.ProcessTask(context.Background(), asynq.NewTask(TypeRedeem, []byte(`{"checkout_id":"`+uuid.NewString()+`","promotion_ids":["x"]}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessStoreFailureIsRetried(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	proc, emitter := newProcessor(t, store)

	err := proc.ProcessTask(context.Background(), taskFor(t, uuid.New(), "KKO-100003", uuid.NewString()))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, emitter.topics)
}
