package evs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test-thesaurus-mapping-extractor", "error")
}

type mockEVSClient struct {
	concepts map[string]*Concept
	errs     map[string]error
	delay    time.Duration
	calls    int32
	mu       sync.Mutex
	perCode  map[string]int
}

func (c *mockEVSClient) GetConcept(ctx context.Context, code string) (*Concept, error) {
	atomic.AddInt32(&c.calls, 1)
	c.mu.Lock()
	if c.perCode == nil {
		c.perCode = map[string]int{}
	}
	c.perCode[code]++
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := c.errs[code]; ok {
		return nil, err
	}
	if concept, ok := c.concepts[code]; ok {
		// hand out a fresh copy each time so identity only comes from the Store
		cp := *concept
		return &cp, nil
	}
	return nil, notFound(code)
}

func (c *mockEVSClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Checker: func() (string, error) {
			return "", nil
		},
	}
}

func (c *mockEVSClient) callsFor(code string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perCode[code]
}

type mockLookaside struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	putErr  error
	puts    int
}

func (l *mockLookaside) Get(ctx context.Context, code string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return nil, false, l.getErr
	}
	data, ok := l.entries[code]
	return data, ok, nil
}

func (l *mockLookaside) Put(ctx context.Context, code string, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.puts++
	if l.putErr != nil {
		return l.putErr
	}
	if l.entries == nil {
		l.entries = map[string][]byte{}
	}
	l.entries[code] = data
	return nil
}

func TestStore_FetchCachesSuccess(t *testing.T) {
	client := &mockEVSClient{concepts: map[string]*Concept{"C7057": {Code: "C7057", PreferredName: "Neoplasm"}}}
	store := NewStore(client, StoreOptions{})

	first, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	second, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)

	assert.True(t, first == second, "expected the same instance for repeated fetches")
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
	assert.Equal(t, int64(1), store.Stats().CacheHits)
	assert.Equal(t, int64(1), store.Stats().RemoteReads)
}

func TestStore_ConcurrentFetchesShareOneRemoteRead(t *testing.T) {
	client := &mockEVSClient{
		concepts: map[string]*Concept{"C7057": {Code: "C7057", PreferredName: "Neoplasm"}},
		delay:    50 * time.Millisecond,
	}
	store := NewStore(client, StoreOptions{})

	const callers = 50
	results := make([]*Concept, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			c, err := store.Fetch(context.Background(), "C7057")
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
	for _, c := range results {
		assert.True(t, c == results[0], "all callers should see the same instance")
	}
}

func TestStore_ConcurrentFetchesShareCachedError(t *testing.T) {
	serverErr := &ServerError{Code: "C1", Status: 500, Message: "boom"}
	client := &mockEVSClient{errs: map[string]error{"C1": serverErr}, delay: 20 * time.Millisecond}
	store := NewStore(client, StoreOptions{})

	var wg sync.WaitGroup
	errs := make([]error, 20)
	wg.Add(len(errs))
	for i := range errs {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Fetch(context.Background(), "C1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.Equal(t, serverErr, err)
	}
	_, err := store.Fetch(context.Background(), "C1")
	assert.Equal(t, serverErr, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.calls))
	assert.Equal(t, int64(1), store.Stats().Errors)
}

func TestStore_NotFoundIsCached(t *testing.T) {
	client := &mockEVSClient{}
	store := NewStore(client, StoreOptions{})

	_, err := store.Fetch(context.Background(), "C404")
	assert.True(t, IsNotFound(err))
	_, err = store.Fetch(context.Background(), "C404")
	assert.True(t, IsNotFound(err))

	assert.Equal(t, 1, client.callsFor("C404"))
	assert.Equal(t, int64(1), store.Stats().NotFound)
}

func TestStore_CancelledFetchIsNotCached(t *testing.T) {
	client := &mockEVSClient{
		concepts: map[string]*Concept{"C7057": {Code: "C7057"}},
		delay:    200 * time.Millisecond,
	}
	store := NewStore(client, StoreOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := store.Fetch(ctx, "C7057")
	assert.Equal(t, context.DeadlineExceeded, err)

	// the abandoned flight stops at its own deadline; give it time to unwind
	time.Sleep(50 * time.Millisecond)

	c, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	assert.Equal(t, "C7057", c.Code)
	assert.Equal(t, 2, client.callsFor("C7057"))
}

func TestStore_CancelledCallerDoesNotFailOtherWaiters(t *testing.T) {
	client := &mockEVSClient{
		concepts: map[string]*Concept{"C7057": {Code: "C7057", PreferredName: "Neoplasm"}},
		delay:    100 * time.Millisecond,
	}
	store := NewStore(client, StoreOptions{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Fetch(firstCtx, "C7057")
		firstErr <- err
	}()
	waitForCalls(t, client, "C7057", 1)

	type result struct {
		c   *Concept
		err error
	}
	second := make(chan result, 1)
	go func() {
		c, err := store.Fetch(context.Background(), "C7057")
		second <- result{c, err}
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFirst()

	assert.Equal(t, context.Canceled, <-firstErr)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "Neoplasm", res.c.PreferredName)
	assert.Equal(t, 1, client.callsFor("C7057"))
}

func TestStore_FetchAfterAbandonedFlightStartsAFreshRead(t *testing.T) {
	client := &mockEVSClient{
		concepts: map[string]*Concept{"C7057": {Code: "C7057", PreferredName: "Neoplasm"}},
		delay:    50 * time.Millisecond,
	}
	store := NewStore(client, StoreOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitForCalls(t, client, "C7057", 1)
		cancel()
	}()
	_, err := store.Fetch(ctx, "C7057")
	assert.Equal(t, context.Canceled, err)

	c, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	assert.Equal(t, "Neoplasm", c.PreferredName)
	assert.Equal(t, 2, client.callsFor("C7057"))
}

func waitForCalls(t *testing.T, client *mockEVSClient, code string, n int) {
	deadline := time.Now().Add(time.Second)
	for client.callsFor(code) < n {
		if time.Now().After(deadline) {
			t.Errorf("timed out waiting for %d calls to %s", n, code)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStore_LookasideHitSkipsRemote(t *testing.T) {
	client := &mockEVSClient{}
	lookaside := &mockLookaside{entries: map[string][]byte{
		"C7057": []byte(`{"code":"C7057","preferredName":"Cached Neoplasm"}`),
	}}
	store := NewStore(client, StoreOptions{Lookaside: lookaside})

	c, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	assert.Equal(t, "Cached Neoplasm", c.PreferredName)
	assert.Equal(t, int32(0), atomic.LoadInt32(&client.calls))
	assert.Equal(t, int64(1), store.Stats().LookasideHits)
}

func TestStore_CorruptLookasideFallsThrough(t *testing.T) {
	client := &mockEVSClient{concepts: map[string]*Concept{"C7057": {Code: "C7057", PreferredName: "Remote Neoplasm"}}}
	lookaside := &mockLookaside{entries: map[string][]byte{
		"C7057": []byte(`{not json`),
	}}
	store := NewStore(client, StoreOptions{Lookaside: lookaside})

	c, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	assert.Equal(t, "Remote Neoplasm", c.PreferredName)
	assert.Contains(t, string(lookaside.entries["C7057"]), "Remote Neoplasm")
}

func TestStore_LookasideErrorsAreNotFatal(t *testing.T) {
	client := &mockEVSClient{concepts: map[string]*Concept{"C7057": {Code: "C7057"}}}
	lookaside := &mockLookaside{getErr: errors.New("disk gone"), putErr: errors.New("disk gone")}
	store := NewStore(client, StoreOptions{Lookaside: lookaside})

	c, err := store.Fetch(context.Background(), "C7057")
	require.NoError(t, err)
	assert.Equal(t, "C7057", c.Code)
	assert.Equal(t, 1, lookaside.puts)
}

func TestStore_MaxConcurrentFetches(t *testing.T) {
	var inFlight, maxSeen int32
	client := &countingClient{inFlight: &inFlight, maxSeen: &maxSeen}
	store := NewStore(client, StoreOptions{MaxConcurrentFetches: 2})

	var wg sync.WaitGroup
	codes := []string{"C1", "C2", "C3", "C4", "C5", "C6"}
	wg.Add(len(codes))
	for _, code := range codes {
		go func(code string) {
			defer wg.Done()
			_, err := store.Fetch(context.Background(), code)
			assert.NoError(t, err)
		}(code)
	}
	wg.Wait()

	assert.True(t, atomic.LoadInt32(&maxSeen) <= 2, "saw %d concurrent reads", maxSeen)
}

type countingClient struct {
	inFlight *int32
	maxSeen  *int32
}

func (c *countingClient) GetConcept(ctx context.Context, code string) (*Concept, error) {
	n := atomic.AddInt32(c.inFlight, 1)
	defer atomic.AddInt32(c.inFlight, -1)
	for {
		seen := atomic.LoadInt32(c.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(c.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return &Concept{Code: code}, nil
}

func (c *countingClient) Healthcheck() fthealth.Check {
	return fthealth.Check{}
}
