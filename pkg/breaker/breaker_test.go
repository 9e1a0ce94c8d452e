package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/orquestra-labs/orquestra/pkg/store"
)

func newTestBreaker(cfg Config) (*Breaker, *store.Memory) {
	kv := store.NewMemory()
	return New(kv, cfg, zerolog.Nop(), nil), kv
}

func TestBreaker_ClosedByDefault(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	assert.False(t, b.IsOpen(context.Background(), "consulta_financeira"))
}

func TestBreaker_TripsAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, OpenTTL: time.Minute})
	ctx := context.Background()

	b.RecordFailure(ctx, "consulta_financeira")
	b.RecordFailure(ctx, "consulta_financeira")
	assert.False(t, b.IsOpen(ctx, "consulta_financeira"), "two failures must not trip")

	b.RecordFailure(ctx, "consulta_financeira")
	assert.True(t, b.IsOpen(ctx, "consulta_financeira"), "third failure trips the circuit")

	// Other agents are unaffected.
	assert.False(t, b.IsOpen(ctx, "assessoria"))
}

func TestBreaker_OpenFlagExpiresWithoutReset(t *testing.T) {
	kv := store.NewMemory()
	now := time.Now()
	kv.SetClock(func() time.Time { return now })
	b := New(kv, Config{MaxFailures: 3, OpenTTL: time.Minute}, zerolog.Nop(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.RecordFailure(ctx, "agendamento")
	}
	assert.True(t, b.IsOpen(ctx, "agendamento"))

	kv.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	assert.False(t, b.IsOpen(ctx, "agendamento"), "circuit closes when the flag TTL lapses")
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, OpenTTL: time.Minute})
	ctx := context.Background()

	b.RecordFailure(ctx, "assessoria")
	b.RecordFailure(ctx, "assessoria")
	b.RecordSuccess(ctx, "assessoria")

	// Counter was cleared, so two more failures are not enough to trip.
	b.RecordFailure(ctx, "assessoria")
	b.RecordFailure(ctx, "assessoria")
	assert.False(t, b.IsOpen(ctx, "assessoria"))
}

func TestBreaker_SuccessClosesOpenCircuit(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 1, OpenTTL: time.Minute})
	ctx := context.Background()

	b.RecordFailure(ctx, "assessoria")
	assert.True(t, b.IsOpen(ctx, "assessoria"))

	b.RecordSuccess(ctx, "assessoria")
	assert.False(t, b.IsOpen(ctx, "assessoria"))
}

func TestBreaker_SuccessWithoutFailuresIsNoOp(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())
	ctx := context.Background()

	b.RecordSuccess(ctx, "assessoria")
	assert.False(t, b.IsOpen(ctx, "assessoria"))
}

func TestBreaker_CounterDecaysBetweenWindows(t *testing.T) {
	kv := store.NewMemory()
	now := time.Now()
	kv.SetClock(func() time.Time { return now })
	b := New(kv, Config{MaxFailures: 3, OpenTTL: time.Minute}, zerolog.Nop(), nil)
	ctx := context.Background()

	b.RecordFailure(ctx, "assessoria")
	b.RecordFailure(ctx, "assessoria")

	// Counter expires after 2 x OpenTTL, so a failure long after does not trip.
	kv.SetClock(func() time.Time { return now.Add(3 * time.Minute) })
	b.RecordFailure(ctx, "assessoria")
	assert.False(t, b.IsOpen(ctx, "assessoria"))
}

// failingKV errors on every operation, standing in for an unreachable store.
type failingKV struct {
	store.Memory
}

func (f *failingKV) Exists(_ context.Context, _ string) (bool, error) {
	return false, store.ErrUnavailable
}

func TestBreaker_StoreDownMeansClosed(t *testing.T) {
	b := New(&failingKV{}, DefaultConfig(), zerolog.Nop(), nil)
	assert.False(t, b.IsOpen(context.Background(), "consulta_financeira"))
}
