package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
	"github.com/sliderule-earth/sliderule-core/pkg/recordobject"
)

func defineSample(t *testing.T, typeName string) *recordobject.Definition {
	t.Helper()
	def, err := recordobject.DefineRecord(typeName, "id", 4, []recordobject.FieldInit{
		{Name: "id", Type: recordobject.Uint32, Offset: 0, Size: 1, Flags: recordobject.NativeFlags},
	}, 0)
	require.NoError(t, err)
	return def
}

func postSample(t *testing.T, pub *msgq.Publisher, def *recordobject.Definition, id uint32) {
	t.Helper()
	rec, err := recordobject.New(def, 0)
	require.NoError(t, err)
	require.NoError(t, rec.SetValueInteger("id", int64(id)))
	wire, err := rec.Serialize(recordobject.Allocate, -1, nil)
	require.NoError(t, err)
	state, err := pub.Post(wire, 0)
	require.NoError(t, err)
	require.Equal(t, msgq.StateOK, state)
}

func TestDispatcherRoutesRecordsToHandlerByType(t *testing.T) {
	def := defineSample(t, "DispatchSample")

	r := msgq.NewRegistry()
	sub, err := r.Subscribe("dispatch-in", msgq.Confidence)
	require.NoError(t, err)
	pub, err := r.Publish("dispatch-in")
	require.NoError(t, err)

	d, err := New(sub, Config{NumWorkers: 2, KeyMode: FieldKeyMode, KeyField: "id"})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []uint32
	var keys []uint64
	done := make(chan struct{})
	d.AttachHandler("DispatchSample", func(rec *recordobject.Record, key uint64) error {
		v, err := rec.GetValueInteger("id")
		require.NoError(t, err)
		mu.Lock()
		seen = append(seen, uint32(v))
		keys = append(keys, key)
		if len(seen) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = d.Run(ctx) }()

	for _, id := range []uint32{1, 2, 3} {
		postSample(t, pub, def, id)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched records")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []uint32{1, 2, 3}, seen)
	// FieldKeyMode must deliver the field's own value as the key, not a
	// hash of it: the handler sees {1,2,3}, matching the ids posted.
	assert.ElementsMatch(t, []uint64{1, 2, 3}, keys)
}

func TestDispatcherRoutingKeyIsDeterministicForFieldMode(t *testing.T) {
	def := defineSample(t, "DispatchSampleStable")
	rec, err := recordobject.New(def, 0)
	require.NoError(t, err)
	require.NoError(t, rec.SetValueInteger("id", 42))

	d, err := New(&msgq.Subscriber{}, Config{NumWorkers: 4, KeyMode: FieldKeyMode, KeyField: "id"})
	require.NoError(t, err)

	k1, err := d.routingKey(rec)
	require.NoError(t, err)
	k2, err := d.routingKey(rec)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestDispatcherReceiptKeyModeRequiresNoKeyField(t *testing.T) {
	r := msgq.NewRegistry()
	sub, err := r.Subscribe("dispatch-receipt", msgq.Confidence)
	require.NoError(t, err)

	d, err := New(sub, Config{NumWorkers: 2, KeyMode: ReceiptKeyMode})
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestNewRejectsFieldModeWithoutKeyField(t *testing.T) {
	r := msgq.NewRegistry()
	sub, err := r.Subscribe("dispatch-badcfg", msgq.Confidence)
	require.NoError(t, err)

	_, err = New(sub, Config{NumWorkers: 1, KeyMode: FieldKeyMode})
	assert.Error(t, err)
}

// TestDispatcherFieldKeyModeGroupsByRawKeyValue posts records with keys
// {0,2,4} and {1,3,5} and checks that the handler observes the raw key
// values unchanged, so a handler can group or window on them the way the
// original's processRecord(record, key, out_records) lets it.
func TestDispatcherFieldKeyModeGroupsByRawKeyValue(t *testing.T) {
	def := defineSample(t, "DispatchSampleGrouped")

	r := msgq.NewRegistry()
	sub, err := r.Subscribe("dispatch-grouped", msgq.Confidence)
	require.NoError(t, err)
	pub, err := r.Publish("dispatch-grouped")
	require.NoError(t, err)

	d, err := New(sub, Config{NumWorkers: 2, KeyMode: FieldKeyMode, KeyField: "id"})
	require.NoError(t, err)

	var mu sync.Mutex
	var evenKeys, oddKeys []uint64
	done := make(chan struct{})
	d.AttachHandler("DispatchSampleGrouped", func(rec *recordobject.Record, key uint64) error {
		mu.Lock()
		if key%2 == 0 {
			evenKeys = append(evenKeys, key)
		} else {
			oddKeys = append(oddKeys, key)
		}
		if len(evenKeys)+len(oddKeys) == 6 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	for _, id := range []uint32{0, 2, 4, 1, 3, 5} {
		postSample(t, pub, def, id)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched records")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []uint64{0, 2, 4}, evenKeys)
	assert.ElementsMatch(t, []uint64{1, 3, 5}, oddKeys)
}

func TestDispatcherCalculatedKeyModeUsesRegisteredKeyFunc(t *testing.T) {
	def := defineSample(t, "DispatchSampleCalc")

	r := msgq.NewRegistry()
	sub, err := r.Subscribe("dispatch-calc", msgq.Confidence)
	require.NoError(t, err)
	pub, err := r.Publish("dispatch-calc")
	require.NoError(t, err)

	d, err := New(sub, Config{NumWorkers: 2, KeyMode: CalculatedKeyMode})
	require.NoError(t, err)
	d.AttachKeyFunc("DispatchSampleCalc", func(rec *recordobject.Record) (uint64, error) {
		v, err := rec.GetValueInteger("id")
		return uint64(v), err
	})

	done := make(chan struct{})
	d.AttachHandler("DispatchSampleCalc", func(rec *recordobject.Record, key uint64) error {
		assert.Equal(t, uint64(7), key)
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	postSample(t, pub, def, 7)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched record")
	}
}
