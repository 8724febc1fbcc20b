// internal/eventgate/eventgate_test.go

package eventgate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dkoosis/cowgnition/internal/config"
	"github.com/dkoosis/cowgnition/internal/eventerr"
	"github.com/dkoosis/cowgnition/internal/logging"
	"github.com/dkoosis/cowgnition/internal/producer"
	"github.com/dkoosis/cowgnition/internal/streamconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	titles      map[string]string
	validateErr error
}

func (f *fakeCache) Validate(_ context.Context, _ string, data []byte) (map[string]interface{}, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	var m map[string]interface{}
	_ = json.Unmarshal(data, &m)
	return m, nil
}

func (f *fakeCache) TitleFor(_ context.Context, ref string) (string, error) {
	return f.titles[ref], nil
}

type allowAllAuthorizer struct{ err error }

func (a allowAllAuthorizer) EnsureAllowed(_ context.Context, _ streamconfig.TitleLookup, _, _ string) error {
	return a.err
}

type fakeDispatcher struct {
	acks        []producer.Ack
	err         error
	calls       int
	lastTopic   string
	lastPayload []byte
}

func (d *fakeDispatcher) Dispatch(_ context.Context, topic string, _ *int32, _ *string, _ *time.Time, payload []byte) (producer.Ack, error) {
	d.calls++
	d.lastTopic = topic
	d.lastPayload = payload
	if d.err != nil {
		return producer.Ack{}, d.err
	}
	if len(d.acks) > 0 {
		ack := d.acks[0]
		d.acks = d.acks[1:]
		return ack, nil
	}
	return producer.Ack{Topic: topic, Partition: 0, Offset: 1}, nil
}

type recordingMapper struct {
	mapped  []map[string]interface{}
	calls   int
	sawErrs []error
}

func (m *recordingMapper) Map(_ context.Context, err error, event map[string]interface{}) (map[string]interface{}, error) {
	m.calls++
	m.sawErrs = append(m.sawErrs, err)
	if len(m.mapped) == 0 {
		return nil, nil
	}
	out := m.mapped[0]
	m.mapped = m.mapped[1:]
	return out, nil
}

func testGate(cache ValidatorCache, auth StreamAuthorizer, dispatcher Dispatcher, mapper ErrorMapper) *Gate {
	cfg := config.New()
	cfg.SchemaURIField = []string{"$schema"}
	cfg.StreamField = nil
	cfg.TopicPrefix = "eventgate."
	return NewGate(cfg, cache, auth, dispatcher, mapper, logging.GetNoopLogger())
}

func TestProcessSuccessPath(t *testing.T) {
	cache := &fakeCache{titles: map[string]string{"event/page_view": "page_view"}}
	dispatcher := &fakeDispatcher{}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, nil)

	events := []map[string]interface{}{
		{"$schema": "event/page_view", "name": "home"},
	}
	result := gate.Process(context.Background(), events)

	require.Len(t, result.Success, 1)
	assert.Empty(t, result.Invalid)
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, "eventgate.event_page_view", dispatcher.lastTopic)
}

func TestProcessMissingSchemaRefIsInvalid(t *testing.T) {
	cache := &fakeCache{}
	dispatcher := &fakeDispatcher{}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, nil)

	result := gate.Process(context.Background(), []map[string]interface{}{{"name": "home"}})

	require.Len(t, result.Invalid, 1)
	assert.True(t, eventerr.Is(result.Invalid[0].Err, eventerr.SchemaRefMissing))
	assert.Equal(t, 0, dispatcher.calls)
}

func TestProcessUnauthorizedStreamIsInvalid(t *testing.T) {
	cache := &fakeCache{titles: map[string]string{"event/page_view": "page_view"}}
	dispatcher := &fakeDispatcher{}
	authErr := eventerr.New(eventerr.UnauthorizedStream, "not allowed")
	gate := testGate(cache, allowAllAuthorizer{err: authErr}, dispatcher, nil)

	events := []map[string]interface{}{{"$schema": "event/page_view"}}
	result := gate.Process(context.Background(), events)

	require.Len(t, result.Invalid, 1)
	assert.True(t, eventerr.Is(result.Invalid[0].Err, eventerr.UnauthorizedStream))
}

func TestProcessDispatchFailureIsError(t *testing.T) {
	cache := &fakeCache{titles: map[string]string{"event/page_view": "page_view"}}
	dispatcher := &fakeDispatcher{err: eventerr.New(eventerr.ProduceFailure, "broker down")}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, nil)

	events := []map[string]interface{}{{"$schema": "event/page_view"}}
	result := gate.Process(context.Background(), events)

	require.Len(t, result.Error, 1)
	assert.True(t, eventerr.Is(result.Error[0].Err, eventerr.ProduceFailure))
}

func TestProcessPreservesArrivalOrderWithinBuckets(t *testing.T) {
	cache := &fakeCache{titles: map[string]string{"event/a": "a", "event/b": "b"}}
	dispatcher := &fakeDispatcher{}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, nil)

	events := []map[string]interface{}{
		{"$schema": "event/a", "seq": 1.0},
		{"$schema": "event/b", "seq": 2.0},
	}
	result := gate.Process(context.Background(), events)

	require.Len(t, result.Success, 2)
	assert.Equal(t, 1.0, result.Success[0].Event["seq"])
	assert.Equal(t, 2.0, result.Success[1].Event["seq"])
}

func TestProcessSpawnsErrorLoopOnFailureWhenMapperConfigured(t *testing.T) {
	cache := &fakeCache{}
	dispatcher := &fakeDispatcher{}
	mapper := &recordingMapper{}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, mapper)

	gate.Process(context.Background(), []map[string]interface{}{{"name": "no-schema"}})

	require.Eventually(t, func() bool { return mapper.calls == 1 }, time.Second, 10*time.Millisecond)
}

func TestProcessDoesNotSpawnErrorLoopWhenAllSucceed(t *testing.T) {
	cache := &fakeCache{titles: map[string]string{"event/page_view": "page_view"}}
	dispatcher := &fakeDispatcher{}
	mapper := &recordingMapper{}
	gate := testGate(cache, allowAllAuthorizer{}, dispatcher, mapper)

	gate.Process(context.Background(), []map[string]interface{}{{"$schema": "event/page_view"}})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, mapper.calls)
}

func TestSanitizeStreamIsIdempotentAndMatchesInvariant(t *testing.T) {
	cases := []string{
		"event/page_view",
		"",
		"---",
		"___",
		"Already.Valid-Name_1",
		"https://schemas.example.org/event/x.yaml",
	}
	for _, ref := range cases {
		once := sanitizeStream(ref)
		twice := sanitizeStream(once)
		assert.Equalf(t, once, twice, "ref=%q", ref)
		assert.Truef(t, isAlnum(rune(once[0])), "ref=%q produced %q with non-alnum first rune", ref, once)
		for _, r := range once {
			assert.Truef(t, isStreamChar(r), "ref=%q produced %q with disallowed rune %q", ref, once, r)
		}
	}
}

func TestClassifySchemaErrorDefaultsToInternalForNonSchemaError(t *testing.T) {
	plain := eventerr.New(eventerr.InternalError, "boom")
	classified := classifySchemaError(plain)
	assert.Equal(t, eventerr.InternalError, eventerr.KindOf(classified))
}
