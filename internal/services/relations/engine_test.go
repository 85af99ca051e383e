package relations_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/asakaida/kankei/internal/entities"
	"github.com/asakaida/kankei/internal/infrastructure/metrics"
	"github.com/asakaida/kankei/internal/repositories/memory"
	"github.com/asakaida/kankei/internal/services"
	"github.com/asakaida/kankei/internal/services/relations"
)

func newTracer(t *testing.T) (*tracetest.SpanRecorder, relations.Option) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return recorder, relations.WithTracer(provider.Tracer("test"))
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	schema := services.NewSchemaService(nil)
	store := memory.NewStore(schema)

	_, err := relations.NewEngine(nil, store, store)
	assert.Error(t, err)

	_, err = relations.NewEngine(schema, nil, store)
	assert.Error(t, err)

	engine, err := relations.NewEngine(schema, store, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine.Conditions(), "a condition engine is created when none is given")
}

func TestEngine_TracesResolutions(t *testing.T) {
	recorder, tracing := newTracer(t)
	f := newFixture(t, tracing)
	ctx := context.Background()

	f.insert(t, "Thread", map[string]interface{}{"ID": int64(1)})
	f.insert(t, "Post", map[string]interface{}{"ThreadID": int64(1)})
	f.insert(t, "Post", map[string]interface{}{"ThreadID": int64(1)})
	thread := f.load(t, "Thread", int64(1))

	_, err := f.engine.GetMany(ctx, thread, "Posts")
	require.NoError(t, err)
	_, err = f.engine.GetMany(ctx, thread, "Posts")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1, "cache hits are not traced")
	assert.Equal(t, "relations.Resolve", spans[0].Name())

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "Thread", attrs["kankei.class"].AsString())
	assert.Equal(t, "Posts", attrs["kankei.relationship"].AsString())
	assert.Equal(t, entities.OneToMany.String(), attrs["kankei.kind"].AsString())
	assert.Equal(t, int64(2), attrs["kankei.related_count"].AsInt64())
}

func TestEngine_TracesFailures(t *testing.T) {
	recorder, tracing := newTracer(t)
	f := newFixture(t)

	// Without a revision repository History cannot be resolved
	engine, err := relations.NewEngine(f.schema, f.repo, nil, tracing)
	require.NoError(t, err)

	thread := f.insert(t, "Thread", nil)
	_, err = engine.Get(context.Background(), thread, "Revisions")
	assert.ErrorIs(t, err, entities.ErrUnsupportedOperation)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.NotEmpty(t, spans[0].Events(), "the error is recorded on the span")
}

func TestEngine_TracesSaves(t *testing.T) {
	recorder, tracing := newTracer(t)
	f := newFixture(t, tracing)

	require.NoError(t, f.engine.Save(context.Background(), f.newRecord(t, "Post", nil)))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "relations.Save", spans[0].Name())
	assert.Equal(t, "Post", spanAttributes(spans[0])["kankei.class"].AsString())
}

func TestEngine_RecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector()
	f := newFixture(t, relations.WithMetrics(collector))
	collector.SetConditionCache(f.engine.Conditions())
	ctx := context.Background()

	f.insert(t, "Thread", map[string]interface{}{"ID": int64(1)})
	f.insert(t, "Post", map[string]interface{}{"ThreadID": int64(1), "Title": "a", "Score": 9})
	thread := f.load(t, "Thread", int64(1))

	for i := 0; i < 3; i++ {
		_, err := f.engine.GetMany(ctx, thread, "TopPosts")
		require.NoError(t, err)
	}
	_, err := f.engine.Get(ctx, thread, "Missing")
	require.Error(t, err)

	post := f.newRecord(t, "Post", nil)
	require.NoError(t, f.engine.Set(post, "Thread", f.newRecord(t, "Thread", nil)))
	require.NoError(t, f.engine.Save(ctx, post))

	kind := entities.OneToMany.String()
	snapshot := collector.GetEngineMetrics()
	assert.Equal(t, uint64(1), snapshot.Resolutions[kind])
	assert.Equal(t, uint64(1), snapshot.CacheMisses[kind])
	assert.Equal(t, uint64(2), snapshot.CacheHits[kind])
	assert.Equal(t, uint64(1), snapshot.Errors["get"])
	assert.Equal(t, uint64(1), snapshot.CascadeSaves["pre"])

	conditions := collector.GetCacheMetrics()
	assert.Equal(t, int64(1), conditions.KeysCurrent, "the expression is compiled once")
}

func TestEngine_ConcurrentRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.insert(t, "Thread", map[string]interface{}{"ID": int64(1)})
	for i := 0; i < 5; i++ {
		f.insert(t, "Post", map[string]interface{}{"ThreadID": int64(1), "Score": 5 + i, "Title": "p"})
	}

	// Records are per goroutine; the engine and its caches are shared
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			thread, err := f.store.GetByID(ctx, "Thread", int64(1))
			if err != nil {
				errs <- err
				return
			}
			posts, err := f.engine.GetMany(ctx, thread, "TopPosts")
			if err != nil {
				errs <- err
				return
			}
			if len(posts) != 5 {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
