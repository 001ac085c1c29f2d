package dispatch_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voicetrie/internal/dispatch"
	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
	"github.com/MrWong99/voicetrie/pkg/tokenize"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// recorder is an activator that remembers every parsed command it saw.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) activator(err error) command.Activator {
	return func(_ context.Context, p command.Parsed) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.seen = append(r.seen, p.CommandID)
		return err
	}
}

func newDispatcher(t *testing.T, descs []command.Descriptor, opts ...dispatch.Option) *dispatch.Dispatcher {
	t.Helper()
	m := testMetrics(t)
	logger := slog.New(slog.DiscardHandler)

	f := trie.NewFactory(trie.WithMetrics(m), trie.WithLogger(logger))
	report, err := f.Set(context.Background(), descs)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Set report: %v", err)
	}

	tok := tokenize.New(tokenize.Numbers(), tokenize.SpelledNumbers())
	base := []dispatch.Option{dispatch.WithMetrics(m), dispatch.WithLogger(logger)}
	return dispatch.New(tok, f, append(base, opts...)...)
}

// ignoreParsed skips the raw tokens, which the trie tests cover.
var ignoreParsed = cmpopts.IgnoreFields(dispatch.Match{}, "Parsed")

func TestDispatch_ChainsCommands(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := newDispatcher(t, []command.Descriptor{
		{ID: "lights.on", Phrases: []string{"lights on"}, Activator: rec.activator(nil)},
		{ID: "volume.set", Phrases: []string{"volume #level"}, Activator: rec.activator(nil)},
	})

	got, err := d.Dispatch(context.Background(), "um lights on please volume seven")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := dispatch.Result{
		Text: "um lights on please volume seven",
		Matches: []dispatch.Match{
			{CommandID: "lights.on", Parameters: map[string]string{}},
			{CommandID: "volume.set", Parameters: map[string]string{"level": "7"}},
		},
		Unmatched: []string{"um", "please"},
	}
	if diff := cmp.Diff(want, got, ignoreParsed); diff != "" {
		t.Errorf("Dispatch mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"lights.on", "volume.set"}, rec.seen); diff != "" {
		t.Errorf("activation order mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_StopsWithoutSkip(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t,
		[]command.Descriptor{{ID: "on", Phrases: []string{"lights on"}}},
		dispatch.WithSkipUnmatched(false),
	)

	got, err := d.Dispatch(context.Background(), "lights on hmm lights on")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got.Matches) != 1 {
		t.Errorf("matches = %d, want 1", len(got.Matches))
	}
	if diff := cmp.Diff([]string{"hmm", "lights", "on"}, got.Unmatched); diff != "" {
		t.Errorf("unmatched mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_ActivatorErrorsAreJoined(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	rec := &recorder{}
	d := newDispatcher(t, []command.Descriptor{
		{ID: "bad", Phrases: []string{"explode"}, Activator: rec.activator(boom)},
		{ID: "good", Phrases: []string{"recover"}, Activator: rec.activator(nil)},
	})

	got, err := d.Dispatch(context.Background(), "explode recover")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want it to wrap boom", err)
	}
	if len(got.Matches) != 2 || got.Matches[0].Error != "boom" || got.Matches[1].Error != "" {
		t.Errorf("matches = %+v, want bad with error then good", got.Matches)
	}
	if diff := cmp.Diff([]string{"bad", "good"}, rec.seen); diff != "" {
		t.Errorf("later command did not run (-want +got):\n%s", diff)
	}
}

func TestDispatch_ModeSwitchAffectsLaterCommands(t *testing.T) {
	t.Parallel()

	mode := dispatch.NewModeTags("command")
	dictation := tag.NewRequirement("dictation")
	var typed []string
	d := newDispatcher(t, []command.Descriptor{
		{
			ID:           "start-dictation",
			Phrases:      []string{"start dictation"},
			Requirements: []tag.Requirement{tag.NewRequirement("command")},
			Activator: func(context.Context, command.Parsed) error {
				mode.SetMode("dictation")
				return nil
			},
		},
		{
			ID:           "type",
			Phrases:      []string{"**text"},
			Requirements: []tag.Requirement{dictation},
			Activator: func(_ context.Context, p command.Parsed) error {
				s, _ := p.String("text")
				typed = append(typed, s)
				return nil
			},
		},
	}, dispatch.WithTagSource(mode))

	if _, err := d.Dispatch(context.Background(), "start dictation dear diary"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if mode.Mode() != "dictation" {
		t.Errorf("mode = %q, want dictation", mode.Mode())
	}
	if diff := cmp.Diff([]string{"dear diary"}, typed); diff != "" {
		t.Errorf("typed mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_ExtraTags(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []command.Descriptor{{
		ID:           "close-tab",
		Phrases:      []string{"close tab"},
		Requirements: []tag.Requirement{tag.NewRequirement("browser")},
	}})

	got, _ := d.Dispatch(context.Background(), "close tab")
	if len(got.Matches) != 0 {
		t.Errorf("matched without the browser tag: %+v", got.Matches)
	}
	got, _ = d.Dispatch(context.Background(), "close tab", "browser")
	if len(got.Matches) != 1 {
		t.Errorf("did not match with the browser tag: %+v", got)
	}
}

func TestDispatch_ZeroWidthMatchMakesProgress(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, []command.Descriptor{{ID: "maybe", Phrases: []string{"?[please]"}}})

	got, err := d.Dispatch(context.Background(), "a b c")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got.Matches) != 3 {
		t.Errorf("matches = %d, want one per token", len(got.Matches))
	}
}

func TestDispatch_EmptyText(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	d := newDispatcher(t, nil, dispatch.WithMetrics(m))

	got, err := d.Dispatch(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(got.Matches) != 0 || len(got.Unmatched) != 0 {
		t.Errorf("Dispatch(blank) = %+v, want empty result", got)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var misses int64
	var durations uint64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Sum[int64]:
				if met.Name == "voicetrie.dispatch.misses" {
					for _, dp := range data.DataPoints {
						misses += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				if met.Name == "voicetrie.dispatch.duration" {
					for _, dp := range data.DataPoints {
						durations += dp.Count
					}
				}
			}
		}
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if durations != 1 {
		t.Errorf("dispatch duration observations = %d, want 1", durations)
	}
}

func TestDispatch_NotReady(t *testing.T) {
	t.Parallel()

	f := trie.NewFactory(trie.WithMetrics(testMetrics(t)))
	d := dispatch.New(tokenize.New(), f, dispatch.WithMetrics(testMetrics(t)))
	if _, err := d.Dispatch(context.Background(), "hello"); !errors.Is(err, dispatch.ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestModeTags(t *testing.T) {
	t.Parallel()

	m := dispatch.NewModeTags("command")
	m.Add("browser", "editor")
	m.Remove("editor", "command")

	want := []tag.Tag{"browser", "command"}
	if diff := cmp.Diff(want, m.Tags().Sorted()); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if prev := m.SetMode("dictation"); prev != "command" {
		t.Errorf("SetMode returned %q, want command", prev)
	}
	if !m.Tags().Has("dictation") || m.Tags().Has("command") {
		t.Errorf("Tags after SetMode = %v", m.Tags().Sorted())
	}
}
