package trie_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"pgregory.net/rapid"

	"github.com/MrWong99/voicetrie/internal/compile"
	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/token"
)

func TestFactory_GetBeforeSetPanics(t *testing.T) {
	t.Parallel()

	f, _ := newFactory(t)
	if f.Ready() {
		t.Fatal("Ready() = true before Set")
	}
	defer func() {
		if recover() == nil {
			t.Error("Get did not panic before Set")
		}
	}()
	f.Get()
}

func TestFactory_SetIsolatesBadCommands(t *testing.T) {
	t.Parallel()

	f, reader := newFactory(t)
	report, err := f.Set(context.Background(), []command.Descriptor{
		cmd("good", "lights on"),
		cmd("broken", "turn [on|off:state", "turn it up"),
		cmd("good", "duplicate id"),
		{ID: "", Phrases: []string{"no id"}},
		cmd("also-good", "volume #level"),
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !f.Ready() {
		t.Fatal("Ready() = false after Set")
	}

	if report.Commands != 2 {
		t.Errorf("Commands = %d, want 2", report.Commands)
	}
	if report.Phrases != 2 {
		t.Errorf("Phrases = %d, want 2", report.Phrases)
	}
	var ids []string
	for _, fl := range report.Failures {
		ids = append(ids, fl.CommandID)
	}
	if diff := cmp.Diff([]string{"good", "", "broken"}, ids); diff != "" {
		t.Errorf("failure ids mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(report.Failures[0].Err, trie.ErrDuplicateID) {
		t.Errorf("duplicate failure = %v, want ErrDuplicateID", report.Failures[0].Err)
	}
	if !errors.Is(report.Err(), compile.ErrSyntax) {
		t.Errorf("report.Err() = %v, want it to wrap ErrSyntax", report.Err())
	}

	tr := f.Get()
	if _, ok := tr.Command("broken"); ok {
		t.Error("broken command is in the trie")
	}
	// The valid sibling phrase of a broken command is excluded with it.
	if _, _, ok := match(tr, "turn it up"); ok {
		t.Error("phrase of an excluded command still matches")
	}
	if got, _, ok := match(tr, "lights on"); !ok || got.CommandID != "good" {
		t.Errorf("lights on = (%q, %v), want good", got.CommandID, ok)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterTotal(rm, "voicetrie.compile.errors"); got != 1 {
		t.Errorf("compile errors = %d, want 1", got)
	}
}

func TestFactory_EmptySetPublishesEmptyTrie(t *testing.T) {
	t.Parallel()

	f, _ := newFactory(t)
	report, err := f.Set(context.Background(), nil)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if report.Commands != 0 || report.Nodes != 1 {
		t.Errorf("report = %+v, want 0 commands and only the root", report)
	}
	if _, _, ok := match(f.Get(), "anything"); ok {
		t.Error("empty trie matched")
	}
}

func TestFactory_CancelledSetKeepsPreviousTrie(t *testing.T) {
	t.Parallel()

	f, _ := newFactory(t)
	if _, err := f.Set(context.Background(), []command.Descriptor{cmd("old", "old")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	before := f.Get()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Set(ctx, []command.Descriptor{cmd("new", "new")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Set with cancelled ctx: err = %v, want context.Canceled", err)
	}
	if f.Get() != before {
		t.Error("cancelled rebuild replaced the published trie")
	}
}

func TestFactory_ConcurrentReadersDuringRebuild(t *testing.T) {
	t.Parallel()

	f, _ := newFactory(t)
	setA := []command.Descriptor{cmd("a", "alpha")}
	setB := []command.Descriptor{cmd("b", "alpha")}
	if _, err := f.Set(context.Background(), setA); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 200 {
				got, _, ok := match(f.Get(), "alpha")
				if !ok || (got.CommandID != "a" && got.CommandID != "b") {
					t.Errorf("reader saw (%q, %v)", got.CommandID, ok)
					return
				}
			}
		})
	}
	for i := range 20 {
		set := setA
		if i%2 == 0 {
			set = setB
		}
		if _, err := f.Set(context.Background(), set); err != nil {
			t.Errorf("Set: %v", err)
		}
	}
	wg.Wait()
}

var patternWords = []string{
	"lights", "on", "off", "volume", "up", "down", "go", "stop",
	"*x", "#n", "?[now]:now", "**rest", "[red|green]:c", "[#m|*y]:alt",
}

var inputWords = []string{"lights", "on", "off", "volume", "up", "down", "go", "stop", "now", "red", "green", "7", "hello"}

func genDescriptors(t *rapid.T) []command.Descriptor {
	n := rapid.IntRange(1, 12).Draw(t, "commands")
	descs := make([]command.Descriptor, n)
	for i := range descs {
		words := rapid.SliceOfN(rapid.SampledFrom(patternWords), 1, 4).Draw(t, fmt.Sprintf("phrase%d", i))
		phrase := ""
		for j, w := range words {
			if j > 0 {
				phrase += " "
			}
			phrase += w
		}
		descs[i] = cmd(fmt.Sprintf("c%d", i), phrase)
	}
	return descs
}

func genInput(t *rapid.T) []token.Token {
	words := rapid.SliceOfN(rapid.SampledFrom(inputWords), 0, 6).Draw(t, "input")
	text := ""
	for _, w := range words {
		text += w + " "
	}
	return tok.Tokenize(text)
}

type outcome struct {
	Parsed command.Parsed
	Rest   []token.Token
	OK     bool
}

func TestFactory_DeterministicAcrossConcurrency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		descs := genDescriptors(rt)
		input := genInput(rt)

		serial, _ := newFactory(t, trie.WithConcurrency(1))
		parallel, _ := newFactory(t, trie.WithConcurrency(8))
		if _, err := serial.Set(context.Background(), descs); err != nil {
			rt.Fatalf("serial Set: %v", err)
		}
		if _, err := parallel.Set(context.Background(), descs); err != nil {
			rt.Fatalf("parallel Set: %v", err)
		}

		if a, b := serial.Get().String(), parallel.Get().String(); a != b {
			rt.Fatalf("trie shape differs:\n%s\nvs\n%s", a, b)
		}

		var want, got outcome
		want.Parsed, want.Rest, want.OK = serial.Get().TryTraverse(input, nil)
		got.Parsed, got.Rest, got.OK = parallel.Get().TryTraverse(input, nil)
		if diff := cmp.Diff(want, got); diff != "" {
			rt.Fatalf("traversal differs (-serial +parallel):\n%s", diff)
		}
	})
}

func TestFactory_RebuildIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		descs := genDescriptors(rt)
		f, _ := newFactory(t)

		first, err := f.Set(context.Background(), descs)
		if err != nil {
			rt.Fatalf("Set: %v", err)
		}
		shape := f.Get().String()

		second, err := f.Set(context.Background(), descs)
		if err != nil {
			rt.Fatalf("Set: %v", err)
		}
		if got := f.Get().String(); got != shape {
			rt.Fatalf("rebuild changed the trie:\n%s\nvs\n%s", shape, got)
		}
		if first.Nodes != second.Nodes || first.Commands != second.Commands {
			rt.Fatalf("reports differ: %+v vs %+v", first, second)
		}
	})
}

// TestTryTraverse_FailureLeavesInputUntouched checks that a failed traversal
// never consumes tokens and a successful one only ever consumes a prefix.
func TestTryTraverse_FailureLeavesInputUntouched(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		descs := genDescriptors(rt)
		input := genInput(rt)
		tr := build(t, descs...)

		_, rest, ok := tr.TryTraverse(input, nil)
		if !ok {
			if diff := cmp.Diff(input, rest); diff != "" {
				rt.Fatalf("failed traversal changed tokens (-in +rest):\n%s", diff)
			}
			return
		}
		if len(rest) > len(input) {
			rt.Fatalf("rest longer than input: %d > %d", len(rest), len(input))
		}
		if diff := cmp.Diff(input[len(input)-len(rest):], rest); diff != "" {
			rt.Fatalf("rest is not a suffix of input:\n%s", diff)
		}
	})
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
