package tag_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/voicetrie/pkg/tag"
)

func TestSpecificity(t *testing.T) {
	t.Parallel()

	dictation := tag.NewRequirement("dictation")
	dictationEditor := tag.NewRequirement("dictation", "editor")

	tests := []struct {
		name     string
		reqs     []tag.Requirement
		active   tag.Set
		wantSpec int
		wantOK   bool
	}{
		{"no requirements", nil, tag.NewSet("command"), 0, true},
		{"unsatisfied", []tag.Requirement{dictation}, tag.NewSet("command"), 0, false},
		{"satisfied", []tag.Requirement{dictation}, tag.NewSet("dictation", "command"), 1, true},
		{"most specific wins", []tag.Requirement{dictation, dictationEditor}, tag.NewSet("dictation", "editor"), 2, true},
		{"or of ands", []tag.Requirement{dictationEditor, tag.NewRequirement("command")}, tag.NewSet("command"), 1, true},
		{"nil set", []tag.Requirement{dictation}, nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			spec, ok := tag.Specificity(tc.reqs, tc.active)
			if spec != tc.wantSpec || ok != tc.wantOK {
				t.Errorf("Specificity = (%d, %v), want (%d, %v)", spec, ok, tc.wantSpec, tc.wantOK)
			}
		})
	}
}

func TestNewRequirement_Normalises(t *testing.T) {
	t.Parallel()

	got := tag.NewRequirement("b", "a", "", "b")
	want := tag.Requirement{"a", "b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NewRequirement mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "{a&b}" {
		t.Errorf("String() = %q, want %q", got.String(), "{a&b}")
	}
}

func TestUnion_Deduplicates(t *testing.T) {
	t.Parallel()

	reqs := tag.Union(nil, tag.Requirement{"b", "a"})
	reqs = tag.Union(reqs, tag.Requirement{"a", "b"}, tag.Requirement{"c"})
	want := []tag.Requirement{{"a", "b"}, {"c"}}
	if diff := cmp.Diff(want, reqs); diff != "" {
		t.Errorf("Union mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_WithDoesNotMutate(t *testing.T) {
	t.Parallel()

	base := tag.NewSet("command")
	extended := base.With("editor")
	if base.Has("editor") {
		t.Error("With mutated the receiver")
	}
	if diff := cmp.Diff([]tag.Tag{"command", "editor"}, extended.Sorted()); diff != "" {
		t.Errorf("Sorted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]tag.Tag{"a", "b"}, tag.Strings([]string{" a ", "", "b"})); diff != "" {
		t.Errorf("Strings mismatch (-want +got):\n%s", diff)
	}
}
