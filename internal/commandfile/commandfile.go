// Package commandfile loads voice commands declared in YAML files and binds
// them to built-in actions.
//
// Example:
//
//	commands:
//	  - id: dictation.start
//	    phrases: ["start dictation", "begin typing"]
//	    requires: [[command]]
//	    action:
//	      type: set_mode
//	      mode: dictation
//	  - id: browser.open
//	    phrases: ["open [_sites]:site"]
//	    captured:
//	      sites: [mail, calendar, "news feed"]
//	    action:
//	      type: log
//	      message: opening site
package commandfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicetrie/pkg/tag"
)

// ActionType selects what a command does when it matches.
type ActionType string

const (
	// ActionLog logs the match and its parameters. It is the default.
	ActionLog ActionType = "log"

	// ActionSetMode switches the activation mode.
	ActionSetMode ActionType = "set_mode"

	// ActionAddTags activates tags.
	ActionAddTags ActionType = "add_tags"

	// ActionRemoveTags deactivates tags.
	ActionRemoveTags ActionType = "remove_tags"
)

// IsValid reports whether a is a recognised action type.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionLog, ActionSetMode, ActionAddTags, ActionRemoveTags:
		return true
	}
	return false
}

// File is the top-level structure of a command definition file.
type File struct {
	Commands []Definition `yaml:"commands"`
}

// Definition declares one command.
type Definition struct {
	// ID is the unique command identifier.
	ID string `yaml:"id"`

	// Phrases are invocation phrases in the phrase DSL.
	Phrases []string `yaml:"phrases"`

	// Requires gates the command: it is eligible when all tags of any one
	// inner list are active. Empty means always eligible.
	Requires [][]string `yaml:"requires"`

	// Captured holds the named lists referenced by [_name] in phrases.
	Captured map[string]Values `yaml:"captured"`

	// Action is what the command does when it matches.
	Action Action `yaml:"action"`
}

// Action configures the built-in behaviour of a command.
type Action struct {
	Type ActionType `yaml:"type"`

	// Mode is the new activation mode for set_mode.
	Mode string `yaml:"mode"`

	// Tags are the tags for add_tags and remove_tags.
	Tags []string `yaml:"tags"`

	// Message is logged by the log action.
	Message string `yaml:"message"`
}

// Values is a captured value list. In YAML it may be written as a single
// string or as a list of strings.
type Values []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Values{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Values, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: captured values must be strings", item.Line)
			}
			out = append(out, item.Value)
		}
		*v = out
		return nil
	}
	return fmt.Errorf("line %d: captured value must be a string or a list of strings", node.Line)
}

// Load reads and validates the command file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("commandfile: open %q: %w", path, err)
	}
	defer f.Close()

	cf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("commandfile: parse %q: %w", path, err)
	}
	return cf, nil
}

// LoadFromReader decodes a command file from r and validates it.
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("commandfile: decode yaml: %w", err)
	}
	if err := Validate(&cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Validate checks the structure of cf and returns all problems joined.
// Phrase syntax is checked when the commands are compiled into the trie.
func Validate(cf *File) error {
	var errs []error
	seen := make(map[string]int, len(cf.Commands))
	for i, def := range cf.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		if strings.TrimSpace(def.ID) == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[def.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of commands[%d]", prefix, def.ID, prev))
			}
			seen[def.ID] = i
		}
		if len(def.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("%s.phrases must not be empty", prefix))
		}
		for j, group := range def.Requires {
			if len(group) == 0 {
				errs = append(errs, fmt.Errorf("%s.requires[%d] must not be empty", prefix, j))
			}
		}
		for name, vals := range def.Captured {
			if len(vals) == 0 {
				errs = append(errs, fmt.Errorf("%s.captured.%s must not be empty", prefix, name))
			}
		}
		errs = append(errs, validateAction(prefix, def.Action)...)
	}
	return errors.Join(errs...)
}

func validateAction(prefix string, a Action) []error {
	var errs []error
	typ := a.Type
	if typ == "" {
		typ = ActionLog
	}
	if !typ.IsValid() {
		return []error{fmt.Errorf("%s.action.type %q is invalid; valid values: log, set_mode, add_tags, remove_tags", prefix, a.Type)}
	}
	switch typ {
	case ActionSetMode:
		if a.Mode == "" {
			errs = append(errs, fmt.Errorf("%s.action.mode is required for set_mode", prefix))
		}
	case ActionAddTags, ActionRemoveTags:
		if len(a.Tags) == 0 {
			errs = append(errs, fmt.Errorf("%s.action.tags is required for %s", prefix, typ))
		}
	}
	return errs
}

// requirements converts the YAML requires lists into tag requirements.
func (d Definition) requirements() []tag.Requirement {
	if len(d.Requires) == 0 {
		return nil
	}
	out := make([]tag.Requirement, 0, len(d.Requires))
	for _, group := range d.Requires {
		out = append(out, tag.NewRequirement(tag.Strings(group)...))
	}
	return out
}

// captured converts the YAML captured lists into descriptor values.
func (d Definition) captured() map[string]any {
	if len(d.Captured) == 0 {
		return nil
	}
	out := make(map[string]any, len(d.Captured))
	for name, vals := range d.Captured {
		out[name] = []string(vals)
	}
	return out
}
