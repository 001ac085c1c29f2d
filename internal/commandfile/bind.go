package commandfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MrWong99/voicetrie/internal/dispatch"
	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/internal/trie"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
)

// Bindings holds what the built-in actions act on.
type Bindings struct {
	// Modes receives set_mode, add_tags and remove_tags. Required when any
	// command uses one of those actions.
	Modes *dispatch.ModeTags

	// Logger receives log actions. Default: [slog.Default].
	Logger *slog.Logger
}

// Descriptors converts the definitions of cf into command descriptors whose
// activators perform the configured actions.
func Descriptors(cf *File, b Bindings) ([]command.Descriptor, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]command.Descriptor, 0, len(cf.Commands))
	var errs []error
	for _, def := range cf.Commands {
		act, err := activator(def, b.Modes, logger)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, command.Descriptor{
			ID:           def.ID,
			Phrases:      slices.Clone(def.Phrases),
			Requirements: def.requirements(),
			Captured:     def.captured(),
			Activator:    act,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func activator(def Definition, modes *dispatch.ModeTags, logger *slog.Logger) (command.Activator, error) {
	a := def.Action
	if a.Type != "" && a.Type != ActionLog && modes == nil {
		return nil, fmt.Errorf("commandfile: command %q: action %s needs mode tags", def.ID, a.Type)
	}
	switch a.Type {
	case "", ActionLog:
		msg := a.Message
		if msg == "" {
			msg = def.ID
		}
		return func(ctx context.Context, p command.Parsed) error {
			params := make(map[string]string, len(p.Parameters))
			for name, tk := range p.Parameters {
				params[name] = tk.String()
			}
			observe.CommandLogger(ctx, logger, p.CommandID, "").Info("commandfile: "+msg, "parameters", params)
			return nil
		}, nil
	case ActionSetMode:
		mode := tag.Tag(a.Mode)
		return func(context.Context, command.Parsed) error {
			prev := modes.SetMode(mode)
			logger.Info("commandfile: mode changed", "command_id", def.ID, "from", prev, "to", mode)
			return nil
		}, nil
	case ActionAddTags:
		tags := tag.Strings(a.Tags)
		return func(context.Context, command.Parsed) error {
			modes.Add(tags...)
			return nil
		}, nil
	case ActionRemoveTags:
		tags := tag.Strings(a.Tags)
		return func(context.Context, command.Parsed) error {
			modes.Remove(tags...)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("commandfile: command %q: unknown action type %q", def.ID, a.Type)
}

// Registrar accepts command sets per source. [*registry.Commands]
// implements it.
type Registrar interface {
	Register(ctx context.Context, source string, descs []command.Descriptor) (trie.Report, error)
	Unregister(ctx context.Context, source string) (trie.Report, error)
}

// Sync registers every file in paths under its path as source and
// unregisters the paths in previous that are no longer listed. A file that
// fails to load keeps its previous registration. Failures are returned
// joined; the remaining files are still processed.
func Sync(ctx context.Context, reg Registrar, paths, previous []string, b Bindings) error {
	var errs []error
	for _, path := range paths {
		cf, err := Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descs, err := Descriptors(cf, b)
		if err != nil {
			errs = append(errs, fmt.Errorf("commandfile: bind %q: %w", path, err))
			continue
		}
		if _, err := reg.Register(ctx, path, descs); err != nil {
			errs = append(errs, err)
		}
	}
	for _, path := range previous {
		if slices.Contains(paths, path) {
			continue
		}
		if _, err := reg.Unregister(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
