package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voicetrie/pkg/token"
)

// BuiltinRecognizers lists the recognizer names shipped with voicetrie.
// Used by [Validate] to warn about unrecognised names, which may belong to a
// recognizer registered by a plugin.
var BuiltinRecognizers = []string{
	RecognizerNumbers,
	RecognizerSpelledNumbers,
	RecognizerHomophones,
	RecognizerPhonetic,
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// Relative command file paths are resolved against the directory of path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	resolvePaths(cfg, filepath.Dir(path))
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Tokenizer
	seen := make(map[string]int, len(cfg.Tokenizer.Recognizers))
	for i, name := range cfg.Tokenizer.Recognizers {
		prefix := fmt.Sprintf("tokenizer.recognizers[%d]", i)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of tokenizer.recognizers[%d]", prefix, name, prev))
		}
		seen[name] = i
		if !slices.Contains(BuiltinRecognizers, name) {
			slog.Warn("config: unknown recognizer name, may be a typo or plugin recognizer",
				"name", name,
				"known", BuiltinRecognizers,
			)
		}
	}
	if cfg.Tokenizer.PhoneticEncoder != "" {
		if _, err := token.ParseEncoderKind(cfg.Tokenizer.PhoneticEncoder); err != nil {
			errs = append(errs, fmt.Errorf("tokenizer.phonetic_encoder: %w", err))
		}
	}
	for i, group := range cfg.Tokenizer.Homophones {
		prefix := fmt.Sprintf("tokenizer.homophones[%d]", i)
		if len(group) < 2 {
			errs = append(errs, fmt.Errorf("%s needs at least two words, got %d", prefix, len(group)))
		}
		for j, w := range group {
			if strings.TrimSpace(w) == "" {
				errs = append(errs, fmt.Errorf("%s[%d] is empty", prefix, j))
			}
		}
	}
	if _, ok := seen[RecognizerHomophones]; ok && len(cfg.Tokenizer.Homophones) == 0 {
		slog.Warn("config: homophones recognizer enabled but tokenizer.homophones is empty")
	}

	// Dispatch
	if strings.ContainsFunc(cfg.Dispatch.InitialMode, isSpace) {
		errs = append(errs, fmt.Errorf("dispatch.initial_mode %q must not contain whitespace", cfg.Dispatch.InitialMode))
	}

	// Commands
	files := make(map[string]int, len(cfg.Commands.Files))
	for i, f := range cfg.Commands.Files {
		prefix := fmt.Sprintf("commands.files[%d]", i)
		if strings.TrimSpace(f) == "" {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
			continue
		}
		if prev, ok := files[f]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of commands.files[%d]", prefix, f, prev))
		}
		files[f] = i
	}
	if len(cfg.Commands.Files) == 0 {
		slog.Warn("config: commands.files is empty; only commands registered by plugins will be available")
	}

	return errors.Join(errs...)
}

// resolvePaths makes relative command file paths relative to dir.
func resolvePaths(cfg *Config, dir string) {
	for i, f := range cfg.Commands.Files {
		if !filepath.IsAbs(f) {
			cfg.Commands.Files[i] = filepath.Join(dir, f)
		}
	}
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
