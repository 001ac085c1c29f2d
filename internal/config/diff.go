package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; a changed
// listen address or TLS setting requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TokenizerChanged is true if the recognizer chain must be rebuilt.
	TokenizerChanged bool

	// SkipUnmatchedChanged is true if dispatch.skip_unmatched changed.
	SkipUnmatchedChanged bool

	// AddedFiles and RemovedFiles list command files by path.
	AddedFiles   []string
	RemovedFiles []string

	// RestartRequired is true if a changed field is only read at startup.
	RestartRequired bool
}

// CommandFilesChanged reports whether the set of command files changed.
func (d ConfigDiff) CommandFilesChanged() bool {
	return len(d.AddedFiles) > 0 || len(d.RemovedFiles) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}

	// Tokenizer
	if !slices.Equal(old.Tokenizer.Recognizers, new.Tokenizer.Recognizers) ||
		old.Tokenizer.PhoneticEncoder != new.Tokenizer.PhoneticEncoder ||
		!slices.EqualFunc(old.Tokenizer.Homophones, new.Tokenizer.Homophones, slices.Equal[[]string]) {
		d.TokenizerChanged = true
	}

	// Dispatch
	if old.Dispatch.SkipUnmatchedOrDefault() != new.Dispatch.SkipUnmatchedOrDefault() {
		d.SkipUnmatchedChanged = true
	}
	if old.Dispatch.InitialModeOrDefault() != new.Dispatch.InitialModeOrDefault() {
		d.RestartRequired = true
	}

	// Command files
	for _, f := range new.Commands.Files {
		if !slices.Contains(old.Commands.Files, f) {
			d.AddedFiles = append(d.AddedFiles, f)
		}
	}
	for _, f := range old.Commands.Files {
		if !slices.Contains(new.Commands.Files, f) {
			d.RemovedFiles = append(d.RemovedFiles, f)
		}
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
