// Package config provides the configuration schema, loader and file watcher
// for the voicetrie server.
package config

// LogLevel controls log verbosity for the voicetrie server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Built-in recognizer names accepted in tokenizer.recognizers.
const (
	RecognizerNumbers        = "numbers"
	RecognizerSpelledNumbers = "spelled_numbers"
	RecognizerHomophones     = "homophones"
	RecognizerPhonetic       = "phonetic"
)

// Config is the root configuration structure for voicetrie.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Commands  CommandsConfig  `yaml:"commands"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the ingress listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// TokenizerConfig selects and parameterises the recognizer chain that turns
// transcribed text into tokens.
type TokenizerConfig struct {
	// Recognizers lists recognizer names in the order they are offered the
	// remaining text. The first one that accepts wins.
	Recognizers []string `yaml:"recognizers"`

	// PhoneticEncoder selects the algorithm of the phonetic recognizer
	// (double_metaphone, soundex, nysiis, phonex). Default: double_metaphone.
	PhoneticEncoder string `yaml:"phonetic_encoder"`

	// Homophones lists groups of words that sound alike, such as
	// [two, to, too]. Used by the homophones recognizer.
	Homophones [][]string `yaml:"homophones"`
}

// DispatchConfig controls how utterances are matched against commands.
type DispatchConfig struct {
	// SkipUnmatched makes the dispatcher skip words that start no command
	// and keep matching. When false, dispatch stops at the first such word.
	// Default: true.
	SkipUnmatched *bool `yaml:"skip_unmatched"`

	// InitialMode is the activation mode tag active at startup.
	// Default: "command".
	InitialMode string `yaml:"initial_mode"`
}

// CommandsConfig lists where command definitions come from.
type CommandsConfig struct {
	// Files are YAML command definition files. Relative paths are resolved
	// against the directory of the config file.
	Files []string `yaml:"files"`
}

// SkipUnmatchedOrDefault returns the configured skip behaviour, defaulting to
// true.
func (d DispatchConfig) SkipUnmatchedOrDefault() bool {
	if d.SkipUnmatched == nil {
		return true
	}
	return *d.SkipUnmatched
}

// InitialModeOrDefault returns the configured initial mode or "command".
func (d DispatchConfig) InitialModeOrDefault() string {
	if d.InitialMode == "" {
		return "command"
	}
	return d.InitialMode
}
