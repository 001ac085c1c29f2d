// Package ingress feeds transcribed utterances into the dispatcher over HTTP.
//
// Routes:
//
//   - POST /v1/utterances takes {"text": "...", "tags": ["..."]} and returns
//     the dispatch result.
//   - GET /v1/stream upgrades to a WebSocket. Every text message is one
//     utterance, either the same JSON object or plain text, and is answered
//     with one dispatch result.
//   - GET /v1/commands lists the registered commands.
//
// The package holds no matching logic of its own.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/voicetrie/internal/dispatch"
	"github.com/MrWong99/voicetrie/internal/observe"
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/tag"
)

// maxBodyBytes bounds a single utterance request.
const maxBodyBytes = 64 << 10

// Dispatcher runs utterances. [*dispatch.Dispatcher] implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, extra ...tag.Tag) (dispatch.Result, error)
}

// Catalog lists the registered commands. [*registry.Commands] implements it.
type Catalog interface {
	Snapshot() []command.Descriptor
}

// Utterance is the request body of POST /v1/utterances and of a JSON stream
// message.
type Utterance struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// Response wraps a dispatch result with the activator failures, if any.
type Response struct {
	dispatch.Result
	Error string `json:"error,omitempty"`
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	ID           string     `json:"id"`
	Source       string     `json:"source,omitempty"`
	Phrases      []string   `json:"phrases"`
	Requirements [][]string `json:"requires,omitempty"`
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCatalog enables GET /v1/commands.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// Server serves the ingress routes.
type Server struct {
	dispatcher Dispatcher
	catalog    Catalog
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// New creates a Server that hands utterances to d.
func New(d Dispatcher, opts ...Option) *Server {
	s := &Server{dispatcher: d, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds the ingress routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/utterances", s.handleUtterance)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	if s.catalog != nil {
		mux.HandleFunc("GET /v1/commands", s.handleCommands)
	}
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var u Utterance
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if u.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, status := s.run(r.Context(), u)
	writeJSON(w, status, resp)
}

// run dispatches u and maps the outcome to a response and HTTP status.
func (s *Server) run(ctx context.Context, u Utterance) (Response, int) {
	res, err := s.dispatcher.Dispatch(ctx, u.Text, tag.Strings(u.Tags)...)
	observe.RecordUtterance(ctx, len(res.Matches), len(res.Unmatched))
	resp := Response{Result: res}
	switch {
	case errors.Is(err, dispatch.ErrNotReady):
		resp.Error = err.Error()
		return resp, http.StatusServiceUnavailable
	case err != nil:
		// Activator failures; the matches are still reported.
		resp.Error = err.Error()
		observe.Logger(ctx, s.logger).Warn("ingress: utterance had failing commands", "err", err)
	}
	return resp, http.StatusOK
}

func (s *Server) handleCommands(w http.ResponseWriter, _ *http.Request) {
	descs := s.catalog.Snapshot()
	out := make([]CommandInfo, 0, len(descs))
	for _, d := range descs {
		info := CommandInfo{ID: d.ID, Source: d.Source, Phrases: d.Phrases}
		for _, req := range d.Requirements {
			group := make([]string, 0, len(req))
			for _, t := range req {
				group = append(group, string(t))
			}
			info.Requirements = append(info.Requirements, group)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("ingress: encode response", "err", err)
	}
}
