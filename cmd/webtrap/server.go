package main

import (
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webtrap/config"
	"webtrap/internal/canary"
	"webtrap/internal/engine"
	"webtrap/pkg/models"
)

const maxBodyBytes = 64 << 10

// server is the demo routing layer in front of the engine. A real
// deployment would embed the same calls in its own router.
type server struct {
	eng        *engine.Engine
	cfg        config.WebTrapConfig
	disallowed map[string]struct{}
	canaryDocs map[string]struct{}
}

func newServer(eng *engine.Engine, cfg config.WebTrapConfig) http.Handler {
	s := &server{
		eng:        eng,
		cfg:        cfg,
		disallowed: make(map[string]struct{}, len(cfg.Server.DisallowedPaths)),
		canaryDocs: make(map[string]struct{}, len(cfg.Canary.Documents)),
	}
	for _, p := range cfg.Server.DisallowedPaths {
		s.disallowed[p] = struct{}{}
	}
	for _, p := range cfg.Canary.Documents {
		s.canaryDocs[p] = struct{}{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", s.handleRobots)
	mux.HandleFunc(cfg.Canary.CallbackPath, s.handleCallback)
	if cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/", s.handleAny)
	return mux
}

func (s *server) handleRobots(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, p := range s.cfg.Server.DisallowedPaths {
		b.WriteString("Disallow: " + p + "\n")
	}
	for _, p := range s.cfg.Canary.Documents {
		b.WriteString("Disallow: " + p + "\n")
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, b.String())
}

func (s *server) handleCallback(w http.ResponseWriter, r *http.Request) {
	req := describeRequest(r)

	token := r.URL.Query().Get("t")
	var client *canary.ClientPayload
	if r.Method == http.MethodPost {
		var payload canary.ClientPayload
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err == nil {
			client = &payload
		}
	}

	decision := s.eng.CanaryCallback(r.Context(), req, token, client)
	writeDecision(w, decision)
}

func (s *server) handleAny(w http.ResponseWriter, r *http.Request) {
	req := describeRequest(r)

	if d := s.eng.Screen(r.Context(), req); d != nil {
		writeDecision(w, d)
		return
	}

	if _, hit := s.canaryDocs[r.URL.Path]; hit {
		writeDecision(w, s.eng.Handle(r.Context(), req, models.Trigger{
			Type: models.IncidentHoneytoken, Key: r.URL.Path,
		}))
		return
	}
	if _, hit := s.disallowed[r.URL.Path]; hit {
		writeDecision(w, s.eng.Handle(r.Context(), req, models.Trigger{
			Type: models.IncidentRobotsViolation, Key: r.URL.Path,
		}))
		return
	}
	if trigger, flagged := s.eng.Inspect(req); flagged {
		writeDecision(w, s.eng.Handle(r.Context(), req, trigger))
		return
	}

	// Nothing suspicious: the engine says proceed normally. There is no
	// upstream in the demo binary, so answer with a placeholder.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func writeDecision(w http.ResponseWriter, d *models.Decision) {
	for k, v := range d.Headers {
		w.Header().Set(k, v)
	}
	if d.ContentType != "" {
		w.Header().Set("Content-Type", d.ContentType)
	}
	status := d.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(d.Body)
}

// describeRequest normalizes an HTTP request into the engine's
// descriptor: single-valued query and flat string body fields, capped.
func describeRequest(r *http.Request) *models.RequestDescriptor {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return &models.RequestDescriptor{
		Method:       r.Method,
		Path:         r.URL.Path,
		Headers:      headers,
		Query:        query,
		Body:         bodyFields(r),
		SourceOrigin: host,
	}
}

// bodyFields extracts flat string fields from form or JSON bodies so
// the injection heuristics can see them. Anything unparseable is
// ignored.
func bodyFields(r *http.Request) map[string]string {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil
		}
		out := make(map[string]string, len(r.PostForm))
		for name, values := range r.PostForm {
			if len(values) > 0 {
				out[name] = values[0]
			}
		}
		return out
	case "application/json":
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil
		}
		out := make(map[string]string, len(parsed))
		for name, value := range parsed {
			if str, ok := value.(string); ok {
				out[name] = str
			}
		}
		return out
	default:
		return nil
	}
}
