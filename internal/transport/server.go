package transport

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/coderr"
	"github.com/perchdb/perch/internal/engine"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/plan"
	"github.com/perchdb/perch/internal/query"
	"github.com/perchdb/perch/internal/registry"
	"github.com/perchdb/perch/internal/shard"
)

// Handler is the HTTP surface a database server exposes to
// coordinators: snippet setup, engine teardown, and health.
type Handler struct {
	registry *registry.QueryRegistry
	mux      *http.ServeMux
}

func NewHandler(reg *registry.QueryRegistry) *Handler {
	h := &Handler{registry: reg, mux: http.NewServeMux()}
	h.mux.HandleFunc("/_db/", h.handleDatabase)
	h.mux.HandleFunc("/health", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleDatabase routes /_db/<database>/_internal/query/... by hand;
// the database segment is caller-chosen, so the paths cannot be
// registered as fixed patterns.
func (h *Handler) handleDatabase(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/_db/")
	slash := strings.IndexByte(trimmed, '/')
	if slash <= 0 {
		http.NotFound(w, r)
		return
	}
	database, err := url.PathUnescape(trimmed[:slash])
	if err != nil || database == "" {
		http.NotFound(w, r)
		return
	}
	rest := trimmed[slash:]

	switch {
	case rest == "/_internal/query/setup" && r.Method == http.MethodPost:
		h.handleSetup(w, r, database)
	case strings.HasPrefix(rest, "/_internal/query/engine/") && r.Method == http.MethodDelete:
		h.handleTeardown(w, database, strings.TrimPrefix(rest, "/_internal/query/engine/"))
	default:
		http.NotFound(w, r)
	}
}

// handleSetup instantiates one engine per snippet in the bundle and
// answers with the snippet-key to engine-id mapping the coordinator
// merges. A partial failure rolls back the engines this request
// created; earlier requests are untouched.
func (h *Handler) handleSetup(w http.ResponseWriter, r *http.Request, database string) {
	var bundle shard.DeploymentBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		WriteError(w, ErrBadBundle.WithCausef("err:%v", err))
		return
	}

	var opts query.Options
	if len(bundle.Options) > 0 {
		if err := json.Unmarshal(bundle.Options, &opts); err != nil {
			WriteError(w, ErrBadBundle.WithCausef("options: %v", err))
			return
		}
	}
	var vars query.Variables
	if len(bundle.Variables) > 0 {
		if err := json.Unmarshal(bundle.Variables, &vars); err != nil {
			WriteError(w, ErrBadBundle.WithCausef("variables: %v", err))
			return
		}
	}

	log.Debug("deployment bundle received",
		zap.String("database", database),
		zap.Int("readLocks", len(bundle.LockInfo[plan.LockRead.String()])),
		zap.Int("writeLocks", len(bundle.LockInfo[plan.LockWrite.String()])),
		zap.Int("snippets", len(bundle.Snippets)))

	reply := make(map[string]string, len(bundle.Snippets))
	var created []uint64
	rollback := func() {
		for _, id := range created {
			if err := h.registry.Destroy(database, id, coderr.Internal); err != nil {
				log.Warn("engine rollback failed",
					zap.Uint64("engine", id), zap.Error(err))
			}
		}
	}

	for key, rawChain := range bundle.Snippets {
		nodes, err := plan.DecodeChain(rawChain)
		if err != nil {
			rollback()
			WriteError(w, ErrBadBundle.WithCausef("snippet:%s, err:%v", key, err))
			return
		}
		eng, err := engine.FromChain(query.NextTick(), nodes)
		if err != nil {
			rollback()
			WriteError(w, err)
			return
		}

		q := query.New(database, opts)
		q.SetVariables(vars)
		q.SetEngine(eng)
		if err := h.registry.Insert(eng.ID(), q, registry.DefaultTTL); err != nil {
			rollback()
			WriteError(w, err)
			return
		}
		created = append(created, eng.ID())
		reply[key] = strconv.FormatUint(eng.ID(), 10)
	}

	WriteJSON(w, http.StatusOK, reply)
}

func (h *Handler) handleTeardown(w http.ResponseWriter, database, rawID string) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		WriteError(w, ErrBadEngineID.WithCausef("id:%q", rawID))
		return
	}
	if err := h.registry.Destroy(database, id, coderr.Ok); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WriteJSON renders body as the JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("write response failed", zap.Error(err))
	}
}

// WriteError renders an error under its coded HTTP status; errors
// without a code fall back to 500.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if code, ok := coderr.GetCauseCode(err); ok {
		status = code.ToHTTPCode()
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}
