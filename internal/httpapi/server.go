// Package httpapi implements the master's HTTP surface: task intake and
// completion, agent/runner registration, error/screenshot reporting, and
// aggregate stats — the chi-routed equivalent of the original Django
// views.py.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pymada-go/pymada/internal/health"
	"github.com/pymada-go/pymada/internal/logging"
	"github.com/pymada-go/pymada/internal/metrics"
	"github.com/pymada-go/pymada/pkg/models"
	"github.com/pymada-go/pymada/pkg/store"
)

// Server wires the master's Store behind chi routes.
type Server struct {
	store   store.Store
	log     *logging.Logger
	metrics *metrics.Registry
	router  chi.Router
	health  *health.Checker

	upgrader websocket.Upgrader
}

// NewServer builds the router. token is the pymada_token_auth value; an
// empty token disables auth, matching EnvTokenAuth's dev-mode bypass.
func NewServer(st store.Store, token string, log *logging.Logger, m *metrics.Registry) *Server {
	if log == nil {
		log = logging.New()
	}
	s := &Server{
		store:   st,
		log:     log,
		metrics: m,
		health:  health.NewChecker(st),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health/live", s.healthLive)
	r.Get("/health/ready", s.healthReady)
	r.Get("/health", s.healthStatus)

	r.Group(func(r chi.Router) {
		r.Use(tokenAuth(token))

		r.Route("/urls", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTasks)
			r.Put("/{id}/", s.completeTask)
		})
		r.Get("/url_tasks_length/", s.taskCount)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.listAgents)
		})
		r.Post("/register_agent/", s.registerAgent)

		r.Route("/runner", func(r chi.Router) {
			r.Get("/", s.listRunners)
			r.Get("/{id}/", s.getRunner)
			r.Post("/{id}/", s.getRunner)
		})
		r.Post("/register_runner/", s.createRunner)

		r.Route("/log_error", func(r chi.Router) {
			r.Get("/", s.listErrorLogs)
			r.Post("/", s.createErrorLog)
		})

		r.Route("/screenshots", func(r chi.Router) {
			r.Get("/", s.listScreenshots)
			r.Post("/", s.createScreenshot)
			r.Get("/{id}/", s.getScreenshotImage)
		})
		r.Get("/task_screenshots/{taskID}/", s.screenshotsForTask)

		r.Get("/stats/", s.getStats)
		r.Get("/stats/stream", s.statsStream)
	})

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	s.router = r
	s.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseUUIDQuery(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// --- tasks -----------------------------------------------------------

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	minID, err := parseUUIDQuery(r, "min_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_id")
		return
	}
	maxID, err := parseUUIDQuery(r, "max_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_id")
		return
	}
	tasks, err := s.store.Tasks().List(r.Context(), minID, maxID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTasks(w http.ResponseWriter, r *http.Request) {
	var in []*models.UrlTask
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.Tasks().CreateMany(r.Context(), in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) taskCount(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		tasks, err := s.store.Tasks().List(r.Context(), nil, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"length": len(tasks)})
		return
	}

	n, err := s.store.Tasks().CountByState(r.Context(), models.TaskState(upper(state)))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"length": n})
}

// completeTask mirrors UrlSingle's PUT: clears the agent's assignment,
// then saves the task as COMPLETE with end_time and no assigned agent.
func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var body struct {
		TaskResult *string `json:"task_result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	task, err := s.store.Tasks().Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if task.AssignedAgentID != nil {
		if err := s.store.Agents().ClearAssignedTask(r.Context(), *task.AssignedAgentID); err != nil {
			s.log.Errorf("HTTPAPI", "clear assigned task: %v", err)
		}
	}

	if err := s.store.Tasks().Complete(r.Context(), id, body.TaskResult, time.Now().Unix()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, _ := s.store.Tasks().Get(r.Context(), id)
	writeJSON(w, http.StatusOK, updated)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}

// --- agents ------------------------------------------------------------

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	minID, _ := parseUUIDQuery(r, "min_id")
	maxID, _ := parseUUIDQuery(r, "max_id")
	agents, err := s.store.Agents().List(r.Context(), minID, maxID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

// registerAgent mirrors RegisterAgent: returns the existing row (200) if
// hostname+agent_url already matches one, otherwise creates it (201).
func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hostname string `json:"hostname"`
		AgentURL string `json:"agent_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	existing, err := s.store.Agents().FindByIdentity(r.Context(), body.Hostname, body.AgentURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	a := &models.Agent{
		Hostname:           body.Hostname,
		AgentURL:           body.AgentURL,
		AgentState:         models.AgentNoRunner,
		LastContactAttempt: time.Now().Unix(),
	}
	if err := s.store.Agents().Create(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// --- runners -------------------------------------------------------------

func (s *Server) listRunners(w http.ResponseWriter, r *http.Request) {
	runners, err := s.store.Runners().List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runners)
}

func (s *Server) createRunner(w http.ResponseWriter, r *http.Request) {
	var in models.Runner
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.Runners().Create(r.Context(), &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &in)
}

// getRunner serves both GET and POST /runner/{id} with identical
// fetch-by-id behavior, matching RunnerSingle.
func (s *Server) getRunner(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	runner, err := s.store.Runners().Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runner == nil {
		writeError(w, http.StatusNotFound, "runner not found")
		return
	}
	writeJSON(w, http.StatusOK, runner)
}

// --- error logs ----------------------------------------------------------

func (s *Server) listErrorLogs(w http.ResponseWriter, r *http.Request) {
	minID, _ := parseUUIDQuery(r, "min_id")
	maxID, _ := parseUUIDQuery(r, "max_id")
	logs, err := s.store.ErrorLogs().List(r.Context(), minID, maxID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) createErrorLog(w http.ResponseWriter, r *http.Request) {
	var in models.ErrorLog
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := s.store.ErrorLogs().Create(r.Context(), &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &in)
}

// --- screenshots -----------------------------------------------------------

func (s *Server) listScreenshots(w http.ResponseWriter, r *http.Request) {
	minID, _ := parseUUIDQuery(r, "min_id")
	maxID, _ := parseUUIDQuery(r, "max_id")
	shots, err := s.store.Screenshots().List(r.Context(), minID, maxID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, shots)
}

func (s *Server) createScreenshot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	taskID, err := uuid.Parse(r.FormValue("task"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image")
		return
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read image")
		return
	}

	sc := &models.Screenshot{
		TaskID:    taskID,
		ImageData: buf,
		FileName:  header.Filename,
	}
	if err := s.store.Screenshots().Create(r.Context(), sc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

// screenshotsForTask 404s when the task has none, matching TaskScreenshots'
// Http404.
func (s *Server) screenshotsForTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	shots, err := s.store.Screenshots().ListByTask(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(shots) == 0 {
		writeError(w, http.StatusNotFound, "no screenshots for task")
		return
	}
	writeJSON(w, http.StatusOK, shots)
}

// getScreenshotImage streams the raw bytes with a MIME type sniffed from
// the stored file name's extension, matching ScreenshotSingle.
func (s *Server) getScreenshotImage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	sc, err := s.store.Screenshots().Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sc == nil {
		writeError(w, http.StatusNotFound, "screenshot not found")
		return
	}
	w.Header().Set("Content-Type", sc.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sc.ImageData)
}

// --- stats ---------------------------------------------------------------

type statsPayload struct {
	URLs               int64 `json:"urls"`
	URLsQueued         int64 `json:"urls_queued"`
	URLsAssigned       int64 `json:"urls_assigned"`
	URLsComplete       int64 `json:"urls_complete"`
	URLsFailedMinOnce  int64 `json:"urls_failed_min_once"`
	ErrorsLogged       int64 `json:"errors_logged"`
	RegisteredAgents   int64 `json:"registered_agents"`
}

func (s *Server) computeStats(r *http.Request) (statsPayload, error) {
	var out statsPayload
	ctx := r.Context()

	all, err := s.store.Tasks().List(ctx, nil, nil)
	if err != nil {
		return out, err
	}
	out.URLs = int64(len(all))

	if out.URLsQueued, err = s.store.Tasks().CountByState(ctx, models.TaskQueued); err != nil {
		return out, err
	}
	if out.URLsAssigned, err = s.store.Tasks().CountByState(ctx, models.TaskAssigned); err != nil {
		return out, err
	}
	if out.URLsComplete, err = s.store.Tasks().CountByState(ctx, models.TaskComplete); err != nil {
		return out, err
	}
	if out.URLsFailedMinOnce, err = s.store.Tasks().CountFailedAtLeastOnce(ctx); err != nil {
		return out, err
	}
	if out.ErrorsLogged, err = s.store.ErrorLogs().Count(ctx); err != nil {
		return out, err
	}
	if out.RegisteredAgents, err = s.store.Agents().Count(ctx); err != nil {
		return out, err
	}
	return out, nil
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.computeStats(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.TasksByState.WithLabelValues(string(models.TaskQueued)).Set(float64(stats.URLsQueued))
		s.metrics.TasksByState.WithLabelValues(string(models.TaskAssigned)).Set(float64(stats.URLsAssigned))
		s.metrics.TasksByState.WithLabelValues(string(models.TaskComplete)).Set(float64(stats.URLsComplete))
		if agents, err := s.store.Agents().List(r.Context(), nil, nil); err == nil {
			counts := make(map[models.AgentState]int)
			for _, a := range agents {
				counts[a.AgentState]++
			}
			for _, state := range []models.AgentState{models.AgentIdle, models.AgentRunning, models.AgentAssigned, models.AgentNoRunner, models.AgentLost} {
				s.metrics.AgentsByState.WithLabelValues(string(state)).Set(float64(counts[state]))
			}
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// statsStream upgrades to a websocket and pushes the stats payload
// whenever a client connects and then every 5 seconds, the enrichment
// noted in SPEC_FULL.md — a lower-friction path to the same numbers
// GetStats already serves.
func (s *Server) statsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("HTTPAPI", "websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		stats, err := s.computeStats(r)
		if err != nil {
			return
		}
		if err := conn.WriteJSON(stats); err != nil {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// --- health ---------------------------------------------------------------

// healthLive is a bare liveness probe: if this handler runs at all, the
// process is up.
func (s *Server) healthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// healthReady reports whether the master can serve traffic: the database
// (when the store is backed by one) must be reachable.
func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	if status.Database.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// healthStatus is the full report: database plus registered agents by
// state.
func (s *Server) healthStatus(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
