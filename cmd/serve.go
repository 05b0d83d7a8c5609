package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

var servePort int

// actionService is the slice of the engagement engine the server needs.
type actionService interface {
	ListPending(ctx context.Context, limit int) ([]model.PendingAction, error)
	Approve(ctx context.Context, id string) (bool, error)
	Reject(ctx context.Context, id string) (bool, error)
	BatchApprove(ctx context.Context, ids []string) []model.BatchOutcome
}

// runService triggers pipeline runs.
type runService interface {
	Run(ctx context.Context, scope model.Scope) ([]model.RunResult, error)
}

// adminStore is the CRUD slice of the store the admin endpoints need.
type adminStore interface {
	CreateTopic(ctx context.Context, t model.Topic) (*model.Topic, error)
	ListTopics(ctx context.Context, activeOnly bool) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, t model.Topic) error
	DeleteTopic(ctx context.Context, id int64) error

	CreateSource(ctx context.Context, s model.Source) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, s model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	CreateAccount(ctx context.Context, a model.Account) (*model.Account, error)
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	UpdateAccount(ctx context.Context, a model.Account) error
	ResetPostCount(ctx context.Context, userID string) error
	DeleteAccount(ctx context.Context, id int64) error
}

// envelope is the uniform response body for every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, status int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: status < 400, Message: msg, Data: data})
}

func respondErr(w http.ResponseWriter, status int, msg string) {
	respond(w, status, msg, nil)
}

// buildRouter wires the admin API. Runs and batch approvals are triggered
// asynchronously and scoped to the server's lifetime context, not the
// request's.
func buildRouter(ctx context.Context, st adminStore, actions actionService, runner runService) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, "ok", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/actions", func(w http.ResponseWriter, req *http.Request) {
			limit := 100
			if v := req.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					respondErr(w, http.StatusBadRequest, "invalid limit")
					return
				}
				limit = n
			}
			pending, err := actions.ListPending(req.Context(), limit)
			if err != nil {
				zap.L().Error("list pending actions failed", zap.Error(err))
				respondErr(w, http.StatusInternalServerError, "list pending actions failed")
				return
			}
			respond(w, http.StatusOK, "pending actions", pending)
		})

		r.Post("/actions/{id}/approve", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			approved, err := actions.Approve(req.Context(), id)
			if err != nil {
				zap.L().Error("approve failed", zap.String("action", id), zap.Error(err))
				respondErr(w, http.StatusInternalServerError, "approve failed")
				return
			}
			if !approved {
				respondErr(w, http.StatusConflict, "action missing or already resolved")
				return
			}
			respond(w, http.StatusOK, "approved", map[string]string{"action_id": id})
		})

		r.Post("/actions/{id}/reject", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			rejected, err := actions.Reject(req.Context(), id)
			if err != nil {
				zap.L().Error("reject failed", zap.String("action", id), zap.Error(err))
				respondErr(w, http.StatusInternalServerError, "reject failed")
				return
			}
			if !rejected {
				respondErr(w, http.StatusConflict, "action missing or already resolved")
				return
			}
			respond(w, http.StatusOK, "rejected", map[string]string{"action_id": id})
		})

		// Batch approvals pause between actions, so the work runs in the
		// background and outcomes land in the log.
		r.Post("/actions/batch-approve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				IDs []string `json:"ids"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				respondErr(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if len(body.IDs) == 0 {
				respondErr(w, http.StatusBadRequest, "ids is required")
				return
			}

			go func() {
				if actions == nil {
					return
				}
				outcomes := actions.BatchApprove(ctx, body.IDs)
				approved := 0
				for _, o := range outcomes {
					if o.Approved {
						approved++
					}
				}
				zap.L().Info("batch approval complete",
					zap.Int("requested", len(body.IDs)),
					zap.Int("approved", approved),
				)
			}()

			respond(w, http.StatusAccepted, "batch approval started", map[string]int{"count": len(body.IDs)})
		})

		r.Post("/run", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Scope string `json:"scope"`
				Name  string `json:"name"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				respondErr(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Scope == "" {
				body.Scope = string(model.ScopeAllTopics)
			}
			scope := model.Scope{Kind: model.ScopeKind(body.Scope), Name: body.Name}

			go func() {
				if runner == nil {
					return
				}
				results, err := runner.Run(ctx, scope)
				if err != nil {
					zap.L().Error("triggered run failed",
						zap.String("scope", body.Scope),
						zap.Error(err),
					)
					return
				}
				published := 0
				for _, res := range results {
					published += res.Published
				}
				zap.L().Info("triggered run complete",
					zap.String("scope", body.Scope),
					zap.Int("runs", len(results)),
					zap.Int("published", published),
				)
			}()

			respond(w, http.StatusAccepted, "run started", map[string]string{"scope": body.Scope})
		})

		mountTopicRoutes(r, st)
		mountSourceRoutes(r, st)
		mountAccountRoutes(r, st)
	})

	return r
}

func mountTopicRoutes(r chi.Router, st adminStore) {
	r.Get("/topics", func(w http.ResponseWriter, req *http.Request) {
		activeOnly := req.URL.Query().Get("active") == "true"
		topics, err := st.ListTopics(req.Context(), activeOnly)
		if err != nil {
			zap.L().Error("list topics failed", zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "list topics failed")
			return
		}
		respond(w, http.StatusOK, "topics", topics)
	})

	r.Post("/topics", func(w http.ResponseWriter, req *http.Request) {
		var t model.Topic
		if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if t.Name == "" {
			respondErr(w, http.StatusBadRequest, "name is required")
			return
		}
		created, err := st.CreateTopic(req.Context(), t)
		if err != nil {
			zap.L().Error("create topic failed", zap.String("topic", t.Name), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "create topic failed")
			return
		}
		respond(w, http.StatusCreated, "topic created", created)
	})

	r.Put("/topics/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid topic id")
			return
		}
		var t model.Topic
		if err := json.NewDecoder(req.Body).Decode(&t); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t.ID = id
		if err := st.UpdateTopic(req.Context(), t); err != nil {
			zap.L().Error("update topic failed", zap.Int64("id", id), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "update topic failed")
			return
		}
		respond(w, http.StatusOK, "topic updated", t)
	})

	r.Delete("/topics/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid topic id")
			return
		}
		if err := st.DeleteTopic(req.Context(), id); err != nil {
			zap.L().Error("delete topic failed", zap.Int64("id", id), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "delete topic failed")
			return
		}
		respond(w, http.StatusOK, "topic deleted", nil)
	})
}

func mountSourceRoutes(r chi.Router, st adminStore) {
	r.Get("/sources", func(w http.ResponseWriter, req *http.Request) {
		sources, err := st.ListSources(req.Context())
		if err != nil {
			zap.L().Error("list sources failed", zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "list sources failed")
			return
		}
		respond(w, http.StatusOK, "sources", sources)
	})

	r.Post("/sources", func(w http.ResponseWriter, req *http.Request) {
		var s model.Source
		if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if s.Name == "" || s.BaseURL == "" {
			respondErr(w, http.StatusBadRequest, "name and base_url are required")
			return
		}
		created, err := st.CreateSource(req.Context(), s)
		if err != nil {
			zap.L().Error("create source failed", zap.String("source", s.Name), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "create source failed")
			return
		}
		respond(w, http.StatusCreated, "source created", created)
	})

	r.Put("/sources/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid source id")
			return
		}
		var s model.Source
		if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.ID = id
		if err := st.UpdateSource(req.Context(), s); err != nil {
			zap.L().Error("update source failed", zap.Int64("id", id), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "update source failed")
			return
		}
		respond(w, http.StatusOK, "source updated", s)
	})

	r.Delete("/sources/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid source id")
			return
		}
		if err := st.DeleteSource(req.Context(), id); err != nil {
			zap.L().Error("delete source failed", zap.Int64("id", id), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "delete source failed")
			return
		}
		respond(w, http.StatusOK, "source deleted", nil)
	})
}

func mountAccountRoutes(r chi.Router, st adminStore) {
	r.Get("/accounts", func(w http.ResponseWriter, req *http.Request) {
		accounts, err := st.ListAccounts(req.Context())
		if err != nil {
			zap.L().Error("list accounts failed", zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "list accounts failed")
			return
		}
		respond(w, http.StatusOK, "accounts", accounts)
	})

	r.Post("/accounts", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			model.Account
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.UserID == "" || body.AccessToken == "" {
			respondErr(w, http.StatusBadRequest, "user_id and access_token are required")
			return
		}
		a := body.Account
		a.AccessToken = body.AccessToken
		created, err := st.CreateAccount(req.Context(), a)
		if err != nil {
			zap.L().Error("create account failed", zap.String("user", a.UserID), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "create account failed")
			return
		}
		respond(w, http.StatusCreated, "account created", created)
	})

	// Partial update: absent fields keep their stored values, an empty
	// token never overwrites one, topic_id 0 clears the binding.
	r.Put("/accounts/{userID}", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "userID")
		var body struct {
			Prompt      *string `json:"prompt"`
			TopicID     *int64  `json:"topic_id"`
			AccessToken *string `json:"access_token"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		acct, err := st.GetAccount(req.Context(), userID)
		if err != nil {
			zap.L().Error("get account failed", zap.String("user", userID), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "get account failed")
			return
		}
		if acct == nil {
			respondErr(w, http.StatusNotFound, "account not found")
			return
		}
		if body.Prompt != nil {
			acct.Prompt = *body.Prompt
		}
		if body.AccessToken != nil && *body.AccessToken != "" {
			acct.AccessToken = *body.AccessToken
		}
		if body.TopicID != nil {
			if *body.TopicID > 0 {
				acct.TopicID = body.TopicID
			} else {
				acct.TopicID = nil
			}
		}
		if err := st.UpdateAccount(req.Context(), *acct); err != nil {
			zap.L().Error("update account failed", zap.String("user", userID), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "update account failed")
			return
		}
		respond(w, http.StatusOK, "account updated", acct)
	})

	r.Post("/accounts/{userID}/reset-count", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "userID")
		if err := st.ResetPostCount(req.Context(), userID); err != nil {
			zap.L().Error("reset post count failed", zap.String("user", userID), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "reset post count failed")
			return
		}
		respond(w, http.StatusOK, "post count reset", map[string]string{"user_id": userID})
	})

	r.Delete("/accounts/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid account id")
			return
		}
		if err := st.DeleteAccount(req.Context(), id); err != nil {
			zap.L().Error("delete account failed", zap.Int64("id", id), zap.Error(err))
			respondErr(w, http.StatusInternalServerError, "delete account failed")
			return
		}
		respond(w, http.StatusOK, "account deleted", nil)
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		handler := buildRouter(ctx, env.Store, env.Engine, env.Orchestrator)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
