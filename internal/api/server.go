package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/homelab-00/transcription-suite/internal/config"
	"github.com/homelab-00/transcription-suite/internal/database"
	"github.com/homelab-00/transcription-suite/internal/livemode"
	"github.com/homelab-00/transcription-suite/internal/llmproxy"
	"github.com/homelab-00/transcription-suite/internal/metrics"
	"github.com/homelab-00/transcription-suite/internal/modelmanager"
	"github.com/homelab-00/transcription-suite/internal/notebook"
	"github.com/homelab-00/transcription-suite/internal/tokenstore"
	"github.com/homelab-00/transcription-suite/internal/transcribe"
)

// Server wraps the chi router and the underlying http.Server, mirroring the
// teacher's thin Server type.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions collects every collaborator NewServer wires into the router.
type ServerOptions struct {
	Config      *config.Config
	DB          *database.DB
	Tokens      *tokenstore.Store
	Models      *modelmanager.Manager
	Notebook    *notebook.Orchestrator
	LLM         *llmproxy.Client
	Live        *livemode.Controller
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()
	paths := opts.Config.Paths()
	srvCfg := opts.Config.Server

	// Ordered middleware chain per §4.8: origin check must precede
	// authentication so non-TLS, non-loopback origins are refused outright
	// rather than shown an auth prompt.
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(OriginCheck(srvCfg.TLS.Enabled))
	r.Use(RateLimiter(srvCfg.RateLimitRPS, srvCfg.RateLimitBurst))
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(opts.DB, opts.Models, opts.Version, opts.StartTime)
	r.Get("/health", health.ServeHTTP)

	collector := metrics.NewCollector(opts.DB.Conn, opts.Models)
	prometheus.MustRegister(collector)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	auth := NewAuthHandler(opts.Tokens, srvCfg.TLS.Enabled)
	r.Post("/api/auth/login", auth.Login)

	postProcess := transcribe.PostProcessOptions{CapitalizeFirst: true, EnsureEndPeriod: true, CollapseWhitespace: true}
	transcribeH := NewTranscribeHandler(opts.Models, paths.AudioDir, postProcess)
	notebookH := NewNotebookHandler(opts.DB, opts.Notebook, paths.AudioDir, paths.BackupsDir, paths.DatabaseFile,
		database.BackupPolicy{Dir: paths.BackupsDir, MaxAge: time.Duration(opts.Config.Backup.MaxAgeHours) * time.Hour, MaxBackups: opts.Config.Backup.MaxBackups},
		opts.Log)
	searchH := NewSearchHandler(opts.DB)
	llmH := NewLLMHandler(opts.LLM, opts.DB)
	adminH := NewAdminHandler(opts.Models)
	wsH := NewWSHandler(opts.Tokens, opts.Models, true, opts.Log)
	wsLiveH := NewWSLiveHandler(opts.Tokens, opts.Live, true, opts.Log)

	// Authenticated HTTP routes.
	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(int64(srvCfg.MaxUploadMB) << 20))
		// Token auth only applies in TLS mode; in non-TLS/local mode the
		// OriginCheck above already restricts the chain to loopback callers.
		if srvCfg.TLS.Enabled {
			r.Use(Authenticate(opts.Tokens))
		}
		r.Use(ResponseTimeout(srvCfg.WriteTimeout()))

		r.Route("/api/transcribe", func(r chi.Router) {
			r.Post("/audio", transcribeH.Audio)
			r.Post("/quick", transcribeH.Quick)
			r.Post("/cancel", transcribeH.Cancel)
			r.Get("/languages", transcribeH.Languages)
		})

		r.Route("/api/notebook", func(r chi.Router) {
			r.Post("/transcribe/upload", notebookH.Upload)
			r.Get("/recordings", notebookH.List)
			r.Get("/recordings/{id}", notebookH.Detail)
			r.Delete("/recordings/{id}", notebookH.Delete)
			r.Patch("/recordings/{id}/title", notebookH.UpdateTitle)
			r.Patch("/recordings/{id}/summary", notebookH.UpdateSummary)
			r.Get("/recordings/{id}/audio", notebookH.Audio)
			r.Get("/recordings/{id}/transcription", notebookH.Transcription)
			r.Get("/recordings/{id}/export", notebookH.Export)
			r.Get("/calendar", notebookH.Calendar)
			r.Get("/timeslot", notebookH.Timeslot)
			r.Get("/backups", notebookH.Backups)
			r.Post("/backup", notebookH.Backup)
			r.Post("/restore", notebookH.Restore)
		})

		r.Get("/api/search/", searchH.Search)

		r.Route("/api/llm", func(r chi.Router) {
			r.Post("/process", llmH.Process)
			r.Post("/process/stream", llmH.ProcessStream)
			r.Post("/summarize/{recording_id}", llmH.Summarize)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/status", adminH.Status)
			r.Post("/models/load", adminH.LoadModel)
			r.Post("/models/unload", adminH.UnloadModel)
		})
	})

	// WebSocket routes: AuthenticateWS gates the upgrade request itself;
	// the handlers additionally run the post-accept frame handshake §4.8
	// describes, with a loopback bypass for local tooling. Like the HTTP
	// routes above, token auth is only required in TLS mode — non-TLS mode
	// relies on OriginCheck's loopback restriction.
	r.Group(func(r chi.Router) {
		if srvCfg.TLS.Enabled {
			r.Use(AuthenticateWS(opts.Tokens))
		}
		r.Get("/ws", wsH.Serve)
		r.Get("/ws/live", wsLiveH.Serve)
	})

	srv := &http.Server{
		Addr:         srvCfg.Addr(),
		Handler:      r,
		ReadTimeout:  srvCfg.ReadTimeout(),
		WriteTimeout: 0, // individual handlers enforce their own deadlines; SSE/WS need to run long
	}

	return &Server{http: srv, log: opts.Log}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) StartTLS(certFile, keyFile string) error {
	s.log.Info().Str("addr", s.http.Addr).Msg("https server starting")
	err := s.http.ListenAndServeTLS(certFile, keyFile)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
