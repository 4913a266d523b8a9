package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	commonauth "portal_server/server/common/auth"
	commonlog "portal_server/server/common/log"
	"portal_server/server/notifier"
	"portal_server/server/portal/api"
	"portal_server/server/portal/service"
	"portal_server/server/translate"
)

type Server struct {
	HTTPServer *http.Server

	infra      *infra
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in, err := openInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	translator := translate.NewService(translate.Config{
		PrimaryURL:   cfg.TranslatePrimaryURL,
		SecondaryURL: cfg.TranslateSecondaryURL,
		Timeout:      cfg.TranslateTimeout,
	})
	if kv := in.kv("translate:"); kv != nil {
		translator.WithCache(kv)
	}

	dispatcher := notifier.NewDispatcher(in.queue)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes).
		WithPasscodeHash(commonauth.RoleClient, cfg.ClientPasscodeHash).
		WithPasscodeHash(commonauth.RoleDeveloper, cfg.DeveloperPasscodeHash)

	deps := api.Deps{
		Auth:       authSvc,
		Projects:   service.NewProjectService(in.store, in.feed, in.objects),
		Threads:    service.NewThreadService(in.store, in.feed, dispatcher, translator, service.ThreadConfig{DeveloperLanguage: cfg.DeveloperLanguage}),
		Files:      service.NewFileService(in.store, in.feed, in.objects),
		Migrations: service.NewMigrationService(in.store, in.feed),
		Outbox:     notifier.NewOutbox(in.store, dispatcher),
		Translator: translator,
		Feed:       in.feed,
	}
	if kv := in.kv("idempotency:"); kv != nil {
		deps.Idempotency = kv
	}

	h := api.NewHandler(deps)
	r := gin.Default()
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s := &Server{HTTPServer: httpServer, infra: in}
	if cfg.RunNotifier {
		s.startWorker(in.newWorker(cfg))
	} else if !cfg.UseMQ {
		commonlog.Warnf("event=notifier action=configure status=degraded detail=pending_notifications_wait_for_notifier_sweep")
	}
	return s, nil
}

func (s *Server) startWorker(worker *notifier.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorker = cancel
	s.workerDone = make(chan struct{})
	go func() {
		defer close(s.workerDone)
		if err := worker.Run(ctx, s.infra.queue); err != nil {
			commonlog.Errorf("event=notifier action=run status=failed error=%v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	if s.stopWorker != nil {
		s.stopWorker()
		select {
		case <-s.workerDone:
		case <-ctx.Done():
		}
	}
	s.infra.close()
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
