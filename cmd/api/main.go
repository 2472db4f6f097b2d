package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"checkoutflow/internal/challenge"
	"checkoutflow/internal/config"
	"checkoutflow/internal/gateway/checkout"
	httpx "checkoutflow/internal/http"
	"checkoutflow/internal/services/session"
)

func main() {
	cfg := config.Load()

	gw := checkout.New(checkout.Config{
		TokenBaseURL:   cfg.Gateway.TokenBaseURL,
		PaymentBaseURL: cfg.Gateway.PaymentBaseURL,
		PublicKey:      cfg.Gateway.PublicKey,
		SecretKey:      cfg.Gateway.SecretKey,
		Currency:       cfg.Gateway.Currency,
		Timeout:        cfg.Gateway.Timeout,
	})

	sessions := session.NewManager(gw, session.RedirectTargets{
		SuccessURL: cfg.Challenge.SuccessURL,
		FailureURL: cfg.Challenge.FailureURL,
	})

	r := httpx.NewRouter(httpx.RouterDependencies{
		Config:   cfg,
		Sessions: sessions,
		Matcher: challenge.Matcher{
			SuccessURL: cfg.Challenge.SuccessURL,
			FailureURL: cfg.Challenge.FailureURL,
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("checkout API listening on :%s", cfg.App.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info().Msg("server stopped")
}
