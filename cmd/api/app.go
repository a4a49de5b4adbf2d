package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sealedcourt/account"
	"sealedcourt/auth"
	"sealedcourt/ciphertext"
	"sealedcourt/config"
	"sealedcourt/court"
	"sealedcourt/db"
	"sealedcourt/journal"
	"sealedcourt/metrics"
	"sealedcourt/oracle"
	"sealedcourt/payout"
)

// app is a fully wired court process.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	court   *court.Court
	server  *http.Server
	relay   *journal.Relay
	monitor *court.Monitor
	local   *oracle.Local
	closers []func()
}

func paramsFrom(cfg config.CourtConfig) court.Params {
	return court.Params{
		Owner:                 account.Parse(cfg.Owner),
		VotingWindow:          cfg.VotingWindow,
		VotingTimeout:         cfg.VotingTimeout,
		DecryptionTimeout:     cfg.DecryptionTimeout,
		ArbitratorCount:       cfg.ArbitratorCount,
		MinEscrow:             cfg.MinEscrow,
		ObfuscationMultiplier: cfg.ObfuscationMultiplier,
		WinnerReward:          cfg.WinnerReward,
		LoserPenalty:          cfg.LoserPenalty,
		ArbitratorReward:      cfg.ArbitratorReward,
		BaselineReputation:    cfg.BaselineReputation,
		TransferTimeout:       cfg.TransferTimeout,
		PayoutRetryDelay:      cfg.PayoutRetryDelay,
	}
}

func buildApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var (
		stores  court.Stores
		outbox  journal.Store
		backend = "memory"
	)
	if cfg.Database.DSN != "" {
		pool, err := db.NewPool(ctx, cfg.Database.DSN, db.PoolOptions{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return nil, err
			}
		}
		stores, outbox = court.NewPostgresStores(pool)
		backend = "postgres"
	} else {
		stores, outbox = court.NewMemoryStores()
	}

	sealed, err := ciphertext.NewSealedRandom()
	if err != nil {
		return nil, err
	}

	priv, pub, err := oracle.ParseKeys(cfg.Oracle.PrivateKey, cfg.Oracle.PublicKey)
	if err != nil {
		return nil, err
	}
	var requester oracle.Oracle
	if cfg.Oracle.Local {
		if priv == nil {
			pub, priv, err = ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return nil, fmt.Errorf("generate oracle key: %w", err)
			}
			log.Warn().Msg("no oracle key configured, using an ephemeral one")
		}
		a.local = oracle.NewLocal(sealed, oracle.NewProofSigner(priv, cfg.Oracle.Issuer), log)
		requester = a.local
	} else {
		kr, err := oracle.NewKafkaRequester(cfg.Kafka.Brokers, cfg.Oracle.RequestTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kr.Close)
		requester = kr
	}

	var publisher journal.Publisher = journal.LogPublisher{Logger: log}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := journal.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		if err != nil {
			return nil, err
		}
		if err := kp.Ping(ctx); err != nil {
			kp.Close()
			return nil, fmt.Errorf("kafka ping: %w", err)
		}
		a.closers = append(a.closers, kp.Close)
		publisher = kp
	}

	a.court, err = court.New(paramsFrom(cfg.Court), stores, court.Deps{
		Ciphers:   sealed,
		Oracle:    requester,
		Verifier:  oracle.NewProofVerifier(pub, cfg.Oracle.Issuer),
		Transfers: payout.NewVault(),
		Metrics:   m,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	a.relay = journal.NewRelay(journal.RelayConfig{
		Store:       outbox,
		Publisher:   publisher,
		Runner:      stores.Runner,
		Interval:    cfg.Kafka.RelayInterval,
		BatchSize:   cfg.Kafka.BatchSize,
		MaxAttempts: cfg.Kafka.MaxAttempts,
		Metrics:     m,
		Logger:      log,
	})
	a.monitor = court.NewMonitor(a.court, cfg.Court.MonitorInterval, log)

	srv := NewServer(a.court, sealed, auth.NewService(cfg.Server.JWTSecret, account.Parse(cfg.Court.Owner), 0), registry, log)
	a.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Info().
		Str("backend", backend).
		Bool("local_oracle", cfg.Oracle.Local).
		Int("kafka_brokers", len(cfg.Kafka.Brokers)).
		Msg("court wired")
	return a, nil
}

// run serves until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.relay.Run(ctx) })
	g.Go(func() error { return a.monitor.Run(ctx) })
	if a.local != nil {
		g.Go(func() error {
			return a.local.Run(ctx, func(ctx context.Context, id oracle.RequestID, cleartexts, proof []byte) error {
				_, err := a.court.OnDecryptionCallback(ctx, id, cleartexts, proof)
				return err
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("http shutdown")
		}
		return a.court.Close()
	})
	return g.Wait()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
