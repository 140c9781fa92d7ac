package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"clubsite/internal/blobstore"
	"clubsite/internal/config"
	"clubsite/internal/identity"
	"clubsite/internal/lock"
	"clubsite/internal/server"
	"clubsite/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the clubsite HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			return runServer(cmd.Context(), cfg, slog.Default().With("component", "server"))
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	addr, err := server.ListenAddr(cfg.APIURL)
	if err != nil {
		return err
	}

	locker, closeLocker, err := openLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	logger.Info("opening store", "backend", cfg.Storage.Backend)
	st, err := store.OpenBackend(ctx, store.Options{
		Backend:      cfg.Storage.Backend,
		DocumentPath: cfg.Storage.DocumentPath,
		SQLitePath:   cfg.Storage.SQLitePath,
		PostgresDSN:  cfg.Storage.PostgresDSN,
		Locker:       locker,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	directory, err := openDirectory(cfg)
	if err != nil {
		return err
	}

	sessions, err := openSessionVerifier(cfg)
	if err != nil {
		return err
	}
	if sessions == nil {
		logger.Warn("no session secret or public key configured; sign-in is disabled")
	}

	var blobs blobstore.Store
	if cfg.Attachments.Persist {
		local, err := blobstore.NewLocal(cfg.Attachments.BlobDir, cfg.Attachments.MaxUploadBytes)
		if err != nil {
			return err
		}
		blobs = local
	}

	srv := server.New(addr, server.Options{
		Store:              st,
		Directory:          directory,
		IdentityBackend:    cfg.Identity.Backend,
		Blobs:              blobs,
		Sessions:           sessions,
		SessionCookie:      cfg.Session.CookieName,
		TrustUserHeader:    cfg.Session.TrustUserHeader,
		SignInURL:          cfg.Identity.SignInURL,
		MaxUploadBytes:     cfg.Attachments.MaxUploadBytes,
		AllowedMediaTypes:  cfg.Attachments.AllowedMediaTypes,
		RateLimitPerMinute: cfg.RateLimit.PerMinute,
		RateLimitBurst:     cfg.RateLimit.Burst,
		Logger:             logger,
	})
	return srv.ListenAndServe(ctx)
}

// openLocker returns the in-process lock, chained with a Redis lock when a
// redis address is configured so several servers can share one document.
func openLocker(cfg *config.Config) (lock.Locker, func(), error) {
	local := lock.NewLocal()
	addr := strings.TrimSpace(cfg.Lock.RedisAddr)
	if addr == "" {
		return local, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	remote, err := lock.NewRedis(client, lock.WithTTL(cfg.LockTTL()), lock.WithKeyPrefix(cfg.Lock.KeyPrefix))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return lock.Chain{local, remote}, func() { _ = client.Close() }, nil
}

func openDirectory(cfg *config.Config) (identity.Directory, error) {
	switch cfg.Identity.Backend {
	case "clerk":
		if strings.TrimSpace(cfg.Identity.SecretKey) == "" {
			return nil, fmt.Errorf("identity.secret_key is required for the clerk backend")
		}
		return identity.NewClerkClient(cfg.Identity.BaseURL, cfg.Identity.SecretKey), nil
	case "static":
		return identity.OpenStatic(cfg.Identity.StaticFile)
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.Identity.Backend)
	}
}

// openSessionVerifier returns nil when neither a shared secret nor a public
// key is configured.
func openSessionVerifier(cfg *config.Config) (*identity.SessionVerifier, error) {
	var opts []identity.SessionOption
	if issuer := strings.TrimSpace(cfg.Session.Issuer); issuer != "" {
		opts = append(opts, identity.WithIssuer(issuer))
	}
	switch {
	case strings.TrimSpace(cfg.Session.PublicKeyFile) != "":
		return identity.NewRSAVerifierFromFile(cfg.Session.PublicKeyFile, opts...)
	case cfg.Session.Secret != "":
		return identity.NewHMACVerifier(cfg.Session.Secret, opts...)
	}
	return nil, nil
}
