// Package server assembles the HTTP server: stores, chat registry,
// identity bridge, completion provider, and the v1 API routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/usecounsel/counsel/internal/idp"
	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/server/ai"
	"github.com/usecounsel/counsel/server/chat"
	"github.com/usecounsel/counsel/server/identity"
	apiv1 "github.com/usecounsel/counsel/server/router/api/v1"
	"github.com/usecounsel/counsel/store"
	"github.com/usecounsel/counsel/store/localstore"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	provider   *idp.JWTProvider
	bridge     *identity.Bridge
	registry   *chat.Registry
}

func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	e := echo.New()
	e.Debug = true
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	e.Use(echomw.TimeoutWithConfig(echomw.TimeoutConfig{
		// Sends wait on a completion round trip with retries.
		Timeout: 2 * time.Minute,
	}))

	local := localstore.New(p.Data)
	localSvc := chat.NewLocalService(local)
	remoteSvc := chat.NewRemoteService(st)

	var completer ai.Completer
	if provider := ai.NewProviderFromProfile(p); provider != nil {
		completer = provider
	} else {
		slog.Warn("no completion backend configured, replies will be the fallback text")
	}

	migrator := chat.NewMigrator(local, remoteSvc)
	registry := chat.NewRegistry(localSvc, remoteSvc, completer,
		chat.WithMigrator(migrator, p.MigrateOnSignIn))

	provider := idp.NewJWTProvider(idp.DefaultTokenConfig(p.Secret))
	bridge := identity.NewBridge(st)

	var exchanger *idp.OAuthExchanger
	if p.IsIDPEnabled() {
		exchanger = idp.NewOAuthExchanger(idp.OAuthConfig{
			ClientID:     p.IDPClientID,
			ClientSecret: p.IDPClientSecret,
			AuthURL:      p.IDPAuthURL,
			TokenURL:     p.IDPTokenURL,
			UserInfoURL:  p.IDPUserInfoURL,
			RedirectURL:  p.IDPRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
		})
	}

	s := &Server{
		Profile: p,
		Store:   st,

		echoServer: e,
		provider:   provider,
		bridge:     bridge,
		registry:   registry,
	}

	apiService := apiv1.NewAPIV1Service(p, st, provider, bridge, registry, migrator, localSvc, remoteSvc, exchanger)
	apiService.Register(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	return s, nil
}

// Start runs the HTTP listener and the identity event loop until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.bridge.Listen(ctx, s.provider)
		return nil
	})
	g.Go(func() error {
		address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
		slog.Info("server listening", slog.String("address", address), slog.String("mode", s.Profile.Mode))
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "failed to start server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.Shutdown(context.Background())
		return nil
	})

	return g.Wait()
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	slog.Info("server shut down")
}
