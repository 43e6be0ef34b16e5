package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/nimbusadmin/console-sdk/internal/config"
	"github.com/nimbusadmin/console-sdk/localauth"
	"github.com/nimbusadmin/console-sdk/notify"
	"github.com/nimbusadmin/console-sdk/oidcsession"
	"github.com/nimbusadmin/console-sdk/session"
	"github.com/nimbusadmin/console-sdk/tokenstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("console-notify failed")
	}
	log.Info().Msg("console-notify stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx := context.Background()

	store := tokenstore.NewStore(tokenstore.NewMemory())
	authClient := localauth.New(localauth.Config{
		BaseURL: c.GetAPIBaseURL(),
		Timeout: c.GetRequestTimeout(),
	})

	oidc, err := buildOidcSource(ctx, c)
	if err != nil {
		return fmt.Errorf("oidc setup: %w", err)
	}

	manager, err := session.NewManager(store, authClient, oidc,
		session.WithExpiryBuffer(c.GetExpiryBuffer()),
		session.WithClientID(c.GetConsoleClientID()),
	)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}
	manager.Initialize(ctx)

	if email := c.GetLoginEmail(); email != "" && manager.ActiveProvider() == session.ProviderNone {
		if err := manager.LoginLocal(ctx, email, c.GetLoginPassword()); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		log.Info().Str("user", manager.Identity().DisplayName()).Msg("logged in")
	}

	client := notify.New(notify.Config{
		URL:                   c.GetNotifyURL(),
		Token:                 manager.AccessToken(ctx),
		HeartbeatInterval:     c.GetHeartbeatInterval(),
		ReconnectBaseInterval: c.GetReconnectBaseInterval(),
		ReconnectMaxInterval:  c.GetReconnectMaxInterval(),
		MaxReconnectAttempts:  c.GetMaxReconnectAttempts(),
	})
	client.OnStatusChange(func(status notify.Status) {
		log.Info().Str("status", string(status)).Msg("notification channel")
		if status == notify.StatusDisconnected {
			// Credential may have gone stale; refresh it for the next
			// manual or automatic connect.
			if token := manager.AccessToken(ctx); token != "" {
				client.UpdateToken(token)
			}
		}
	})
	client.OnMessage(func(envelope notify.Envelope) {
		log.Info().Str("type", envelope.Type).RawJSON("payload", envelope.Raw).Msg("notification")
	})

	client.Connect()
	waitForStopSignal()

	client.Disconnect()
	if signoutURL := manager.Logout(ctx); signoutURL != "" {
		log.Info().Str("url", signoutURL).Msg("complete sign-out in the browser")
	}
	return nil
}

func buildOidcSource(ctx context.Context, c config.Config) (session.OidcSource, error) {
	if c.GetOidcIssuer() == "" {
		return nil, nil
	}
	oidc, err := oidcsession.New(ctx, oidcsession.Config{
		IssuerURL:    c.GetOidcIssuer(),
		ClientID:     c.GetOidcClientID(),
		ClientSecret: c.GetOidcClientSecret(),
		RedirectURL:  c.GetOidcRedirectURL(),
	})
	if err != nil {
		return nil, err
	}
	return oidc, nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
