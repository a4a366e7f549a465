package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/usecounsel/counsel/internal/profile"
	"github.com/usecounsel/counsel/internal/version"
	"github.com/usecounsel/counsel/server"
	"github.com/usecounsel/counsel/store"
	"github.com/usecounsel/counsel/store/db"
)

const greetingBanner = `counsel - career counseling chat server
version %s
`

var rootCmd = &cobra.Command{
	Use:   "counsel",
	Short: "A dual-mode career counseling chat server",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instanceProfile := &profile.Profile{
			Mode:            viper.GetString("mode"),
			Addr:            viper.GetString("addr"),
			Port:            viper.GetInt("port"),
			Data:            viper.GetString("data"),
			Driver:          viper.GetString("driver"),
			DSN:             viper.GetString("dsn"),
			Secret:          viper.GetString("secret"),
			AIBaseURL:       viper.GetString("ai-base-url"),
			AIAPIKey:        viper.GetString("ai-api-key"),
			AIModel:         viper.GetString("ai-model"),
			IDPIssuer:       viper.GetString("idp-issuer"),
			IDPClientID:     viper.GetString("idp-client-id"),
			IDPClientSecret: viper.GetString("idp-client-secret"),
			IDPAuthURL:      viper.GetString("idp-auth-url"),
			IDPTokenURL:     viper.GetString("idp-token-url"),
			IDPUserInfoURL:  viper.GetString("idp-userinfo-url"),
			IDPRedirectURL:  viper.GetString("idp-redirect-url"),
			MigrateOnSignIn: viper.GetBool("migrate-on-signin"),
			Version:         version.GetCurrentVersion(viper.GetString("mode")),
		}
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid profile", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if instanceProfile.Secret == "" {
			instanceProfile.Secret = "usecounsel"
			if instanceProfile.Mode == "prod" {
				slog.Warn("running in prod mode with the default token secret, set --secret")
			}
		}

		driver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", slog.String("error", err.Error()))
			os.Exit(1)
		}
		st := store.New(driver, instanceProfile)
		if err := st.Migrate(ctx); err != nil {
			slog.Error("failed to migrate db", slog.String("error", err.Error()))
			os.Exit(1)
		}

		s, err := server.NewServer(ctx, instanceProfile, st)
		if err != nil {
			slog.Error("failed to create server", slog.String("error", err.Error()))
			os.Exit(1)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			slog.Info("received signal, shutting down", slog.String("signal", sig.String()))
			cancel()
		}()

		fmt.Printf(greetingBanner, instanceProfile.Version)
		if err := s.Start(ctx); err != nil {
			slog.Error("server stopped", slog.String("error", err.Error()))
			os.Exit(1)
		}
	},
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign session tokens")
	rootCmd.PersistentFlags().Bool("migrate-on-signin", false, "migrate local history to the remote store on sign-in")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	// COUNSEL_AI_API_KEY maps to ai-api-key, and so on.
	viper.SetEnvPrefix("counsel")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
