package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatty/internal/auth"
	"chatty/internal/config"
	"chatty/internal/logging"
	"chatty/internal/models"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatty",
		Short: "Direct messaging service with live delivery and presence",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newUserCommand(), newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Message store driver (postgres, sqlite)")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres DSN")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("amqp-url", "", "AMQP broker URL; empty disables event mirroring")
	cmd.PersistentFlags().String("otel-endpoint", "", "OTLP gRPC endpoint; empty disables tracing")
	cmd.PersistentFlags().Bool("debug-routes", false, "Expose /debug endpoints")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "amqp.url", "amqp-url")
	bindFlag(cmd, "otel.endpoint", "otel-endpoint")
	bindFlag(cmd, "debug.routes", "debug-routes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newUserCommand manages directory entries. Accounts are owned by the identity
// service; this seeds local stores.
func newUserCommand() *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "Manage the user directory"}

	var id, name, email, picture string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Insert or update a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
				return fmt.Errorf("--name and --email are required")
			}
			if id == "" {
				id = uuid.NewString()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			stores, err := openStores(ctx, appConfig, logger)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.Writer.SaveUser(ctx, models.User{ID: id, FullName: name, Email: email, ProfilePic: picture}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	addCmd.Flags().StringVar(&id, "id", "", "User id (generated when empty)")
	addCmd.Flags().StringVar(&name, "name", "", "Full name")
	addCmd.Flags().StringVar(&email, "email", "", "Email address")
	addCmd.Flags().StringVar(&picture, "picture", "", "Profile picture URL")

	userCmd.AddCommand(addCmd)
	return userCmd
}

func newTokenCommand() *cobra.Command {
	var userID string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      ttl,
			})
			token, _, err := issuer.Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to mint the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
