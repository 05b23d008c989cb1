package main

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chop-dbhi/smart-framingham/kv"
)

var (
	config *Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "framingham",
		Short: "Framingham risk CDS Hooks service and SMART app",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Read configuration
			var err error
			config, err = readConfig()
			return err
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(hooksCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(scoreCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func hooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "Run the CDS Hooks service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ValidateAuth(); err != nil {
				return err
			}
			if err := initStore(cmd.Context()); err != nil {
				return err
			}

			e := newHooksServer()
			return e.Start(fmt.Sprintf(":%d", config.HooksPort))
		},
	}
}

func appCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "app",
		Short: "Run the SMART launch app",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initStore(cmd.Context()); err != nil {
				return err
			}

			e, err := newAppServer()
			if err != nil {
				return err
			}
			return e.Start(fmt.Sprintf(":%d", config.AppPort))
		},
	}
}

// initStore connects to redis when REDIS_URL is set. Otherwise sessions
// and cached value sets stay in process memory.
func initStore(ctx context.Context) error {
	if config.RedisURL == "" {
		zapLogger.Info("Using in-memory store")
		store = kv.NewMemoryStore()
		return nil
	}

	client, err := kv.DialRedis(ctx, config.RedisURL)
	if err != nil {
		return fmt.Errorf("unable to connect to redis: %w", err)
	}
	zapLogger.Info("Using redis store", zap.String("prefix", config.AppName))
	store = kv.NewRedisStore(client, config.AppName+":")
	return nil
}

func newServer() *echo.Echo {
	// Create new Echo object
	e := echo.New()
	e.HideBanner = true

	// Add basic middleware to log all requests
	e.Use(middleware.Logger())

	// Configure elastic apm logging
	initAPM(e, config)

	// Sets CORS headers to allow all origins, but restrict HTTP method type
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	// Middleware to provide more control over response status for APM transactions
	// This must go after the Elastic APM middleware
	e.Use(filterError)

	// Adds a heartbeat handler
	e.GET("/heartbeat", heartbeat)

	return e
}

func newHooksServer() *echo.Echo {
	e := newServer()

	// Creates API group to simplify middleware declaration
	cdsGroup := e.Group("/cds-services")

	// Add a GET handler for presenting the CDS Hooks services available
	cdsGroup.GET("", cdsServices)

	// Add POST handlers for CDS Hooks services
	cdsGroup.POST("/"+patientViewService, patientView, authorize)
	cdsGroup.POST("/"+orderSelectService, orderSelect, authorize)

	return e
}

func newAppServer() (*echo.Echo, error) {
	e := newServer()

	templates, err := template.ParseFiles(config.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("unable to load page template: %w", err)
	}
	e.Renderer = &Template{templates: templates}

	e.GET("/smart-launch", smartLaunch)
	e.GET("/", riskApp)

	return e, nil
}
