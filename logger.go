package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"go.elastic.co/apm"
	"go.elastic.co/apm/module/apmechov4"
	"go.elastic.co/apm/module/apmzap"
	"go.uber.org/zap"
)

var (
	zapLogger *zap.Logger
	apmActive bool
)

func init() {

	// Set logging configuration
	var err error
	zapLogger, err = zap.NewProduction(zap.WrapCore((&apmzap.Core{}).WrapCore))
	if err != nil {
		log.Fatalf("Can't initialize zap logger: %v", err)
	}

	// Flushes buffer if it exists
	defer zapLogger.Sync()
}

func initAPM(e *echo.Echo, cfg *Config) {
	// Close default Elastic APM tracer
	zapLogger.Info("Disable default APM logger")
	apm.DefaultTracer.Close()

	// Conditionally enable APM logger based on "ELASTIC_APM_ACTIVE"
	apmActive = cfg.APMActive
	if !apmActive {
		return
	}

	// Create new tracer with basic options
	// Use environment variables for the remaining options
	zapLogger.Info("Creating new APM tracer",
		zap.String("ServiceName", cfg.AppName),
		zap.String("ServiceEnvironment", cfg.AppEnv))
	tracer, err := apm.NewTracerOptions(apm.TracerOptions{
		ServiceName:        cfg.AppName,
		ServiceVersion:     cfg.AppVersion,
		ServiceEnvironment: cfg.AppEnv,
	})
	if err != nil {
		zapLogger.Fatal(err.Error())
	}

	// Adds elastic APM middleware to web server to capture requests
	// and send them to elastic
	zapLogger.Info("Enabling APM logger")
	e.Use(apmechov4.Middleware(apmechov4.WithTracer(tracer)))
}

func logger(c context.Context, err error) {
	zapLogger.Error(err.Error())
	if apmActive {
		apm.CaptureError(c, err).Send()
	}
}

func elkLogger(ctx context.Context, msg map[string]string, level string) error {
	// Set default level if none exists
	if level == "" {
		level = "debug"
	}

	// Sends logs to a test index, if not production
	index := config.AppEnv
	if index != "prod" {
		index = "test"
	}

	// Populate remaining message details
	msg["environment"] = index
	msg["level"] = level
	msg["date"] = time.Now().Format(time.RFC3339)

	// Send log message
	resp, err := newHTTPClient(5 * time.Second).R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		Post(config.ElkURL)
	if err != nil {
		return err
	}

	// Verify status code
	if resp.IsError() {
		return fmt.Errorf("log message failed (Patient - %s, Status Code - %d): %s", msg["patFHIRId"], resp.StatusCode(), resp.String())
	}

	return nil
}

func (rr *RiskRequest) sendWebLog(msg string) {
	if config.ElkURL == "" {
		return
	}

	// Create base log message
	message := rr.getWebLogContext()

	// Add log message to map
	message["msg"] = msg

	// Send in a separate goroutine, detached from the request lifetime
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := elkLogger(ctx, message, "info"); err != nil {
			logger(rr.Context, fmt.Errorf("%v. Context: %s ", err, rr.Body))
		}
	}()
}

func (rr *RiskRequest) getWebLogContext() map[string]string {
	// Return map with contextual details about the request
	return map[string]string{
		"application":  config.AppName,
		"patFHIRId":    rr.PatientId,
		"hook":         rr.Hook,
		"hookInstance": rr.HookInstance,
	}
}
