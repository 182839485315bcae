package logger

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Environment string
	ServiceName string
}

var log *zap.Logger

// InitLogger initializes the logger with configuration
func InitLogger(config *LogConfig) error {
	level := parseLevel(config.Level)

	var err error
	if config.Environment == "production" {
		prodConfig := zap.NewProductionConfig()
		prodConfig.Level = zap.NewAtomicLevelAt(level)
		prodConfig.EncoderConfig.TimeKey = "timestamp"
		prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		log, err = prodConfig.Build(zap.Fields(
			zap.String("service", config.ServiceName),
			zap.String("environment", config.Environment),
		))
	} else {
		// Development logger configuration with colors and human-friendly output
		devConfig := zap.NewDevelopmentConfig()
		devConfig.Level = zap.NewAtomicLevelAt(level)
		devConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

		log, err = devConfig.Build(zap.Fields(
			zap.String("service", config.ServiceName),
			zap.String("environment", config.Environment),
		))
	}
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(log)
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger returns the global logger instance. Before InitLogger runs it
// returns a no-op logger so packages can log from tests.
func GetLogger() *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// Middleware returns an Echo middleware that logs HTTP requests
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Reuse the request logger, or build one from the request ID
			ctxLogger := FromEcho(c)
			if c.Get("logger") == nil {
				requestID := c.Request().Header.Get(echo.HeaderXRequestID)
				if requestID == "" {
					requestID = c.Response().Header().Get(echo.HeaderXRequestID)
				}
				ctxLogger = ctxLogger.With(zap.String("request_id", requestID))
				c.Set("logger", ctxLogger)
			}

			// Process the request
			err := next(c)
			if err != nil {
				// let the registered error handler write the response so the
				// logged status is the one the client sees
				c.Error(err)
			}

			// Create structured log entry
			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			// Log level follows the outcome
			switch {
			case c.Response().Status >= 500:
				ctxLogger.Error("HTTP request failed", append(fields, zap.Error(err))...)
				return nil
			case err != nil:
				ctxLogger.Warn("HTTP request rejected", append(fields, zap.Error(err))...)
				return nil
			}
			ctxLogger.Info("HTTP Request", fields...)
			return nil
		}
	}
}
