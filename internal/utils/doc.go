// Package utils exposes reusable helpers consumed by the CLI entrypoint.
//
// It houses ConfigurationLoader, which layers embedded defaults, configuration
// files, and environment variables through Viper, and LoggerFactory, which
// builds zap loggers for the supported levels and formats.
package utils
