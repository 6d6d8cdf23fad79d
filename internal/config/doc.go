/*
Package config provides layered configuration management for the remote
file handle, with YAML files, environment variables, and runtime overrides.

# Configuration Architecture

Configuration sources in ascending precedence:

	┌─────────────────────────────────────────────┐
	│          Runtime Overrides                  │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables (RFILE_*)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                     │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Configuration Structure

Global: logging level/file, metrics port, default project.

Upload: part size threshold and worker pool size for buffered parallel
multipart upload (MaxPartBytes, MaxWriteThreads).

Download: defaults for the ordered parallel range download
(DefaultChunkSize, DefaultMaxChunks, DefaultThreadCount).

Network: a retry schedule whose defaults equal the retrying HTTP caller's
fixed schedule; httpcaller.New does not read it.

Monitoring: metrics and logging output settings.

# Usage

	cfg := config.NewDefault()

	if err := cfg.LoadFromFile("/etc/rfile/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}

	cfg.Upload.MaxWriteThreads = 8

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	global:
	  log_level: INFO
	  metrics_port: 8080

	upload:
	  max_part_bytes: 104857600
	  max_write_threads: 5

	download:
	  default_chunk_size: 16777216
	  default_max_chunks: 8
	  default_thread_count: 5

	network:
	  retry:
	    max_attempts: 5
	    initial_delay: 2s
	    max_delay: 32s
	    multiplier: 2.0
	    jitter: false

# Logging

NewLogger(cfg.Global) builds a *slog.Logger from GlobalConfig.LogLevel and
GlobalConfig.LogFile. An empty LogFile logs to stdout; a non-empty one is
written through a rotating, gzip-compressing file writer. Callers should
close the returned io.Closer on shutdown to flush and release the file.
*/
package config
