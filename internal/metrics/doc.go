/*
Package metrics implements rfile.metricsSink on top of a Prometheus
registry, exposing upload and download counters over an HTTP /metrics
endpoint.

# Core Components

Collector is the sink wired into both rfile.Handle, via rfile.WithMetrics,
and the underlying httpcaller.Caller, via httpcaller.WithMetrics, since
rfile_http_retries_total is incremented from the caller's own retry loop
rather than from rfile itself:

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "rfile",
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

	caller := httpcaller.New(httpcaller.WithMetrics(collector))
	h := rfile.New(client, caller, cfg, rfile.WithMetrics(collector))

# Exported metrics

Counters:
  - rfile_parts_uploaded_total: multipart parts successfully uploaded
  - rfile_part_upload_failures_total: parts abandoned after retry exhaustion
  - rfile_bytes_uploaded_total, rfile_bytes_downloaded_total
  - rfile_chunks_downloaded_total: ranged reads completed, from Read or a linear query
  - rfile_http_retries_total: retried HTTP attempts made by the caller layer

Gauges:
  - rfile_upload_queue_depth: current depth of the upload queue

# HTTP endpoints

/metrics serves the Prometheus exposition format; /health returns a
static liveness response.

# Disabling

A Config with Enabled: false produces a Collector whose methods are all
no-ops and whose Start does not bind a port.
*/
package metrics
