package rfile

// metricsSink receives counters from the upload and download paths. The
// production implementation is internal/metrics.Collector; tests use a
// no-op or an in-memory recorder.
type metricsSink interface {
	PartUploaded(bytes int64)
	PartUploadFailed()
	ChunkDownloaded(bytes int64)
	HTTPRetry()
	QueueDepth(n int)
}

type noopMetricsSink struct{}

func (noopMetricsSink) PartUploaded(int64)     {}
func (noopMetricsSink) PartUploadFailed()      {}
func (noopMetricsSink) ChunkDownloaded(int64)  {}
func (noopMetricsSink) HTTPRetry()             {}
func (noopMetricsSink) QueueDepth(int)         {}
