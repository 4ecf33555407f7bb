// Package influxdb records cover position history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every position the
// bridge publishes becomes one point:
//
//	cover_position,cover=kitchen,source=event position=42i
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch errors are delivered through SetOnError.
//
// The history is write-only. Nothing in the bridge reads it back.
package influxdb
