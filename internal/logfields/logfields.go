package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared by the node and the collector.
const (
	KeyTopic    = "topic"
	KeyMetric   = "metric"
	KeyDevice   = "device"
	KeyValue    = "value"
	KeyReason   = "reason"
	KeyMode     = "mode"
	KeyInterval = "interval"
	KeyCount    = "count"
	KeyCode     = "code"
	KeyTaskID   = "task_id"
	KeyError    = "error"
)

func Topic(t string) slog.Attr           { return slog.String(KeyTopic, t) }
func Metric(m string) slog.Attr          { return slog.String(KeyMetric, m) }
func Device(id string) slog.Attr         { return slog.String(KeyDevice, id) }
func Value(v any) slog.Attr              { return slog.Any(KeyValue, v) }
func Reason(r string) slog.Attr          { return slog.String(KeyReason, r) }
func Mode(m string) slog.Attr            { return slog.String(KeyMode, m) }
func Interval(d time.Duration) slog.Attr { return slog.Duration(KeyInterval, d) }
func Count(n int) slog.Attr              { return slog.Int(KeyCount, n) }
func Code(c int) slog.Attr               { return slog.Int(KeyCode, c) }
func TaskID(id string) slog.Attr         { return slog.String(KeyTaskID, id) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
