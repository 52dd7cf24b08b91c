package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats a snapshot in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP tidechat_uptime_seconds Time since the server started\n")
	sb.WriteString("# TYPE tidechat_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("tidechat_uptime_seconds %d\n", snap.UptimeSeconds))
	sb.WriteString("\n")

	// Requests by route
	sb.WriteString("# HELP tidechat_requests_total Total number of requests by route\n")
	sb.WriteString("# TYPE tidechat_requests_total counter\n")
	for _, route := range sortedKeys(snap.TotalRequests) {
		count := snap.TotalRequests[route]
		sb.WriteString(fmt.Sprintf("tidechat_requests_total{route=\"%s\"} %d\n", route, count))
	}
	sb.WriteString("\n")

	// 5xx responses by route
	sb.WriteString("# HELP tidechat_request_errors_total Total number of 5xx responses by route\n")
	sb.WriteString("# TYPE tidechat_request_errors_total counter\n")
	for _, route := range sortedKeys(snap.RequestErrors) {
		count := snap.RequestErrors[route]
		sb.WriteString(fmt.Sprintf("tidechat_request_errors_total{route=\"%s\"} %d\n", route, count))
	}
	sb.WriteString("\n")

	// Cumulative request duration by route
	sb.WriteString("# HELP tidechat_request_duration_ms_total Total request duration in milliseconds by route\n")
	sb.WriteString("# TYPE tidechat_request_duration_ms_total counter\n")
	for _, route := range sortedKeys(snap.TotalRequestsDur) {
		duration := snap.TotalRequestsDur[route]
		sb.WriteString(fmt.Sprintf("tidechat_request_duration_ms_total{route=\"%s\"} %d\n", route, duration))
	}
	sb.WriteString("\n")

	// Finished streams by terminal state
	sb.WriteString("# HELP tidechat_streams_total Total number of finished streaming sessions by terminal state\n")
	sb.WriteString("# TYPE tidechat_streams_total counter\n")
	for _, terminal := range sortedKeys(snap.Streams) {
		count := snap.Streams[terminal]
		sb.WriteString(fmt.Sprintf("tidechat_streams_total{terminal=\"%s\"} %d\n", terminal, count))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP tidechat_streams_in_flight Current number of open streaming sessions\n")
	sb.WriteString("# TYPE tidechat_streams_in_flight gauge\n")
	sb.WriteString(fmt.Sprintf("tidechat_streams_in_flight %d\n", snap.StreamsInFlight))
	sb.WriteString("\n")

	sb.WriteString("# HELP tidechat_stream_chars_total Total characters relayed to clients\n")
	sb.WriteString("# TYPE tidechat_stream_chars_total counter\n")
	sb.WriteString(fmt.Sprintf("tidechat_stream_chars_total %d\n", snap.StreamChars))

	return sb.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
