// Package loki pushes flushed session records to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "ux-telemetry"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values we generate.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// recordFields is used to parse only the fields we need from a record for labels and timestamp.
type recordFields struct {
	Type      string `json:"__type"`
	EventName string `json:"EventName"`
	EventTime string `json:"EventTime"`
	Metadata  struct {
		SessionID string `json:"SessionId"`
	} `json:"Metadata"`
}

// Client pushes documents to one Loki instance.
type Client struct {
	BaseURL string
	// Job is the job label; DefaultJob when empty.
	Job string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Job: DefaultJob}
}

// Log implements telemetry.Sink. Each record of the document becomes one log line,
// grouped into streams by record type and session id.
func (c *Client) Log(ctx context.Context, document []byte) error {
	var records []json.RawMessage
	if err := json.Unmarshal(document, &records); err != nil {
		return fmt.Errorf("loki: decode document: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	streams := map[string]*Stream{}
	var order []string
	for _, raw := range records {
		ts, labels := parseRecord(raw)
		// event_name varies per record, so it would split every record into its own stream.
		delete(labels, "event_name")
		key := labels["record_type"] + "|" + labels["session_id"]
		s, ok := streams[key]
		if !ok {
			s = &Stream{Stream: c.streamLabels(labels)}
			streams[key] = s
			order = append(order, key)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(ts.UnixNano(), 10), string(raw)})
	}
	body := PushRequest{Streams: make([]Stream, 0, len(order))}
	for _, k := range order {
		body.Streams = append(body.Streams, *streams[k])
	}
	return c.push(ctx, body)
}

// PushRecordJSON pushes a single serialized record, labelled with its event name.
// If parsing fails, the raw line is pushed with the current time and no extra labels.
func (c *Client) PushRecordJSON(ctx context.Context, raw []byte) error {
	ts, labels := parseRecord(raw)
	return c.push(ctx, PushRequest{Streams: []Stream{{
		Stream: c.streamLabels(labels),
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), string(raw)}},
	}}})
}

func parseRecord(raw []byte) (time.Time, map[string]string) {
	ts := time.Now().UTC()
	labels := map[string]string{}
	var f recordFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return ts, labels
	}
	if f.Type != "" {
		labels["record_type"] = f.Type
	}
	if f.EventName != "" {
		labels["event_name"] = f.EventName
	}
	if f.Metadata.SessionID != "" {
		labels["session_id"] = f.Metadata.SessionID
	}
	if f.EventTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.EventTime); err == nil {
			ts = t
		}
	}
	return ts, labels
}

func (c *Client) streamLabels(labels map[string]string) map[string]string {
	job := c.Job
	if job == "" {
		job = DefaultJob
	}
	out := make(map[string]string, len(labels)+1)
	out["job"] = job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			out[k] = sanitized
		}
	}
	return out
}

func (c *Client) push(ctx context.Context, body PushRequest) error {
	if c.BaseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(c.BaseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
