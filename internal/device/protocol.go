package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Frame types exchanged with the sensor device.
const (
	TypeScanResult   = "scan_result"
	TypeEnrollStatus = "enroll_status"
	TypeDeleteStatus = "delete_status"
	TypeHeartbeat    = "heartbeat"
	TypeEnroll       = "enroll"
	TypeDelete       = "delete"
)

// Kind is the type of a correlated device operation.
type Kind string

const (
	KindEnroll Kind = "enroll"
	KindDelete Kind = "delete"
)

func (k Kind) commandType() string {
	if k == KindDelete {
		return TypeDelete
	}
	return TypeEnroll
}

// Status is the state reported by the device for an operation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusNotFound   Status = "not_found"
)

// Terminal reports whether no further transitions are expected after s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Frame is one inbound JSON message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Command is one outbound JSON message.
type Command struct {
	Type string `json:"type"`
	ID   int    `json:"id,omitempty"`
}

var heartbeatCommand = Command{Type: TypeHeartbeat}

// StatusPayload is carried by enroll_status and delete_status frames.
type StatusPayload struct {
	ID      int    `json:"id"`
	Status  Status `json:"status"`
	Step    int    `json:"step,omitempty"`
	Message string `json:"message,omitempty"`
}

// ScanPayload is carried by scan_result frames.
type ScanPayload struct {
	ID        *int            `json:"id"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// ScannedAt returns the device supplied scan time, or fallback when absent.
// Epoch milliseconds and RFC 3339 strings are accepted.
func (p ScanPayload) ScannedAt(fallback time.Time) (time.Time, error) {
	raw := bytes.TrimSpace(p.Timestamp)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t, nil
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}
