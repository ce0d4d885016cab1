package device

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// ScanHandler receives fingerprint reads that are not part of a command.
type ScanHandler interface {
	HandleScan(ctx context.Context, deviceID string, payload ScanPayload) error
}

// ScanHandlerFunc adapts a function to ScanHandler.
type ScanHandlerFunc func(ctx context.Context, deviceID string, payload ScanPayload) error

func (f ScanHandlerFunc) HandleScan(ctx context.Context, deviceID string, payload ScanPayload) error {
	return f(ctx, deviceID, payload)
}

// Router decodes inbound frames and dispatches them by type.
type Router struct {
	registry   *Registry
	correlator *Correlator
	tracker    *Tracker
	scans      ScanHandler
}

// NewRouter wires a router over the hub tables. scans may be nil.
func NewRouter(registry *Registry, correlator *Correlator, tracker *Tracker, scans ScanHandler) *Router {
	return &Router{
		registry:   registry,
		correlator: correlator,
		tracker:    tracker,
		scans:      scans,
	}
}

// HandleFrame processes one raw frame received from deviceID.
func (r *Router) HandleFrame(ctx context.Context, deviceID string, data []byte) error {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("invalid frame from %s: %w", deviceID, err)
	}

	switch frame.Type {
	case TypeScanResult:
		var p ScanPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		if r.scans == nil {
			log.Printf("[%s] scan_result dropped: no scan handler", deviceID)
			return nil
		}
		return r.scans.HandleScan(ctx, deviceID, p)

	case TypeEnrollStatus:
		var p StatusPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		if r.correlator.Resolve(KindEnroll, p) && p.Status == StatusProcessing {
			if prog, ok := r.tracker.Apply(p.ID, p); ok {
				log.Printf("Enrollment progress for ID %d: %s, step %d", p.ID, prog.Status, prog.Step)
			}
		}
		return nil

	case TypeDeleteStatus:
		var p StatusPayload
		if err := decodePayload(frame, &p); err != nil {
			return err
		}
		r.correlator.Resolve(KindDelete, p)
		return nil

	case TypeHeartbeat:
		r.registry.Touch(deviceID)
		return nil

	default:
		log.Printf("Unknown WS message type from %s: %s", deviceID, frame.Type)
		return nil
	}
}

func decodePayload(frame Frame, v any) error {
	if len(frame.Payload) == 0 {
		return fmt.Errorf("%s frame without payload", frame.Type)
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", frame.Type, err)
	}
	return nil
}
