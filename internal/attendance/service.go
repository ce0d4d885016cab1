package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"attendance-backend/internal/device"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// Outcome describes what a scan resulted in.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeUnknownUser Outcome = "unknown_user"
	OutcomeCheckIn     Outcome = "check_in"
	OutcomeCheckOut    Outcome = "check_out"
)

// Service turns fingerprint matches into check-in and check-out log entries.
type Service struct {
	store store.Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates an attendance service. Calendar days are cut in loc.
func NewService(s store.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, loc: loc, now: time.Now}
}

// HandleScan implements device.ScanHandler.
func (s *Service) HandleScan(ctx context.Context, deviceID string, payload device.ScanPayload) error {
	_, err := s.HandleScanResult(ctx, deviceID, payload)
	return err
}

// HandleScanResult records one scan. The event type alternates per user and calendar
// day: the first scan of a day checks in, a scan following a check-in checks out.
func (s *Service) HandleScanResult(ctx context.Context, deviceID string, payload device.ScanPayload) (Outcome, error) {
	if payload.ID == nil || *payload.ID <= 0 {
		log.Printf("[%s] Received invalid fingerprint template ID in scan_result", deviceID)
		return OutcomeIgnored, nil
	}
	slot := *payload.ID

	scannedAt, err := payload.ScannedAt(s.now())
	if err != nil {
		log.Printf("[%s] Warning: %v. Using server time.", deviceID, err)
		scannedAt = s.now()
	}

	user, err := s.store.FindActiveUserBySlot(ctx, slot)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[%s] No active user found for fingerprint template ID: %d", deviceID, slot)
		return OutcomeUnknownUser, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user for ID %d: %w", slot, err)
	}

	from, to := s.dayBounds(scannedAt)
	event := model.EventCheckIn
	last, err := s.store.LatestLogBetween(ctx, user.ID, from, to)
	switch {
	case err == nil:
		if last.EventType == model.EventCheckIn {
			event = model.EventCheckOut
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", fmt.Errorf("failed to load last log of %s: %w", user.UserID, err)
	}

	entry := &model.AttendanceLog{
		UserID:    user.ID,
		Timestamp: scannedAt,
		EventType: event,
		DeviceID:  deviceID,
		SlotID:    slot,
	}
	if err := s.store.CreateLog(ctx, entry); err != nil {
		return "", err
	}
	log.Printf("[%s] Attendance log saved for %s: %s", deviceID, user.Name, event)

	if event == model.EventCheckOut {
		return OutcomeCheckOut, nil
	}
	return OutcomeCheckIn, nil
}

// dayBounds returns the first and last millisecond of t's calendar day.
func (s *Service) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}
