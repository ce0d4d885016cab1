package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"attendance-backend/internal/device"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

var (
	// ErrInvalidRequest wraps every input validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDuplicateMSV is returned when the student code already belongs to a user.
	ErrDuplicateMSV = errors.New("msv is already registered for another user")
)

const (
	stepStarted = 0
	stepDone    = 100
)

// Request asks for a new fingerprint enrollment.
type Request struct {
	DeviceID string
	Name     string
	MSV      string
}

// Deletion is the result of removing a user's fingerprint.
type Deletion struct {
	User *model.User
	// TemplateDeleted is false when the user had no slot and was only deactivated.
	TemplateDeleted bool
}

// Options holds the enrollment timings and capacity.
type Options struct {
	MaxSlots      int
	EnrollTimeout time.Duration
	DeleteTimeout time.Duration
}

// Service runs the enrollment and deletion workflows against a device hub.
type Service struct {
	store store.Store
	hub   *device.Hub
	alloc Allocator
	opts  Options

	// allocMu guards reserved and is held across allocation and dispatch.
	// A slot stays reserved from dispatch until its user row is written or the
	// enrollment fails, covering the gap after the device has answered.
	allocMu  sync.Mutex
	reserved map[int]struct{}
	wg       sync.WaitGroup
}

// NewService creates an enrollment service.
func NewService(s store.Store, hub *device.Hub, opts Options) *Service {
	if opts.EnrollTimeout <= 0 {
		opts.EnrollTimeout = 30 * time.Second
	}
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = 10 * time.Second
	}
	return &Service{
		store: s,
		hub:   hub,
		alloc:    Allocator{MaxSlots: opts.MaxSlots},
		opts:     opts,
		reserved: make(map[int]struct{}),
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func (s *Service) requireDevice(deviceID string) error {
	if !s.hub.Connected(deviceID) {
		return fmt.Errorf("%w: device %s is not connected", device.ErrDeviceNotConnected, deviceID)
	}
	return nil
}

// Start validates req, reserves a slot and sends the enroll command. It returns
// the seeded progress record as soon as the command is on the wire; the outcome
// is published to the hub's progress tracker.
func (s *Service) Start(ctx context.Context, req Request) (device.Progress, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.MSV = strings.TrimSpace(req.MSV)
	switch {
	case req.DeviceID == "":
		return device.Progress{}, invalid("device ID is required")
	case req.Name == "":
		return device.Progress{}, invalid("user name is required")
	case req.MSV == "":
		return device.Progress{}, invalid("MSV is required")
	}
	if err := s.requireDevice(req.DeviceID); err != nil {
		return device.Progress{}, err
	}

	if _, err := s.store.FindUserByMSV(ctx, req.MSV); err == nil {
		return device.Progress{}, fmt.Errorf("%w: %s", ErrDuplicateMSV, req.MSV)
	} else if !errors.Is(err, store.ErrNotFound) {
		return device.Progress{}, err
	}

	s.allocMu.Lock()
	used, err := s.store.UsedSlotIDs(ctx)
	if err != nil {
		s.allocMu.Unlock()
		return device.Progress{}, err
	}
	pending := s.hub.Correlator.PendingSlots(device.KindEnroll)
	for r := range s.reserved {
		pending = append(pending, r)
	}
	slot, err := s.alloc.Next(used, pending)
	if err != nil {
		s.allocMu.Unlock()
		log.Printf("No available template ID within capacity (%d)", s.alloc.MaxSlots)
		return device.Progress{}, err
	}

	seed := s.hub.Progress.Set(slot, device.Progress{
		Status:   device.StatusProcessing,
		Step:     stepStarted,
		Message:  "Enrollment started",
		Name:     req.Name,
		MSV:      req.MSV,
		DeviceID: req.DeviceID,
	})
	log.Printf("Attempting to start enrollment for user %s with template ID %d on device %s", req.Name, slot, req.DeviceID)
	call, err := s.hub.Correlator.Dispatch(req.DeviceID, slot, device.KindEnroll, s.opts.EnrollTimeout)
	if err == nil {
		s.reserved[slot] = struct{}{}
	}
	s.allocMu.Unlock()

	if err != nil {
		s.fail(slot, req, err)
		return device.Progress{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(call.Slot)
		s.complete(call, req)
	}()
	return seed, nil
}

// complete waits for the device outcome and persists the user on success.
func (s *Service) complete(call *device.Call, req Request) {
	if _, err := call.Wait(context.Background()); err != nil {
		log.Printf("Enrollment for ID %d failed: %v", call.Slot, err)
		s.fail(call.Slot, req, err)
		return
	}

	slot := call.Slot
	user := &model.User{
		UserID:   uuid.NewString(),
		SlotID:   &slot,
		Name:     req.Name,
		MSV:      req.MSV,
		IsActive: true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.CreateUser(ctx, user); err != nil {
		log.Printf("Error saving enrolled user %s with template ID %d: %v", req.Name, slot, err)
		s.fail(slot, req, err)
		return
	}

	s.hub.Progress.Set(slot, device.Progress{
		Status:   device.StatusSuccess,
		Step:     stepDone,
		Message:  "Fingerprint enrolled successfully",
		Name:     req.Name,
		MSV:      req.MSV,
		DeviceID: req.DeviceID,
	})
	log.Printf("Successfully enrolled and saved user %s with template ID %d", req.Name, slot)
}

func (s *Service) release(slot int) {
	s.allocMu.Lock()
	delete(s.reserved, slot)
	s.allocMu.Unlock()
}

func (s *Service) fail(slot int, req Request, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, device.ErrTimeout):
		msg = "Enrollment timed out"
	case errors.Is(err, device.ErrDisconnected):
		msg = "Device disconnected during enrollment"
	case errors.Is(err, store.ErrDuplicate):
		msg = "User could not be saved: duplicate record"
	}
	s.hub.Progress.Set(slot, device.Progress{
		Status:   device.StatusError,
		Step:     stepStarted,
		Message:  msg,
		Name:     req.Name,
		MSV:      req.MSV,
		DeviceID: req.DeviceID,
	})
}

// Wait blocks until every background enrollment has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Delete removes the user's fingerprint from the device and deactivates the
// user. A user without a slot is deactivated without contacting the device.
func (s *Service) Delete(ctx context.Context, userID, deviceID string) (Deletion, error) {
	if deviceID == "" {
		return Deletion{}, invalid("device ID is required for deletion")
	}
	if err := s.requireDevice(deviceID); err != nil {
		return Deletion{}, err
	}

	user, err := s.store.FindUserByExternalID(ctx, userID)
	if err != nil {
		return Deletion{}, err
	}

	if !user.HasSlot() {
		user, err = s.store.DeactivateUser(ctx, userID, false)
		if err != nil {
			return Deletion{}, err
		}
		log.Printf("User %s had no fingerprint assigned. Marked as inactive.", userID)
		return Deletion{User: user}, nil
	}

	// Once the command is sent the outcome is recorded even if the caller
	// goes away; the correlator's deadline bounds the wait.
	ctx = context.WithoutCancel(ctx)

	slot := *user.SlotID
	log.Printf("Attempting to delete fingerprint ID %d for user %s (%s) on device %s", slot, user.Name, userID, deviceID)
	if _, err := s.hub.Correlator.Request(ctx, deviceID, slot, device.KindDelete, s.opts.DeleteTimeout); err != nil {
		return Deletion{}, err
	}

	user, err = s.store.DeactivateUser(ctx, userID, true)
	if err != nil {
		return Deletion{}, err
	}
	log.Printf("Successfully deleted fingerprint %d from device. User %s updated.", slot, userID)
	return Deletion{User: user, TemplateDeleted: true}, nil
}
