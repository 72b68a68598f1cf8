package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"alertaraven/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persisted keys
const (
	KeyEmergencyContacts = "emergencyContacts"
	KeyMedicalRecord     = "medicalRecord"
	KeyPreviousSpeed     = "previousSpeed"
	KeyPreviousTimestamp = "previousTimestamp"
)

// ProfileReader is what the alert path needs from the profile store
type ProfileReader interface {
	Snapshot(ctx context.Context) (models.ProfileSnapshot, error)
}

// SpeedStore holds the single most recent speed sample
type SpeedStore interface {
	PreviousSpeed(ctx context.Context) (models.SpeedSample, bool, error)
	SaveSpeed(ctx context.Context, sample models.SpeedSample) error
	ClearSpeed(ctx context.Context) error
}

// ProfileStore reads and writes contacts, the medical record and the previous speed
// sample through a KVStore. No locking: last writer wins.
type ProfileStore struct {
	kv     KVStore
	logger *zap.Logger
}

func NewProfileStore(kv KVStore, logger *zap.Logger) *ProfileStore {
	return &ProfileStore{kv: kv, logger: logger}
}

// Contacts returns the stored contacts in insertion order
func (p *ProfileStore) Contacts(ctx context.Context) ([]models.EmergencyContact, error) {
	raw, err := p.kv.Get(ctx, KeyEmergencyContacts)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return []models.EmergencyContact{}, nil
		}
		return nil, err
	}

	var contacts []models.EmergencyContact
	if err := json.Unmarshal([]byte(raw), &contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts: %w", err)
	}
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	return contacts, nil
}

// SaveContacts overwrites the contact list. Ids must be unique and phones non-empty.
func (p *ProfileStore) SaveContacts(ctx context.Context, contacts []models.EmergencyContact) error {
	seen := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		if c.ID == "" {
			return &models.ValidationError{Field: "contact.id", Reason: "empty"}
		}
		if seen[c.ID] {
			return &models.ValidationError{Field: "contact.id", Reason: fmt.Sprintf("duplicate id %s", c.ID)}
		}
		if strings.TrimSpace(c.Phone) == "" {
			return &models.ValidationError{Field: "contact.phone", Reason: "empty"}
		}
		seen[c.ID] = true
	}

	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	body, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}
	if err := p.kv.Set(ctx, KeyEmergencyContacts, string(body)); err != nil {
		return err
	}

	p.logger.Info("Emergency contacts saved", zap.Int("count", len(contacts)))
	return nil
}

// AddContact appends a contact with a fresh id
func (p *ProfileStore) AddContact(ctx context.Context, name, phone string) (models.EmergencyContact, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return models.EmergencyContact{}, &models.ValidationError{Field: "contact", Reason: "name and phone are required"}
	}

	contacts, err := p.Contacts(ctx)
	if err != nil {
		return models.EmergencyContact{}, err
	}

	contact := models.EmergencyContact{ID: uuid.NewString(), Name: name, Phone: phone}
	if err := p.SaveContacts(ctx, append(contacts, contact)); err != nil {
		return models.EmergencyContact{}, err
	}
	return contact, nil
}

// RemoveContact drops the contact with the given id. Unknown ids are a no-op.
func (p *ProfileStore) RemoveContact(ctx context.Context, id string) error {
	contacts, err := p.Contacts(ctx)
	if err != nil {
		return err
	}

	kept := contacts[:0]
	for _, c := range contacts {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	return p.SaveContacts(ctx, kept)
}

// MedicalRecord returns the stored record, or an empty one
func (p *ProfileStore) MedicalRecord(ctx context.Context) (models.MedicalRecord, error) {
	var record models.MedicalRecord

	raw, err := p.kv.Get(ctx, KeyMedicalRecord)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return record, nil
		}
		return record, err
	}

	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return models.MedicalRecord{}, fmt.Errorf("failed to decode medical record: %w", err)
	}
	return record, nil
}

// SaveMedicalRecord overwrites the record wholesale
func (p *ProfileStore) SaveMedicalRecord(ctx context.Context, record models.MedicalRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode medical record: %w", err)
	}
	if err := p.kv.Set(ctx, KeyMedicalRecord, string(body)); err != nil {
		return err
	}
	p.logger.Info("Medical record saved")
	return nil
}

// Snapshot returns an independent copy of contacts and medical record
func (p *ProfileStore) Snapshot(ctx context.Context) (models.ProfileSnapshot, error) {
	contacts, err := p.Contacts(ctx)
	if err != nil {
		return models.ProfileSnapshot{}, fmt.Errorf("failed to load contacts: %w", err)
	}
	medical, err := p.MedicalRecord(ctx)
	if err != nil {
		return models.ProfileSnapshot{}, fmt.Errorf("failed to load medical record: %w", err)
	}

	copied := make([]models.EmergencyContact, len(contacts))
	copy(copied, contacts)
	return models.ProfileSnapshot{Contacts: copied, Medical: medical}, nil
}

// PreviousSpeed returns the persisted previous fix, if both halves are present
func (p *ProfileStore) PreviousSpeed(ctx context.Context) (models.SpeedSample, bool, error) {
	speedRaw, err := p.kv.Get(ctx, KeyPreviousSpeed)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return models.SpeedSample{}, false, nil
		}
		return models.SpeedSample{}, false, err
	}
	timeRaw, err := p.kv.Get(ctx, KeyPreviousTimestamp)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return models.SpeedSample{}, false, nil
		}
		return models.SpeedSample{}, false, err
	}

	speed, err := strconv.ParseFloat(speedRaw, 64)
	if err != nil {
		return models.SpeedSample{}, false, fmt.Errorf("invalid %s %q: %w", KeyPreviousSpeed, speedRaw, err)
	}
	ts, err := strconv.ParseInt(timeRaw, 10, 64)
	if err != nil {
		return models.SpeedSample{}, false, fmt.Errorf("invalid %s %q: %w", KeyPreviousTimestamp, timeRaw, err)
	}
	return models.SpeedSample{Speed: speed, TimestampMs: ts}, true, nil
}

// SaveSpeed persists the sample as two independent writes
func (p *ProfileStore) SaveSpeed(ctx context.Context, sample models.SpeedSample) error {
	if err := p.kv.Set(ctx, KeyPreviousSpeed, strconv.FormatFloat(sample.Speed, 'f', -1, 64)); err != nil {
		return err
	}
	return p.kv.Set(ctx, KeyPreviousTimestamp, strconv.FormatInt(sample.TimestampMs, 10))
}

// ClearSpeed forgets the previous sample so the next session starts cold
func (p *ProfileStore) ClearSpeed(ctx context.Context) error {
	return p.kv.Delete(ctx, KeyPreviousSpeed, KeyPreviousTimestamp)
}
