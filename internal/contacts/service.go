package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("user not found")

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Owner(ctx context.Context, uid string) (Owner, error) {
	var o Owner
	err := s.db.QueryRow(ctx, `
		SELECT id, name, phone FROM users WHERE id=$1
	`, uid).Scan(&o.ID, &o.Name, &o.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, err
	}
	return o, nil
}

func (s *Service) Contacts(ctx context.Context, uid string) ([]Contact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone, created_at
		FROM emergency_contacts
		WHERE user_id=$1
		ORDER BY created_at
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *Service) Profile(ctx context.Context, uid string) (Profile, error) {
	owner, err := s.Owner(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	contacts, err := s.Contacts(ctx, uid)
	if err != nil {
		return Profile{}, err
	}
	if contacts == nil {
		contacts = []Contact{}
	}
	return Profile{Owner: owner, EmergencyContacts: contacts}, nil
}

// SaveContact creates the user on first use and appends one emergency contact.
func (s *Service) SaveContact(ctx context.Context, owner Owner, contact Contact) (Contact, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, name, phone)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		    phone = COALESCE(NULLIF(EXCLUDED.phone, ''), users.phone)
	`, owner.ID, owner.Name, owner.Phone)
	if err != nil {
		return Contact{}, fmt.Errorf("upsert user: %w", err)
	}

	contact.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO emergency_contacts (id, user_id, name, phone)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, contact.ID, owner.ID, contact.Name, contact.Phone)
	if err := row.Scan(&contact.CreatedAt); err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return contact, nil
}

func (s *Service) RecordAlert(ctx context.Context, alert Alert) (Alert, error) {
	alert.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO sos_alerts (id, user_id, session_id, lat, lng, sent_count, failed_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, alert.ID, alert.OwnerID, alert.SessionID, alert.Lat, alert.Lng, alert.Sent, alert.Failed)
	if err := row.Scan(&alert.CreatedAt); err != nil {
		return Alert{}, err
	}
	return alert, nil
}

func (s *Service) Alerts(ctx context.Context, uid string) ([]Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, session_id, lat, lng, sent_count, failed_count, created_at
		FROM sos_alerts
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.SessionID, &a.Lat, &a.Lng, &a.Sent, &a.Failed, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
