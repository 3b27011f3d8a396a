package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Abhinavchoudhary2005/AlertIQ/internal/db"
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/shared/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("route not found")

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) Create(ctx context.Context, input SavedRoute) (SavedRoute, error) {
	input.ID = uuid.NewString()
	input.TotalDistanceM = geo.RouteLengthMeters(input.Points)
	points, err := json.Marshal(input.Points)
	if err != nil {
		return SavedRoute{}, fmt.Errorf("encode points: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO commute_routes (id, user_id, name, points, total_distance_m)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, input.ID, input.OwnerID, input.Name, points, input.TotalDistanceM)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return SavedRoute{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, id string) (SavedRoute, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, points, total_distance_m, created_at
		FROM commute_routes WHERE id=$1
	`, id)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SavedRoute{}, ErrNotFound
	}
	return r, err
}

// Points returns only the ordered points of a saved route.
func (s *Service) Points(ctx context.Context, id string) ([]geo.Point, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Points, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]SavedRoute, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, name, points, total_distance_m, created_at
		FROM commute_routes WHERE user_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []SavedRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM commute_routes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRoute(row pgx.Row) (SavedRoute, error) {
	var (
		r      SavedRoute
		points []byte
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &points, &r.TotalDistanceM, &r.CreatedAt); err != nil {
		return SavedRoute{}, err
	}
	if err := json.Unmarshal(points, &r.Points); err != nil {
		return SavedRoute{}, fmt.Errorf("decode points: %w", err)
	}
	return r, nil
}
