package route

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func TestRouteHandlersCreateListGet(t *testing.T) {
	mock := newMock(t)
	created := time.Now()
	mock.ExpectQuery(`INSERT INTO commute_routes`).
		WithArgs(pgxmock.AnyArg(), "user-1", "Commute", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectQuery(`FROM commute_routes WHERE user_id`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(routeColumns).
			AddRow("r-1", "user-1", "Commute", []byte(`[{"lat":1,"lng":1}]`), 0.0, created))
	mock.ExpectQuery(`FROM commute_routes WHERE id`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows(routeColumns).
			AddRow("r-1", "user-1", "Commute", []byte(`[{"lat":1,"lng":1}]`), 0.0, created))

	app := fiber.New()
	RegisterRoutes(app.Group("/routes"), NewService(mock))

	body, _ := json.Marshal(map[string]any{
		"uid":   "user-1",
		"name":  "Commute",
		"route": []map[string]float64{{"lat": 1, "lng": 1}, {"lat": 1, "lng": 1.001}},
	})
	req := httptest.NewRequest(http.MethodPost, "/routes/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/routes/?ownerId=user-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v %d", err, resp.StatusCode)
	}
	var routes []SavedRoute
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil || len(routes) != 1 {
		t.Fatalf("decode list: %v %+v", err, routes)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/routes/r-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v %d", err, resp.StatusCode)
	}
}

func TestRouteHandlersBadRequest(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/routes"), NewService(nil))

	for _, body := range []string{`{}`, `{"uid":"u","name":"x","route":[]}`, `{"name":"x","route":[{"lat":1,"lng":1}]}`, `{"uid":"u","name":"x","route":[{"lat":91,"lng":1}]}`} {
		req := httptest.NewRequest(http.MethodPost, "/routes/", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/routes/", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without ownerId, got %d", resp.StatusCode)
	}
}
