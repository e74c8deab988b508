package consultation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/auth"
)

func newTestHandler() (*Handler, *serviceFixture, *echo.Echo) {
	f := newServiceFixture()
	return NewHandler(f.svc), f, echo.New()
}

func newContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req = req.WithContext(auth.WithIdentity(context.Background(), testActor))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withID(c echo.Context, id int64) {
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(id, 10))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandler_RecordWalkIn(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"patient_id":7,"chief_complaint":"cough","diagnosis":"URI","temperature":37.8,"pulse_rate":92}`
	c, rec := newContext(e, http.MethodPost, "/", body)

	if err := h.RecordWalkIn(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	resp := decode(t, rec)
	if resp["success"] != true || !strings.HasPrefix(resp["consultation_number"].(string), "CONS-") {
		t.Errorf("unexpected body %v", resp)
	}
	cons := resp["consultation"].(map[string]interface{})
	if cons["status"] != "in_progress" || cons["temperature"].(float64) != 37.8 {
		t.Errorf("unexpected consultation %v", cons)
	}
	if _, leaked := cons["PatientUserID"]; leaked {
		t.Error("patient user id must not be serialized")
	}
	if len(f.mem.consultations) != 1 {
		t.Errorf("expected 1 stored consultation, got %d", len(f.mem.consultations))
	}
}

func TestHandler_RecordWalkIn_Malformed(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, "/", `{"patient_id":"seven"}`)
	if err := h.RecordWalkIn(c); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_ApplyAction(t *testing.T) {
	h, f, e := newTestHandler()
	cons := f.request(t, 7)

	body := `{"action":"accept_and_schedule","doctor_id":3,"scheduled_date":"2025-06-03","scheduled_time":"09:00","priority":"urgent"}`
	c, rec := newContext(e, http.MethodPost, "/", body)
	withID(c, cons.ID)
	if err := h.ApplyAction(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := decode(t, rec)
	if resp["message"] != "Consultation accepted and scheduled" {
		t.Errorf("unexpected message %v", resp["message"])
	}
	tr := resp["transition"].(map[string]interface{})
	if tr["from"] != "pending" || tr["to"] != "in_progress" {
		t.Errorf("unexpected transition %v", tr)
	}

	other := f.request(t, 8)
	c, _ = newContext(e, http.MethodPost, "/", body)
	withID(c, other.ID)
	err := h.ApplyAction(c)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if apperr.HTTPStatus(apperr.KindOf(err)) != http.StatusConflict {
		t.Errorf("slot conflict should map to 409")
	}
}

func TestHandler_ApplyAction_BadID(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newContext(e, http.MethodPost, "/", `{"action":"cancel"}`)
	c.SetParamNames("id")
	c.SetParamValues("abc")
	if err := h.ApplyAction(c); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandler_Search(t *testing.T) {
	h, f, e := newTestHandler()
	f.walkIn(t, 7)
	f.request(t, 8)

	c, rec := newContext(e, http.MethodGet, "/?status=in_progress&patient_id=7&from=2025-01-01&to=2025-12-31", "")
	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp := decode(t, rec); resp["total"].(float64) != 1 {
		t.Errorf("expected 1 result, got %v", resp["total"])
	}

	c, _ = newContext(e, http.MethodGet, "/?from=June", "")
	if err := h.Search(c); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for bad date, got %v", err)
	}
	c, _ = newContext(e, http.MethodGet, "/?doctor_id=-1", "")
	if err := h.Search(c); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for bad doctor_id, got %v", err)
	}
}

func TestHandler_Prescriptions(t *testing.T) {
	h, f, e := newTestHandler()
	cons := f.walkIn(t, 7)

	body := `{"instructions":"after meals","items":[{"medicine_id":2,"dosage":"500mg","frequency":"3x a day","duration":"7 days","quantity":21}]}`
	c, rec := newContext(e, http.MethodPost, "/", body)
	withID(c, cons.ID)
	if err := h.AddPrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	number := decode(t, rec)["prescription_number"].(string)

	c, rec = newContext(e, http.MethodGet, "/", "")
	c.SetParamNames("number")
	c.SetParamValues(strings.ToLower(number))
	if err := h.GetPrescription(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rx := decode(t, rec)["prescription"].(map[string]interface{})
	items := rx["items"].([]interface{})
	if len(items) != 1 || items[0].(map[string]interface{})["medicine_name"] != "Amoxicillin" {
		t.Errorf("unexpected items %v", items)
	}

	c, rec = newContext(e, http.MethodGet, "/", "")
	withID(c, cons.ID)
	if err := h.ListPrescriptions(c); err != nil {
		t.Fatal(err)
	}
	if decode(t, rec)["total"].(float64) != 1 {
		t.Error("expected one prescription")
	}
}

func TestHandler_ListMedicines(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := newContext(e, http.MethodGet, "/?q=para", "")
	if err := h.ListMedicines(c); err != nil {
		t.Fatal(err)
	}
	if resp := decode(t, rec); resp["total"].(float64) != 1 {
		t.Errorf("expected 1 medicine, got %v", resp["total"])
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET:/api/v1/consultations":                    false,
		"POST:/api/v1/consultations":                   false,
		"POST:/api/v1/consultations/requests":          false,
		"GET:/api/v1/consultations/:id":                false,
		"POST:/api/v1/consultations/:id/actions":       false,
		"POST:/api/v1/consultations/:id/prescriptions": false,
		"GET:/api/v1/prescriptions/:number":            false,
		"GET:/api/v1/medicines":                        false,
		"GET:/api/v1/patients/:id/consultations":       false,
	}
	for _, r := range e.Routes() {
		key := r.Method + ":" + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("missing route %s", route)
		}
	}
}
