package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/arnavshah/ward-census-api/pkg/auth"
	"github.com/arnavshah/ward-census-api/pkg/cache"
	"github.com/arnavshah/ward-census-api/pkg/dashboard"
	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/arnavshah/ward-census-api/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	auth.BcryptCost = bcrypt.MinCost
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	h      *Handler
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	return setupServerWith(t, dashboard.Options{MaxRangeDays: 366})
}

func setupServerWith(t *testing.T, opts dashboard.Options) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	st := store.NewGormStore(db, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, st.UpsertWard(ctx, database.Ward{ID: "ICU", Name: "Intensive Care", SortOrder: 1}))
	require.NoError(t, st.UpsertWard(ctx, database.Ward{ID: "CCU", Name: "Coronary Care", SortOrder: 2}))

	_, err = auth.CreateUser(db, "nina", "pw", models.RoleNurse, "ICU")
	require.NoError(t, err)
	_, err = auth.CreateUser(db, "sam", "pw", models.RoleSupervisor, "")
	require.NoError(t, err)

	h := &Handler{
		DB:      db,
		Store:   st,
		Service: dashboard.NewService(st, zap.NewNop(), opts),
		Auth:    auth.New("jwt-secret", "master-secret"),
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC) },
	}
	st.OnChange(h.Service.Invalidate)
	r := gin.New()
	r.Use(h.RequestLogger())
	Register(r, h)
	return &testServer{t: t, router: r, h: h}
}

func (s *testServer) token(user models.UserContext) string {
	token, err := s.h.Auth.CreateToken(user)
	require.NoError(s.t, err)
	return token
}

var (
	nurse      = models.UserContext{Username: "nina", Role: models.RoleNurse, WardID: "ICU"}
	supervisor = models.UserContext{Username: "sam", Role: models.RoleSupervisor}
)

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func form(ward, date string, shift models.Shift, status models.FormStatus, census int) map[string]any {
	return map[string]any{
		"ward_id": ward,
		"date":    date,
		"shift":   shift,
		"status":  status,
		"counts": map[string]any{
			"patient_census": census,
			"available_beds": 4,
			"new_admit":      2,
		},
	}
}

func TestBannerAndRequestID(t *testing.T) {
	s := setupServer(t)
	w := s.do(http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodPost, "/auth/login", map[string]string{"username": "nina", "password": "pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "nurse", body["role"])
	assert.Equal(t, "ICU", body["ward_id"])

	claims, err := s.h.Auth.VerifyToken(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, nurse, claims.UserContext())

	w = s.do(http.MethodPost, "/auth/login", map[string]string{"username": "nina", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/auth/login", map[string]string{"username": "nina"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	s := setupServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/wards", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/wards", nil, "garbage").Code)
}

func TestListWards_ScopedByRole(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodGet, "/api/wards", nil, s.token(nurse))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct{ Wards []models.Ward }](t, w)
	assert.Equal(t, []models.Ward{{ID: "ICU", Name: "Intensive Care"}}, body.Wards)

	w = s.do(http.MethodGet, "/api/wards", nil, s.token(supervisor))
	body = decode[struct{ Wards []models.Ward }](t, w)
	assert.Len(t, body.Wards, 2)
}

func TestFormsFeedSummary(t *testing.T) {
	s := setupServer(t)
	nurseToken := s.token(nurse)

	w := s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-01", models.ShiftMorning, models.StatusFinal, 10), nurseToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-01", models.ShiftNight, models.StatusFinal, 12), nurseToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/summary?start=2024-01-01&end=2024-01-02", nil, s.token(supervisor))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[models.WardSetSummary](t, w)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "ICU", summary.Rows[0].WardID)
	assert.Equal(t, 12, summary.Rows[0].PatientCensus)
	assert.Equal(t, 4, summary.Rows[0].AdmitTotal)
	assert.False(t, summary.Rows[1].HasData)
	assert.Equal(t, models.GrandTotalWardID, summary.GrandTotal.WardID)
	assert.Equal(t, 12, summary.GrandTotal.PatientCensus)

	// defaults to today, which has no data
	w = s.do(http.MethodGet, "/api/summary?ward=ICU", nil, nurseToken)
	require.Equal(t, http.StatusOK, w.Code)
	summary = decode[models.WardSetSummary](t, w)
	assert.Equal(t, "2024-01-02", summary.Start)
	assert.Equal(t, "2024-01-02", summary.End)
	require.Len(t, summary.Rows, 1)
	assert.False(t, summary.Rows[0].HasData)
}

func TestCachedSummaryFollowsWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := cache.NewRedisKVStore(cache.NewRedisClient(mr.Addr(), "", 0))
	s := setupServerWith(t, dashboard.Options{Cache: kv, CacheTTL: time.Hour, MaxRangeDays: 366})
	token := s.token(supervisor)
	key := s.h.Auth.GenerateHMACKey("etl")
	require.NotEmpty(t, key)

	icuCensus := func() int {
		t.Helper()
		w := s.do(http.MethodGet, "/api/summary?ward=ICU&start=2024-01-02", nil, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return decode[models.WardSetSummary](t, w).Rows[0].PatientCensus
	}

	batch := map[string]any{"summaries": []map[string]any{
		{"ward_id": "ICU", "date": "2024-01-02", "morning": map[string]any{"patient_census": 30}},
	}}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/ingest/daily-summaries", batch, key).Code)
	assert.Equal(t, 30, icuCensus())

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-02", models.ShiftMorning, models.StatusFinal, 10), token).Code)
	assert.Equal(t, 10, icuCensus(), "live form replaces the cached daily summary")

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-02", models.ShiftNight, models.StatusFinal, 14), token).Code)
	assert.Equal(t, 14, icuCensus(), "night form replaces the cached morning value")

	w := s.do(http.MethodGet, "/api/forms?ward=ICU&date=2024-01-02&shift=night", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[database.WardForm](t, w).ID
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/forms/"+id+"/approve", nil, token).Code)
	assert.Equal(t, 14, icuCensus())

	w = s.do(http.MethodGet, "/api/trend?ward=ICU&start=2024-01-02", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 14, decode[models.TrendSeries](t, w).Points[0].TotalPatientCount)
}

func TestSummary_Errors(t *testing.T) {
	s := setupServer(t)
	nurseToken := s.token(nurse)

	w := s.do(http.MethodGet, "/api/summary?ward=CCU&start=2024-01-01", nil, nurseToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/summary?start=2024-01-05&end=2024-01-01", nil, nurseToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/summary?start=01/05/2024", nil, nurseToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormLockAndApprove(t *testing.T) {
	s := setupServer(t)
	nurseToken := s.token(nurse)

	w := s.do(http.MethodPost, "/api/forms", form("CCU", "2024-01-01", models.ShiftMorning, models.StatusDraft, 1), nurseToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-01", models.ShiftMorning, models.StatusFinal, 10), nurseToken)
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode[database.WardForm](t, w)

	w = s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-01", models.ShiftMorning, models.StatusDraft, 11), nurseToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/forms?ward=ICU&date=2024-01-01&shift=morning", nil, nurseToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, saved.ID, decode[database.WardForm](t, w).ID)

	w = s.do(http.MethodGet, "/api/forms?ward=ICU&date=2024-01-01&shift=night", nil, nurseToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/forms/"+saved.ID+"/approve", nil, nurseToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/forms/"+saved.ID+"/approve", nil, s.token(supervisor))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.StatusApproved), decode[database.WardForm](t, w).Status)

	w = s.do(http.MethodPost, "/api/forms/missing/approve", nil, s.token(supervisor))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportSummary(t *testing.T) {
	s := setupServer(t)
	token := s.token(supervisor)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-01", models.ShiftNight, models.StatusFinal, 7), token).Code)

	w := s.do(http.MethodGet, "/api/summary/export?start=2024-01-01&format=csv", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "census_2024-01-01_2024-01-01.csv")

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "ICU", records[1][0])
	assert.Equal(t, "7", records[1][2])
	assert.Equal(t, models.GrandTotalWardID, records[3][0])

	w = s.do(http.MethodGet, "/api/summary/export?start=2024-01-01&format=xlsx", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = s.do(http.MethodGet, "/api/summary/export?format=pdf", nil, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrendAndBeds(t *testing.T) {
	s := setupServer(t)
	token := s.token(supervisor)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/forms", form("ICU", "2024-01-02", models.ShiftNight, models.StatusFinal, 7), token).Code)

	w := s.do(http.MethodGet, "/api/trend?start=2024-01-01&end=2024-01-03", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	trend := decode[struct{ Points []models.TrendPoint }](t, w)
	require.Len(t, trend.Points, 3)
	assert.Equal(t, "2024-01-02", trend.Points[1].DateString)
	assert.Equal(t, 7, trend.Points[1].TotalPatientCount)
	assert.Equal(t, 0, trend.Points[2].TotalPatientCount)
	assert.Len(t, trend.Points[0].PerWard, 2)

	w = s.do(http.MethodGet, "/api/beds?start=2024-01-02", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	beds := decode[struct{ Slices []models.BedSlice }](t, w)
	require.Len(t, beds.Slices, 2)
	assert.Equal(t, 4, beds.Slices[0].Value)
	assert.False(t, beds.Slices[0].IsUnavailableMode)
}

func TestIngest(t *testing.T) {
	s := setupServer(t)
	key := s.h.Auth.GenerateHMACKey("etl")
	batch := map[string]any{
		"summaries": []map[string]any{
			{"ward_id": "ICU", "date": "2024-01-01", "night": map[string]any{"patient_census": 15}},
			{"ward_id": "CCU", "date": "2024-01-01", "morning": map[string]any{"patient_census": 5}},
		},
	}

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/ingest/daily-summaries", batch, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/ingest/daily-summaries", batch, "etl.bad").Code)

	w := s.do(http.MethodPost, "/ingest/validate", batch, key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["valid"])

	w = s.do(http.MethodPost, "/ingest/daily-summaries", batch, key)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode[map[string]any](t, w)["ingested"])

	w = s.do(http.MethodGet, "/api/summary?start=2024-01-01", nil, s.token(supervisor))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, decode[models.WardSetSummary](t, w).GrandTotal.PatientCensus)

	w = s.do(http.MethodGet, "/ingest/usage", nil, key)
	require.Equal(t, http.StatusOK, w.Code)
	usage := decode[struct {
		KeyName string `json:"key_name"`
		Totals  struct {
			Requests  int64 `json:"requests"`
			Summaries int64 `json:"summaries"`
		} `json:"totals"`
	}](t, w)
	assert.Equal(t, "etl", usage.KeyName)
	assert.Equal(t, int64(1), usage.Totals.Requests)
	assert.Equal(t, int64(2), usage.Totals.Summaries)

	bad := map[string]any{"summaries": []map[string]any{{"ward_id": "NOPE", "date": "2024-01-01", "night": map[string]any{}}}}
	w = s.do(http.MethodPost, "/ingest/validate", bad, key)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["valid"])

	w = s.do(http.MethodPost, "/ingest/daily-summaries", bad, key)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaleViewAnswersConflict(t *testing.T) {
	s := setupServer(t)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	s.h.respondError(c, dashboard.ErrStale)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["stale"])
}
