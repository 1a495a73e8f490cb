// handlers/router_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gewnthar/favdemand/database"
	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/services"
	"github.com/gewnthar/favdemand/utils"
	"github.com/gin-gonic/gin"
)

const testCSV = "Название товара,Бренд,Ссылка на товар,Категория 1 уровня,Количество добавлений в избранное,Последнее появление в наличии\n" +
	"Phone,Apple,https://example.com/1,Электроника,100,2021-03-01\n" +
	"Kettle,Bosch,https://example.com/2,Дом и сад,20,\n"

var phoneID = utils.ProductID("Phone", "Apple", "https://example.com/1")

// newTestRouter wires the full stack over one CSV file and an embedded SQLite cache.
func newTestRouter(t *testing.T, rps float64, burst int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := utils.NewNopLogger()

	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "favorites-06_03_2021-04_04_2021.csv"), []byte(testCSV), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := database.NewCacheStore(db, database.DialectSQLite, false, log)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	ingest := services.NewIngestionService(services.IngestionOptions{DataDir: dataDir, Extensions: []string{".csv"}, Workers: 1}, store, log)
	loader := services.NewLoader(ingest, services.NewPlaceholderGenerator(rand.New(rand.NewSource(1)), nil), services.LoaderOptions{PlaceholderCount: 10}, log)
	if _, err := loader.Reload(ctx, true); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	// The reload filled the cache, so startup is a cache hit with no background work.
	loader.Start(ctx)
	t.Cleanup(loader.Stop)

	return NewRouter(RouterConfig{
		Products:       services.NewProductService(loader, store, log),
		Analytics:      services.NewAnalyticsService(loader, nil, log),
		Log:            log,
		CORSOrigins:    []string{"*"},
		AdminRateLimit: rps,
		AdminRateBurst: burst,
	})
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, status, rec.Body.String())
	}
	var env ErrorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != code || env.Error.Message == "" {
		t.Errorf("error = %+v, want code %s", env.Error, code)
	}
}

func TestProductRoutes(t *testing.T) {
	r := newTestRouter(t, 0, 0)

	rec := do(t, r, http.MethodGet, "/api/products?page_size=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list models.ProductListResponse
	decode(t, rec, &list)
	if list.Total != 2 || list.TotalPages != 2 || len(list.Products) != 1 || list.Products[0].Name != "Phone" {
		t.Errorf("list = %+v", list)
	}
	if list.Products[0].PeriodStart == nil || list.Products[0].PeriodStart.Format(dateLayout) != "2021-03-06" {
		t.Errorf("period_start = %v", list.Products[0].PeriodStart)
	}

	rec = do(t, r, http.MethodGet, "/api/products/"+phoneID, nil)
	var p models.ProductRecord
	decode(t, rec, &p)
	if rec.Code != http.StatusOK || p.Brand != "Apple" || p.FavoritesCount != 100 {
		t.Errorf("get = %d %+v", rec.Code, p)
	}

	expectError(t, do(t, r, http.MethodGet, "/api/products/nope", nil), http.StatusNotFound, "not_found")
	expectError(t, do(t, r, http.MethodGet, "/api/products?period_start=06.03.2021", nil), http.StatusBadRequest, "invalid_argument")
	expectError(t, do(t, r, http.MethodGet, "/api/products?page_size=5000", nil), http.StatusBadRequest, "invalid_argument")

	rec = do(t, r, http.MethodGet, "/api/products/categories", nil)
	var cats []string
	decode(t, rec, &cats)
	if len(cats) != 2 {
		t.Errorf("categories = %v", cats)
	}
	rec = do(t, r, http.MethodGet, "/api/products/brands?category="+url.QueryEscape("Электроника"), nil)
	var brands []string
	decode(t, rec, &brands)
	if len(brands) != 1 || brands[0] != "Apple" {
		t.Errorf("brands = %v", brands)
	}
}

func TestAnalyticsRoutes(t *testing.T) {
	r := newTestRouter(t, 0, 0)

	rec := do(t, r, http.MethodGet, "/api/analytics/demand/top?limit=1", nil)
	var top []models.DemandMetric
	decode(t, rec, &top)
	if rec.Code != http.StatusOK || len(top) != 1 || top[0].ProductID != phoneID || top[0].FavoritesCount != 100 {
		t.Errorf("top = %d %+v", rec.Code, top)
	}

	rec = do(t, r, http.MethodGet, "/api/analytics/stock/out-of-stock?min_days=15", nil)
	var oos []models.OutOfStockProduct
	decode(t, rec, &oos)
	if len(oos) != 1 || oos[0].ProductID != phoneID || oos[0].PriorityScore != 100 {
		t.Errorf("out of stock = %+v", oos)
	}

	rec = do(t, r, http.MethodGet, "/api/analytics/demand/trends?group_by=brand", nil)
	var trends []models.TrendPoint
	decode(t, rec, &trends)
	if len(trends) != 2 || trends[0].Period != "2021-03" {
		t.Errorf("trends = %+v", trends)
	}

	for _, path := range []string{
		"/api/analytics/timeseries?period=week",
		"/api/analytics/pricing-metrics",
		"/api/analytics/price-comparison?min_favorites=50",
	} {
		if rec := do(t, r, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
	expectError(t, do(t, r, http.MethodGet, "/api/analytics/demand/top?limit=0", nil), http.StatusBadRequest, "invalid_argument")
	expectError(t, do(t, r, http.MethodGet, "/api/analytics/price-comparison?min_favorites=-3", nil), http.StatusBadRequest, "invalid_argument")
}

func TestAdminRoutes(t *testing.T) {
	r := newTestRouter(t, 0, 0)

	rec := do(t, r, http.MethodPost, "/api/cache/products", map[string]interface{}{"name": "Lamp", "favorites_count": 7})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d (%s)", rec.Code, rec.Body.String())
	}
	expectError(t, do(t, r, http.MethodPost, "/api/cache/products", map[string]interface{}{"name": "Lamp"}), http.StatusConflict, "already_exists")
	expectError(t, do(t, r, http.MethodPost, "/api/cache/products", map[string]interface{}{"brand": "NoName"}), http.StatusBadRequest, "invalid_argument")

	rec = do(t, r, http.MethodPut, "/api/cache/products/"+phoneID, map[string]interface{}{"favorites_count": 5})
	if rec.Code != http.StatusOK {
		t.Errorf("update status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodDelete, "/api/cache/products/"+phoneID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}
	expectError(t, do(t, r, http.MethodGet, "/api/products/"+phoneID, nil), http.StatusNotFound, "not_found")
	expectError(t, do(t, r, http.MethodDelete, "/api/cache/products", map[string]interface{}{"product_ids": []string{}}), http.StatusBadRequest, "invalid_argument")

	rec = do(t, r, http.MethodGet, "/api/cache/stats", nil)
	var stats models.CacheStats
	decode(t, rec, &stats)
	if stats.TotalProducts != 2 || stats.UsingPlaceholder {
		t.Errorf("stats = %+v", stats)
	}

	rec = do(t, r, http.MethodPost, "/api/cache/reload?force=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d (%s)", rec.Code, rec.Body.String())
	}
	var reload struct {
		TotalProducts int `json:"total_products"`
	}
	decode(t, rec, &reload)
	if reload.TotalProducts != 2 {
		t.Errorf("reloaded rows = %d", reload.TotalProducts)
	}
	if rec := do(t, r, http.MethodGet, "/api/products/"+phoneID, nil); rec.Code != http.StatusOK {
		t.Errorf("reload should restore deleted row, status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/api/cache/clear", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
	rec = do(t, r, http.MethodGet, "/api/status", nil)
	var st models.LoaderStatus
	decode(t, rec, &st)
	if st.State != services.StateEmpty || st.TotalProducts != 0 {
		t.Errorf("status after clear = %+v", st)
	}
}

func TestAdminRateLimit(t *testing.T) {
	r := newTestRouter(t, 0.001, 1)

	if rec := do(t, r, http.MethodPost, "/api/cache/clear", nil); rec.Code != http.StatusOK {
		t.Fatalf("first clear status = %d", rec.Code)
	}
	expectError(t, do(t, r, http.MethodPost, "/api/cache/clear", nil), http.StatusTooManyRequests, "rate_limited")
	if rec := do(t, r, http.MethodGet, "/api/cache/stats", nil); rec.Code != http.StatusOK {
		t.Errorf("stats should not be limited, status = %d", rec.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	r := newTestRouter(t, 0, 0)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
	var body struct {
		Status     string `json:"status"`
		CacheReady bool   `json:"cache_ready"`
	}
	decode(t, rec, &body)
	if body.Status != "ok" || !body.CacheReady {
		t.Errorf("health = %+v", body)
	}
}
