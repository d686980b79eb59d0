package sparepart_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bbmatyushin/medsil-equipment-base/config"
	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/model"
	"github.com/bbmatyushin/medsil-equipment-base/sparepart"
	"github.com/bbmatyushin/medsil-equipment-base/testutil"
)

const token = "0123456789abcdef0123456789abcdef"

func useConfig(t *testing.T, csrf bool) {
	t.Helper()
	old := config.Path()
	config.SetPath(filepath.Join(t.TempDir(), "ebase_config.json"))
	cfg := config.Default()
	cfg.CSRFCheck = csrf
	require.NoError(t, config.SaveConfig(cfg))
	t.Cleanup(func() {
		config.SetPath(old)
		config.SaveConfig(config.Default())
	})
}

type fixture struct {
	db      *sqlx.DB
	mux     *http.ServeMux
	service string
	filter  string
	lamp    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:      db,
		service: testutil.SeedService(t, db, "pump repair"),
		filter:  testutil.SeedPart(t, db, "F-1", "Filter"),
		lamp:    testutil.SeedPart(t, db, "L-9", "Lamp"),
	}
	testutil.SeedStock(t, db, f.filter, "2025-01-01", 5)
	testutil.SeedStock(t, db, f.filter, "", 3)
	testutil.SeedStock(t, db, f.lamp, "", 10)

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("/admin/get-spare-part-quantity/", sparepart.GetBatchesHandler(db))
	f.mux.HandleFunc("/admin/service/", sparepart.ServiceHandler(db))
	f.mux.HandleFunc("/api/spare-parts", sparepart.ListSparePartsHandler(db))
	f.mux.HandleFunc("/api/supplies/", sparepart.SuppliesHandler(db))
	f.mux.HandleFunc("/api/shipments/", sparepart.ShipmentsHandler(db))
	f.mux.HandleFunc("/api/stock", sparepart.StockHandler(db))
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: token})
	req.Header.Set("X-CSRFToken", token)
	return req
}

func (f *fixture) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: token})
	return f.do(req)
}

func TestGetBatchesHandler(t *testing.T) {
	useConfig(t, true)
	f := newFixture(t)
	testutil.SeedAllocation(t, f.db, f.service, f.filter, "2025-01-01", 2)

	path := "/admin/get-spare-part-quantity/" + f.service + "/" + f.filter + "/"

	rec := f.do(httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(withCSRF(httptest.NewRequest(http.MethodGet, path, nil)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "2025-01-01", *resp.Results[0].ExpirationDt)
	assert.Equal(t, 5.0, resp.Results[0].Quantity)
	assert.Equal(t, 2.0, *resp.Results[0].ServicePartCount)
	assert.Nil(t, resp.Results[1].ExpirationDt)
}

func TestGetBatchesHandlerPaths(t *testing.T) {
	useConfig(t, false)
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/get-spare-part-quantity/null/"+f.lamp+"/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"service_part_count":0`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/get-spare-part-quantity/null/3f1d2c4b-0000-4000-8000-000000000000/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/get-spare-part-quantity/null/not-a-uuid/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/get-spare-part-quantity/bogus/"+f.lamp+"/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/get-spare-part-quantity/"+f.lamp+"/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/admin/get-spare-part-quantity/null/"+f.lamp+"/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChangePageGET(t *testing.T) {
	useConfig(t, true)
	f := newFixture(t)
	testutil.SeedAllocation(t, f.db, f.service, f.lamp, "", 1)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/service/"+f.service+"/change/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `id="id_spare_part_to"`)
	assert.Contains(t, body, `<option value="`+f.lamp+`" selected>`)
	assert.Contains(t, body, `name="spare_part_quantities[0]"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "csrftoken", cookies[0].Name)
	assert.Contains(t, body, cookies[0].Value)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/service/3f1d2c4b-0000-4000-8000-000000000000/change/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/service/123/change/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func allocationField(id string, qty float64, exp string) string {
	a := model.Allocation{ID: id, Quantity: qty}
	if exp != "" {
		a.ExpirationDt = &exp
	}
	b, _ := json.Marshal(a)
	return string(b)
}

func TestChangePagePOSTAppliesAllocations(t *testing.T) {
	useConfig(t, true)
	f := newFixture(t)

	rec := f.post(t, "/admin/service/"+f.service+"/change/", url.Values{
		"csrfmiddlewaretoken":      {token},
		"description":              {"replaced filter"},
		"spare_part":               {f.filter, f.lamp},
		"spare_part_quantities[0]": {allocationField(f.filter, 2, "2025-01-01")},
		"spare_part_quantities[1]": {allocationField(f.lamp, 3, "")},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/admin/service/"+f.service+"/change/?msg="))

	assert.Equal(t, 3.0, testutil.StockAmount(t, f.db, f.filter, "2025-01-01"))
	assert.Equal(t, 7.0, testutil.StockAmount(t, f.db, f.lamp, ""))
	svc, err := database.GetService(f.db, f.service)
	require.NoError(t, err)
	assert.Equal(t, "replaced filter", svc.Description)
}

func TestChangePagePOSTDropsDeselectedParts(t *testing.T) {
	useConfig(t, false)
	f := newFixture(t)

	rec := f.post(t, "/admin/service/"+f.service+"/change/", url.Values{
		"spare_part":               {f.lamp},
		"spare_part_quantities[0]": {allocationField(f.filter, 2, "2025-01-01")},
		"spare_part_quantities[1]": {allocationField(f.lamp, 1, "")},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	committed, err := database.GetCommittedAllocations(f.db, f.service)
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, f.lamp, committed[0].ID)
	assert.Equal(t, 5.0, testutil.StockAmount(t, f.db, f.filter, "2025-01-01"))
}

func TestChangePagePOSTErrors(t *testing.T) {
	useConfig(t, true)
	f := newFixture(t)
	path := "/admin/service/" + f.service + "/change/"

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(url.Values{
		"spare_part_quantities[0]": {allocationField(f.lamp, 1, "")},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	rec := f.post(t, path, url.Values{
		"csrfmiddlewaretoken":      {token},
		"spare_part_quantities[0]": {`{"id":`},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.post(t, path, url.Values{
		"csrfmiddlewaretoken":      {token},
		"spare_part_quantities[0]": {allocationField(f.lamp, 1, "")},
		"spare_part_quantities[1]": {allocationField(f.filter, 4, "")},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 10.0, testutil.StockAmount(t, f.db, f.lamp, ""))
	assert.Equal(t, 3.0, testutil.StockAmount(t, f.db, f.filter, ""))
}

func TestAddServiceAndIndex(t *testing.T) {
	useConfig(t, true)
	f := newFixture(t)

	rec := f.post(t, "/admin/service/add/", url.Values{"csrfmiddlewaretoken": {token}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc := rec.Header().Get("Location")
	assert.True(t, strings.HasSuffix(loc, "/change/"))

	rec = f.do(httptest.NewRequest(http.MethodGet, loc, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/admin/service/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), strings.TrimSuffix(loc, "/change/"))
	assert.Contains(t, rec.Body.String(), f.service)
}

func TestListSparePartsHandler(t *testing.T) {
	useConfig(t, false)
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/spare-parts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var parts []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parts))
	require.Len(t, parts, 2)
	assert.Equal(t, "Filter", parts[0]["name"])
}

func TestExportAllocations(t *testing.T) {
	useConfig(t, false)
	f := newFixture(t)
	testutil.SeedAllocation(t, f.db, f.service, f.filter, "2025-01-01", 2)
	testutil.SeedAllocation(t, f.db, f.service, f.lamp, "", 1.5)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/admin/service/"+f.service+"/spare-parts/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))

	wb, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Spare parts")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Spare part ID", "Name", "Article", "Expiration", "Quantity", "Unit"}, rows[0])
	assert.Equal(t, "Filter", rows[1][1])
	assert.Equal(t, "2025-01-01", rows[1][3])
	assert.Equal(t, "2", rows[1][4])
	assert.Equal(t, "Lamp", rows[2][1])
	assert.Equal(t, "1.5", rows[2][4])
}
