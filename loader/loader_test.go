package loader_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmatyushin/medsil-equipment-base/database"
	"github.com/bbmatyushin/medsil-equipment-base/loader"
	"github.com/bbmatyushin/medsil-equipment-base/testutil"
)

const supplyCSV = "article,name,count,expiration_dt\n" +
	"F-1,Filter,4,2025-01-01\n" +
	"F-1,Filter,1,\n" +
	"L-9,Lamp,10,\n"

func TestInitDatabaseIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, loader.InitDatabase(db))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM code_sequences WHERE name = 'SUPPLY'`))
	assert.Equal(t, 1, n)
}

func TestLoadSupplies(t *testing.T) {
	db := testutil.NewDB(t)

	res, err := loader.LoadSupplies(db, strings.NewReader(supplyCSV), "utf-8")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Empty(t, res.Errors)

	parts, err := database.ListSpareParts(db)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	filter := parts[0]
	assert.Equal(t, "Filter", filter.Name)
	assert.Equal(t, 4.0, testutil.StockAmount(t, db, filter.ID, "2025-01-01"))
	assert.Equal(t, 1.0, testutil.StockAmount(t, db, filter.ID, ""))
}

func TestLoadSupplyFile(t *testing.T) {
	db := testutil.NewDB(t)
	path := filepath.Join(t.TempDir(), "supplies.csv")
	require.NoError(t, os.WriteFile(path, []byte(supplyCSV), 0644))

	res, err := loader.LoadSupplyFile(db, path, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	_, err = loader.LoadSupplyFile(db, filepath.Join(t.TempDir(), "missing.csv"), "")
	assert.Error(t, err)
}

func multipartBody(t *testing.T, content, encoding string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "supplies.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if encoding != "" {
		require.NoError(t, mw.WriteField("encoding", encoding))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestImportSuppliesHandler(t *testing.T) {
	db := testutil.NewDB(t)
	h := loader.ImportSuppliesHandler(db)

	body, ctype := multipartBody(t, supplyCSV, "utf-8")
	req := httptest.NewRequest(http.MethodPost, "/api/supplies/import", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Message string              `json:"message"`
		Results loader.ImportResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Results.Imported)
	assert.Contains(t, resp.Message, "3 supplies")
}

func TestImportSuppliesHandlerRejects(t *testing.T) {
	db := testutil.NewDB(t)
	h := loader.ImportSuppliesHandler(db)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/supplies/import", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	body, ctype := multipartBody(t, "unrelated,header\n1,2\n", "")
	req := httptest.NewRequest(http.MethodPost, "/api/supplies/import", body)
	req.Header.Set("Content-Type", ctype)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
