package batchclient

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmatyushin/medsil-equipment-base/model"
)

const (
	serviceID = "5f0c8f7a-3b1e-4c6d-9a2b-7e8f9a0b1c2d"
	partID    = "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d"
)

var quietLogger = log.New(io.Discard, "", 0)

func TestRecordIDFromPath(t *testing.T) {
	assert.Equal(t, serviceID, RecordIDFromPath("/admin/service/"+serviceID+"/change/"))
	assert.Equal(t, "", RecordIDFromPath("/admin/service/add/"))
	assert.Equal(t, serviceID, RecordIDFromPath("/admin/service/"+"5F0C8F7A-3B1E-4C6D-9A2B-7E8F9A0B1C2D"+"/change/"))
}

func TestBatchURL(t *testing.T) {
	c := NewClient("http://example.test/", "/admin/service/"+serviceID+"/change/", "tok")
	assert.Equal(t, "http://example.test/admin/get-spare-part-quantity/"+serviceID+"/"+partID+"/", c.BatchURL(partID))

	c = NewClient("http://example.test", "/admin/service/add/", "tok")
	assert.Equal(t, "", c.RecordID())
	assert.Equal(t, "http://example.test/admin/get-spare-part-quantity/null/"+partID+"/", c.BatchURL(partID))
}

func TestFetchBatchesSendsCSRFAndDecodes(t *testing.T) {
	var gotHeader, gotCookie, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-CSRFToken")
		if c, err := r.Cookie("csrftoken"); err == nil {
			gotCookie = c.Value
		}
		exp := "2025-01-01"
		count := 2.0
		json.NewEncoder(w).Encode(model.BatchResponse{Results: []model.BatchDescriptor{
			{ID: partID, Name: "Filter (exp. 2025-01-01)", Quantity: 5, ExpirationDt: &exp, ServicePartCount: &count},
			{ID: partID, Name: "Filter", Quantity: 3},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/admin/service/"+serviceID+"/change/", "secret", WithLogger(quietLogger))
	descs, err := c.FetchBatches(context.Background(), partID)
	require.NoError(t, err)

	assert.Equal(t, EndpointPrefix+serviceID+"/"+partID+"/", gotPath)
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, "secret", gotCookie)
	require.Len(t, descs, 2)
	assert.Equal(t, 5.0, descs[0].Quantity)
	require.NotNil(t, descs[0].ServicePartCount)
	assert.Equal(t, 2.0, *descs[0].ServicePartCount)
	assert.Nil(t, descs[1].ExpirationDt)
	assert.Nil(t, descs[1].ServicePartCount)
}

func TestFetchBatchesDegradesToEmpty(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"forbidden": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "csrf", http.StatusForbidden)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>")
		},
		"no results": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{}`)
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewClient(srv.URL, "/admin/service/add/", "", WithLogger(quietLogger))
			descs, err := c.FetchBatches(context.Background(), partID)
			require.NoError(t, err)
			assert.NotNil(t, descs)
			assert.Empty(t, descs)
		})
	}
}

func TestFetchBatchesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "/", "", WithLogger(quietLogger), WithTimeout(time.Second))
	descs, err := c.FetchBatches(context.Background(), partID)
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestFetchBatchesCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(srv.URL, "/", "", WithLogger(quietLogger))
	_, err := c.FetchBatches(ctx, partID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchBatchesSharesInflightRequests(t *testing.T) {
	var (
		mu    sync.Mutex
		hits  int
		start = make(chan struct{})
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		<-start
		io.WriteString(w, `{"results":[{"id":"`+partID+`","name":"x","quantity":1,"expiration_dt":null}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "/", "", WithLogger(quietLogger))
	var wg sync.WaitGroup
	results := make([][]model.BatchDescriptor, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.FetchBatches(context.Background(), partID)
		}(i)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hits == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()
	for _, r := range results {
		assert.Len(t, r, 1)
	}
}

func TestFetchBatchesCancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		io.WriteString(w, `{"results":[{"id":"`+partID+`","name":"Filter","quantity":4,"expiration_dt":null}]}`)
	}))
	defer srv.Close()
	var once sync.Once
	free := func() { once.Do(func() { close(release) }) }
	defer free()

	c := NewClient(srv.URL, "/", "", WithLogger(quietLogger))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchBatches(firstCtx, partID)
		firstErr <- err
	}()
	<-entered

	second := make(chan []model.BatchDescriptor, 1)
	go func() {
		descs, _ := c.FetchBatches(context.Background(), partID)
		second <- descs
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	free()
	select {
	case descs := <-second:
		require.Len(t, descs, 1)
		assert.Equal(t, 4.0, descs[0].Quantity)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not get the shared result")
	}
}
