package health

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/go-logger"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
)

func init() {
	logger.InitLogger("test-thesaurus-mapping-extractor", "error")
}

type mockStats struct {
	stats evs.StoreStats
}

func (m mockStats) Stats() evs.StoreStats {
	return m.stats
}

func passingCheck() fthealth.Check {
	return fthealth.Check{
		ID:   "passing",
		Name: "Passing check",
		Checker: func() (string, error) {
			return "", nil
		},
	}
}

func failingCheck() fthealth.Check {
	return fthealth.Check{
		ID:   "failing",
		Name: "Failing check",
		Checker: func() (string, error) {
			return "", errors.New("GTG fail error")
		},
	}
}

func TestHandlers(t *testing.T) {
	testCases := []struct {
		name         string
		method       string
		url          string
		resultCode   int
		resultBody   string
		healthchecks []fthealth.Check
	}{
		{
			"GTG - Success",
			"GET",
			"/__gtg",
			200,
			"OK",
			[]fthealth.Check{passingCheck()},
		},
		{
			"GTG - Failure",
			"GET",
			"/__gtg",
			503,
			"GTG fail error",
			[]fthealth.Check{passingCheck(), failingCheck()},
		},
		{
			"Stats - Success",
			"GET",
			"/stats",
			200,
			"{\"RemoteReads\":3,\"CacheHits\":5,\"LookasideHits\":0,\"NotFound\":1,\"Errors\":0}\n",
			nil,
		},
		{
			"Stats - Wrong method",
			"POST",
			"/stats",
			405,
			"IGNORE",
			nil,
		},
		{
			"Unknown path",
			"GET",
			"/concept/C7057",
			404,
			"IGNORE",
			nil,
		},
	}

	for _, d := range testCases {
		t.Run(d.name, func(t *testing.T) {
			hs := NewHealthService("thesaurus-mapping-extractor", "thesaurus-mapping-extractor", "description", d.healthchecks...)
			stats := mockStats{stats: evs.StoreStats{RemoteReads: 3, CacheHits: 5, NotFound: 1}}
			m := RegisterHandlers(hs, stats, metrics.NewRegistry(), true)

			req, _ := http.NewRequest(d.method, d.url, nil)
			rr := httptest.NewRecorder()
			m.ServeHTTP(rr, req)

			b, err := ioutil.ReadAll(rr.Body)
			assert.NoError(t, err)
			assert.Equal(t, d.resultCode, rr.Code, d.name)
			if d.resultBody != "IGNORE" {
				assert.Equal(t, d.resultBody, string(b), d.name)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	hs := NewHealthService("thesaurus-mapping-extractor", "Thesaurus Mapping Extractor", "Extracts NCI Thesaurus mappings", passingCheck(), failingCheck())
	m := RegisterHandlers(hs, mockStats{}, nil, false)

	req, _ := http.NewRequest("GET", "/__health", nil)
	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var result struct {
		SystemCode string `json:"systemCode"`
		Ok         bool   `json:"ok"`
		Checks     []struct {
			ID string `json:"id"`
			Ok bool   `json:"ok"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "thesaurus-mapping-extractor", result.SystemCode)
	assert.False(t, result.Ok)
	assert.Len(t, result.Checks, 2)
}

func TestGtgCheck(t *testing.T) {
	ok, msg := NewHealthService("code", "name", "desc").GtgCheck()
	assert.True(t, ok)
	assert.Equal(t, "OK", msg)

	ok, msg = NewHealthService("code", "name", "desc", fthealth.Check{
		Checker: func() (string, error) { return "bucket unreachable", errors.New("403") },
	}).GtgCheck()
	assert.False(t, ok)
	assert.Equal(t, "bucket unreachable", msg)
}
