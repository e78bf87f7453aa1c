package evs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	logger "github.com/Financial-Times/go-logger"
	"github.com/pkg/errors"
)

const conceptPath = "/evsrestapi/api/v1/ctrp/concept/%s/"

type httpClient interface {
	Do(req *http.Request) (resp *http.Response, err error)
}

// Client reads single concepts from the EVS REST API.
type Client interface {
	GetConcept(ctx context.Context, code string) (*Concept, error)
	Healthcheck() fthealth.Check
}

type APIClient struct {
	address    *url.URL
	httpClient httpClient
	healthCode string
}

// NewClient returns a client for the EVS instance at address. healthCode is the
// concept read by the healthcheck.
func NewClient(address string, client httpClient, healthCode string) (Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("evs address %q must be absolute", address)
	}
	return &APIClient{
		address:    u,
		httpClient: client,
		healthCode: healthCode,
	}, nil
}

func (c *APIClient) GetConcept(ctx context.Context, code string) (*Concept, error) {
	respBody, status, err := c.makeRequest(ctx, "GET", fmt.Sprintf(conceptPath, code))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithError(err).WithField("code", code).Error("Could not get concept")
		return nil, &ServerError{Code: code, Message: err.Error(), cause: err}
	}

	if status == http.StatusNotFound {
		logger.WithField("code", code).Debug("Concept not found in EVS")
		return nil, notFound(code)
	}

	if status != http.StatusOK {
		msg := errorMessage(respBody)
		logger.WithField("code", code).WithField("status", status).Errorf("Could not get concept, invalid status: %s", msg)
		return nil, &ServerError{Code: code, Status: status, Message: msg}
	}

	concept := &Concept{}
	if err := json.Unmarshal(respBody, concept); err != nil {
		return nil, &ServerError{Code: code, Status: status, Message: "malformed concept payload: " + err.Error(), cause: err}
	}
	if concept.Code == "" {
		concept.Code = code
	}
	return concept, nil
}

// errorMessage pulls the "error" field out of an EVS error body, falling back to
// the raw body.
func errorMessage(body []byte) string {
	payload := struct {
		Error string `json:"error"`
	}{}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "no message"
	}
	return msg
}

func (c *APIClient) Healthcheck() fthealth.Check {
	return fthealth.Check{
		Name:           "EVS concept API is accessible",
		BusinessImpact: "Thesaurus mappings cannot be extracted",
		ID:             "evs-api-check",
		Severity:       2,
		PanicGuide:     "https://dewey.in.ft.com/view/system/thesaurus-mapping-extractor",
		TechnicalSummary: "The EVS REST API did not return the healthcheck concept. Check that the address is correct and " +
			"the service is up.",
		Timeout: 10 * time.Second,
		Checker: func() (string, error) {
			_, status, err := c.makeRequest(context.Background(), "GET", fmt.Sprintf(conceptPath, c.healthCode))
			if err != nil {
				errMsg := "failed to request healthcheck concept from EVS"
				return errMsg, errors.New(errMsg)
			}
			if status != http.StatusOK {
				errMsg := fmt.Sprintf("bad status %d from EVS for concept %s", status, c.healthCode)
				return errMsg, errors.New(errMsg)
			}
			return "", nil
		},
	}
}

func (c *APIClient) makeRequest(ctx context.Context, method string, path string) ([]byte, int, error) {
	finalURL := *c.address
	finalURL.Path = strings.TrimRight(finalURL.Path, "/") + path

	req, err := http.NewRequest(method, finalURL.String(), bytes.NewReader(nil))
	if err != nil {
		return nil, 0, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer resp.Body.Close()
	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	return respBody, resp.StatusCode, err
}
