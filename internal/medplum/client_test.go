package medplum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL + "/fhir/R4", CallTimeout: 2 * time.Second}, StaticToken("tok"), srv.Client(), zerolog.Nop())
	return c, srv
}

func TestClient_Create(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/fhir/R4/Observation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != contentTypeFHIR {
			t.Errorf("expected %s, got %q", contentTypeFHIR, got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["resourceType"] != "Observation" {
			t.Errorf("expected Observation payload, got %v", body["resourceType"])
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"resourceType":"Observation","id":"obs-1"}`)
	})

	id, err := c.Create(context.Background(), "Observation", map[string]any{"resourceType": "Observation"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "obs-1" {
		t.Errorf("expected obs-1, got %s", id)
	}
}

func TestClient_Create_MissingID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"resourceType":"Observation"}`)
	})

	_, err := c.Create(context.Background(), "Observation", map[string]any{})
	var de *apperr.DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeserializationError, got %v", err)
	}
}

func TestClient_RemoteError_OperationOutcome(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"Invalid gender"}]}`)
	})

	_, err := c.Update(context.Background(), "Patient", "p1", map[string]any{})
	var re *apperr.RemoteCallError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteCallError, got %v", err)
	}
	if re.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", re.StatusCode)
	}
	if re.Diagnostics != "Invalid gender" {
		t.Errorf("expected diagnostics from outcome, got %q", re.Diagnostics)
	}
	if re.Method != http.MethodPut || re.Resource != "Patient/p1" {
		t.Errorf("unexpected method/resource %s %s", re.Method, re.Resource)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: base}, nil, nil, zerolog.Nop())
	err := c.Delete(context.Background(), "Condition", "c1")
	var re *apperr.RemoteCallError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteCallError, got %v", err)
	}
	if re.StatusCode != 0 {
		t.Errorf("expected no status for transport failure, got %d", re.StatusCode)
	}
}

func TestClient_UpdateAndDelete_RequireID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	var ve *apperr.ValidationError
	if _, err := c.Update(context.Background(), "Patient", "", map[string]any{}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError from Update, got %v", err)
	}
	if err := c.Delete(context.Background(), "Patient", ""); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError from Delete, got %v", err)
	}
}

func TestClient_Delete(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete || r.URL.Path != "/fhir/R4/Consent/k1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"resourceType":"OperationOutcome","issue":[{"severity":"information","code":"informational"}]}`)
	})

	if err := c.Delete(context.Background(), "Consent", "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected delete request")
	}
}

func TestClient_Search_FollowsNextLink(t *testing.T) {
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fhir/R4/Observation" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("_page") == "2" {
			io.WriteString(w, `{"resourceType":"Bundle","type":"searchset","entry":[{"resource":{"resourceType":"Observation","id":"o3"}}]}`)
			return
		}
		if r.URL.Query().Get("subject") != "Patient/p1" {
			t.Errorf("expected subject filter, got %q", r.URL.RawQuery)
		}
		io.WriteString(w, `{"resourceType":"Bundle","type":"searchset",
			"link":[{"relation":"next","url":"`+srvURL+`/fhir/R4/Observation?_page=2"}],
			"entry":[
				{"resource":{"resourceType":"Observation","id":"o1"},"search":{"mode":"match"}},
				{"resource":{"resourceType":"Observation","id":"o2"}},
				{"resource":{"resourceType":"Patient","id":"p1"},"search":{"mode":"include"}}
			]}`)
	})
	srvURL = srv.URL

	res, err := c.Search(context.Background(), "Observation", url.Values{"subject": {"Patient/p1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 resources, got %d", len(res))
	}
	if !strings.Contains(string(res[2]), `"o3"`) {
		t.Errorf("expected second page resource last, got %s", res[2])
	}
}

// linkedPages serves total one-resource pages chained by "next" links.
func linkedPages(t *testing.T, total int) (*Client, *int) {
	t.Helper()
	var srvURL string
	requests := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("_page"))
		if page == 0 {
			page = 1
		}
		link := ""
		if page < total {
			link = fmt.Sprintf(`"link":[{"relation":"next","url":"%s/fhir/R4/Observation?_page=%d"}],`, srvURL, page+1)
		}
		fmt.Fprintf(w, `{"resourceType":"Bundle","type":"searchset",%s"entry":[{"resource":{"resourceType":"Observation","id":"o%d"}}]}`, link, page)
	})
	srvURL = srv.URL
	return c, &requests
}

func TestClient_Search_TooManyPages(t *testing.T) {
	c, requests := linkedPages(t, 12)
	c.maxPages = 10

	res, err := c.Search(context.Background(), "Observation", nil)
	var re *apperr.RemoteCallError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteCallError, got %d resources, err=%v", len(res), err)
	}
	if !strings.Contains(re.Diagnostics, "10 pages") {
		t.Errorf("unexpected diagnostics %q", re.Diagnostics)
	}
	if *requests != 10 {
		t.Errorf("expected 10 page requests, got %d", *requests)
	}
}

func TestClient_Search_ReadsUpToPageLimit(t *testing.T) {
	c, _ := linkedPages(t, 10)
	c.maxPages = 10

	res, err := c.Search(context.Background(), "Observation", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 10 {
		t.Errorf("expected 10 resources, got %d", len(res))
	}
}

func TestClient_SearchPage_FirstPageOnly(t *testing.T) {
	c, requests := linkedPages(t, 3)

	res, err := c.SearchPage(context.Background(), "Observation", url.Values{"_count": {"1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 1 || *requests != 1 {
		t.Errorf("expected one page, got %d resources over %d requests", len(res), *requests)
	}
}

func TestClient_Search_ForeignNextLink(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"resourceType":"Bundle","type":"searchset",
			"link":[{"relation":"next","url":"https://elsewhere.test/other/Observation?_page=2"}],
			"entry":[{"resource":{"resourceType":"Observation","id":"o1"}}]}`)
	})

	_, err := c.Search(context.Background(), "Observation", nil)
	var de *apperr.DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeserializationError, got %v", err)
	}
}

func TestClient_Search_BadBundle(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"resourceType":"Bundle","entry":`)
	})

	_, err := c.Search(context.Background(), "Condition", nil)
	var de *apperr.DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeserializationError, got %v", err)
	}
}

func TestClient_PerCallTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c.callTimeout = 50 * time.Millisecond

	_, err := c.Create(context.Background(), "Observation", map[string]any{})
	var re *apperr.RemoteCallError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteCallError on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
