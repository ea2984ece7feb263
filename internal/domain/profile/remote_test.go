package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type call struct {
	Op           string
	ResourceType string
	ID           string
	Payload      any
}

// fakeRemote records every mutation in order and serves searches from a
// per-resource-type table.
type fakeRemote struct {
	calls    []call
	searched []string
	searches []url.Values
	results  map[string][]json.RawMessage
	failAt   int // 1-based mutation index that fails; 0 never fails
	failErr  error
	nextID   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{results: make(map[string][]json.RawMessage)}
}

func (f *fakeRemote) seed(t *testing.T, resourceType string, resources ...any) {
	t.Helper()
	for _, r := range resources {
		b, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal %s: %v", resourceType, err)
		}
		f.results[resourceType] = append(f.results[resourceType], b)
	}
}

func (f *fakeRemote) mutate(c call) error {
	f.calls = append(f.calls, c)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("remote unavailable")
	}
	return nil
}

func (f *fakeRemote) Create(_ context.Context, resourceType string, payload any) (string, error) {
	if err := f.mutate(call{Op: "create", ResourceType: resourceType, Payload: payload}); err != nil {
		return "", err
	}
	f.nextID++
	return fmt.Sprintf("new-%d", f.nextID), nil
}

func (f *fakeRemote) Update(_ context.Context, resourceType, id string, payload any) (string, error) {
	if err := f.mutate(call{Op: "update", ResourceType: resourceType, ID: id, Payload: payload}); err != nil {
		return "", err
	}
	return id, nil
}

func (f *fakeRemote) Delete(_ context.Context, resourceType, id string) error {
	return f.mutate(call{Op: "delete", ResourceType: resourceType, ID: id})
}

func (f *fakeRemote) Search(_ context.Context, resourceType string, query url.Values) ([]json.RawMessage, error) {
	f.searched = append(f.searched, resourceType)
	f.searches = append(f.searches, query)
	return f.results[resourceType], nil
}

func (f *fakeRemote) ops() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op + " " + c.ResourceType + "/" + c.ID
	}
	return out
}

func assertOps(t *testing.T, f *fakeRemote, want ...string) {
	t.Helper()
	got := f.ops()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func ptr[T any](v T) *T { return &v }
