package modelapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestBuildPaths(t *testing.T) {
	got := BuildPaths("http://host:9000/", "1.0", "status", "state")
	want := []string{
		"http://host:9000/api/1.0/status/state",
		"http://host:9000/status/state",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("BuildPaths = %v, want %v", got, want)
	}

	if paths := BuildPaths("", "1.0", "status", "state"); paths != nil {
		t.Fatalf("empty base url should yield no paths: %v", paths)
	}
	if paths := BuildPaths("http://host", "1.0", "status", ""); paths != nil {
		t.Fatalf("empty param should yield no paths: %v", paths)
	}
}

func TestStatusGetFallsBackToUnversionedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status/state" {
			_, _ = w.Write([]byte(`{"state":"running","model_name":"ssd","fps":24.5}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	code, body := StatusGet(context.Background(), srv.URL, "1.0", "state")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body == "" {
		t.Fatal("empty status body")
	}
}

func TestFetchStatusParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"state":"running","model_name":"ssd","fps":24.5}`))
	}))
	defer srv.Close()

	st := fetchStatus(context.Background(), srv.URL, "")
	if !st.Reachable || st.State != "running" || st.ModelName != "ssd" || st.FPS != 24.5 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestFetchStatusBareString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"idle"`))
	}))
	defer srv.Close()

	st := fetchStatus(context.Background(), srv.URL, "")
	if !st.Reachable || st.State != "idle" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestFetchStatusUnreachable(t *testing.T) {
	st := fetchStatus(context.Background(), "http://127.0.0.1:1", "")
	if st.Reachable || st.State != "unknown" {
		t.Fatalf("unexpected status for dead endpoint: %+v", st)
	}
}

func TestConfigSetMissingArgs(t *testing.T) {
	if code, _ := ConfigSet(context.Background(), "", "", "threshold", 0.4); code != http.StatusBadRequest {
		t.Fatalf("missing base url accepted: %d", code)
	}
	if code, _ := ConfigSet(context.Background(), "http://host", "", "", 0.4); code != http.StatusBadRequest {
		t.Fatalf("missing param accepted: %d", code)
	}
}

func TestCommandAsyncValidation(t *testing.T) {
	if err := CommandAsync("", "", "reload"); err != ErrMissingBaseURL {
		t.Fatalf("err = %v, want ErrMissingBaseURL", err)
	}
	if err := CommandAsync("http://host", "", ""); err != ErrMissingParameter {
		t.Fatalf("err = %v, want ErrMissingParameter", err)
	}
}
