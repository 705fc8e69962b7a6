package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelup/internal/api"
	"reelup/internal/services"
)

var testAuth = api.Auth{UserID: "u1", Token: "tok", ProjectID: "p9"}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func assertAuthFields(t *testing.T, body map[string]any) {
	t.Helper()
	if body["mid"] != "u1" || body["t"] != "tok" || body["aid"] != "p9" {
		t.Fatalf("missing auth fields in %v", body)
	}
}

func TestLoginSuccessAcceptsNumericUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["email"] != "ed@example.com" || body["password"] != "secret" {
			t.Fatalf("unexpected login body: %v", body)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected request id header")
		}
		_, _ = io.WriteString(w, `{"userId": 42, "token": "abc"}`)
	}))
	defer server.Close()

	client := api.New(server.URL)
	userID, token, err := client.Login(context.Background(), "ed@example.com", "secret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if userID != "42" || token != "abc" {
		t.Fatalf("unexpected token pair: %q %q", userID, token)
	}
}

func TestLoginErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"errors array", http.StatusOK, `{"errors":["wrong password"]}`, services.ErrInvalidCredentials, "wrong password"},
		{"unauthorized", http.StatusUnauthorized, `{"errors":[{"message":"bad login"}]}`, services.ErrInvalidCredentials, "bad login"},
		{"missing token", http.StatusOK, `{"userId":"u"}`, services.ErrInvalidCredentials, "missing"},
		{"server down", http.StatusServiceUnavailable, `maintenance`, services.ErrNetworkUnreachable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, _, err := api.New(server.URL).Login(context.Background(), "a@b.c", "x")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Fatalf("expected %q in %q", tt.message, err.Error())
			}
		})
	}
}

func TestLoginUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, _, err := api.New(url).Login(context.Background(), "a@b.c", "x")
	if !errors.Is(err, services.ErrNetworkUnreachable) {
		t.Fatalf("expected network unreachable, got %v", err)
	}
}

func TestRegisterFileReferencesBatchesFiles(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/folders/f1/file_references" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		assertAuthFields(t, body)
		refs, ok := body["file_references"].(map[string]any)
		if !ok || len(refs) != 2 {
			t.Fatalf("expected two file references, got %v", body["file_references"])
		}
		second := refs["1"].(map[string]any)
		if second["name"] != "b.mov" || second["filetype"] != "video/quicktime" || second["filesize"] != float64(120) || second["parts"] != float64(3) {
			t.Fatalf("unexpected second spec: %v", second)
		}
		_, _ = io.WriteString(w, `{"file_references":{
			"1":{"id":"asset-b","multipart_urls":["u1","u2","u3"]},
			"0":{"id":"asset-a","multipart_urls":["u0"]}}}`)
	}))
	defer server.Close()

	refs, err := api.New(server.URL).RegisterFileReferences(context.Background(), testAuth, "f1", []api.FileSpec{
		{Name: "a.mov", FileType: "video/quicktime", FileSize: 10, Parts: 1},
		{Name: "b.mov", FileType: "video/quicktime", FileSize: 120, Parts: 3},
	})
	if err != nil {
		t.Fatalf("RegisterFileReferences returned error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one batched call, got %d", calls)
	}
	if refs[0].ID != "asset-a" || refs[1].ID != "asset-b" || len(refs[1].PartURLs) != 3 {
		t.Fatalf("unexpected refs: %+v", refs)
	}
}

func TestRegisterFileReferencesRejectsIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"file_references":{"0":{"id":"a","multipart_urls":["u"]}}}`)
	}))
	defer server.Close()

	_, err := api.New(server.URL).RegisterFileReferences(context.Background(), testAuth, "f1", []api.FileSpec{
		{Name: "a", Parts: 1}, {Name: "b", Parts: 1},
	})
	if !errors.Is(err, services.ErrServerError) {
		t.Fatalf("expected server error for missing reference, got %v", err)
	}
}

func TestUploadPartSendsRawBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "video/mp4" {
			t.Fatalf("unexpected content type %q", got)
		}
		if r.ContentLength != 5 {
			t.Fatalf("unexpected content length %d", r.ContentLength)
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != "hello" {
			t.Fatalf("unexpected body %q", data)
		}
		if r.URL.Query().Get("X-Signature") != "s3cr3t" {
			t.Fatal("expected pre-signed query to be forwarded")
		}
	}))
	defer server.Close()

	client := api.New("http://unused.invalid")
	err := client.UploadPart(context.Background(), server.URL+"/bucket/part1?X-Signature=s3cr3t", "video/mp4", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("UploadPart returned error: %v", err)
	}
}

func TestUploadPartFailureRedactsSignature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := api.New(server.URL).UploadPart(context.Background(), server.URL+"/p?X-Signature=s3cr3t", "video/mp4", strings.NewReader("x"), 1)
	if !errors.Is(err, services.ErrServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
	if strings.Contains(err.Error(), "s3cr3t") {
		t.Fatalf("expected signature to be redacted: %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("expected 502 to be retryable")
	}
}

func TestPostUploadCalls(t *testing.T) {
	seen := map[string]map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		assertAuthFields(t, body)
		seen[r.URL.Path] = body
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	client := api.New(server.URL)
	ctx := context.Background()
	if err := client.CompletePart(ctx, testAuth, "a1", 2); err != nil {
		t.Fatalf("CompletePart: %v", err)
	}
	if err := client.MergeParts(ctx, testAuth, "a1"); err != nil {
		t.Fatalf("MergeParts: %v", err)
	}
	if err := client.CreateWorkerJob(ctx, testAuth, "a1"); err != nil {
		t.Fatalf("CreateWorkerJob: %v", err)
	}
	if err := client.DeleteFileReferences(ctx, testAuth, "f1", []string{"a1"}); err != nil {
		t.Fatalf("DeleteFileReferences: %v", err)
	}

	if seen["/file_references/a1/part_complete"]["part_num"] != float64(2) {
		t.Fatalf("unexpected ack body: %v", seen["/file_references/a1/part_complete"])
	}
	if _, ok := seen["/file_references/a1/merge_parts"]; !ok {
		t.Fatal("expected merge call")
	}
	job := seen["/worker/create_job"]
	if job["file_reference_id"] != "a1" || job["process"] != "new-upload" {
		t.Fatalf("unexpected worker job body: %v", job)
	}
	del := seen["/folders/f1/file_references/delete"]["file_references"].(map[string]any)
	if del["0"].(map[string]any)["id"] != "a1" {
		t.Fatalf("unexpected delete body: %v", del)
	}
}

func TestGetFileReferenceDecodesComments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/file_references/a1" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("mid") != "u1" || q.Get("t") != "tok" || q.Get("aid") != "p9" {
			t.Fatalf("unexpected query %v", q)
		}
		_, _ = io.WriteString(w, `{"id":"a1","name":"clip.mov","filesize":120,"comments":[
			{"id":"c1","author":"Sam","text":"fix grade","timecode":12.5,"created_at":"2026-03-01T10:00:00Z","draw":{"strokes":[]}}]}`)
	}))
	defer server.Close()

	asset, err := api.New(server.URL).GetFileReference(context.Background(), testAuth, "a1")
	if err != nil {
		t.Fatalf("GetFileReference: %v", err)
	}
	if asset.FileSize != 120 || len(asset.Comments) != 1 {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	c := asset.Comments[0]
	if c.Author != "Sam" || c.Timecode != 12.5 || c.CreatedAt.IsZero() || len(c.Draw) == 0 {
		t.Fatalf("unexpected comment: %+v", c)
	}
}

func TestNotFoundMapsToMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := api.New(server.URL).MergeParts(context.Background(), testAuth, "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *services.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected APIError with 404, got %v", err)
	}
}
