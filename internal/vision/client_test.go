package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fpang/vision-archiver/internal/auth"
	"golang.org/x/oauth2"
)

func testCreds() *auth.Credentials {
	return auth.NewStaticCredentials(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}), testScope)
}

const testScope = "https://www.googleapis.com/auth/cloud-vision"

func newTestClient(server *httptest.Server) *Client {
	return NewClient(WithEndpoint(server.URL), WithTransport(server.Client().Transport))
}

type annotateRequest struct {
	Requests []struct {
		Image struct {
			Content string `json:"content"`
		} `json:"image"`
		Features []struct {
			Type       string `json:"type"`
			MaxResults int    `json:"maxResults"`
		} `json:"features"`
	} `json:"requests"`
}

func TestAnnotate_Success(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0x00, 0x01}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/images:annotate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req annotateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		if len(req.Requests) != 1 {
			t.Fatalf("expected 1 request, got %d", len(req.Requests))
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Requests[0].Image.Content)
		if err != nil || string(decoded) != string(image) {
			t.Errorf("image content not base64 of input: %q", req.Requests[0].Image.Content)
		}
		feats := req.Requests[0].Features
		if len(feats) != 2 || feats[0].Type != "TEXT_DETECTION" || feats[1].Type != "LABEL_DETECTION" {
			t.Errorf("unexpected features %+v", feats)
		}
		for _, f := range feats {
			if f.MaxResults != 50 {
				t.Errorf("maxResults = %d, want 50", f.MaxResults)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"responses":[{
			"textAnnotations":[{"description":"STOP\nAHEAD"},{"description":"STOP"},{"description":"AHEAD"},{"description":"STOP"}],
			"labelAnnotations":[{"description":"Sign","score":0.97},{"description":"Street","score":0.41}]
		}]}`))
	}))
	defer server.Close()

	got, err := newTestClient(server).Annotate(context.Background(), testCreds(), image, DefaultFeatures, DefaultMaxResults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantText := []string{"STOP\nAHEAD", "STOP", "AHEAD", "STOP"}
	if len(got.Text) != len(wantText) {
		t.Fatalf("got %d text hits, want %d", len(got.Text), len(wantText))
	}
	for i, w := range wantText {
		if got.Text[i].Text != w {
			t.Errorf("text[%d] = %q, want %q", i, got.Text[i].Text, w)
		}
	}
	if len(got.Labels) != 2 || got.Labels[0] != (LabelAnnotation{"Sign", 0.97}) || got.Labels[1] != (LabelAnnotation{"Street", 0.41}) {
		t.Errorf("unexpected labels %+v", got.Labels)
	}
}

func TestAnnotate_NoHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responses":[{}]}`))
	}))
	defer server.Close()

	got, err := newTestClient(server).Annotate(context.Background(), testCreds(), []byte("x"), DefaultFeatures, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text == nil || got.Labels == nil || len(got.Text) != 0 || len(got.Labels) != 0 {
		t.Errorf("expected empty non-nil lists, got %+v", got)
	}
}

func TestAnnotate_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantStatus    int
		wantCode      string
		wantTransient bool
	}{
		{
			name:          "service unavailable",
			status:        http.StatusServiceUnavailable,
			body:          `{"error":{"code":503,"message":"backend unavailable","status":"UNAVAILABLE"}}`,
			wantStatus:    503,
			wantTransient: true,
		},
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			wantStatus:    429,
			wantTransient: true,
		},
		{
			name:          "request timeout",
			status:        http.StatusRequestTimeout,
			body:          `{}`,
			wantStatus:    408,
			wantTransient: true,
		},
		{
			name:          "bad request",
			status:        http.StatusBadRequest,
			body:          `{"error":{"code":400,"message":"bad image","status":"INVALID_ARGUMENT","errors":[{"reason":"badRequest","message":"bad image"}]}}`,
			wantStatus:    400,
			wantCode:      "badRequest",
			wantTransient: false,
		},
		{
			name:          "forbidden",
			status:        http.StatusForbidden,
			body:          `{"error":{"code":403,"message":"denied"}}`,
			wantStatus:    403,
			wantTransient: false,
		},
		{
			name:          "per-image unavailable",
			status:        http.StatusOK,
			body:          `{"responses":[{"error":{"code":14,"message":"try later"}}]}`,
			wantStatus:    200,
			wantCode:      "UNAVAILABLE",
			wantTransient: true,
		},
		{
			name:          "per-image invalid argument",
			status:        http.StatusOK,
			body:          `{"responses":[{"error":{"code":3,"message":"bad image data"}}]}`,
			wantStatus:    200,
			wantCode:      "INVALID_ARGUMENT",
			wantTransient: false,
		},
		{
			name:          "empty responses",
			status:        http.StatusOK,
			body:          `{"responses":[]}`,
			wantStatus:    200,
			wantTransient: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server).Annotate(context.Background(), testCreds(), []byte("x"), DefaultFeatures, 5)
			var se *ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("expected ServiceError, got %v", err)
			}
			if se.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.wantStatus)
			}
			if tt.wantCode != "" && se.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", se.Code, tt.wantCode)
			}
			if se.Transient != tt.wantTransient {
				t.Errorf("Transient = %v, want %v", se.Transient, tt.wantTransient)
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient = %v", IsTransient(err))
			}
		})
	}
}

func TestAnnotate_TransportErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(server)
	server.Close()

	_, err := client.Annotate(context.Background(), testCreds(), []byte("x"), DefaultFeatures, 5)
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	var se *ServiceError
	if errors.As(err, &se) && se.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport errors", se.StatusCode)
	}
}

func TestAnnotate_RequiresCredentials(t *testing.T) {
	_, err := NewClient().Annotate(context.Background(), nil, []byte("x"), DefaultFeatures, 5)
	if err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestWithEndpointAddsTrailingSlash(t *testing.T) {
	c := NewClient(WithEndpoint("http://localhost:9000/vision"))
	if !strings.HasSuffix(c.Endpoint(), "/") {
		t.Errorf("endpoint %q has no trailing slash", c.Endpoint())
	}
	if NewClient(WithEndpoint("")).Endpoint() != DefaultEndpoint {
		t.Error("empty endpoint should keep the default")
	}
}

func TestResultMarshal(t *testing.T) {
	r := NewResult("cat.jpg", &Annotations{Labels: []LabelAnnotation{{Label: "cat", Confidence: 0.92}}}, mustTime(t, "2024-05-01T12:30:45Z"))
	data, err := r.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	want := `{
  "text_annotations": [],
  "label_annotations": [
    {
      "label": "cat",
      "confidence": 0.92
    }
  ],
  "processed_image": "cat.jpg",
  "processed_at": "2024-05-01T12:30:45Z"
}`
	if string(data) != want {
		t.Errorf("Marshal =\n%s\nwant\n%s", data, want)
	}
}

func TestScopes(t *testing.T) {
	scopes := Scopes()
	found := false
	for _, s := range scopes {
		if s == testScope {
			found = true
		}
	}
	if !found {
		t.Errorf("Scopes() = %v, missing cloud-vision", scopes)
	}
}
