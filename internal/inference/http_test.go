package inference

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
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/logging"
)

const completeVerdict = `{
	"label": 2,
	"label_name": "Noisy Fake",
	"state": "Mid Risk",
	"confidence": 0.87,
	"ssim": 0.61,
	"lpips": 0.22,
	"rm": 0.014,
	"pvr": 3.5,
	"heatmap_filename": "hm_cat.png"
}`

func TestHTTPClientURLMode(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completeVerdict)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", ModeURL, time.Second, zap.NewNop())
	res, err := client.Infer(context.Background(), Request{DetectionID: "d1", Locator: "/uploads/x_cat.png", Filename: "cat.png"})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got["image_url"] != "/uploads/x_cat.png" {
		t.Fatalf("unexpected image_url %q", got["image_url"])
	}
	if res.Label != 2 || res.LabelName != "Noisy Fake" || res.State != "Mid Risk" {
		t.Fatalf("unexpected verdict %+v", res)
	}
	if res.Confidence != 0.87 || res.PeakRatio != 3.5 {
		t.Fatalf("unexpected scores %+v", res)
	}
	if res.HeatmapKey != "hm_cat.png" || res.HeatmapData != nil || res.HeatmapLocator != "" {
		t.Fatalf("unexpected heatmap fields %+v", res)
	}
}

func TestHTTPClientUploadMode(t *testing.T) {
	heatmap := base64.StdEncoding.EncodeToString([]byte("heat"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "raw-image" || header.Filename != "cat.png" {
			t.Errorf("unexpected upload %q %q", data, header.Filename)
		}
		_, _ = io.WriteString(w, `{"label":0,"label_name":"Real","state":"Real","confidence":0.99,"ssim":0.9,"lpips":0.1,"rm":0.01,"pvr":1,"heatmap_base64":"`+heatmap+`"}`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, ModeUpload, time.Second, zap.NewNop())
	res, err := client.Infer(context.Background(), Request{Locator: "/uploads/k", Filename: "cat.png", ContentType: "image/png", Data: []byte("raw-image")})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if string(res.HeatmapData) != "heat" {
		t.Fatalf("unexpected heatmap data %q", res.HeatmapData)
	}
}

func TestHTTPClientRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, ModeURL, time.Second, zap.NewNop()).Infer(context.Background(), Request{DetectionID: "d2"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "inference.http_predict" || opErr.Ref != "d2" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHTTPClientRejectsMalformedPayload(t *testing.T) {
	cases := map[string]string{
		"not json":         `<html>`,
		"missing fields":   `{"label": 1, "confidence": 0.4}`,
		"no heatmap":       `{"label":1,"label_name":"Fake","state":"High Risk","confidence":0.4,"ssim":0.1,"lpips":0.2,"rm":0.3,"pvr":0.4}`,
		"confidence range": `{"label":1,"label_name":"Fake","state":"High Risk","confidence":1.4,"ssim":0.1,"lpips":0.2,"rm":0.3,"pvr":0.4,"heatmap_filename":"hm"}`,
		"bad base64":       `{"label":1,"label_name":"Fake","state":"High Risk","confidence":0.4,"ssim":0.1,"lpips":0.2,"rm":0.3,"pvr":0.4,"heatmap_base64":"***"}`,
		"long label":       `{"label":1,"label_name":"` + strings.Repeat("F", MaxLabelLength+1) + `","state":"High Risk","confidence":0.4,"ssim":0.1,"lpips":0.2,"rm":0.3,"pvr":0.4,"heatmap_filename":"hm"}`,
		"long state":       `{"label":1,"label_name":"Fake","state":"` + strings.Repeat("H", MaxLabelLength+1) + `","confidence":0.4,"ssim":0.1,"lpips":0.2,"rm":0.3,"pvr":0.4,"heatmap_filename":"hm"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := NewHTTPClient(server.URL, ModeURL, time.Second, zap.NewNop()).Infer(context.Background(), Request{})
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestHTTPClientHonoursTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPClient(server.URL, ModeURL, 5*time.Second, zap.NewNop()).Infer(ctx, Request{})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honoured, took %s", time.Since(start))
	}
}
