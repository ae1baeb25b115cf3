package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRunGeocodesCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/geocode"):
			if got := r.URL.Query().Get("name"); got != "Singapore" {
				t.Errorf("城市参数错误: %s", got)
			}
			w.Write([]byte(`{"results":[{"latitude":1.35,"longitude":103.82}]}`))
		case strings.HasPrefix(r.URL.Path, "/forecast"):
			w.Write([]byte(`{"current_weather":{"temperature":28.5,"weathercode":2},"hourly":{"relativehumidity_2m":[80]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := New(Config{GeocodeURL: srv.URL + "/geocode", ForecastURL: srv.URL + "/forecast"})
	result, err := tool.Run(context.Background(), map[string]any{"city": "Singapore"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("返回类型错误: %T", result)
	}
	if out["temperature"] != 28.5 || out["condition"] != "cloudy" {
		t.Fatalf("天气数据错误: %+v", out)
	}
	if out["location"] != "Singapore" {
		t.Fatalf("位置丢失: %+v", out)
	}
}

func TestRunUnknownCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	tool := New(Config{GeocodeURL: srv.URL, ForecastURL: srv.URL})
	if _, err := tool.Run(context.Background(), map[string]any{"city": "Atlantis"}); err == nil {
		t.Fatal("未知城市应返回错误")
	}
}

func TestRunRequiresLocation(t *testing.T) {
	tool := New(Config{})
	if _, err := tool.Run(context.Background(), map[string]any{}); err == nil {
		t.Fatal("缺少位置参数应返回错误")
	}
}

func TestRunWithCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/geocode") {
			t.Error("提供经纬度时不应调用地理编码")
		}
		w.Write([]byte(`{"current_weather":{"temperature":15,"weathercode":0},"hourly":{"relativehumidity_2m":[]}}`))
	}))
	defer srv.Close()

	tool := New(Config{GeocodeURL: srv.URL + "/geocode", ForecastURL: srv.URL + "/forecast"})
	result, err := tool.Run(context.Background(), map[string]any{"lat": 35.68, "lon": 139.69})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.(map[string]any)
	if out["condition"] != "clear" {
		t.Fatalf("天气码翻译错误: %+v", out)
	}
	if _, ok := out["humidity"]; ok {
		t.Fatal("无湿度数据时不应出现 humidity 字段")
	}
}
