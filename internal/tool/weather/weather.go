package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"OpenAssist/internal/tool"
)

// 默认使用 Open-Meteo 的免费接口,不需要 API key。
const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout     = 10 * time.Second
)

// Config 描述天气服务的接入参数。
type Config struct {
	GeocodeURL  string
	ForecastURL string
	Timeout     time.Duration
}

// Tool 按城市名或经纬度查询当前天气。
type Tool struct {
	geocodeURL  string
	forecastURL string
	httpClient  *http.Client
}

// New 创建天气工具。
func New(cfg Config) *Tool {
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = defaultGeocodeURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Tool{
		geocodeURL:  cfg.GeocodeURL,
		forecastURL: cfg.ForecastURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Spec 实现 tool.Tool。
func (t *Tool) Spec() tool.Spec {
	return tool.Spec{
		Description: "Get current weather information for a location by city name or coordinates",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city":     map[string]any{"type": "string", "description": "City name (e.g., 'Singapore', 'Tokyo')"},
				"location": map[string]any{"type": "string", "description": "City name (alias for 'city')"},
				"lat":      map[string]any{"type": "number", "description": "Latitude coordinate"},
				"lon":      map[string]any{"type": "number", "description": "Longitude coordinate"},
			},
			"required": []string{},
		},
	}
}

// Run 实现 tool.Tool。city/location 与 lat+lon 至少提供一组。
func (t *Tool) Run(ctx context.Context, params map[string]any) (any, error) {
	city := stringParam(params, "city")
	if city == "" {
		city = stringParam(params, "location")
	}
	lat, hasLat := floatParam(params, "lat")
	lon, hasLon := floatParam(params, "lon")

	if city != "" && (!hasLat || !hasLon) {
		var err error
		lat, lon, err = t.geocode(ctx, city)
		if err != nil {
			return nil, err
		}
	} else if !hasLat || !hasLon {
		return nil, fmt.Errorf("either city or lat+lon must be provided")
	}

	current, humidity, err := t.forecast(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"temperature": current.Temperature,
		"condition":   weatherCondition(current.WeatherCode),
		"location":    city,
		"source":      "open-meteo",
		"observed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if humidity != nil {
		result["humidity"] = *humidity
	}
	return result, nil
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (t *Tool) geocode(ctx context.Context, city string) (float64, float64, error) {
	query := url.Values{"name": {city}, "count": {"1"}}
	var parsed geocodeResponse
	if err := t.getJSON(ctx, t.geocodeURL+"?"+query.Encode(), &parsed); err != nil {
		return 0, 0, fmt.Errorf("查询城市坐标失败: %w", err)
	}
	if len(parsed.Results) == 0 {
		return 0, 0, fmt.Errorf("city '%s' not found", city)
	}
	return parsed.Results[0].Latitude, parsed.Results[0].Longitude, nil
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weathercode"`
}

type forecastResponse struct {
	CurrentWeather currentWeather `json:"current_weather"`
	Hourly         struct {
		RelativeHumidity []float64 `json:"relativehumidity_2m"`
	} `json:"hourly"`
}

func (t *Tool) forecast(ctx context.Context, lat, lon float64) (currentWeather, *float64, error) {
	query := url.Values{
		"latitude":        {fmt.Sprintf("%.4f", lat)},
		"longitude":       {fmt.Sprintf("%.4f", lon)},
		"current_weather": {"true"},
		"hourly":          {"relativehumidity_2m"},
	}
	var parsed forecastResponse
	if err := t.getJSON(ctx, t.forecastURL+"?"+query.Encode(), &parsed); err != nil {
		return currentWeather{}, nil, fmt.Errorf("查询天气失败: %w", err)
	}
	var humidity *float64
	if len(parsed.Hourly.RelativeHumidity) > 0 {
		humidity = &parsed.Hourly.RelativeHumidity[0]
	}
	return parsed.CurrentWeather, humidity, nil
}

func (t *Tool) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// weatherCondition 把 WMO 天气码翻译成可读描述。
func weatherCondition(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "cloudy"
	case code <= 48:
		return "foggy"
	case code <= 67:
		return "rainy"
	case code <= 77:
		return "snowy"
	case code <= 82:
		return "showers"
	default:
		return "stormy"
	}
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
