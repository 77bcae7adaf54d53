package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// PlottingService handles communication with the sidecar plotting application
type PlottingService struct {
	baseURL    string
	httpClient *http.Client
	config     PlottingServiceConfig
	enabled    bool
}

// PlottingServiceConfig contains configuration for the plotting service
type PlottingServiceConfig struct {
	BaseURL       string        `json:"base_url"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`
}

// PlottingResponse represents the response from the plotting service
type PlottingResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	PlotURL      string `json:"plot_url,omitempty"`
	ViewURL      string `json:"view_url,omitempty"`
	PlotID       string `json:"plot_id,omitempty"`
	BatchID      string `json:"batch_id,omitempty"`
	DashboardURL string `json:"dashboard_url,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// BatchPlottingResponse represents the response from the batch plotting endpoint
type BatchPlottingResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	BatchID      string            `json:"batch_id,omitempty"`
	Results      []BatchPlotResult `json:"results,omitempty"`
	DashboardURL string            `json:"dashboard_url,omitempty"`
	Summary      BatchSummary      `json:"summary,omitempty"`
}

// BatchPlotResult represents a single plot result within a batch response
type BatchPlotResult struct {
	Success   bool   `json:"success"`
	PlotID    string `json:"plot_id,omitempty"`
	PlotURL   string `json:"plot_url,omitempty"`
	ViewURL   string `json:"view_url,omitempty"`
	PlotType  string `json:"plot_type,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// BatchSummary represents the summary of a batch operation
type BatchSummary struct {
	TotalPlots int `json:"total_plots"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// DefaultPlottingServiceConfig returns default configuration for the plotting service
func DefaultPlottingServiceConfig() PlottingServiceConfig {
	return PlottingServiceConfig{
		BaseURL:       "http://localhost:8080",
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    1 * time.Second,
	}
}

// NewPlottingService creates a new plotting service client. It starts disabled.
func NewPlottingService(config PlottingServiceConfig) *PlottingService {
	return &PlottingService{
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Enable enables the plotting service
func (ps *PlottingService) Enable() {
	ps.enabled = true
}

// Disable disables the plotting service
func (ps *PlottingService) Disable() {
	ps.enabled = false
}

// IsEnabled returns whether the plotting service is enabled
func (ps *PlottingService) IsEnabled() bool {
	return ps.enabled
}

func (ps *PlottingService) post(path string, payload interface{}, out interface{}) (int, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal plot data")
	}

	req, err := http.NewRequest(http.MethodPost, ps.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, errors.Wrap(err, "failed to create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "xray-harness")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to send HTTP request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, errors.Wrapf(err, "failed to parse response JSON (status %d)", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// SendPlotData sends plot data to the sidecar plotting service
func (ps *PlottingService) SendPlotData(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	var plotResponse PlottingResponse
	status, err := ps.post("/api/plot", plotData, &plotResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &plotResponse, errors.Errorf("HTTP request failed with status %d: %s", status, plotResponse.Message)
	}
	return &plotResponse, nil
}

// SendPlotDataWithRetry sends plot data, retrying failed attempts after the
// configured delay.
func (ps *PlottingService) SendPlotDataWithRetry(plotData PlotData) (*PlottingResponse, error) {
	if !ps.enabled {
		return &PlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	attempts := max(ps.config.RetryAttempts, 1)
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := ps.SendPlotData(plotData)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < attempts-1 {
			time.Sleep(ps.config.RetryDelay)
		}
	}

	return nil, errors.Wrapf(lastErr, "failed to send plot data after %d attempts", attempts)
}

// CheckHealth checks if the plotting service is available
func (ps *PlottingService) CheckHealth() error {
	if !ps.enabled {
		return errors.New("plotting service is disabled")
	}

	resp, err := ps.httpClient.Get(ps.baseURL + "/health")
	if err != nil {
		return errors.Wrap(err, "failed to send health check request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

// BatchSendPlots sends multiple plots in a single request. Plots without
// series are left out.
func (ps *PlottingService) BatchSendPlots(plotDataList []PlotData) (*BatchPlottingResponse, error) {
	if !ps.enabled {
		return &BatchPlottingResponse{
			Success: false,
			Message: "Plotting service is disabled",
		}, nil
	}

	plots := make([]PlotData, 0, len(plotDataList))
	for _, pd := range plotDataList {
		if len(pd.Series) > 0 {
			plots = append(plots, pd)
		}
	}
	if len(plots) == 0 {
		return &BatchPlottingResponse{Success: false, Message: "No plot data to send"}, nil
	}

	batchPayload := map[string]interface{}{
		"plots": plots,
		"batch": true,
	}

	var batchResponse BatchPlottingResponse
	status, err := ps.post("/api/batch-plot", batchPayload, &batchResponse)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &batchResponse, errors.Errorf("batch HTTP request failed with status %d: %s", status, batchResponse.Message)
	}
	return &batchResponse, nil
}

// ViewURL returns the absolute URL of a plot response
func (ps *PlottingService) ViewURL(resp *PlottingResponse) string {
	path := resp.ViewURL
	if path == "" {
		path = resp.PlotURL
	}
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s%s", ps.baseURL, path)
}
