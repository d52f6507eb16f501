// Package benchutil holds the HTTP client and latency statistics shared by
// the bench tools.
package benchutil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"
)

// UserResp represents the server's response when a user is created.
type UserResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// NewClient returns an HTTP client. When certFile and keyFile are set the
// client presents them; insecure skips server certificate verification for
// self-signed local deployments.
func NewClient(certFile, keyFile string, insecure bool) (*http.Client, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: insecure} //nolint:gosec // bench against local certs
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
		Timeout:   10 * time.Second,
	}, nil
}

// Do sends a JSON request with an optional bearer token and decodes the
// response into out when out is non-nil. It returns the status code.
func Do(ctx context.Context, client *http.Client, method, url, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Register creates a uniquely named user and returns its id and token.
func Register(ctx context.Context, client *http.Client, server, prefix string, i int) (UserResp, error) {
	payload := map[string]string{
		"username": fmt.Sprintf("%s-%d-%d", prefix, i, time.Now().UnixNano()),
		"password": "bench-password",
	}
	var ur UserResp
	status, err := Do(ctx, client, http.MethodPost, server+"/users", "", payload, &ur)
	if err != nil {
		return UserResp{}, err
	}
	if status != http.StatusCreated {
		return UserResp{}, fmt.Errorf("create user: status %d", status)
	}
	return ur, nil
}

// TrimmedMean calculates the mean after dropping trimPercent of values from
// each end. data must be sorted.
func TrimmedMean(data []float64, trimPercent float64) float64 {
	data = trim(data, trimPercent)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// TrimmedPercentile returns a percentile of sorted data after trimming extremes.
func TrimmedPercentile(data []float64, p, trimPercent float64) float64 {
	return Percentile(trim(data, trimPercent), p)
}

func trim(data []float64, trimPercent float64) []float64 {
	if len(data) == 0 {
		return data
	}
	n := int(float64(len(data)) * trimPercent / 100.0)
	if n*2 >= len(data) {
		n = (len(data) - 1) / 2
	}
	return data[n : len(data)-n]
}

// Percentile calculates the p-th percentile of sorted data using linear
// interpolation.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}

// Summary sorts data in place and formats count, trimmed mean and tail percentiles.
func Summary(data []float64) string {
	sort.Float64s(data)
	return fmt.Sprintf("count=%d trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f",
		len(data), TrimmedMean(data, 1), Percentile(data, 50), Percentile(data, 90), Percentile(data, 99))
}

// WriteCSV saves latencies to path with a latency_ms header.
func WriteCSV(path string, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"latency_ms"}); err != nil {
		return err
	}
	for _, d := range data {
		if err := w.Write([]string{fmt.Sprintf("%.3f", d)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
