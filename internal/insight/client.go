// Package insight calls the text-generation service used for attendance
// reports and for reading student credentials from photos.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"smartattend/internal/attendance"
)

// Apology is returned in place of a report when generation fails.
const Apology = "The system was unable to generate the report. Please verify database connectivity."

// Credentials are the identity fields read from a photographed student card.
// Either field may be empty.
type Credentials struct {
	Name      string `json:"name,omitempty"`
	StudentID string `json:"studentId,omitempty"`
}

// Client calls the insight microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, no request leaves the process.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type reportRecord struct {
	StudentName string    `json:"student_name"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// GenerateReport asks for a short attendance summary of a course. It never
// fails: any error yields Apology.
func (c *Client) GenerateReport(ctx context.Context, records []attendance.Record, courseName string) string {
	if c.Skip {
		return localSummary(records, courseName)
	}

	rows := make([]reportRecord, 0, len(records))
	for _, r := range records {
		rows = append(rows, reportRecord{StudentName: r.StudentName, Status: string(r.Status), Timestamp: r.Timestamp})
	}
	var out struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "/report", map[string]any{"course_name": courseName, "records": rows}, &out)
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = fmt.Errorf("empty report")
	}
	if err != nil {
		log.WithField("course", courseName).Warnf("report generation failed: %v", err)
		return Apology
	}
	return out.Text
}

// ExtractCredentials reads name and student id from the image at imageURL.
// It returns nil when nothing could be read.
func (c *Client) ExtractCredentials(ctx context.Context, imageURL string) (*Credentials, error) {
	if c.Skip {
		return nil, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	var out struct {
		Name      string `json:"name"`
		StudentID string `json:"student_id"`
	}
	if err := c.post(ctx, "/extract-credentials", map[string]string{"image_url": imageURL}, &out); err != nil {
		return nil, err
	}
	creds := &Credentials{Name: strings.TrimSpace(out.Name), StudentID: strings.TrimSpace(out.StudentID)}
	if creds.Name == "" && creds.StudentID == "" {
		return nil, nil
	}
	return creds, nil
}

// Health checks if the insight service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("insight service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("insight service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("insight service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("insight service error %s: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func localSummary(records []attendance.Record, courseName string) string {
	present := 0
	for _, r := range records {
		if r.Status == attendance.StatusPresent {
			present++
		}
	}
	return fmt.Sprintf("%s: %d attendance records, %d present, %d absent.", courseName, len(records), present, len(records)-present)
}
