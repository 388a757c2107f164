package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"lessonsync_go/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrUnsupported means the backend does not offer the endpoint (older API revision).
var ErrUnsupported = errors.New("endpoint not supported by backend")

// APIError is a non-2xx response from the backend
type APIError struct {
	Status  int    `json:"status"`
	Method  string `json:"method"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("backend %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a backend 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnavailable reports whether err means the backend could not be reached or failed on its side
func IsUnavailable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError && apiErr.Status != http.StatusNotImplemented
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

type ctxKey int

const (
	tokenKey ctxKey = iota
	requestIDKey
)

// WithToken attaches the caller's bearer token to ctx
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// WithRequestID attaches a request id that is forwarded as X-Request-ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func tokenFrom(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey).(string)
	return v
}

func requestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// Client talks to the school REST backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client for baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope is the {"data": ...} wrapper some endpoints use
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// decodeBody accepts both a bare payload and one wrapped in {"data": ...}.
func decodeBody(raw []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}

func errorMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// idempotencyKey is a name-based uuid, so every attempt at the same write sends the same key
func idempotencyKey(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lessonsync:"+strings.Join(parts, ":"))).String()
}

func bindingKey(in models.BindingInput) string {
	return "lesson-group:" + id(in.LessonID) + ":" + id(in.GroupID)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, key string) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := requestIDFrom(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"method": method, "path": path}).Error("Backend request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	logrus.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Method: method, Path: path, Message: errorMessage(raw)}
	}
	if err := decodeBody(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// unsupported maps a missing-endpoint status on the newer delete routes to ErrUnsupported.
func unsupported(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
			return fmt.Errorf("%w: %v", ErrUnsupported, apiErr)
		}
	}
	return err
}

func id(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

// ListCourseLessons returns the lessons of a course in backend order
func (c *Client) ListCourseLessons(ctx context.Context, courseID uint) ([]models.Lesson, error) {
	var lessons []models.Lesson
	if err := c.do(ctx, http.MethodGet, "/courses/"+id(courseID)+"/lessons", nil, nil, &lessons, ""); err != nil {
		return nil, err
	}
	for i := range lessons {
		if lessons[i].CourseID == 0 {
			lessons[i].CourseID = courseID
		}
	}
	return lessons, nil
}

// lessonKey ties a lesson create to the inbound request; without a request id no key is sent
func lessonKey(ctx context.Context, courseID uint) string {
	reqID := requestIDFrom(ctx)
	if reqID == "" {
		return ""
	}
	return idempotencyKey("lesson", id(courseID), reqID)
}

// CreateLesson adds a lesson at the end of a course
func (c *Client) CreateLesson(ctx context.Context, courseID uint, in models.LessonInput) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := c.do(ctx, http.MethodPost, "/courses/"+id(courseID)+"/lessons", nil, in, &lesson, lessonKey(ctx, courseID)); err != nil {
		return nil, err
	}
	if lesson.CourseID == 0 {
		lesson.CourseID = courseID
	}
	return &lesson, nil
}

// ListBindings lists lesson-group bindings, optionally for one group
func (c *Client) ListBindings(ctx context.Context, filter models.BindingFilter) ([]models.Binding, error) {
	var query url.Values
	if filter.GroupID != nil {
		query = url.Values{"group_id": {id(*filter.GroupID)}}
	}
	var bindings []models.Binding
	if err := c.do(ctx, http.MethodGet, "/lesson-groups", query, nil, &bindings, ""); err != nil {
		return nil, err
	}
	return bindings, nil
}

// CreateBinding creates one binding
func (c *Client) CreateBinding(ctx context.Context, in models.BindingInput) (*models.Binding, error) {
	var binding models.Binding
	if err := c.do(ctx, http.MethodPost, "/lesson-groups", nil, in, &binding, idempotencyKey(bindingKey(in))); err != nil {
		return nil, err
	}
	return &binding, nil
}

// BulkCreateBindings creates many bindings in one call
func (c *Client) BulkCreateBindings(ctx context.Context, in []models.BindingInput) ([]models.Binding, error) {
	body := struct {
		Items []models.BindingInput `json:"items"`
	}{Items: in}
	keys := make([]string, 0, len(in))
	for _, item := range in {
		keys = append(keys, bindingKey(item))
	}
	sort.Strings(keys)
	var bindings []models.Binding
	if err := c.do(ctx, http.MethodPost, "/lesson-groups/bulk", nil, body, &bindings, idempotencyKey(keys...)); err != nil {
		return nil, err
	}
	return bindings, nil
}

// UpdateBinding replaces the schedule, room and open flag of a binding
func (c *Client) UpdateBinding(ctx context.Context, bindingID uint, in models.BindingInput) (*models.Binding, error) {
	var binding models.Binding
	if err := c.do(ctx, http.MethodPut, "/lesson-groups/"+id(bindingID), nil, in, &binding, ""); err != nil {
		return nil, err
	}
	if binding.ID == 0 {
		binding = models.Binding{
			ID:            bindingID,
			LessonID:      in.LessonID,
			GroupID:       in.GroupID,
			StartDatetime: in.StartDatetime,
			EndDatetime:   in.EndDatetime,
			Room:          in.Room,
			IsOpen:        in.IsOpen,
		}
	}
	return &binding, nil
}

// DeleteLessonBinding deletes the binding of one lesson in one group (newer API)
func (c *Client) DeleteLessonBinding(ctx context.Context, lessonID, groupID uint) error {
	err := c.do(ctx, http.MethodDelete, "/lessons/"+id(lessonID)+"/groups/"+id(groupID), nil, nil, nil, "")
	return unsupported(err)
}

// DeleteCourseGroup deletes every binding of a course in a group (newer API)
func (c *Client) DeleteCourseGroup(ctx context.Context, courseID, groupID uint) (*models.CourseGroupDeletion, error) {
	var deleted models.CourseGroupDeletion
	err := c.do(ctx, http.MethodDelete, "/courses/"+id(courseID)+"/groups/"+id(groupID), nil, nil, &deleted, "")
	if err != nil {
		return nil, unsupported(err)
	}
	return &deleted, nil
}

// ListEnrollments lists the students enrolled on a binding
func (c *Client) ListEnrollments(ctx context.Context, bindingID uint) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := c.do(ctx, http.MethodGet, "/lesson-groups/"+id(bindingID)+"/students", nil, nil, &enrollments, ""); err != nil {
		return nil, err
	}
	for i := range enrollments {
		if enrollments[i].BindingID == 0 {
			enrollments[i].BindingID = bindingID
		}
	}
	return enrollments, nil
}

// DeleteEnrollment removes one enrollment from a binding
func (c *Client) DeleteEnrollment(ctx context.Context, bindingID, enrollmentID uint) error {
	return c.do(ctx, http.MethodDelete, "/lesson-groups/"+id(bindingID)+"/students/"+id(enrollmentID), nil, nil, nil, "")
}

// GetGroup fetches a group's roster and teacher
func (c *Client) GetGroup(ctx context.Context, groupID uint) (*models.Group, error) {
	var group models.Group
	if err := c.do(ctx, http.MethodGet, "/groups/"+id(groupID), nil, nil, &group, ""); err != nil {
		return nil, err
	}
	return &group, nil
}

// Ping checks that the backend answers at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &APIError{Status: resp.StatusCode, Method: http.MethodHead, Path: "/"}
	}
	return nil
}
