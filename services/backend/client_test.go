package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lessonsync_go/models"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newServer(t *testing.T, status int, response string) (*Client, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.header = r.Header.Clone()
		got.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second), got
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"id":1},{"id":2}]`, 2},
		{"envelope", `{"data":[{"id":1}],"message":"ok"}`, 1},
		{"empty", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lessons []models.Lesson
			if err := decodeBody([]byte(tt.raw), &lessons); err != nil {
				t.Fatalf("decodeBody returned error: %v", err)
			}
			if len(lessons) != tt.want {
				t.Fatalf("expected %d lessons, got %d", tt.want, len(lessons))
			}
		})
	}
}

func TestListCourseLessonsFillsCourse(t *testing.T) {
	c, got := newServer(t, http.StatusOK, `{"data":[{"id":5,"title":"Intro"}]}`)
	ctx := WithRequestID(WithToken(context.Background(), "tok"), "req-1")

	lessons, err := c.ListCourseLessons(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(lessons) != 1 || lessons[0].CourseID != 100 || lessons[0].Title != "Intro" {
		t.Fatalf("unexpected lessons %+v", lessons)
	}
	if got.path != "/courses/100/lessons" || got.method != http.MethodGet {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.header.Get("Authorization") != "Bearer tok" || got.header.Get("X-Request-ID") != "req-1" {
		t.Fatalf("unexpected headers %v", got.header)
	}
	if got.header.Get("Idempotency-Key") != "" {
		t.Fatal("GET must not carry an idempotency key")
	}
}

func TestCreateBindingSendsIdempotencyKey(t *testing.T) {
	c, got := newServer(t, http.StatusCreated, `{"id":9,"lesson_id":5,"group_id":10}`)
	in := models.BindingInput{
		LessonID:      5,
		GroupID:       10,
		StartDatetime: time.Date(2025, time.June, 2, 18, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, time.June, 2, 20, 0, 0, 0, time.UTC),
	}

	b, err := c.CreateBinding(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if b.ID != 9 {
		t.Fatalf("unexpected binding %+v", b)
	}
	if got.header.Get("Idempotency-Key") == "" || got.header.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected headers %v", got.header)
	}
	var sent models.BindingInput
	if err := json.Unmarshal(got.body, &sent); err != nil {
		t.Fatal(err)
	}
	if sent.LessonID != 5 || !sent.StartDatetime.Equal(in.StartDatetime) {
		t.Fatalf("unexpected body %s", got.body)
	}
}

func TestIdempotencyKeyIsStablePerWrite(t *testing.T) {
	c, got := newServer(t, http.StatusCreated, `{"id":9}`)
	ctx := context.Background()
	keyOf := func(in models.BindingInput) string {
		t.Helper()
		if _, err := c.CreateBinding(ctx, in); err != nil {
			t.Fatal(err)
		}
		return got.header.Get("Idempotency-Key")
	}

	first := keyOf(models.BindingInput{LessonID: 5, GroupID: 10, StartDatetime: time.Date(2025, time.June, 2, 18, 0, 0, 0, time.UTC)})
	retry := keyOf(models.BindingInput{LessonID: 5, GroupID: 10, StartDatetime: time.Date(2025, time.June, 9, 18, 0, 0, 0, time.UTC)})
	other := keyOf(models.BindingInput{LessonID: 5, GroupID: 20})

	if first == "" || first != retry {
		t.Fatalf("the same lesson and group must reuse the key, got %q and %q", first, retry)
	}
	if other == first {
		t.Fatal("a different group must get a different key")
	}

	if _, err := c.BulkCreateBindings(ctx, []models.BindingInput{{LessonID: 1, GroupID: 10}, {LessonID: 2, GroupID: 10}}); err != nil {
		t.Fatal(err)
	}
	bulk := got.header.Get("Idempotency-Key")
	if _, err := c.BulkCreateBindings(ctx, []models.BindingInput{{LessonID: 2, GroupID: 10}, {LessonID: 1, GroupID: 10}}); err != nil {
		t.Fatal(err)
	}
	if bulk == "" || got.header.Get("Idempotency-Key") != bulk {
		t.Fatal("bulk key must not depend on item order")
	}
}

func TestCreateLessonKeyFollowsRequestID(t *testing.T) {
	c, got := newServer(t, http.StatusCreated, `{"id":3,"title":"Past tense"}`)

	if _, err := c.CreateLesson(context.Background(), 100, models.LessonInput{Title: "Past tense"}); err != nil {
		t.Fatal(err)
	}
	if key := got.header.Get("Idempotency-Key"); key != "" {
		t.Fatalf("expected no key without a request id, got %q", key)
	}

	ctx := WithRequestID(context.Background(), "req-7")
	if _, err := c.CreateLesson(ctx, 100, models.LessonInput{Title: "Past tense"}); err != nil {
		t.Fatal(err)
	}
	first := got.header.Get("Idempotency-Key")
	if _, err := c.CreateLesson(ctx, 100, models.LessonInput{Title: "Past tense"}); err != nil {
		t.Fatal(err)
	}
	if first == "" || got.header.Get("Idempotency-Key") != first {
		t.Fatalf("a retried request must reuse its key, got %q then %q", first, got.header.Get("Idempotency-Key"))
	}
}

func TestBulkCreateWrapsItems(t *testing.T) {
	c, got := newServer(t, http.StatusCreated, `[{"id":1},{"id":2}]`)
	out, err := c.BulkCreateBindings(context.Background(), []models.BindingInput{{LessonID: 1}, {LessonID: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || got.path != "/lesson-groups/bulk" {
		t.Fatalf("unexpected result %v for %s", out, got.path)
	}
	var body struct {
		Items []models.BindingInput `json:"items"`
	}
	if err := json.Unmarshal(got.body, &body); err != nil || len(body.Items) != 2 {
		t.Fatalf("unexpected body %s", got.body)
	}
}

func TestListBindingsGroupFilter(t *testing.T) {
	c, got := newServer(t, http.StatusOK, `[]`)
	gid := uint(10)
	if _, err := c.ListBindings(context.Background(), models.BindingFilter{GroupID: &gid}); err != nil {
		t.Fatal(err)
	}
	if got.query != "group_id=10" {
		t.Fatalf("unexpected query %q", got.query)
	}

	if _, err := c.ListBindings(context.Background(), models.BindingFilter{}); err != nil {
		t.Fatal(err)
	}
	if got.query != "" {
		t.Fatalf("expected no query, got %q", got.query)
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		notFound    bool
		unavailable bool
		message     string
	}{
		{"not found", http.StatusNotFound, `{"error":"no such group"}`, true, false, "no such group"},
		{"server error", http.StatusBadGateway, `{"message":"upstream down"}`, false, true, "upstream down"},
		{"not implemented", http.StatusNotImplemented, `oops`, false, false, "oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.body)
			_, err := c.GetGroup(context.Background(), 10)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Message != tt.message || apiErr.Path != "/groups/10" {
				t.Fatalf("unexpected error %+v", apiErr)
			}
			if IsNotFound(err) != tt.notFound || IsUnavailable(err) != tt.unavailable {
				t.Fatalf("classification mismatch for %v", err)
			}
		})
	}
}

func TestNewAPIDeletesMapToUnsupported(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented} {
		c, got := newServer(t, status, ``)
		if _, err := c.DeleteCourseGroup(context.Background(), 100, 10); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("status %d: expected ErrUnsupported, got %v", status, err)
		}
		if got.method != http.MethodDelete || got.path != "/courses/100/groups/10" {
			t.Fatalf("unexpected request %s %s", got.method, got.path)
		}
		if err := c.DeleteLessonBinding(context.Background(), 5, 10); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("status %d: expected ErrUnsupported, got %v", status, err)
		}
	}

	c, _ := newServer(t, http.StatusInternalServerError, ``)
	if err := c.DeleteLessonBinding(context.Background(), 5, 10); errors.Is(err, ErrUnsupported) || !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestDeleteCourseGroupCounts(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{"data":{"deleted_bindings":3,"deleted_enrollments":7}}`)
	deleted, err := c.DeleteCourseGroup(context.Background(), 100, 10)
	if err != nil {
		t.Fatal(err)
	}
	if deleted.DeletedBindings != 3 || deleted.DeletedEnrollments != 7 {
		t.Fatalf("unexpected deletion %+v", deleted)
	}
}

func TestUnreachableIsUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	if err := c.Ping(context.Background()); !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
