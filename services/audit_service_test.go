package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"lessonsync_go/models"
)

func TestCreateZipArchive(t *testing.T) {
	logs := []models.ActivityLog{
		{Action: "CREATE", Resource: "groups", ResourceID: 10},
		{Action: "DELETE", Resource: "groups", ResourceID: 11},
	}
	buf, err := createZipArchive(logs, "activity_logs_2025-06-02.zip")
	if err != nil {
		t.Fatalf("createZipArchive returned error: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "activity_logs.json" {
		t.Fatalf("unexpected archive entries %v", reader.File)
	}
	f, err := reader.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	raw, _ := io.ReadAll(f)

	var payload struct {
		RecordCount int                  `json:"record_count"`
		Logs        []models.ActivityLog `json:"logs"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.RecordCount != 2 || payload.Logs[1].ResourceID != 11 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestAuditServiceWithoutConnections(t *testing.T) {
	svc := NewAuditService(nil, nil, nil)
	ctx := context.Background()

	if err := svc.FlushCachedLogsToDatabase(ctx); err == nil {
		t.Error("expected flush to report missing redis")
	}
	if err := svc.ArchiveOldLogs(ctx, 3); err == nil {
		t.Error("expected archive age guard")
	}
	if err := svc.ArchiveOldLogs(ctx, 30); err == nil {
		t.Error("expected archive to report missing collaborators")
	}
}

func TestAuditServiceStart(t *testing.T) {
	svc := NewAuditService(nil, nil, nil)
	if err := svc.Start("not a schedule"); err == nil {
		t.Fatal("expected invalid cron spec to be rejected")
	}
	if err := svc.Start("@every 1h"); err != nil {
		t.Fatalf("expected valid spec, got %v", err)
	}
	svc.Stop()
}
