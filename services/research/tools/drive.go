// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var driveTracer = otel.Tracer("aleutian.research.tools.drive")

const (
	maxDriveListing   = 25
	maxDriveTextBytes = 1 << 20
)

// googleExportMimes maps Google Workspace types to the plain export format
// the oracle can consume. Anything else is downloaded as-is and kept only
// when it looks like text.
var googleExportMimes = map[string]string{
	"application/vnd.google-apps.document":     "text/plain",
	"application/vnd.google-apps.spreadsheet":  "text/csv",
	"application/vnd.google-apps.presentation": "text/plain",
}

// NewDriveService builds the Drive API client both Drive tools share.
// Credentials come from Application Default Credentials; the service only
// needs read access.
func NewDriveService(ctx context.Context) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, option.WithScopes(drive.DriveReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create the Drive service: %w", err)
	}
	return svc, nil
}

// DriveList lists Drive files whose name contains the input string. An
// empty input lists the most recent files.
type DriveList struct {
	svc *drive.Service
}

func NewDriveList(svc *drive.Service) *DriveList {
	return &DriveList{svc: svc}
}

func (d *DriveList) Name() string { return NameDriveList }

func (d *DriveList) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := driveTracer.Start(ctx, "DriveList.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("query", input))

	call := d.svc.Files.List().
		Context(ctx).
		PageSize(maxDriveListing).
		OrderBy("modifiedTime desc").
		Fields("files(id, name, mimeType, modifiedTime)")
	if q := strings.TrimSpace(input); q != "" {
		// Drive query syntax; single quotes in the name must be escaped.
		escaped := strings.ReplaceAll(q, `'`, `\'`)
		call = call.Q(fmt.Sprintf("name contains '%s' and trashed = false", escaped))
	} else {
		call = call.Q("trashed = false")
	}

	listing, err := call.Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Drive list failed")
		slog.Warn("Drive list failed", "query", input, "error", err)
		return FailureResult(NameDriveList, err), nil
	}

	if len(listing.Files) == 0 {
		return &Result{Content: fmt.Sprintf("no Drive files matched %q", input)}, nil
	}

	files := make([]DriveFile, 0, len(listing.Files))
	var b strings.Builder
	for i, f := range listing.Files {
		files = append(files, DriveFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
		fmt.Fprintf(&b, "%d. %s (%s, modified %s)\n", i+1, f.Name, f.MimeType, f.ModifiedTime)
	}
	span.SetAttributes(attribute.Int("files", len(files)))

	return &Result{
		Content: b.String(),
		Sources: []string{"drive"},
		Files:   files,
	}, nil
}

// DriveFetch downloads one Drive file's text content. The input string is
// the file ID. Google Workspace files are exported to a plain format;
// other files are downloaded directly and kept only when they decode as
// text.
type DriveFetch struct {
	svc *drive.Service
}

func NewDriveFetch(svc *drive.Service) *DriveFetch {
	return &DriveFetch{svc: svc}
}

func (d *DriveFetch) Name() string { return NameDriveFetch }

func (d *DriveFetch) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := driveTracer.Start(ctx, "DriveFetch.Execute")
	defer span.End()
	span.SetAttributes(attribute.String("file_id", input))

	fileID := strings.TrimSpace(input)
	if fileID == "" {
		return FailureResult(NameDriveFetch, fmt.Errorf("empty file id")), nil
	}

	meta, err := d.svc.Files.Get(fileID).Context(ctx).Fields("id, name, mimeType").Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Drive metadata fetch failed")
		slog.Warn("Drive metadata fetch failed", "file_id", fileID, "error", err)
		return FailureResult(NameDriveFetch, err), nil
	}
	span.SetAttributes(attribute.String("mime_type", meta.MimeType))

	text, err := d.download(ctx, fileID, meta.MimeType)
	if err != nil {
		span.RecordError(err)
		return FailureResult(NameDriveFetch, err), nil
	}

	file := DriveFile{ID: meta.Id, Name: meta.Name, MimeType: meta.MimeType, Text: text}
	return &Result{
		Content: text,
		Sources: []string{"drive:" + meta.Name},
		Files:   []DriveFile{file},
	}, nil
}

func (d *DriveFetch) download(ctx context.Context, fileID, mimeType string) (string, error) {
	var body io.ReadCloser
	if exportMime, ok := googleExportMimes[mimeType]; ok {
		resp, err := d.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("Drive export failed: %w", err)
		}
		body = resp.Body
	} else {
		resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
		if err != nil {
			return "", fmt.Errorf("Drive download failed: %w", err)
		}
		body = resp.Body
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxDriveTextBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read the Drive file body: %w", err)
	}
	if !strings.ContainsRune(string(raw[:min(len(raw), 512)]), '\x00') {
		return string(raw), nil
	}
	return "", fmt.Errorf("file %s is binary (%s), extraction is handled by the ingestion sidecar", fileID, mimeType)
}
