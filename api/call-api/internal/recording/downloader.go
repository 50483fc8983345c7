// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_recording persists carrier recording files to local
// disk once the carrier reports a recording as finished.
package internal_recording

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	internal_vobiz "github.com/rapidaai/callbridge/api/call-api/internal/telephony/vobiz"
	"github.com/rapidaai/callbridge/pkg/commons"
)

// Downloader fetches finished recordings from the carrier and writes
// them under the configured directory.
type Downloader interface {
	// Download fetches the recording and returns the local file path it
	// was written to.
	Download(ctx context.Context, recordingID, recordingURL string) (string, error)
}

type downloader struct {
	carrier internal_vobiz.Client
	dir     string
	logger  commons.Logger
}

func NewDownloader(carrier internal_vobiz.Client, dir string, logger commons.Logger) Downloader {
	return &downloader{carrier: carrier, dir: dir, logger: logger}
}

func (d *downloader) Download(ctx context.Context, recordingID, recordingURL string) (string, error) {
	data, err := d.carrier.DownloadRecording(ctx, recordingURL)
	if err != nil {
		return "", fmt.Errorf("failed to download recording %s: %w", recordingID, err)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	target := filepath.Join(d.dir, recordingID+fileExtension(recordingURL))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording file: %w", err)
	}

	d.logger.Info("recording saved", "recording_id", recordingID, "file", target, "bytes", len(data))
	return target, nil
}

// fileExtension takes the extension from the recording URL path,
// defaulting to mp3 which is what the carrier produces.
func fileExtension(recordingURL string) string {
	trimmed := recordingURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if ext := path.Ext(trimmed); ext != "" {
		return ext
	}
	return ".mp3"
}
