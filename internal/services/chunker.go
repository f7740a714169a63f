package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dlsdud9098/voice-summary-api/pkg/executor"
)

const (
	ffmpegBinary  = "ffmpeg"
	ffprobeBinary = "ffprobe"

	// Groq Whisper rejects payloads above 25 MiB.
	maxSTTBytes = 25 * 1024 * 1024

	segmentSeconds = 600
)

// Transcriber converts one audio payload into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, content []byte, fileName, language string) (string, error)
}

// ChunkTranscriber produces a transcript for audio of arbitrary size. Payloads
// within the remote API's size ceiling go through in one call; larger ones are
// cut into fixed-length stream-copied segments which are transcribed in order
// and joined back together.
type ChunkTranscriber struct {
	stt  Transcriber
	exec executor.Executor
}

func NewChunkTranscriber(stt Transcriber, exec executor.Executor) *ChunkTranscriber {
	return &ChunkTranscriber{stt: stt, exec: exec}
}

func (c *ChunkTranscriber) Transcribe(ctx context.Context, content []byte, fileName, language string) (string, error) {
	if int64(len(content)) <= maxSTTBytes {
		text, err := c.stt.Transcribe(ctx, content, fileName, language)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}

	return c.transcribeChunked(ctx, content, fileName, language)
}

func (c *ChunkTranscriber) transcribeChunked(ctx context.Context, content []byte, fileName, language string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "audio-split-*")
	if err != nil {
		return "", fmt.Errorf("create split dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".webm"
	}

	inputPath := filepath.Join(tmpDir, "input"+ext)
	if err := os.WriteFile(inputPath, content, 0o644); err != nil {
		return "", fmt.Errorf("write split input: %w", err)
	}

	// An unprobeable file degrades to a single oversized call; the remote
	// API may still reject it, but that is its decision to make.
	if _, err := c.probeDuration(ctx, inputPath); err != nil {
		text, err := c.stt.Transcribe(ctx, content, fileName, language)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	}

	chunks, err := c.splitAudio(ctx, tmpDir, inputPath, ext)
	if err != nil {
		return "", err
	}

	var parts []string
	for i, chunkPath := range chunks {
		data, err := os.ReadFile(chunkPath)
		if err != nil {
			return "", fmt.Errorf("read chunk %d: %w", i, err)
		}

		text, err := c.stt.Transcribe(ctx, data, fmt.Sprintf("chunk_%d%s", i, ext), language)
		if err != nil {
			return "", fmt.Errorf("transcribe chunk %d: %w", i, err)
		}

		text = strings.TrimSpace(text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// splitAudio cuts the input into segmentSeconds-long pieces with a stream
// copy, so the original codec is untouched. Output names carry a zero-padded
// index, making lexicographic order the segment order.
func (c *ChunkTranscriber) splitAudio(ctx context.Context, tmpDir, inputPath, ext string) ([]string, error) {
	pattern := filepath.Join(tmpDir, "chunk_%03d"+ext)

	_, err := c.exec.Execute(ctx, ffmpegBinary,
		"-y", "-i", inputPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern,
	)
	if err != nil {
		return nil, &SplitError{Output: err.Error()}
	}

	chunks, err := filepath.Glob(filepath.Join(tmpDir, "chunk_*"+ext))
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, &SplitError{Output: "no segments produced"}
	}

	sort.Strings(chunks)
	return chunks, nil
}

func (c *ChunkTranscriber) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := c.exec.Execute(ctx, ffprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return duration, nil
}
