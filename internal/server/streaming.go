package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

const (
	// Buffer size for streaming (64KB)
	streamBufferSize = 64 * 1024
)

// streamFile serves a media file with caching headers, buffered copies and
// byte-range support.
func (s *Server) streamFile(w http.ResponseWriter, r *http.Request, filePath string, contentType string) error {
	stat, err := os.Stat(filePath)
	if err != nil {
		http.Error(w, "File unavailable", http.StatusNotFound)
		return fmt.Errorf("error reading file info: %w", err)
	}

	fileSize := stat.Size()
	modTime := stat.ModTime().Unix()

	file, err := os.Open(filePath)
	if err != nil {
		http.Error(w, "File unavailable", http.StatusNotFound)
		return fmt.Errorf("error opening file: %w", err)
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "public, max-age=3600")
	etag := fmt.Sprintf(`"%d-%d"`, modTime, fileSize)
	w.Header().Set("ETag", etag)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		s.serveRange(w, file, fileSize, rangeHeader)
		return nil
	}

	w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))

	bufferedReader := bufio.NewReaderSize(file, streamBufferSize)
	buffer := make([]byte, streamBufferSize)

	if _, err = io.CopyBuffer(w, bufferedReader, buffer); err != nil {
		return fmt.Errorf("error streaming file: %w", err)
	}
	return nil
}

// serveRange answers a single byte-range request (e.g. "bytes=0-1023").
func (s *Server) serveRange(w http.ResponseWriter, file *os.File, fileSize int64, rangeHeader string) {
	ranges := strings.TrimPrefix(rangeHeader, "bytes=")
	rangeParts := strings.Split(ranges, "-")

	start, err := strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		start = 0
	}

	var end int64
	if len(rangeParts) > 1 && rangeParts[1] != "" {
		end, err = strconv.ParseInt(rangeParts[1], 10, 64)
		if err != nil {
			end = fileSize - 1
		}
	} else {
		end = fileSize - 1
	}

	if start < 0 || end >= fileSize || start > end {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", fileSize))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	contentLength := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, fileSize))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", contentLength))
	w.WriteHeader(http.StatusPartialContent)

	file.Seek(start, io.SeekStart)
	io.CopyN(w, file, contentLength)
}
