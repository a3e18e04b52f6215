package library

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tonewiki/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// Extractor turns media files into MediaTrack records: tags for title and
// artist, format-specific probes for duration, embedded artwork cached in
// memory for the thumbnail endpoint.
type Extractor struct {
	logger       *logrus.Logger
	artworkCache map[string][]byte
	artworkMux   sync.RWMutex
}

// NewExtractor creates a metadata extractor.
func NewExtractor(logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Extractor{
		logger:       logger,
		artworkCache: make(map[string][]byte),
	}
}

// ExtractFromFile builds a MediaTrack for the file. The returned track's
// URL points at the stream endpoint for its generated ID. Missing metadata
// is never an error; a track with only a filename-derived title is fine.
func (e *Extractor) ExtractFromFile(filePath string) (models.MediaTrack, error) {
	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open media file")
		return models.MediaTrack{}, err
	}
	defer file.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	id := uuid.New().String()

	// The filename rides on the stream URL so variant suffixes survive
	// into comparison-group detection.
	track := models.MediaTrack{
		ID:     id,
		URL:    "/api/stream/" + id + "/" + url.PathEscape(filepath.Base(filePath)),
		Title:  strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
		Format: ext,
		Type:   models.MediaTypeAudio,
	}
	if models.IsVideoFormat(ext) {
		track.Type = models.MediaTypeVideo
	}

	duration, err := e.probeDuration(filePath)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Debug("Duration probe failed, leaving unknown")
	}
	track.Duration = duration

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithError(err).WithField("file_path", filePath).Debug("No readable tags, using filename")
		return track, nil
	}

	if title := metadata.Title(); title != "" {
		track.Title = title
	}
	track.Artist = metadata.Artist()

	if artID, ok := e.cacheArtwork(metadata); ok {
		track.Thumbnail = "/api/artwork/" + artID
	}

	return track, nil
}

// probeDuration returns the duration in seconds, or 0 for formats without
// a probe (the engine tolerates unknown durations everywhere).
func (e *Extractor) probeDuration(filePath string) (float64, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a", ".mp4":
		return e.durationMP4(filePath)
	default:
		return 0, nil
	}
}

// MP3 duration by decoding frames; estimate from file size only when no
// frame decodes at all.
func (e *Extractor) durationMP3(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total float64
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return e.estimateFromFileSize(path, 192000)
			}
			break
		}
		total += fr.Duration().Seconds()
		frames++
	}
	return total, nil
}

// FLAC duration via the STREAMINFO block.
func (e *Extractor) durationFLAC(path string) (float64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return float64(si.NSamples) / float64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the header plus file size; exact enough without
// decoding every sample.
func (e *Extractor) durationWAV(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	return float64(sampleFrames) / float64(dec.SampleRate), nil
}

// MP4/M4A duration from the mvhd atom's timescale and duration. Manual
// atom scan, best-effort.
func (e *Extractor) durationMP4(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	for {
		head := make([]byte, 8)
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		atom := string(head[4:8])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if atom == "moov" {
			limit := int64(size) - 8
			for read := int64(0); read < limit; {
				subHead := make([]byte, 8)
				if _, err := io.ReadFull(f, subHead); err != nil {
					return 0, err
				}
				subSize := binary.BigEndian.Uint32(subHead[0:4])
				subAtom := string(subHead[4:8])
				if subAtom == "mvhd" {
					version := make([]byte, 1)
					if _, err := io.ReadFull(f, version); err != nil {
						return 0, err
					}
					var skip int64
					if version[0] == 1 { // 64-bit creation/modification times
						skip = 3 + 8 + 8
					} else {
						skip = 3 + 4 + 4
					}
					if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
						return 0, err
					}
					tsBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, tsBuf); err != nil {
						return 0, err
					}
					timescale := binary.BigEndian.Uint32(tsBuf)
					durBuf := make([]byte, 4)
					if _, err := io.ReadFull(f, durBuf); err != nil {
						return 0, err
					}
					durUnits := binary.BigEndian.Uint32(durBuf)
					if timescale == 0 {
						return 0, fmt.Errorf("invalid timescale")
					}
					return float64(durUnits) / float64(timescale), nil
				}
				if subSize < 8 {
					return 0, fmt.Errorf("invalid sub-atom size")
				}
				if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
					return 0, err
				}
				read += int64(subSize)
			}
			break
		}
		if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("mvhd atom not found")
}

// estimateFromFileSize is the last-resort probe when frame parsing fails.
func (e *Extractor) estimateFromFileSize(path string, bitrate int) (float64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return float64(st.Size()*8) / float64(bitrate), nil
}

// cacheArtwork stores embedded artwork keyed by content hash and reports
// the key.
func (e *Extractor) cacheArtwork(metadata tag.Metadata) (string, bool) {
	if metadata == nil {
		return "", false
	}
	picture := metadata.Picture()
	if picture == nil {
		return "", false
	}

	hash := md5.Sum(picture.Data)
	artID := fmt.Sprintf("%x", hash)

	e.artworkMux.Lock()
	e.artworkCache[artID] = picture.Data
	e.artworkMux.Unlock()

	return artID, true
}

// GetArtwork retrieves cached artwork by ID.
func (e *Extractor) GetArtwork(artID string) ([]byte, bool) {
	e.artworkMux.RLock()
	data, exists := e.artworkCache[artID]
	e.artworkMux.RUnlock()
	return data, exists
}

// ArtworkMimeType guesses the MIME type of artwork data.
func (e *Extractor) ArtworkMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}
	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}
	return "application/octet-stream"
}

// IsMediaFile checks whether a path has a playable extension.
func (e *Extractor) IsMediaFile(filePath string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	return models.IsSupportedFormat(ext)
}

// ContentType returns the MIME type served for a media file.
func (e *Extractor) ContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".ogv":
		return "video/ogg"
	default:
		return "application/octet-stream"
	}
}
