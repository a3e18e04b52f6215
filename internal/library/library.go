// Package library scans a media directory into an in-memory track index
// and keeps it current with a filesystem watcher. It is the discovery
// collaborator for the playback engine: everything it emits is a plain
// MediaTrack, and A/B grouping happens downstream from the filenames.
package library

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Library owns the scanner, extractor, index and watcher for one media
// directory.
type Library struct {
	path      string
	extractor *Extractor
	index     *Index
	watcher   *fsnotify.Watcher
	logger    *logrus.Logger
}

// New creates a library rooted at the given directory. Call Scan to
// populate it and Watch to keep it current.
func New(path string, logger *logrus.Logger) *Library {
	if logger == nil {
		logger = logrus.New()
	}
	return &Library{
		path:      path,
		extractor: NewExtractor(logger),
		index:     NewIndex(),
		logger:    logger,
	}
}

// Index exposes the track catalog.
func (l *Library) Index() *Index { return l.index }

// Extractor exposes the metadata extractor, used by the server for
// artwork and content-type lookups.
func (l *Library) Extractor() *Extractor { return l.extractor }

// Scan walks the media directory and indexes every supported file.
func (l *Library) Scan() error {
	start := time.Now()
	count := 0

	err := filepath.Walk(l.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			l.logger.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			return nil
		}
		if info.IsDir() || !l.extractor.IsMediaFile(path) {
			return nil
		}

		track, err := l.extractor.ExtractFromFile(path)
		if err != nil {
			l.logger.WithError(err).WithField("file_path", path).Warn("Skipping unreadable media file")
			return nil
		}
		l.index.Add(path, track)
		count++
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"library_path": l.path,
		"tracks":       count,
		"elapsed":      time.Since(start),
	}).Info("Library scan complete")
	return nil
}

// Watch starts the filesystem watcher so files added or removed after the
// initial scan show up in the index. Runs until Close.
func (l *Library) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = watcher

	go l.watchFiles()

	if err := l.addDirectoryToWatcher(l.path); err != nil {
		return err
	}

	l.logger.WithField("library_path", l.path).Info("File watcher started")
	return nil
}

// addDirectoryToWatcher recursively adds subdirectories to the watcher.
func (l *Library) addDirectoryToWatcher(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

func (l *Library) watchFiles() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handleFileEvent(event)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (l *Library) handleFileEvent(event fsnotify.Event) {
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isMedia := l.extractor.IsMediaFile(event.Name)

	switch {
	case event.Has(fsnotify.Create) && isMedia:
		go func(name string) {
			time.Sleep(500 * time.Millisecond) // let the file finish writing
			l.handleNewFile(name)
		}(event.Name)

	case event.Has(fsnotify.Remove) && isMedia:
		go l.handleRemovedFile(event.Name)

	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			l.watcher.Add(event.Name)
			l.logger.WithField("directory", event.Name).Info("Watching new directory")
		}
	}
}

func (l *Library) handleNewFile(filePath string) {
	track, err := l.extractor.ExtractFromFile(filePath)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", filePath).Error("Error extracting metadata")
		return
	}
	l.index.Add(filePath, track)

	l.logger.WithFields(logrus.Fields{
		"title": track.Title,
		"type":  track.Type,
		"id":    track.ID,
	}).Info("Added new track")
}

func (l *Library) handleRemovedFile(filePath string) {
	if l.index.RemoveByPath(filePath) {
		l.logger.WithField("file_path", filePath).Info("Removed track from index")
	}
}

// Close stops the watcher.
func (l *Library) Close() {
	if l.watcher != nil {
		l.watcher.Close()
	}
}
