// Package corpus manages the text documents the semantic index is built
// from: the primary knowledge file, uploaded documents and fetched pages.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// PrimaryDocument is the main knowledge file at the corpus root.
const PrimaryDocument = "university_info.txt"

const scrapedDir = "scraped"

var (
	// ErrUnsupportedType is returned for files the library cannot extract.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidName is returned for names that escape the corpus directory.
	ErrInvalidName = errors.New("invalid file name")

	// ErrEmptyDocument is returned when extraction yields no text.
	ErrEmptyDocument = errors.New("no text found in document")
)

// Document is a source document ready for chunking. ID is its path
// relative to the corpus directory.
type Document struct {
	ID   string
	Text string
}

// FileInfo describes a stored corpus file.
type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Primary bool      `json:"primary"`
}

// Library is a directory of corpus documents.
type Library struct {
	dir     string
	workers int
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex // serializes writes
}

// Option configures a Library.
type Option func(*Library)

// WithWorkers sets how many documents are extracted concurrently.
func WithWorkers(n int) Option {
	return func(l *Library) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithLogger sets the library's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLibrary returns a Library rooted at dir.
func NewLibrary(dir string, opts ...Option) *Library {
	l := &Library{
		dir:     dir,
		workers: 4,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the corpus root.
func (l *Library) Dir() string { return l.dir }

func (l *Library) scrapedPath() string { return filepath.Join(l.dir, scrapedDir) }

// Load reads every corpus document: the primary document first, then the
// scraped directory in name order. It returns the non-empty documents and
// the number of files examined.
func (l *Library) Load(ctx context.Context) ([]Document, int, error) {
	ids, err := l.documentIDs()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	pool, err := ants.NewPool(l.workers)
	if err != nil {
		return nil, 0, fmt.Errorf("creating extraction pool: %w", err)
	}
	defer pool.Release()

	texts := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, 0, err
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			data, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(id)))
			if err != nil {
				l.logger.Warn("reading corpus file", "file", id, "error", err)
				return
			}
			text, err := ExtractText(id, data)
			if err != nil {
				l.logger.Warn("extracting corpus file", "file", id, "error", err)
				return
			}
			texts[i] = text
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, 0, fmt.Errorf("submitting %s: %w", id, err)
		}
	}
	wg.Wait()

	var docs []Document
	for i, id := range ids {
		if strings.TrimSpace(texts[i]) == "" {
			continue
		}
		docs = append(docs, Document{ID: id, Text: texts[i]})
	}
	return docs, len(ids), nil
}

func (l *Library) documentIDs() ([]string, error) {
	var ids []string
	if st, err := os.Stat(filepath.Join(l.dir, PrimaryDocument)); err == nil && st.Mode().IsRegular() {
		ids = append(ids, PrimaryDocument)
	}

	entries, err := os.ReadDir(l.scrapedPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading scraped directory: %w", err)
	}
	var scraped []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !Supported(e.Name()) {
			continue
		}
		scraped = append(scraped, scrapedDir+"/"+e.Name())
	}
	sort.Strings(scraped)
	return append(ids, scraped...), nil
}

// List returns the stored corpus files, primary document first.
func (l *Library) List() ([]FileInfo, error) {
	ids, err := l.documentIDs()
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(ids))
	for _, id := range ids {
		st, err := os.Stat(filepath.Join(l.dir, filepath.FromSlash(id)))
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:    id,
			Size:    st.Size(),
			ModTime: st.ModTime().UTC(),
			Primary: id == PrimaryDocument,
		})
	}
	return files, nil
}

// resolve maps a name as returned by List to a path inside the corpus.
func (l *Library) resolve(name string) (string, error) {
	name = filepath.ToSlash(strings.TrimSpace(name))
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name == PrimaryDocument {
		return filepath.Join(l.dir, PrimaryDocument), nil
	}
	base := strings.TrimPrefix(name, scrapedDir+"/")
	if base == "" || strings.Contains(base, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.scrapedPath(), base), nil
}

// Delete removes a corpus file by name.
func (l *Library) Delete(name string) error {
	path, err := l.resolve(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", name, os.ErrNotExist)
		}
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// ClearScraped removes every .txt file from the scraped directory and
// returns how many were removed.
func (l *Library) ClearScraped() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clearScrapedLocked()
}

func (l *Library) clearScrapedLocked() (int, error) {
	entries, err := os.ReadDir(l.scrapedPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading scraped directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(l.scrapedPath(), e.Name())); err != nil {
			return n, fmt.Errorf("removing %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// SaveUpload stores an uploaded document and returns its corpus name. PDF
// and HTML uploads are stored as extracted text. A text file named
// university_info.txt replaces the primary document.
func (l *Library) SaveUpload(name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.TrimSpace(name)))
	if base == "/" || base == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	ext := strings.ToLower(filepath.Ext(base))
	if !Supported(base) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	text, err := ExtractText(base, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if strings.EqualFold(base, PrimaryDocument) {
		if err := writeFileAtomic(filepath.Join(l.dir, PrimaryDocument), []byte(text)); err != nil {
			return "", err
		}
		return PrimaryDocument, nil
	}

	prefix := strings.TrimPrefix(ext, ".") + "_upload"
	if ext == ".md" {
		prefix = "txt_upload"
	}
	return l.saveScrapedLocked(prefix, text)
}

// SavePage stores fetched page text. Unless keepOld is set, previously
// scraped text files are removed first.
func (l *Library) SavePage(pageURL, text string, keepOld bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !keepOld {
		n, err := l.clearScrapedLocked()
		if err != nil {
			return "", err
		}
		if n > 0 {
			l.logger.Info("cleared scraped documents", "count", n)
		}
	}
	return l.saveScrapedLocked("page_"+sanitizeURL(pageURL), text)
}

func (l *Library) saveScrapedLocked(prefix, text string) (string, error) {
	if err := os.MkdirAll(l.scrapedPath(), 0o755); err != nil {
		return "", fmt.Errorf("creating scraped directory: %w", err)
	}

	base := prefix + "_" + l.now().Format("20060102_150405")
	name := base + ".txt"
	if _, err := os.Stat(filepath.Join(l.scrapedPath(), name)); err == nil {
		name = base + "_" + uuid.NewString()[:8] + ".txt"
	}

	if err := writeFileAtomic(filepath.Join(l.scrapedPath(), name), []byte(text)); err != nil {
		return "", err
	}
	return scrapedDir + "/" + name, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func sanitizeURL(raw string) string {
	s := raw
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 80 {
		out = out[:80]
	}
	if out == "" {
		out = "page"
	}
	return out
}
