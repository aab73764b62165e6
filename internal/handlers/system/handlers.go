package system

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httpx "tally/internal/http"
	"tally/internal/logger"
	"tally/internal/services/storage"
	"tally/internal/version"
)

// maxRestoreBytes caps uploaded backup archives
const maxRestoreBytes = 50 << 20

// restorable lists the documents a backup may restore
var restorable = map[string]bool{
	"rules.json":     true,
	"ledger.json":    true,
	"directory.json": true,
}

var (
	store *storage.Storage

	// unlockLimiter throttles password attempts on unlock and disable
	unlockLimiter *rate.Limiter
)

// Initialize sets up the system package with required dependencies. A nil
// limiter leaves password attempts unthrottled.
func Initialize(s *storage.Storage, limiter *rate.Limiter) {
	store = s
	unlockLimiter = limiter
	if unlockLimiter == nil {
		unlockLimiter = rate.NewLimiter(rate.Inf, 0)
	}
}

// NewUnlockLimiter allows perMinute password attempts with the given burst
func NewUnlockLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

func allowPasswordAttempt(w http.ResponseWriter, r *http.Request) bool {
	if unlockLimiter.Allow() {
		return true
	}
	logger.FromContext(r.Context()).Warn("password attempt throttled", zap.String("path", r.URL.Path))
	w.Header().Set("Retry-After", "60")
	httpx.ErrorResponse(w, r, fmt.Errorf("%w: too many password attempts, try again later", httpx.ErrTooManyRequests))
	return false
}

// RegisterRoutes registers health, version, encryption and backup routes.
// Backup and restore only cover the JSON documents of the file store.
func RegisterRoutes(r chi.Router, withBackup bool) {
	r.Get("/api/health", HandleHealth)
	r.Get("/api/version", HandleVersion)

	r.Get("/api/encryption", handleEncryptionStatus)
	r.Post("/api/encryption/unlock", handleUnlock)
	r.Post("/api/encryption/lock", handleLock)
	r.Post("/api/encryption/enable", handleEnable)
	r.Post("/api/encryption/disable", handleDisable)

	if withBackup {
		r.Get("/api/backup", HandleBackup)
		r.Post("/api/restore", HandleRestore)
	}
}

func HandleHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func HandleVersion(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"info":    info,
		"summary": info.String(),
		"warning": info.Check(),
	})
}

type passwordInput struct {
	Password string `json:"password"`
}

func handleEncryptionStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, store.Status())
}

func handleUnlock(w http.ResponseWriter, r *http.Request) {
	if !allowPasswordAttempt(w, r) {
		return
	}
	var in passwordInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	if err := store.Unlock(in.Password); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("storage unlocked")
	httpx.WriteJSON(w, http.StatusOK, store.Status())
}

func handleLock(w http.ResponseWriter, r *http.Request) {
	store.Lock()
	logger.FromContext(r.Context()).Info("storage locked")
	httpx.WriteJSON(w, http.StatusOK, store.Status())
}

func handleEnable(w http.ResponseWriter, r *http.Request) {
	var in passwordInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	if err := store.EnableEncryption(in.Password); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("encryption enabled")
	httpx.WriteJSON(w, http.StatusOK, store.Status())
}

func handleDisable(w http.ResponseWriter, r *http.Request) {
	if !allowPasswordAttempt(w, r) {
		return
	}
	var in passwordInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	if err := store.DisableEncryption(in.Password); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("encryption disabled")
	httpx.WriteJSON(w, http.StatusOK, store.Status())
}

// HandleBackup streams a zip of the JSON documents. Documents are read
// through storage, so the archive is always plaintext.
func HandleBackup(w http.ResponseWriter, r *http.Request) {
	if !store.IsUnlocked() {
		httpx.ErrorResponse(w, r, storage.ErrLocked)
		return
	}

	// Buffer the archive so a read failure can still produce an error response
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0
	for name := range restorable {
		path := store.Path(name)
		if !store.Exists(path) {
			continue
		}
		data, err := store.ReadFile(path)
		if err != nil {
			httpx.ErrorResponse(w, r, fmt.Errorf("read %s: %w", name, err))
			return
		}
		f, err := zw.Create(name)
		if err != nil {
			httpx.ErrorResponse(w, r, err)
			return
		}
		if _, err := f.Write(data); err != nil {
			httpx.ErrorResponse(w, r, err)
			return
		}
		count++
	}
	if err := zw.Close(); err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}

	filename := fmt.Sprintf("tally_backup_%s.zip", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(buf.Bytes())

	logger.FromContext(r.Context()).Info("backup created", zap.Int("documents", count))
}

// HandleRestore replaces documents with the ones found in an uploaded zip.
// Only known document names are restored; anything else is skipped.
func HandleRestore(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(maxRestoreBytes); err != nil {
		httpx.ErrorResponse(w, r, fmt.Errorf("%w: file too large or not multipart", httpx.ErrBadRequest))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.ErrorResponse(w, r, fmt.Errorf("%w: missing file field", httpx.ErrBadRequest))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		httpx.ErrorResponse(w, r, fmt.Errorf("%w: only ZIP backup files are allowed", httpx.ErrBadRequest))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.ErrorResponse(w, r, err)
		return
	}
	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		httpx.ErrorResponse(w, r, fmt.Errorf("%w: invalid ZIP file", httpx.ErrBadRequest))
		return
	}

	var restored []string
	for _, zipFile := range zipReader.File {
		if zipFile.FileInfo().IsDir() {
			continue
		}
		// base name only, so entries cannot escape the data directory
		baseName := filepath.Base(zipFile.Name)
		if !restorable[baseName] {
			continue
		}

		rc, err := zipFile.Open()
		if err != nil {
			log.Warn("skipping unreadable zip entry", zap.String("name", zipFile.Name), zap.Error(err))
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn("skipping unreadable zip entry", zap.String("name", zipFile.Name), zap.Error(err))
			continue
		}

		// written through storage so encryption applies when enabled
		if err := store.WriteFile(store.Path(baseName), data, 0644); err != nil {
			httpx.ErrorResponse(w, r, fmt.Errorf("restore %s: %w", baseName, err))
			return
		}
		restored = append(restored, baseName)
	}

	if len(restored) == 0 {
		httpx.ErrorResponse(w, r, fmt.Errorf("%w: no tally documents found in backup", httpx.ErrBadRequest))
		return
	}

	log.Info("restore complete", zap.Strings("documents", restored))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"restored": restored})
}
