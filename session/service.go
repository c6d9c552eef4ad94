package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stuffinglist/domain"
	"stuffinglist/obs"
	"stuffinglist/ossstore"
	"stuffinglist/redislock"
	"stuffinglist/store"
	"stuffinglist/streamq"
	"stuffinglist/stuffing"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ErrSessionNotFound  = errors.New("会话不存在")
	errItemNotFound     = errors.New("明细行不存在")
	errFieldNotEditable = errors.New("字段不存在或不可编辑")
)

// ExportArchive is the object storage the service archives exports and uploads into.
// *ossstore.Store satisfies it.
type ExportArchive interface {
	Enabled() bool
	ObjectKeyForExport(sessionID string) string
	ObjectKeyForInput(sessionID, which, originalName string, stamp time.Time) string
	PutObject(objectKey string, r io.Reader, contentType string) error
	SignDownloadURL(objectKey, downloadFilename string) (string, error)
}

type Options struct {
	TmpRoot       string
	MaxUploadMB   int
	ActivityLimit int64
}

type Service struct {
	store   store.SessionStore
	gate    redislock.Gate
	journal streamq.Journal
	archive ExportArchive

	tmpRoot       string
	maxUploadMB   int
	activityLimit int64
}

func NewService(st store.SessionStore, gate redislock.Gate, journal streamq.Journal, archive ExportArchive, opts Options) *Service {
	if gate == nil {
		gate = redislock.NewLocalGate()
	}
	if journal == nil {
		journal = streamq.NewMemoryJournal(0)
	}
	if opts.TmpRoot == "" {
		opts.TmpRoot = os.TempDir()
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 32
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 50
	}
	return &Service{
		store:         st,
		gate:          gate,
		journal:       journal,
		archive:       archive,
		tmpRoot:       opts.TmpRoot,
		maxUploadMB:   opts.MaxUploadMB,
		activityLimit: opts.ActivityLimit,
	}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/sessions", s.handleCreateSession)
	mux.HandleFunc("/sessions/", s.handleSessionRoutes)
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sess, err := s.CreateSession(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "create session failed", "err", err)
		http.Error(w, "创建会话失败", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type route struct {
	method  string
	handler func(w http.ResponseWriter, r *http.Request, sessionID string, rest []string)
}

func (s *Service) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	// /sessions/{id}
	// /sessions/{id}/fields
	// /sessions/{id}/items
	// /sessions/{id}/items/{itemId}
	// /sessions/{id}/reset
	// /sessions/{id}/import
	// /sessions/{id}/cuft
	// /sessions/{id}/export
	// /sessions/{id}/activity
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if path == "" {
		http.Error(w, "sessionId required", http.StatusBadRequest)
		return
	}
	parts := strings.Split(path, "/")
	sessionID := parts[0]

	var rt route
	switch {
	case len(parts) == 1:
		rt = route{http.MethodGet, s.handleGetSession}
	case len(parts) == 2 && parts[1] == "fields":
		rt = route{http.MethodPut, s.handleUpdateFields}
	case len(parts) == 2 && parts[1] == "items":
		rt = route{http.MethodPost, s.handleAddItem}
	case len(parts) == 3 && parts[1] == "items":
		rt = route{http.MethodPut, s.handleUpdateItem}
	case len(parts) == 2 && parts[1] == "reset":
		rt = route{http.MethodPost, s.handleReset}
	case len(parts) == 2 && parts[1] == "import":
		rt = route{http.MethodPost, s.handleImport}
	case len(parts) == 2 && parts[1] == "cuft":
		rt = route{http.MethodGet, s.handleCUFT}
	case len(parts) == 2 && parts[1] == "export":
		rt = route{http.MethodGet, s.handleExport}
	case len(parts) == 2 && parts[1] == "activity":
		rt = route{http.MethodGet, s.handleActivity}
	default:
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != rt.method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.handler(w, r, sessionID, parts[1:])
}

// CreateSession opens a session holding the seed form.
func (s *Service) CreateSession(ctx context.Context) (*domain.Session, error) {
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:        newSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
		Form:      domain.NewSeedForm(),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "session created", "sessionId", sess.ID)
	return sess, nil
}

func (s *Service) loadSession(ctx context.Context, id string) (*domain.Session, error) {
	sess, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// update applies fn to the stored session and stamps UpdatedAt.
func (s *Service) update(ctx context.Context, id string, fn func(sess *domain.Session) error) (*domain.Session, error) {
	out, ok, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return out, nil
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	sess, err := s.loadSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func decodeStringMap(r *http.Request) (map[string]string, error) {
	var body map[string]string
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Service) handleUpdateFields(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	body, err := decodeStringMap(r)
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, err := s.UpdateFields(r.Context(), sessionID, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// UpdateFields assigns header fields by JSON name. Nothing is written if any name is
// unknown.
func (s *Service) UpdateFields(ctx context.Context, sessionID string, fields map[string]string) (*domain.Session, error) {
	return s.update(ctx, sessionID, func(sess *domain.Session) error {
		for name, v := range fields {
			if !sess.Form.SetField(name, v) {
				return fmt.Errorf("%w: %s", errFieldNotEditable, name)
			}
		}
		return nil
	})
}

func (s *Service) handleAddItem(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	body := map[string]string{}
	if r.ContentLength != 0 {
		b, err := decodeStringMap(r)
		if err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if b != nil {
			body = b
		}
	}
	sess, item, err := s.AddItem(r.Context(), sessionID, body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"item":    item,
		"session": sess,
	})
}

// AddItem appends a blank line item (optionally pre-filled) with a fresh id.
func (s *Service) AddItem(ctx context.Context, sessionID string, fields map[string]string) (*domain.Session, domain.LineItem, error) {
	item := domain.LineItem{ID: domain.NewItemID()}
	for name, v := range fields {
		if !item.SetField(name, v) {
			return nil, domain.LineItem{}, fmt.Errorf("%w: %s", errFieldNotEditable, name)
		}
	}
	sess, err := s.update(ctx, sessionID, func(sess *domain.Session) error {
		sess.Form.Items = append(sess.Form.Items, item)
		return nil
	})
	if err != nil {
		return nil, domain.LineItem{}, err
	}
	return sess, item, nil
}

func (s *Service) handleUpdateItem(w http.ResponseWriter, r *http.Request, sessionID string, rest []string) {
	body, err := decodeStringMap(r)
	if err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sess, err := s.UpdateItem(r.Context(), sessionID, rest[1], body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// UpdateItem edits one line item by id. id and sku cannot be changed.
func (s *Service) UpdateItem(ctx context.Context, sessionID, itemID string, fields map[string]string) (*domain.Session, error) {
	return s.update(ctx, sessionID, func(sess *domain.Session) error {
		for i := range sess.Form.Items {
			it := &sess.Form.Items[i]
			if it.ID != itemID {
				continue
			}
			for name, v := range fields {
				if !it.SetField(name, v) {
					return fmt.Errorf("%w: %s", errFieldNotEditable, name)
				}
			}
			return nil
		}
		return errItemNotFound
	})
}

// acquire takes the busy flag for op; on failure the response has been written.
func (s *Service) acquire(w http.ResponseWriter, r *http.Request, sessionID string, op domain.Operation) (func(), bool) {
	if _, err := s.loadSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return nil, false
	}
	release, err := s.gate.TryAcquire(r.Context(), sessionID, op)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return release, true
}

func (s *Service) record(ctx context.Context, sessionID string, op domain.Operation, detail string) {
	if _, err := s.journal.Append(ctx, sessionID, domain.ActivityEntry{Op: op, At: time.Now().UTC(), Detail: detail}); err != nil {
		slog.WarnContext(ctx, "journal append failed", "sessionId", sessionID, "op", string(op), "err", err)
	}
}

func (s *Service) handleReset(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	release, ok := s.acquire(w, r, sessionID, domain.OperationReset)
	if !ok {
		return
	}
	defer release()

	sess, err := s.update(r.Context(), sessionID, func(sess *domain.Session) error {
		sess.Form = domain.NewSeedForm()
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.record(r.Context(), sessionID, domain.OperationReset, "form reset to defaults")
	writeJSON(w, http.StatusOK, sess)
}

// Upload is a multipart file part saved to local disk.
type Upload struct {
	Path string
	Name string
}

func (s *Service) handleImport(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	release, ok := s.acquire(w, r, sessionID, domain.OperationImport)
	if !ok {
		return
	}
	defer release()

	// Stream multipart to disk to reduce memory usage (avoid ParseMultipartForm buffering).
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxUploadMB)<<20)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(s.tmpRoot, 0o755); err != nil {
		http.Error(w, "failed to create upload dir", http.StatusInternalServerError)
		return
	}
	dir, err := os.MkdirTemp(s.tmpRoot, "import_")
	if err != nil {
		http.Error(w, "failed to create upload dir", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()

	uploads := map[string]Upload{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, "invalid multipart stream", http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(part.FormName())
		if name != "si" && name != "index" {
			// Drain unknown parts to keep parser healthy.
			_, _ = io.Copy(io.Discard, part)
			_ = part.Close()
			continue
		}
		fn := safeBaseNameFromName(part.FileName())
		dst, err := saveUploadTo(dir, name+"_"+fn, part)
		_ = part.Close()
		if err != nil {
			http.Error(w, "failed to save "+name, http.StatusInternalServerError)
			return
		}
		uploads[name] = Upload{Path: dst, Name: fn}
	}

	res, err := s.Import(r.Context(), sessionID, uploads["si"], uploads["index"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ImportResponse is what an import run reports back.
type ImportResponse struct {
	Session        *domain.Session         `json:"session"`
	Notices        []string                `json:"notices"`
	ItemsImported  int                     `json:"itemsImported"`
	ItemsReplaced  bool                    `json:"itemsReplaced"`
	IndexRecords   int                     `json:"indexRecords"`
	IndexSkipped   bool                    `json:"indexSkipped"`
	Reconciliation stuffing.ReconcileStats `json:"reconciliation"`
}

// Import runs the automation over the uploaded files and replaces the session form with
// the result. The SI file is read to completion before the index file is opened.
func (s *Service) Import(ctx context.Context, sessionID string, si, index Upload) (*ImportResponse, error) {
	if si.Path == "" && index.Path == "" {
		return nil, stuffing.ErrNoInput
	}
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.archiveInputs(ctx, sessionID, si, index)

	var siR, indexR io.Reader
	if si.Path != "" {
		f, err := os.Open(si.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		siR = f
	}
	if index.Path != "" {
		f, err := os.Open(index.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		indexR = f
	}

	res, err := stuffing.RunAutomation(ctx, sess.Form, siR, indexR)
	if err != nil {
		return nil, err
	}
	updated, err := s.update(ctx, sessionID, func(cur *domain.Session) error {
		cur.Form = res.Form
		return nil
	})
	if err != nil {
		return nil, err
	}

	notices := res.Notices()
	if notices == nil {
		notices = []string{}
	}
	s.record(ctx, sessionID, domain.OperationImport, fmt.Sprintf("items=%d matched=%d notices=%d",
		len(res.Form.Items), res.Reconciliation.Matched, len(notices)))
	return &ImportResponse{
		Session:        updated,
		Notices:        notices,
		ItemsImported:  res.ItemsImported,
		ItemsReplaced:  res.ItemsReplaced,
		IndexRecords:   res.IndexRecords,
		IndexSkipped:   res.IndexSkipped,
		Reconciliation: res.Reconciliation,
	}, nil
}

// archiveInputs copies the uploads to object storage. Failures only log.
func (s *Service) archiveInputs(ctx context.Context, sessionID string, files ...Upload) {
	if s.archive == nil || !s.archive.Enabled() {
		return
	}
	now := time.Now()
	for i, u := range files {
		if u.Path == "" {
			continue
		}
		which := "si"
		if i == 1 {
			which = "index"
		}
		key := s.archive.ObjectKeyForInput(sessionID, which, u.Name, now)
		f, err := os.Open(u.Path)
		if err != nil {
			slog.WarnContext(ctx, "archive upload failed", "sessionId", sessionID, "key", key, "err", err)
			continue
		}
		err = s.archive.PutObject(key, f, excelContentTypeByName(u.Name))
		_ = f.Close()
		if err != nil {
			slog.WarnContext(ctx, "archive upload failed", "sessionId", sessionID, "key", key, "err", err)
		}
	}
}

func (s *Service) handleCUFT(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	sess, err := s.loadSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg, total := stuffing.CUFTReport(sess.Form.Items)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      msg,
		"totalCuft":    total.StringFixed(2),
		"totalCartons": stuffing.TotalCartons(sess.Form.Items),
	})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	release, ok := s.acquire(w, r, sessionID, domain.OperationExport)
	if !ok {
		return
	}
	defer release()

	sess, err := s.loadSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	err = stuffing.WriteStuffingList(sess.Form, &buf)
	obs.RecordExport(err)
	if err != nil {
		slog.ErrorContext(r.Context(), "export failed", "sessionId", sessionID, "err", err)
		http.Error(w, "生成导出文件失败", http.StatusInternalServerError)
		return
	}
	s.record(r.Context(), sessionID, domain.OperationExport, fmt.Sprintf("items=%d bytes=%d", len(sess.Form.Items), buf.Len()))

	// Prefer OSS signed URL when available (cross-pod safe).
	if s.archive != nil && s.archive.Enabled() {
		key := s.archive.ObjectKeyForExport(sessionID)
		if err := s.archive.PutObject(key, bytes.NewReader(buf.Bytes()), xlsxContentType); err != nil {
			slog.WarnContext(r.Context(), "export archive failed", "sessionId", sessionID, "err", err)
		} else {
			if _, err := s.update(r.Context(), sessionID, func(cur *domain.Session) error {
				cur.ExportOSSKey = key
				return nil
			}); err != nil {
				slog.WarnContext(r.Context(), "record export key failed", "sessionId", sessionID, "key", key, "err", err)
			}
			if wantsJSON(r) {
				signed, err := s.archive.SignDownloadURL(key, stuffing.ExportFileName)
				if err != nil {
					http.Error(w, "生成下载链接失败", http.StatusBadGateway)
					return
				}
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"url":      signed,
					"filename": stuffing.ExportFileName,
				})
				return
			}
		}
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", ossstore.ContentDisposition(stuffing.ExportFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Service) handleActivity(w http.ResponseWriter, r *http.Request, sessionID string, _ []string) {
	if _, err := s.loadSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.journal.Recent(r.Context(), sessionID, s.activityLimit)
	if err != nil {
		slog.ErrorContext(r.Context(), "journal read failed", "sessionId", sessionID, "err", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"entries":   entries,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, errItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, redislock.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errFieldNotEditable), errors.Is(err, stuffing.ErrNoInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func wantsJSON(r *http.Request) bool {
	if r == nil {
		return false
	}
	q := r.URL.Query()
	if strings.EqualFold(strings.TrimSpace(q.Get("format")), "json") {
		return true
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "application/json")
}

func newSessionID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err == nil {
		return "sl_" + hex.EncodeToString(buf)
	}
	return fmt.Sprintf("sl_%d", time.Now().UnixNano())
}

func saveUploadTo(dir, name string, src io.Reader) (string, error) {
	if dir == "" || name == "" {
		return "", errors.New("invalid path")
	}
	dstPath := filepath.Join(dir, name)
	f, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		return "", err
	}
	return dstPath, nil
}

func safeBaseNameFromName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "upload.xlsx"
	}
	return filepath.Base(strings.ReplaceAll(name, "\\", "/"))
}

func excelContentTypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch ext {
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return xlsxContentType
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
