package ossstore

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aliyun/credentials-go/credentials"
)

const exportObjectName = "Stuffing_List.xlsx"

var errDisabled = errors.New("oss not enabled")

// Store archives exports and uploaded workbooks in an Aliyun OSS bucket and signs
// browser download links for them.
type Store struct {
	cfg  Config
	cred credentials.Credential

	// uploads go through the internal endpoint, links are signed for the public one
	uploadBucket *oss.Bucket
	signBucket   *oss.Bucket
}

// NewFromEnv builds a Store from OSS_* variables. enabled reports whether OSS_BUCKET was
// set; an error with enabled=true is a misconfiguration.
func NewFromEnv() (st *Store, enabled bool, err error) {
	cfg, ok := ConfigFromEnv()
	if !ok {
		return nil, false, nil
	}
	st, err = New(cfg)
	return st, true, err
}

func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cred, err := newAlibabaCredential(cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("init alibaba credentials failed: %w", err)
	}
	if err := checkCredential(cred); err != nil {
		return nil, err
	}
	provider := &credentialsProvider{cred: cred}

	ub, err := openBucket(cfg.InternalEndpoint, cfg.Region, cfg.Bucket, provider)
	if err != nil {
		return nil, fmt.Errorf("open oss bucket(upload) failed: %w", err)
	}
	sb, err := openBucket(cfg.PublicEndpoint, cfg.Region, cfg.Bucket, provider)
	if err != nil {
		return nil, fmt.Errorf("open oss bucket(sign) failed: %w", err)
	}
	return &Store{cfg: cfg, cred: cred, uploadBucket: ub, signBucket: sb}, nil
}

func openBucket(endpoint, region, bucket string, provider oss.CredentialsProvider) (*oss.Bucket, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint empty")
	}
	// Empty AK/SK: every request asks the provider.
	client, err := oss.New(endpoint, "", "",
		oss.SetCredentialsProvider(provider),
		oss.AuthVersion(oss.AuthV4),
		oss.Region(region),
	)
	if err != nil {
		return nil, err
	}
	return client.Bucket(bucket)
}

func (s *Store) Enabled() bool { return s != nil && s.uploadBucket != nil && s.signBucket != nil }

// Bucket is the configured bucket name ("" for a nil store).
func (s *Store) Bucket() string {
	if s == nil {
		return ""
	}
	return s.cfg.Bucket
}

// ObjectKeyForExport is where the latest export of a session is archived. Each export
// overwrites the previous one.
func (s *Store) ObjectKeyForExport(sessionID string) string {
	return path.Join(s.cfg.ExportPrefix, strings.TrimSpace(sessionID), exportObjectName)
}

// ObjectKeyForInput names an archived upload; stamp keeps repeated imports apart.
func (s *Store) ObjectKeyForInput(sessionID, which, originalName string, stamp time.Time) string {
	which = strings.TrimSpace(which)
	if which == "" {
		which = "file"
	}
	name := strings.TrimSpace(originalName)
	if name == "" {
		name = "upload.xlsx"
	}
	// no path segments from client file names
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	obj := stamp.UTC().Format("20060102T150405") + "_" + which + "_" + name
	return path.Join(s.cfg.InputPrefix, strings.TrimSpace(sessionID), obj)
}

func (s *Store) ready() error {
	if !s.Enabled() {
		return errDisabled
	}
	return checkCredential(s.cred)
}

// PutObject uploads r as a private object.
func (s *Store) PutObject(objectKey string, r io.Reader, contentType string) error {
	if err := s.ready(); err != nil {
		return err
	}
	objectKey = strings.TrimLeft(strings.TrimSpace(objectKey), "/")
	if objectKey == "" || r == nil {
		return errors.New("invalid objectKey/reader")
	}
	opts := []oss.Option{
		oss.ObjectACL(oss.ACLPrivate),
		oss.Meta("source", "stuffinglist"),
	}
	if ct := strings.TrimSpace(contentType); ct != "" {
		opts = append(opts, oss.ContentType(ct))
	}
	if err := s.uploadBucket.PutObject(objectKey, r, opts...); err != nil {
		return fmt.Errorf("上传 OSS 对象失败(%s): %w", objectKey, err)
	}
	return nil
}

// SignDownloadURL returns a time-limited GET link that downloads as downloadFilename.
func (s *Store) SignDownloadURL(objectKey, downloadFilename string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	objectKey = strings.TrimLeft(strings.TrimSpace(objectKey), "/")
	if objectKey == "" {
		return "", errors.New("objectKey empty")
	}
	name := strings.TrimSpace(downloadFilename)
	if name == "" {
		name = exportObjectName
	}
	return s.signBucket.SignURL(objectKey, oss.HTTPGet, int64(s.cfg.SignExpiry.Seconds()),
		oss.ResponseContentDisposition(ContentDisposition(name)))
}

// ContentDisposition builds an attachment header value with an ASCII fallback name.
func ContentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", asciiFallback(name), url.PathEscape(name))
}

func asciiFallback(name string) string {
	for _, r := range name {
		if r > 0x7e || r < 0x20 || r == '"' {
			return exportObjectName
		}
	}
	return name
}
