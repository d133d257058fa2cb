// Package files stores, lists and serves encrypted uploads.
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/cas"
	"github.com/blockvault/internal/cipher"
	"github.com/blockvault/internal/models"
	"github.com/blockvault/internal/rbac"
	"github.com/blockvault/internal/share"
	"github.com/blockvault/internal/storage"
	"github.com/blockvault/internal/store"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
	DefaultOpTimeout = 10 * time.Second
	blobExt          = ".bv"
)

var (
	ErrNameRequired       = apperr.New(apperr.InvalidInput, "file name required")
	ErrEmptyFile          = apperr.New(apperr.InvalidInput, "empty file content")
	ErrPassphraseRequired = apperr.New(apperr.InvalidInput, "key (passphrase) required")
	ErrBlobGone           = apperr.New(apperr.Gone, "encrypted blob missing")
)

// UploadRequest 上传请求
type UploadRequest struct {
	Name       string
	Data       []byte
	Passphrase string
	AAD        string
}

// Options 文件服务选项
type Options struct {
	Cipher cipher.Options
	// OpTimeout bounds each blob storage and CAS call.
	OpTimeout time.Duration
}

// Service 文件服务
type Service struct {
	files   store.FileRepository
	blobs   storage.BlobStore
	cas     cas.Store
	access  *share.AccessController
	names   *NameValidator
	opts    cipher.Options
	timeout time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewService(files store.FileRepository, blobs storage.BlobStore, casStore cas.Store, access *share.AccessController, opts Options, logger logrus.FieldLogger) *Service {
	if casStore == nil {
		casStore = cas.Disabled{}
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	return &Service{
		files:   files,
		blobs:   blobs,
		cas:     casStore,
		access:  access,
		names:   DefaultNameValidator(),
		opts:    opts.Cipher,
		timeout: opts.OpTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) putBlob(ctx context.Context, name string, blob []byte) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.blobs.Put(ctx, name, blob)
}

func (s *Service) deleteBlob(ctx context.Context, name string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.blobs.Delete(ctx, name)
}

func (s *Service) unpin(ctx context.Context, cid string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.cas.Unpin(ctx, cid)
}

// Upload encrypts and stores a file for its owner. Pinning to the CAS is
// best-effort; the record is only written once the blob is stored.
func (s *Service) Upload(ctx context.Context, p rbac.Principal, req UploadRequest) (*models.UploadResponse, error) {
	if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
		return nil, err
	}
	name, err := s.names.Normalize(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	if len(req.Data) == 0 {
		return nil, ErrEmptyFile
	}

	var aad *string
	if req.AAD != "" {
		v := req.AAD
		aad = &v
	}

	sum := sha256.Sum256(req.Data)
	blob, err := cipher.Seal(req.Data, req.Passphrase, []byte(req.AAD), s.opts)
	if err != nil {
		return nil, err
	}

	blobName := uuid.New().String() + blobExt
	if err := s.putBlob(ctx, blobName, blob); err != nil {
		return nil, apperr.Upstream("blob storage", err)
	}

	var cid string
	if s.cas.Enabled() {
		addCtx, cancel := s.opContext(ctx)
		cid, err = s.cas.Add(addCtx, blob)
		cancel()
		apperr.BestEffort(s.logger, "cas add", err)
	}

	record := &models.FileRecord{
		ID:           uuid.New().String(),
		Owner:        p.Address,
		OriginalName: name,
		EncBlobRef:   blobName,
		Size:         int64(len(req.Data)),
		CreatedAt:    s.now().UnixMilli(),
		AAD:          aad,
		ContentHash:  hex.EncodeToString(sum[:]),
		ContentID:    cid,
	}
	if err := s.files.Insert(ctx, record); err != nil {
		apperr.BestEffort(s.logger, "blob cleanup", s.deleteBlob(ctx, blobName))
		if cid != "" {
			apperr.BestEffort(s.logger, "cas unpin", s.unpin(ctx, cid))
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": record.ID,
		"owner":   record.Owner.String(),
		"size":    record.Size,
		"pinned":  cid != "",
	}).Info("file uploaded")

	resp := &models.UploadResponse{
		FileID:      record.ID,
		Name:        record.OriginalName,
		ContentHash: record.ContentHash,
	}
	if cid != "" {
		resp.ContentID = &cid
		if url := s.cas.GatewayURL(cid); url != "" {
			resp.GatewayURL = &url
		}
	}
	return resp, nil
}

// Download authorizes the caller, then decrypts the blob. A blob missing
// from storage is fetched from the CAS and restored locally when possible.
func (s *Service) Download(ctx context.Context, p rbac.Principal, fileID, passphrase string) (*models.FileRecord, []byte, error) {
	if passphrase == "" {
		return nil, nil, ErrPassphraseRequired
	}
	record, _, err := s.access.Authorize(ctx, p, fileID)
	if err != nil {
		return nil, nil, err
	}

	blob, err := s.loadBlob(ctx, record)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := cipher.Decrypt(blob, passphrase, record.AADBytes())
	if err != nil {
		return nil, nil, err
	}
	return record, plaintext, nil
}

func (s *Service) loadBlob(ctx context.Context, record *models.FileRecord) ([]byte, error) {
	getCtx, cancel := s.opContext(ctx)
	blob, err := s.blobs.Get(getCtx, record.EncBlobRef)
	cancel()
	if err == nil {
		return blob, nil
	}
	if !errors.Is(err, storage.ErrBlobNotFound) {
		return nil, apperr.Upstream("blob storage", err)
	}

	if record.ContentID == "" || !s.cas.Enabled() {
		return nil, ErrBlobGone
	}
	catCtx, cancel := s.opContext(ctx)
	blob, err = s.cas.Cat(catCtx, record.ContentID)
	cancel()
	if err != nil {
		return nil, apperr.Wrap(ErrBlobGone, err)
	}
	apperr.BestEffort(s.logger, "blob restore", s.putBlob(ctx, record.EncBlobRef, blob))
	return blob, nil
}

// List pages through the caller's files by created_at. limit is clamped to
// [1, MaxListLimit].
func (s *Service) List(ctx context.Context, p rbac.Principal, after *int64, limit int) (*models.FileListResponse, error) {
	if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
		return nil, err
	}
	limit = max(1, min(limit, MaxListLimit))

	// one extra row tells us whether another page exists
	records, err := s.files.ListByOwner(ctx, p.Address, after, limit+1)
	if err != nil {
		return nil, err
	}

	resp := &models.FileListResponse{Items: make([]models.FileView, 0, min(len(records), limit))}
	if len(records) > limit {
		resp.HasMore = true
		records = records[:limit]
	}
	for _, r := range records {
		resp.Items = append(resp.Items, r.View(s.gatewayURL(r.ContentID)))
	}
	if n := len(records); n > 0 {
		last := records[n-1].CreatedAt
		resp.NextAfter = &last
	}
	return resp, nil
}

// Delete removes the caller's file. The record goes first so a failed delete
// leaves the file downloadable; blob removal and CAS unpin are best-effort
// after that. Grants on the file are left in place.
func (s *Service) Delete(ctx context.Context, p rbac.Principal, fileID string) error {
	record, err := s.owned(ctx, p, fileID)
	if err != nil {
		return err
	}

	deleted, err := s.files.Delete(ctx, record.ID, p.Address)
	if err != nil {
		return err
	}
	if !deleted {
		return share.ErrFileNotFound
	}

	apperr.BestEffort(s.logger, "blob delete", s.deleteBlob(ctx, record.EncBlobRef))
	if record.ContentID != "" {
		apperr.BestEffort(s.logger, "cas unpin", s.unpin(ctx, record.ContentID))
	}
	s.logger.WithFields(logrus.Fields{"file_id": record.ID, "owner": p.Address.String()}).Info("file deleted")
	return nil
}

// Verify reports whether the encrypted blob is still in storage.
func (s *Service) Verify(ctx context.Context, p rbac.Principal, fileID string) (*models.VerifyResponse, error) {
	record, err := s.owned(ctx, p, fileID)
	if err != nil {
		return nil, err
	}
	existsCtx, cancel := s.opContext(ctx)
	defer cancel()
	exists, err := s.blobs.Exists(existsCtx, record.EncBlobRef)
	if err != nil {
		return nil, apperr.Upstream("blob storage", err)
	}

	resp := &models.VerifyResponse{
		FileID:           record.ID,
		HasEncryptedBlob: exists,
		ContentHash:      record.ContentHash,
	}
	if record.ContentID != "" {
		cid := record.ContentID
		resp.ContentID = &cid
	}
	return resp, nil
}

// owned loads fileID for its owner. Files of other users look missing.
func (s *Service) owned(ctx context.Context, p rbac.Principal, fileID string) (*models.FileRecord, error) {
	if err := p.EnsureAtLeast(rbac.RoleOwner); err != nil {
		return nil, err
	}
	record, err := s.files.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, share.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if record.Owner != p.Address {
		return nil, share.ErrFileNotFound
	}
	return record, nil
}

func (s *Service) gatewayURL(cid string) string {
	if cid == "" {
		return ""
	}
	return s.cas.GatewayURL(cid)
}
