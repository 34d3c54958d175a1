package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/markbookhq/markbook-api/internal/models"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

type accessRecordRepository interface {
	FindByID(ctx context.Context, id string) (*models.GradeRecord, error)
	UpdateAccessCodeHash(ctx context.Context, id, hash string) error
}

// AccessService manages per-record access codes: short shared secrets a
// student presents to view their own grade without an account. Codes are
// stored only as bcrypt hashes.
type AccessService struct {
	records accessRecordRepository
	logger  *zap.Logger
}

// NewAccessService constructs the service.
func NewAccessService(records accessRecordRepository, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{records: records, logger: logger}
}

// IssueCode generates, stores, and returns a fresh access code for a record.
// The plaintext is shown once and never stored.
func (s *AccessService) IssueCode(ctx context.Context, recordID string) (string, error) {
	if _, err := s.findRecord(ctx, recordID); err != nil {
		return "", err
	}

	code, err := generateAccessCode()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash access code")
	}
	if err := s.records.UpdateAccessCodeHash(ctx, recordID, string(hash)); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store access code")
	}

	s.logger.Info("access code issued", zap.String("record_id", recordID))
	return code, nil
}

// VerifyCode returns the grade record when the presented code matches its
// stored hash. A record with no code, or a wrong code, both come back as an
// access denial so callers cannot probe which records have codes.
func (s *AccessService) VerifyCode(ctx context.Context, recordID, code string) (*models.GradeRecord, error) {
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrAccessDenied, "invalid access code")
		}
		return nil, err
	}
	if record.AccessCodeHash == "" {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "invalid access code")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.AccessCodeHash), []byte(strings.TrimSpace(code))); err != nil {
		return nil, appErrors.Clone(appErrors.ErrAccessDenied, "invalid access code")
	}
	return record, nil
}

func (s *AccessService) findRecord(ctx context.Context, recordID string) (*models.GradeRecord, error) {
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade record")
	}
	return record, nil
}

// generateAccessCode returns a short base32 code without padding, readable
// enough to print on a slip.
func generateAccessCode() (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)), nil
}
