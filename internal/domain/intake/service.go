package intake

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/healthie-intake/intake-api/internal/platform/apperr"
	"github.com/healthie-intake/intake-api/pkg/pagination"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// SaveDraft validates sub and upserts it as the patient's single draft.
// Any status sent by the client is ignored.
func (s *Service) SaveDraft(ctx context.Context, sub *Submission) (*SaveResult, error) {
	sub.Status = StatusDraft
	if err := sub.Normalize(); err != nil {
		return nil, err
	}
	return s.repo.SaveDraft(ctx, sub.Record(StatusDraft))
}

// Submit completes the patient's draft in place, or inserts a completed row
// when there is no draft. A second call after completion inserts another
// completed row.
func (s *Service) Submit(ctx context.Context, sub *Submission) (*SaveResult, error) {
	sub.Status = StatusCompleted
	if err := sub.Normalize(); err != nil {
		return nil, err
	}
	return s.repo.Submit(ctx, sub.Record(StatusCompleted))
}

func (s *Service) GetDraft(ctx context.Context, externalID string) (*Record, error) {
	return s.repo.GetDraft(ctx, strings.TrimSpace(externalID))
}

func (s *Service) GetCompleted(ctx context.Context, externalID string) (*Record, error) {
	return s.repo.GetCompleted(ctx, strings.TrimSpace(externalID))
}

func (s *Service) DiscardDraft(ctx context.Context, externalID string) (int64, error) {
	return s.repo.DiscardDraft(ctx, strings.TrimSpace(externalID))
}

// GetByID looks a record up by its string id. Ids that are not UUIDs cannot
// name a row and report NotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*Record, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, apperr.NotFound("intake.get", "Intake not found")
	}
	return s.repo.GetByID(ctx, uid)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return apperr.NotFound("intake.delete", "Intake not found")
	}
	deleted, err := s.repo.Delete(ctx, uid)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("intake.delete", "Intake not found")
	}
	return nil
}

// ListRecent returns at most limit records, newest first, plus the total
// number of stored records.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*Record, int, error) {
	items, err := s.repo.ListRecent(ctx, pagination.Clamp(limit))
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) FindByEmail(ctx context.Context, email string, limit int) ([]*Record, error) {
	return s.repo.FindByEmail(ctx, strings.TrimSpace(email), pagination.Clamp(limit))
}

// FindByFieldPath returns every record whose form_data holds value at the
// dotted path.
func (s *Service) FindByFieldPath(ctx context.Context, path, value string) ([]*Record, error) {
	segs, err := ParseFieldPath(path)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByFieldPath(ctx, segs, value)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
