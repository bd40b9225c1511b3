package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/gateway"
	"pneumodetect/internal/models"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/storage"

	"go.uber.org/zap"
)

// AnalysisService runs classifications and guards access to stored
// analysis records.
type AnalysisService interface {
	// Analyze classifies without persisting anything. Used by the
	// anonymous try-it endpoint.
	Analyze(ctx context.Context, img UploadedImage) (*AnalyzeOutcome, error)
	// AnalyzeAndSave classifies and stores a pending analysis record for
	// the acting patient. A classifier failure stores nothing.
	AnalyzeAndSave(ctx context.Context, actor Actor, img UploadedImage) (*domain.AnalysisResult, error)
	Get(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) (*domain.AnalysisResult, error)
	History(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) ([]*domain.AnalysisHistory, error)
	ListMine(ctx context.Context, actor Actor, page, perPage int) ([]*domain.AnalysisResult, models.Page, error)
	ListForReview(ctx context.Context, actor Actor, filters repository.AnalysisFilters, page, perPage int, client domain.ClientInfo) ([]*domain.AnalysisResult, models.Page, error)
	Delete(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) error
	OpenImage(ctx context.Context, actor Actor, ref string) ([]byte, string, error)
}

type analysisService struct {
	analyses   repository.AnalysesRepository
	classifier gateway.Classifier
	objects    storage.ObjectStore
	audit      *auditor
	cfg        *config.Config
	logger     *zap.Logger
}

func NewAnalysisService(analyses repository.AnalysesRepository, classifier gateway.Classifier, objects storage.ObjectStore, audit repository.AuditRepository, cfg *config.Config, logger *zap.Logger) AnalysisService {
	return &analysisService{
		analyses:   analyses,
		classifier: classifier,
		objects:    objects,
		audit:      newAuditor(audit, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// UploadedImage is one X-ray received from a client.
type UploadedImage struct {
	Filename string
	Data     []byte
}

// AnalyzeOutcome is the ephemeral classification result. Saliency, when
// present, is returned inline because nothing is stored.
type AnalyzeOutcome struct {
	Result      domain.ModelResult
	Confidence  float64
	Explanation string
	Saliency    []byte
}

func (s *analysisService) Analyze(ctx context.Context, img UploadedImage) (*AnalyzeOutcome, error) {
	if err := s.validateUpload(img); err != nil {
		return nil, err
	}
	cls, err := s.classifier.Classify(ctx, img.Filename, img.Data)
	if err != nil {
		return nil, apperr.ModelError(err)
	}
	return &AnalyzeOutcome{
		Result:      cls.Label,
		Confidence:  cls.Confidence,
		Explanation: cls.Explanation,
		Saliency:    cls.Saliency,
	}, nil
}

func (s *analysisService) AnalyzeAndSave(ctx context.Context, actor Actor, img UploadedImage) (*domain.AnalysisResult, error) {
	if err := s.validateUpload(img); err != nil {
		return nil, err
	}

	// Classify before touching storage: a gateway failure must leave no
	// trace, neither objects nor a record.
	cls, err := s.classifier.Classify(ctx, img.Filename, img.Data)
	if err != nil {
		return nil, apperr.ModelError(err)
	}

	ext := fileExt(img.Filename)
	imageRef, err := s.objects.Save(ctx, storage.FolderOriginals, ext, img.Data)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	analysis := &domain.AnalysisResult{
		PatientID:   actor.UserID,
		ModelResult: cls.Label,
		Confidence:  cls.Confidence,
		ImageRef:    imageRef,
	}
	if cls.Explanation != "" {
		analysis.Explanation = nullString(cls.Explanation)
	}
	if len(cls.Saliency) > 0 {
		saliencyRef, err := s.objects.Save(ctx, storage.FolderSaliency, "jpg", cls.Saliency)
		if err != nil {
			s.logger.Warn("Failed to store saliency map", zap.Error(err))
		} else {
			analysis.SaliencyRef = nullString(saliencyRef)
		}
	}

	id, err := s.analyses.Create(ctx, analysis)
	if err != nil {
		s.cleanupObjects(ctx, analysis)
		return nil, apperr.Internal(err)
	}
	analysis.ID = id
	analysis.ReviewStatus = domain.StatusPending
	analysis.PatientUsername = actor.Username

	s.logger.Info("Analysis stored",
		zap.Int64("analysis_id", id),
		zap.Int64("patient_id", actor.UserID),
		zap.String("result", string(cls.Label)),
		zap.Float64("confidence", cls.Confidence),
	)
	return analysis, nil
}

func (s *analysisService) Get(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) (*domain.AnalysisResult, error) {
	analysis, err := s.analyses.Get(ctx, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, apperr.Internal(err)
	}
	if err := s.checkReadAccess(ctx, actor, analysis, client); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *analysisService) History(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) ([]*domain.AnalysisHistory, error) {
	analysis, err := s.analyses.Get(ctx, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, apperr.Internal(err)
	}
	if err := s.checkReadAccess(ctx, actor, analysis, client); err != nil {
		return nil, err
	}

	history, err := s.analyses.History(ctx, analysisID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return history, nil
}

func (s *analysisService) ListMine(ctx context.Context, actor Actor, page, perPage int) ([]*domain.AnalysisResult, models.Page, error) {
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPage, s.cfg.Page.PerPageMax)
	items, total, err := s.analyses.List(ctx, repository.AnalysisFilters{PatientID: actor.UserID}, page, perPage)
	if err != nil {
		return nil, models.Page{}, apperr.Internal(err)
	}
	return items, models.NewPage(page, perPage, total), nil
}

func (s *analysisService) ListForReview(ctx context.Context, actor Actor, filters repository.AnalysisFilters, page, perPage int, client domain.ClientInfo) ([]*domain.AnalysisResult, models.Page, error) {
	if !actor.Role.CanReview() {
		s.audit.accessDenied(ctx, actor, client, map[string]any{"action": "list_for_review"})
		return nil, models.Page{}, apperr.Forbidden("reviewer role required")
	}
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPage, s.cfg.Page.PerPageMax)
	items, total, err := s.analyses.List(ctx, filters, page, perPage)
	if err != nil {
		return nil, models.Page{}, apperr.Internal(err)
	}
	return items, models.NewPage(page, perPage, total), nil
}

func (s *analysisService) Delete(ctx context.Context, actor Actor, analysisID int64, client domain.ClientInfo) error {
	analysis, err := s.analyses.Get(ctx, analysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("analysis not found")
		}
		return apperr.Internal(err)
	}
	if actor.Role != domain.RoleAdmin && analysis.PatientID != actor.UserID {
		s.audit.accessDenied(ctx, actor, client, map[string]any{
			"action":      "delete_analysis",
			"analysis_id": analysisID,
		})
		return apperr.Forbidden("not your analysis")
	}

	if err := s.analyses.Delete(ctx, analysisID); err != nil {
		return apperr.Internal(err)
	}
	s.cleanupObjects(ctx, analysis)

	s.audit.log(ctx, domain.AuditAnalysisDeleted, actor.UserID, map[string]any{
		"analysis_id": analysisID,
		"patient_id":  analysis.PatientID,
	}, domain.SeverityInfo, client)
	return nil
}

// OpenImage serves a stored original or saliency map. Any authenticated
// account may fetch by ref; refs are unguessable uuid names.
func (s *analysisService) OpenImage(ctx context.Context, actor Actor, ref string) ([]byte, string, error) {
	data, err := s.objects.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", apperr.NotFound("file not found")
		}
		return nil, "", apperr.Internal(err)
	}
	contentType := "image/jpeg"
	if strings.HasSuffix(ref, ".png") {
		contentType = "image/png"
	}
	return data, contentType, nil
}

// checkReadAccess lets reviewers read anything and patients read only
// their own records.
func (s *analysisService) checkReadAccess(ctx context.Context, actor Actor, analysis *domain.AnalysisResult, client domain.ClientInfo) error {
	if actor.Role.CanReview() || analysis.PatientID == actor.UserID {
		return nil
	}
	s.audit.accessDenied(ctx, actor, client, map[string]any{
		"action":      "read_analysis",
		"analysis_id": analysis.ID,
	})
	return apperr.Forbidden("not your analysis")
}

func (s *analysisService) validateUpload(img UploadedImage) error {
	if len(img.Data) == 0 {
		return apperr.Validation("empty file upload")
	}
	if int64(len(img.Data)) > s.cfg.Upload.MaxBytes {
		return apperr.Validation("file exceeds the %d MB upload limit", s.cfg.Upload.MaxBytes/(1024*1024))
	}
	ext := fileExt(img.Filename)
	for _, allowed := range s.cfg.Upload.AllowedExts {
		if ext == allowed {
			return nil
		}
	}
	return apperr.Validation("unsupported file type %q, allowed: %s", ext, strings.Join(s.cfg.Upload.AllowedExts, ", "))
}

func (s *analysisService) cleanupObjects(ctx context.Context, analysis *domain.AnalysisResult) {
	if analysis.ImageRef != "" {
		if err := s.objects.Delete(ctx, analysis.ImageRef); err != nil {
			s.logger.Warn("Failed to delete stored image", zap.String("ref", analysis.ImageRef), zap.Error(err))
		}
	}
	if analysis.SaliencyRef.Valid {
		if err := s.objects.Delete(ctx, analysis.SaliencyRef.String); err != nil {
			s.logger.Warn("Failed to delete saliency map", zap.String("ref", analysis.SaliencyRef.String), zap.Error(err))
		}
	}
}

func fileExt(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}
