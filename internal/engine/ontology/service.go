package ontology

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"ontohub/internal/engine/events"
	"ontohub/internal/platform/models"
	"ontohub/internal/platform/repositories"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrInvalidPackage  = errors.New("invalid package")
	ErrVersionActive   = errors.New("the active version cannot be deleted")
	ErrVersionInUse    = errors.New("version is still in use by a webhook subscriber")
)

const (
	reasonActive = "version is active"
	reasonInUse  = "version is in use by a webhook subscription"
)

type PackageStore interface {
	Create(ctx context.Context, pkg *models.Package) error
	GetByID(ctx context.Context, id string) (*models.Package, error)
	ListByCode(ctx context.Context, code string) ([]*models.Package, error)
	SetActive(ctx context.Context, code, id string) error
	Delete(ctx context.Context, id string) error
	DeleteSeries(ctx context.Context, code string) (int64, error)
}

type LedgerCleaner interface {
	DeleteByOntologyCode(ctx context.Context, code string) (int64, error)
}

type InUseAnalyzer interface {
	InUsePackageIDs(ctx context.Context, code string) ([]string, error)
}

type Broadcaster interface {
	BroadcastActivation(ctx context.Context, pkg *models.Package, attachment string) (int, error)
}

type Publisher interface {
	Dispatch(event string, payload events.Payload) int
}

// Detail is a package with its deletion guard evaluated.
type Detail struct {
	*models.Package
	IsDeletable     bool    `json:"is_deletable"`
	DeletableReason *string `json:"deletable_reason"`
}

type Service struct {
	packages    PackageStore
	ledger      LedgerCleaner
	inUse       InUseAnalyzer
	broadcaster Broadcaster
	events      Publisher
	storageDir  string
}

// NewService builds the package service. Source archives are confined to
// storageDir; an empty storageDir disables attachments.
func NewService(packages PackageStore, ledger LedgerCleaner, inUse InUseAnalyzer, broadcaster Broadcaster, publisher Publisher, storageDir string) *Service {
	if storageDir != "" {
		if abs, err := filepath.Abs(storageDir); err == nil {
			storageDir = abs
		}
	}
	return &Service{
		packages:    packages,
		ledger:      ledger,
		inUse:       inUse,
		broadcaster: broadcaster,
		events:      publisher,
		storageDir:  storageDir,
	}
}

// Register stores a new, inactive version of the series code.
func (s *Service) Register(ctx context.Context, code, name, sourcePath string) (*models.Package, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidPackage)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = code
	}

	source, err := s.resolveSource(sourcePath)
	if err != nil {
		return nil, err
	}

	pkg := &models.Package{Code: code, Name: name, SourcePath: source}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	log.Info().Str("package_id", pkg.ID).Str("code", code).Int("version", pkg.Version).Msg("Package registered")
	return pkg, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Package, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPackageNotFound
	}
	return pkg, err
}

func (s *Service) Detail(ctx context.Context, id string) (*Detail, error) {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	inUse, err := s.inUseSet(ctx, pkg.Code)
	if err != nil {
		return nil, err
	}
	return describe(pkg, inUse), nil
}

// Versions lists every version of a series, newest first.
func (s *Service) Versions(ctx context.Context, code string) ([]*Detail, error) {
	packages, err := s.packages.ListByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	inUse, err := s.inUseSet(ctx, code)
	if err != nil {
		return nil, err
	}

	details := make([]*Detail, 0, len(packages))
	for _, pkg := range packages {
		details = append(details, describe(pkg, inUse))
	}
	return details, nil
}

// Activate makes id the active version of its series, notifies local
// listeners and schedules webhook deliveries. It returns the number of
// webhooks the activation was broadcast to.
func (s *Service) Activate(ctx context.Context, id string) (*models.Package, int, error) {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if err := s.packages.SetActive(ctx, pkg.Code, pkg.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, 0, ErrPackageNotFound
		}
		return nil, 0, err
	}
	pkg.IsActive = true

	s.events.Dispatch(models.EventOntologyActivated, events.Payload{
		"name":       pkg.Name,
		"code":       pkg.Code,
		"version":    pkg.Version,
		"package_id": pkg.ID,
	})

	matched, err := s.broadcaster.BroadcastActivation(ctx, pkg, s.AttachmentPath(pkg))
	if err != nil {
		log.Error().Err(err).Str("package_id", pkg.ID).Msg("Failed to broadcast activation")
	}

	log.Info().Str("package_id", pkg.ID).Str("code", pkg.Code).Int("version", pkg.Version).Int("webhooks", matched).Msg("Package activated")
	return pkg, matched, nil
}

// DeleteVersion removes one inactive version that no subscriber's latest
// successful delivery references.
func (s *Service) DeleteVersion(ctx context.Context, id string) error {
	pkg, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if pkg.IsActive {
		return ErrVersionActive
	}

	inUse, err := s.inUseSet(ctx, pkg.Code)
	if err != nil {
		return err
	}
	if _, ok := inUse[pkg.ID]; ok {
		return ErrVersionInUse
	}

	if err := s.packages.Delete(ctx, pkg.ID); err != nil {
		return err
	}
	log.Info().Str("package_id", pkg.ID).Str("code", pkg.Code).Int("version", pkg.Version).Msg("Package version deleted")
	return nil
}

// DeleteSeries removes every version of code and the series' delivery history.
func (s *Service) DeleteSeries(ctx context.Context, code string) error {
	removed, err := s.packages.DeleteSeries(ctx, code)
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrPackageNotFound
	}

	deliveries, err := s.ledger.DeleteByOntologyCode(ctx, code)
	if err != nil {
		return fmt.Errorf("delete deliveries for %s: %w", code, err)
	}

	log.Info().Str("code", code).Int64("versions", removed).Int64("deliveries", deliveries).Msg("Ontology series deleted")
	return nil
}

func (s *Service) inUseSet(ctx context.Context, code string) (map[string]struct{}, error) {
	ids, err := s.inUse.InUsePackageIDs(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("in-use check for %s: %w", code, err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func describe(pkg *models.Package, inUse map[string]struct{}) *Detail {
	d := &Detail{Package: pkg, IsDeletable: true}
	switch {
	case pkg.IsActive:
		reason := reasonActive
		d.IsDeletable = false
		d.DeletableReason = &reason
	default:
		if _, ok := inUse[pkg.ID]; ok {
			reason := reasonInUse
			d.IsDeletable = false
			d.DeletableReason = &reason
		}
	}
	return d
}
