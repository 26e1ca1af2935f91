package labreport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labtranscriber/labtranscriber/internal/extract"
	"github.com/labtranscriber/labtranscriber/internal/labparse"
	"github.com/labtranscriber/labtranscriber/internal/paramconfig"
	"github.com/labtranscriber/labtranscriber/internal/platform/auth"
	"github.com/labtranscriber/labtranscriber/internal/platform/blobstore"
	"github.com/labtranscriber/labtranscriber/internal/report"
)

var (
	// ErrEmptyText is returned when a report would be stored without any
	// text to parse.
	ErrEmptyText = errors.New("document text is empty")
	// ErrNoDocument means the original upload of a report was not kept.
	ErrNoDocument = errors.New("original document not available")
)

// ParseObserver receives one call per parsed document.
type ParseObserver interface {
	ObserveParse(elapsed time.Duration, stats labparse.Stats)
}

// ReloadObserver is optionally implemented by a ParseObserver that also
// tracks configuration reloads.
type ReloadObserver interface {
	ObserveReload(version int64, err error)
}

// ParseOutput is a stateless parse of one text.
type ParseOutput struct {
	Summary       string           `json:"summary"`
	Sections      []report.Section `json:"sections"`
	Result        *labparse.Result `json:"result"`
	ConfigVersion int64            `json:"config_version"`
}

// Diagnosis reports how much of a text the active configuration recognizes.
type Diagnosis struct {
	Detection     labparse.Detection `json:"detection"`
	Unrecognized  []string           `json:"unrecognized_lines"`
	ConfigVersion int64              `json:"config_version"`
}

// ParameterInfo describes one canonical parameter of the active index.
type ParameterInfo struct {
	Name        string `json:"name"`
	Expectation string `json:"expectation"`
}

// CategoryInfo lists the parameters of one category.
type CategoryInfo struct {
	Category   string          `json:"category"`
	Parameters []ParameterInfo `json:"parameters"`
}

// Catalog is the active parameter configuration as exposed to clients.
type Catalog struct {
	Version    int64            `json:"version"`
	Path       string           `json:"path,omitempty"`
	LoadedAt   time.Time        `json:"loaded_at"`
	Categories []CategoryInfo   `json:"categories"`
	Issues     []labparse.Issue `json:"issues,omitempty"`
}

type Service struct {
	repo      Repository
	configs   *paramconfig.Store
	engine    *labparse.Engine
	order     []string
	observer  ParseObserver
	documents blobstore.BlobStore
	logger    zerolog.Logger
}

// Options configure a Service. A nil Order means report.DefaultOrder.
type Options struct {
	FuzzyThreshold float64
	Policy         labparse.Policy
	Order          []string
	Logger         zerolog.Logger
}

func NewService(repo Repository, configs *paramconfig.Store, opts Options) *Service {
	return &Service{
		repo:    repo,
		configs: configs,
		engine: labparse.NewEngine(labparse.Options{
			FuzzyThreshold: opts.FuzzyThreshold,
			Policy:         opts.Policy,
			Logger:         opts.Logger,
		}),
		order:  opts.Order,
		logger: opts.Logger,
	}
}

// SetObserver attaches an optional ParseObserver to the service.
func (s *Service) SetObserver(o ParseObserver) {
	s.observer = o
}

// SetDocumentStore keeps the original of every uploaded document, keyed by
// the id of the report parsed from it.
func (s *Service) SetDocumentStore(store blobstore.BlobStore) {
	s.documents = store
}

func (s *Service) parse(ix *labparse.Index, text string) *labparse.Result {
	start := time.Now()
	res := s.engine.Parse(ix, text)
	if s.observer != nil {
		s.observer.ObserveParse(time.Since(start), res.Stats)
	}
	return res
}

// Parse runs the engine against the active configuration without storing
// anything. Empty text yields an empty result.
func (s *Service) Parse(ctx context.Context, text string) *ParseOutput {
	snap := s.configs.Current()
	res := s.parse(snap.Index, text)
	return &ParseOutput{
		Summary:       report.Format(res.Table, s.order),
		Sections:      report.Sections(res.Table, s.order),
		Result:        res,
		ConfigVersion: snap.Version,
	}
}

// CreateFromText parses text and stores the outcome.
func (s *Service) CreateFromText(ctx context.Context, sourceName, text string) (*LabReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if sourceName == "" {
		sourceName = "text"
	}
	out := s.Parse(ctx, text)
	lr := FromResult(sourceName, out.Summary, out.ConfigVersion, out.Result)
	if err := s.repo.Create(ctx, lr); err != nil {
		return nil, fmt.Errorf("store lab report: %w", err)
	}
	s.logger.Info().
		Str("id", lr.ID.String()).
		Str("source", sourceName).
		Int("results", len(lr.Results)).
		Msg("lab report stored")
	return lr, nil
}

// CreateFromDocument extracts the text of a PDF or text document, then parses
// and stores it. Documents without a text layer return extract.ErrNoTextLayer.
func (s *Service) CreateFromDocument(ctx context.Context, name string, r io.Reader) (*LabReport, error) {
	data, err := io.ReadAll(io.LimitReader(r, extract.MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	text, err := extract.Document(s.logger.WithContext(ctx), name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	lr, err := s.CreateFromText(ctx, name, text)
	if err != nil {
		return nil, err
	}
	s.keepDocument(ctx, lr, name, data)
	return lr, nil
}

// keepDocument stores the upload next to its report. A failure only loses
// the original; the parsed report is already saved.
func (s *Service) keepDocument(ctx context.Context, lr *LabReport, name string, data []byte) {
	if s.documents == nil {
		return
	}
	_, err := s.documents.Upload(ctx, blobstore.BlobMetadata{
		ID:        lr.ID.String(),
		FileName:  name,
		CreatedBy: auth.UserIDFromContext(ctx),
	}, bytes.NewReader(data))
	if err != nil {
		s.logger.Warn().Err(err).Str("id", lr.ID.String()).Msg("original document not kept")
	}
}

// Document returns the original upload of a report.
func (s *Service) Document(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	if s.documents == nil {
		return nil, nil, ErrNoDocument
	}
	rc, meta, err := s.documents.Download(ctx, id.String())
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNoDocument
	}
	return rc, meta, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabReport, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*LabReport, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete removes a report and its kept document.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.documents != nil {
		if err := s.documents.Delete(ctx, id.String()); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("id", id.String()).Msg("original document not removed")
		}
	}
	return nil
}

// Diagnose parses text and reports the lines the configuration misses.
// threshold <= 0 uses labparse.DiagnosticFuzzyThreshold.
func (s *Service) Diagnose(ctx context.Context, text string, threshold float64) *Diagnosis {
	snap := s.configs.Current()
	res := s.parse(snap.Index, text)
	return &Diagnosis{
		Detection:     labparse.AnalyzeDetection(snap.Index, text, res, threshold),
		Unrecognized:  labparse.UnrecognizedLines(snap.Index, text),
		ConfigVersion: snap.Version,
	}
}

// Parameters lists the categories and parameters of the active index.
// Parameters without a category are listed under an empty category name.
func (s *Service) Parameters() *Catalog {
	return catalogOf(s.configs.Current())
}

// ReloadConfig rebuilds the index from disk. On failure the previous
// configuration stays active.
func (s *Service) ReloadConfig() (*Catalog, error) {
	snap, err := s.configs.Reload()
	if ro, ok := s.observer.(ReloadObserver); ok {
		ro.ObserveReload(s.configs.Current().Version, err)
	}
	if err != nil {
		return nil, err
	}
	return catalogOf(snap), nil
}

func catalogOf(snap *paramconfig.Snapshot) *Catalog {
	ix := snap.Index
	c := &Catalog{
		Version:  snap.Version,
		Path:     snap.Path,
		LoadedAt: snap.LoadedAt,
		Issues:   snap.Issues(),
	}
	seen := make(map[string]bool)
	for _, cat := range ix.Categories() {
		info := CategoryInfo{Category: cat}
		for _, p := range ix.Members(cat) {
			seen[p] = true
			info.Parameters = append(info.Parameters, ParameterInfo{Name: p, Expectation: ix.Expectation(p).String()})
		}
		c.Categories = append(c.Categories, info)
	}
	var loose []ParameterInfo
	for _, p := range ix.Parameters() {
		if !seen[p] {
			loose = append(loose, ParameterInfo{Name: p, Expectation: ix.Expectation(p).String()})
		}
	}
	if len(loose) > 0 {
		c.Categories = append(c.Categories, CategoryInfo{Parameters: loose})
	}
	return c
}
