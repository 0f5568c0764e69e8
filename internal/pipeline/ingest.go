package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kosarica/catalog-ingest/internal/docstore"
	"github.com/kosarica/catalog-ingest/internal/ingestion/compress"
	"github.com/kosarica/catalog-ingest/internal/ingestion/zip"
	"github.com/kosarica/catalog-ingest/internal/parsers/xml"
	"github.com/kosarica/catalog-ingest/internal/storage"
	"github.com/kosarica/catalog-ingest/internal/types"
)

const (
	// PricesPrefix is the object prefix the storage surface accepts
	PricesPrefix = "prices/"

	SurfaceStorage = "storage"
	SurfaceURL     = "url"
	SurfaceFile    = "file"
)

// Fetcher retrieves a payload by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ObjectEvent is a storage finalize notification
type ObjectEvent struct {
	Bucket   string            `json:"bucket"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Eligible reports whether the object is a price file this service handles
func (e ObjectEvent) Eligible() bool {
	return strings.HasPrefix(e.Name, PricesPrefix) && strings.HasSuffix(e.Name, ".xml")
}

// Result summarizes one ingestion run
type Result struct {
	RunID           string                   `json:"runId"`
	SourceName      string                   `json:"sourceName"`
	RetailerID      string                   `json:"retailerId"`
	StoreID         string                   `json:"storeId,omitempty"`
	Processed       int                      `json:"processed"`
	Skipped         int                      `json:"skipped"`
	SkippedByReason map[types.SkipReason]int `json:"skippedByReason,omitempty"`
	Operations      int                      `json:"operations"`
	Commits         int                      `json:"commits"`
	Files           int                      `json:"files"`
	Duration        time.Duration            `json:"duration"`
}

// Message is the plain-text summary returned to request callers
func (r Result) Message() string {
	return fmt.Sprintf("Processed %d items from %s", r.Processed, r.SourceName)
}

func (r *Result) add(other Result) {
	r.Processed += other.Processed
	r.Skipped += other.Skipped
	r.Operations += other.Operations
	r.Commits += other.Commits
	r.Files += other.Files
	for reason, n := range other.SkippedByReason {
		if r.SkippedByReason == nil {
			r.SkippedByReason = make(map[types.SkipReason]int)
		}
		r.SkippedByReason[reason] += n
	}
}

// Options configures an Ingester
type Options struct {
	Writer WriterOptions
	Parser xml.ParserOptions
	// MaxDecompressedBytes caps gunzipped payloads; zero means unlimited
	MaxDecompressedBytes int64
	Zip                  zip.ExpandOptions
}

// Ingester drives parse → identity → batch writes for every trigger surface
type Ingester struct {
	parser  *xml.Parser
	writer  *BatchWriter
	buckets storage.Buckets
	fetcher Fetcher
	archive *Archiver
	options Options
	logger  zerolog.Logger
	metrics *MetricsRecorder
	tracer  trace.Tracer
}

// NewIngester wires an ingester. buckets and fetcher may be nil when the
// corresponding surface is not used.
func NewIngester(store docstore.Writer, buckets storage.Buckets, fetcher Fetcher, options Options, logger zerolog.Logger) *Ingester {
	logger = logger.With().Str("component", "ingester").Logger()
	if options.Zip.MaxFiles == 0 && options.Zip.MaxFileSize == 0 && options.Zip.MaxTotalSize == 0 {
		options.Zip = zip.DefaultExpandOptions()
	}
	return &Ingester{
		parser:  xml.NewParser(options.Parser),
		writer:  NewBatchWriter(store, options.Writer, logger),
		buckets: buckets,
		fetcher: fetcher,
		options: options,
		logger:  logger,
		metrics: NewMetricsRecorder(),
		tracer:  otel.Tracer("github.com/kosarica/catalog-ingest/internal/pipeline"),
	}
}

// WithArchiver enables raw payload archiving on the URL surface
func (i *Ingester) WithArchiver(a *Archiver) *Ingester {
	i.archive = a
	return i
}

// Ingest writes every valid item of doc. A store id found in the document
// takes priority over the one in ictx.
func (i *Ingester) Ingest(ctx context.Context, doc *xml.Document, ictx types.IngestionContext) (Result, error) {
	start := time.Now()
	if probe := doc.FindStoreID(); probe != "" {
		ictx = ictx.WithStoreID(probe)
	}

	result := Result{
		RunID:      uuid.NewString(),
		SourceName: ictx.SourceName,
		RetailerID: ictx.RetailerID,
		StoreID:    ictx.StoreID,
		Files:      1,
	}
	logger := i.logger.With().
		Str("run_id", result.RunID).
		Str("source", ictx.SourceName).
		Str("retailer", ictx.RetailerID).
		Str("store", ictx.StoreID).
		Logger()

	if ictx.StoreID == "" {
		logger.Warn().Msg("No store id in document or metadata, store prices will not be written")
	}

	written, err := i.writer.WriteItems(ctx, i.validItems(doc, &result, logger), ictx)
	result.Processed = written.Processed
	result.Operations = written.Operations
	result.Commits = written.Commits
	result.Duration = time.Since(start)
	i.metrics.RecordItems(ictx.RetailerID, written.Processed, result.SkippedByReason)

	if err != nil {
		logger.Error().Err(err).
			Int("processed", result.Processed).
			Int("commits", result.Commits).
			Msg("Ingestion failed")
		return result, err
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("skipped", result.Skipped).
		Int("commits", result.Commits).
		Dur("duration", result.Duration).
		Msg("Ingestion completed")
	return result, nil
}

// validItems yields the valid candidates of doc, counting the rest on result
func (i *Ingester) validItems(doc *xml.Document, result *Result, logger zerolog.Logger) iter.Seq[types.CanonicalItem] {
	return func(yield func(types.CanonicalItem) bool) {
		for c := range doc.Candidates() {
			if !c.Valid() {
				result.Skipped++
				if result.SkippedByReason == nil {
					result.SkippedByReason = make(map[types.SkipReason]int)
				}
				result.SkippedByReason[c.Skip]++
				logger.Debug().
					Int("index", c.Index).
					Str("tag", c.Tag).
					Str("reason", string(c.Skip)).
					Msg("Skipping item")
				continue
			}
			if !yield(c.Item) {
				return
			}
		}
	}
}

// IngestBytes parses raw XML and ingests it
func (i *Ingester) IngestBytes(ctx context.Context, raw []byte, ictx types.IngestionContext) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "pipeline.IngestBytes", trace.WithAttributes(
		attribute.String("ingest.source", ictx.SourceName),
		attribute.String("ingest.retailer", ictx.RetailerID),
		attribute.Int("ingest.bytes", len(raw)),
	))
	defer span.End()

	doc, err := i.parser.ParseBytes(raw)
	if err != nil {
		span.SetStatus(codes.Error, "parse failed")
		span.RecordError(err)
		return Result{SourceName: ictx.SourceName, RetailerID: ictx.RetailerID}, fmt.Errorf("failed to parse %s: %w", ictx.SourceName, err)
	}

	result, err := i.Ingest(ctx, doc, ictx)
	span.SetAttributes(
		attribute.Int("ingest.processed", result.Processed),
		attribute.Int("ingest.commits", result.Commits),
	)
	if err != nil {
		span.SetStatus(codes.Error, "ingest failed")
		span.RecordError(err)
	}
	return result, err
}

// IngestPayload unwraps gzip or ZIP content before ingesting. Every XML entry
// of a ZIP is ingested with the same context and the results are summed.
func (i *Ingester) IngestPayload(ctx context.Context, payload []byte, ictx types.IngestionContext) (Result, error) {
	if zip.IsZip(payload) {
		return i.ingestZip(ctx, payload, ictx)
	}

	content, compressed, err := compress.Decompress(payload, i.options.MaxDecompressedBytes)
	if err != nil {
		return Result{SourceName: ictx.SourceName, RetailerID: ictx.RetailerID}, fmt.Errorf("%w: %s: %w", ErrMalformedDocument, ictx.SourceName, err)
	}
	if compressed {
		i.logger.Debug().
			Str("source", ictx.SourceName).
			Int("compressed_bytes", len(payload)).
			Int("bytes", len(content)).
			Msg("Decompressed gzip payload")
	}
	return i.IngestBytes(ctx, content, ictx)
}

func (i *Ingester) ingestZip(ctx context.Context, payload []byte, ictx types.IngestionContext) (Result, error) {
	total := Result{RunID: uuid.NewString(), SourceName: ictx.SourceName, RetailerID: ictx.RetailerID, StoreID: ictx.StoreID}

	files, err := zip.Expand(ctx, payload, i.options.Zip)
	if err != nil {
		return total, fmt.Errorf("%w: %s: %w", ErrMalformedDocument, ictx.SourceName, err)
	}

	for _, f := range files {
		entryCtx := ictx
		entryCtx.SourceName = ictx.SourceName + "/" + f.InnerFilename
		result, err := i.IngestBytes(ctx, f.Content, entryCtx)
		total.add(result)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// IngestObject handles a storage event. Objects outside prices/ or without
// the .xml suffix return ErrIgnoredObject and touch nothing.
func (i *Ingester) IngestObject(ctx context.Context, event ObjectEvent) (result Result, err error) {
	start := time.Now()
	defer func() { i.metrics.RecordRun(SurfaceStorage, time.Since(start), err) }()

	if !event.Eligible() {
		i.logger.Debug().Str("bucket", event.Bucket).Str("name", event.Name).Msg("Ignoring object")
		return Result{SourceName: event.Name}, fmt.Errorf("%w: %s", ErrIgnoredObject, event.Name)
	}
	if i.buckets == nil {
		return Result{SourceName: event.Name}, fmt.Errorf("%w: no object storage configured", ErrFetchFailed)
	}

	bucket, err := i.buckets.Bucket(event.Bucket)
	if err != nil {
		return Result{SourceName: event.Name}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	content, err := bucket.Get(ctx, event.Name)
	if err != nil {
		return Result{SourceName: event.Name}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	metadata := event.Metadata
	if metadata == nil {
		// Events without metadata fall back to the object's stored metadata
		if info, err := bucket.GetInfo(ctx, event.Name); err == nil && info.Metadata != nil {
			metadata = info.Metadata.Attributes()
		}
	}

	ictx := types.NewIngestionContext(metadata["retailerId"], metadata["storeId"], event.Name)
	return i.IngestPayload(ctx, content, ictx)
}

// IngestURL fetches url and ingests it. The source name is the last path
// segment of the URL, or the whole URL when that is empty.
func (i *Ingester) IngestURL(ctx context.Context, rawURL, retailerID, storeID string) (result Result, err error) {
	start := time.Now()
	defer func() { i.metrics.RecordRun(SurfaceURL, time.Since(start), err) }()

	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Result{}, ErrMissingURL
	}
	if i.fetcher == nil {
		return Result{}, fmt.Errorf("%w: no fetcher configured", ErrFetchFailed)
	}

	ictx := types.NewIngestionContext(retailerID, storeID, SourceNameFromURL(rawURL))

	ctx, span := i.tracer.Start(ctx, "pipeline.IngestURL", trace.WithAttributes(
		attribute.String("ingest.url", rawURL),
	))
	defer span.End()

	payload, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		span.RecordError(err)
		return Result{SourceName: ictx.SourceName, RetailerID: ictx.RetailerID}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	if i.archive != nil {
		if err := i.archive.Archive(ctx, payload, rawURL, ictx); err != nil && !errors.Is(err, context.Canceled) {
			i.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to archive payload")
		}
	}

	return i.IngestPayload(ctx, payload, ictx)
}

// IngestFile ingests a local catalog file, named by its base name
func (i *Ingester) IngestFile(ctx context.Context, path, retailerID, storeID string) (result Result, err error) {
	start := time.Now()
	defer func() { i.metrics.RecordRun(SurfaceFile, time.Since(start), err) }()

	ictx := types.NewIngestionContext(retailerID, storeID, filepath.Base(path))
	payload, err := os.ReadFile(path)
	if err != nil {
		return Result{SourceName: ictx.SourceName, RetailerID: ictx.RetailerID}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return i.IngestPayload(ctx, payload, ictx)
}

// SourceNameFromURL returns the last segment of the escaped path of rawURL, or
// rawURL itself when the path ends in "/" or cannot be parsed. An encoded "/"
// stays inside the name.
func SourceNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p := parsed.EscapedPath()
	if name := p[strings.LastIndex(p, "/")+1:]; name != "" {
		return name
	}
	return rawURL
}
