package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/autosave"
	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"github.com/MarcoPoloResearchLab/deckelo/internal/transfer"
	"go.uber.org/zap"
)

var (
	// ErrNoPayload indicates that a link carries no import fragment.
	ErrNoPayload = errors.New("session: link carries no import payload")
	// ErrAlreadyOpen indicates that Open was called twice.
	ErrAlreadyOpen = errors.New("session: already open")

	errMissingStore   = errors.New("store is required")
	errMissingGateway = errors.New("gateway is required")
	noOpLogger        = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "session.service.new"
	opOpen          = "session.open"
	opAddDeck       = "session.add_deck"
	opRecordMatch   = "session.record_match"
	opUpdateDeck    = "session.update_deck"
	opDeleteDeck    = "session.delete_deck"
	opUndoLastMatch = "session.undo_last_match"
	opClearAll      = "session.clear_all"
	opImportFile    = "session.import_file"
	opImportLink    = "session.import_fragment"
	opExport        = "session.export"
	opShare         = "session.share"
	opShareQR       = "session.share_qr"
	opClose         = "session.close"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Source tells where the state shown after Open came from.
type Source string

const (
	SourceStorage  Source = "storage"
	SourceFragment Source = "fragment"
	SourceMemory   Source = "memory"
)

// OpenResult describes how the session was initialised.
type OpenResult struct {
	Source  Source
	Decks   int
	Matches int
	// FragmentError is set when a link payload was present but could not be imported.
	FragmentError error
}

// ImportResult summarises a replaced dataset.
type ImportResult struct {
	Decks   int `json:"decks"`
	Matches int `json:"matches"`
}

// Status is a summary of the session state.
type Status struct {
	Persistent    bool   `json:"persistent"`
	Decks         int    `json:"decks"`
	Matches       int    `json:"matches"`
	PendingSave   bool   `json:"pendingSave"`
	LastSaveError string `json:"lastSaveError,omitempty"`
}

type ServiceConfig struct {
	Store        *tracker.Store
	Gateway      persistence.Gateway
	Logger       *zap.Logger
	SaveDelay    time.Duration
	ShareBaseURL string
	ShareLimit   int
	Clock        func() time.Time
	// OnChange runs after every accepted mutation and after Open.
	OnChange func()
	// OnSaveError receives failed background writes.
	OnSaveError func(error)
}

// Service ties the store to durable storage and to the transfer formats.
type Service struct {
	store        *tracker.Store
	gateway      persistence.Gateway
	saver        *autosave.Saver
	logger       *zap.Logger
	clock        func() time.Time
	shareBaseURL string
	shareLimit   int
	onChange     func()

	mu         sync.Mutex
	opening    bool
	opened     bool
	persistent bool
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Gateway == nil {
		return nil, newServiceError(opServiceNew, "missing_gateway", errMissingGateway)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	shareLimit := cfg.ShareLimit
	if shareLimit <= 0 {
		shareLimit = transfer.MaxShareLength
	}

	service := &Service{
		store:        cfg.Store,
		gateway:      cfg.Gateway,
		logger:       logger,
		clock:        clock,
		shareBaseURL: cfg.ShareBaseURL,
		shareLimit:   shareLimit,
		onChange:     cfg.OnChange,
	}

	saver, err := autosave.New(autosave.Config{
		Delay:    cfg.SaveDelay,
		Snapshot: cfg.Store.Snapshot,
		Gateway:  cfg.Gateway,
		Logger:   logger,
		OnError:  cfg.OnSaveError,
	})
	if err != nil {
		return nil, newServiceError(opServiceNew, "autosave_failed", err)
	}
	service.saver = saver
	cfg.Store.SetOnChange(service.handleChange)
	return service, nil
}

// Open loads the initial state. A link fragment takes precedence over stored data; when
// it cannot be decoded the stored data is loaded instead and the failure is reported in
// the result. Storage that cannot be read leaves the session in memory only.
func (s *Service) Open(ctx context.Context, fragment string) (OpenResult, error) {
	s.mu.Lock()
	if s.opened || s.opening {
		s.mu.Unlock()
		return OpenResult{}, newServiceError(opOpen, "already_open", ErrAlreadyOpen)
	}
	s.opening = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.opening = false
		s.mu.Unlock()
	}()

	result := OpenResult{}
	if fragment != "" {
		dataset, kind, err := transfer.ParseFragment(fragment)
		switch {
		case err != nil:
			s.logger.Warn("link import failed, loading stored data",
				zap.String("operation", opOpen),
				zap.String("format", string(kind)),
				zap.Error(err))
			result.FragmentError = newServiceError(opOpen, "fragment_invalid", err)
		case kind != transfer.FragmentNone:
			s.store.Replace(dataset)
			persistent := s.gateway.IsAvailable()
			s.markOpened(persistent)
			if persistent {
				if err := s.saver.SaveNow(ctx); err != nil {
					s.logger.Warn("imported link could not be saved", zap.String("operation", opOpen), zap.Error(err))
				}
			}
			s.logger.Info("state loaded from link",
				zap.String("format", string(kind)),
				zap.Int("decks", len(dataset.Decks)),
				zap.Int("matches", len(dataset.Matches)))
			result.Source = SourceFragment
			result.Decks = len(dataset.Decks)
			result.Matches = len(dataset.Matches)
			s.notify()
			return result, nil
		}
	}

	if !s.gateway.IsAvailable() {
		s.logger.Warn("storage unavailable, changes will not be saved", zap.String("operation", opOpen))
		s.markOpened(false)
		result.Source = SourceMemory
		s.notify()
		return result, nil
	}

	dataset, err := s.gateway.Load(ctx)
	if err != nil {
		s.logger.Warn("storage could not be read, changes will not be saved",
			zap.String("operation", opOpen),
			zap.Error(err))
		s.markOpened(false)
		result.Source = SourceMemory
		s.notify()
		return result, nil
	}

	s.store.Replace(dataset)
	s.markOpened(true)
	result.Source = SourceStorage
	result.Decks = len(dataset.Decks)
	result.Matches = len(dataset.Matches)
	s.logger.Info("state loaded from storage", zap.Int("decks", result.Decks), zap.Int("matches", result.Matches))
	s.notify()
	return result, nil
}

// Persistent reports whether changes reach durable storage.
func (s *Service) Persistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistent
}

func (s *Service) AddDeck(name, hero string) (tracker.Deck, error) {
	deck, err := s.store.AddDeck(name, hero)
	if err != nil {
		return tracker.Deck{}, s.rejected(opAddDeck, err)
	}
	return deck, nil
}

func (s *Service) RecordMatch(deck1ID, deck2ID, winnerID string) (tracker.Match, error) {
	match, err := s.store.RecordMatch(deck1ID, deck2ID, winnerID)
	if err != nil {
		return tracker.Match{}, s.rejected(opRecordMatch, err)
	}
	return match, nil
}

func (s *Service) UpdateDeck(deckID string, update tracker.DeckUpdate) (tracker.Deck, error) {
	deck, err := s.store.UpdateDeck(deckID, update)
	if err != nil {
		return tracker.Deck{}, s.rejected(opUpdateDeck, err)
	}
	return deck, nil
}

func (s *Service) DeleteDeck(deckID string) error {
	if err := s.store.DeleteDeck(deckID); err != nil {
		return s.rejected(opDeleteDeck, err)
	}
	return nil
}

func (s *Service) UndoLastMatch() (tracker.Match, error) {
	match, err := s.store.UndoLastMatch()
	if err != nil {
		return tracker.Match{}, s.rejected(opUndoLastMatch, err)
	}
	return match, nil
}

// ClearAll empties the store and the storage.
func (s *Service) ClearAll(ctx context.Context) error {
	s.store.ClearAll()
	if !s.Persistent() {
		return nil
	}
	if err := s.gateway.Clear(ctx); err != nil {
		s.logError(opClearAll, "clear_failed", err)
		return newServiceError(opClearAll, "clear_failed", err)
	}
	return nil
}

// ImportFile replaces the state with a JSON document. The state is untouched on error.
func (s *Service) ImportFile(ctx context.Context, r io.Reader) (ImportResult, error) {
	dataset, err := transfer.ReadImport(r)
	if err != nil {
		reason := "invalid_document"
		switch {
		case errors.Is(err, tracker.ErrMalformedMatch):
			reason = "malformed_match"
		case errors.Is(err, tracker.ErrDuplicateID):
			reason = "duplicate_id"
		}
		s.logError(opImportFile, reason, err)
		return ImportResult{}, newServiceError(opImportFile, reason, err)
	}
	return s.replace(ctx, opImportFile, dataset), nil
}

// ImportFragment replaces the state with the payload of a share or legacy link.
func (s *Service) ImportFragment(ctx context.Context, fragment string) (ImportResult, error) {
	dataset, kind, err := transfer.ParseFragment(fragment)
	if err != nil {
		s.logError(opImportLink, "invalid_payload", err, zap.String("format", string(kind)))
		return ImportResult{}, newServiceError(opImportLink, "invalid_payload", err)
	}
	if kind == transfer.FragmentNone {
		return ImportResult{}, newServiceError(opImportLink, "no_payload", ErrNoPayload)
	}
	return s.replace(ctx, opImportLink, dataset), nil
}

// Export writes the state as a JSON document.
func (s *Service) Export(w io.Writer) error {
	if err := transfer.WriteExport(w, s.store.Snapshot()); err != nil {
		s.logError(opExport, "write_failed", err)
		return newServiceError(opExport, "write_failed", err)
	}
	return nil
}

// ExportFileName names an export taken now.
func (s *Service) ExportFileName() string {
	return transfer.ExportFileName(s.clock())
}

// QRFileName names a QR image rendered now.
func (s *Service) QRFileName() string {
	return transfer.QRFileName(s.clock())
}

// Share builds a share link for the current state.
func (s *Service) Share() (transfer.Share, error) {
	share, err := transfer.ShareLink(s.store.Snapshot(), s.shareBaseURL, s.shareLimit)
	if err != nil {
		return transfer.Share{}, s.shareError(opShare, err)
	}
	return share, nil
}

// ShareQR renders the share link as a PNG QR code.
func (s *Service) ShareQR() ([]byte, transfer.Share, error) {
	share, err := transfer.ShareLink(s.store.Snapshot(), s.shareBaseURL, s.shareLimit)
	if err != nil {
		return nil, transfer.Share{}, s.shareError(opShareQR, err)
	}
	image, err := transfer.RenderQR(share.URL)
	if err != nil {
		s.logError(opShareQR, "render_failed", err)
		return nil, transfer.Share{}, newServiceError(opShareQR, "render_failed", err)
	}
	return image, share, nil
}

// Standings ranks the current decks.
func (s *Service) Standings() tracker.Standings {
	return s.store.Standings()
}

// History returns the display view of every match.
func (s *Service) History() []tracker.DisplayMatch {
	return s.store.History()
}

// Status summarises the session.
func (s *Service) Status() Status {
	snapshot := s.store.Snapshot()
	status := Status{
		Persistent:  s.Persistent(),
		Decks:       len(snapshot.Decks),
		Matches:     len(snapshot.Matches),
		PendingSave: s.saver.Pending(),
	}
	if err := s.saver.LastError(); err != nil {
		status.LastSaveError = err.Error()
	}
	return status
}

// Close writes pending changes.
func (s *Service) Close(ctx context.Context) error {
	if err := s.saver.Close(ctx); err != nil {
		s.logError(opClose, "flush_failed", err)
		return newServiceError(opClose, "flush_failed", err)
	}
	return nil
}

func (s *Service) replace(ctx context.Context, operation string, dataset tracker.Dataset) ImportResult {
	s.store.Replace(dataset)
	if s.Persistent() {
		if err := s.saver.SaveNow(ctx); err != nil {
			s.logger.Warn("imported state could not be saved", zap.String("operation", operation), zap.Error(err))
		}
	}
	s.logger.Info("state replaced",
		zap.String("operation", operation),
		zap.Int("decks", len(dataset.Decks)),
		zap.Int("matches", len(dataset.Matches)))
	return ImportResult{Decks: len(dataset.Decks), Matches: len(dataset.Matches)}
}

func (s *Service) handleChange() {
	s.mu.Lock()
	opened := s.opened
	persistent := s.persistent
	s.mu.Unlock()
	if !opened {
		return
	}
	if persistent {
		s.saver.MarkDirty()
	}
	s.notify()
}

func (s *Service) markOpened(persistent bool) {
	s.mu.Lock()
	s.opened = true
	s.persistent = persistent
	s.mu.Unlock()
}

func (s *Service) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Service) rejected(operation string, err error) error {
	reason := rejectionReason(err)
	s.loggerOrDefault().Debug("mutation rejected",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err))
	return newServiceError(operation, reason, err)
}

func (s *Service) shareError(operation string, err error) error {
	var sizeErr *transfer.SizeError
	switch {
	case errors.Is(err, transfer.ErrNothingToShare):
		return newServiceError(operation, "nothing_to_share", err)
	case errors.As(err, &sizeErr):
		s.loggerOrDefault().Warn("share payload too large",
			zap.String("operation", operation),
			zap.Int("length", sizeErr.Length),
			zap.Int("limit", sizeErr.Limit))
		return newServiceError(operation, "payload_too_large", err)
	default:
		s.logError(operation, "encode_failed", err)
		return newServiceError(operation, "encode_failed", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, tracker.ErrEmptyDeckName):
		return "empty_name"
	case errors.Is(err, tracker.ErrUnknownHero):
		return "unknown_hero"
	case errors.Is(err, tracker.ErrMissingDeckID):
		return "missing_deck_id"
	case errors.Is(err, tracker.ErrSameDeck):
		return "same_deck"
	case errors.Is(err, tracker.ErrDeckNotFound):
		return "deck_not_found"
	case errors.Is(err, tracker.ErrWinnerNotInMatch):
		return "winner_not_in_match"
	case errors.Is(err, tracker.ErrNothingToUndo):
		return "nothing_to_undo"
	case errors.Is(err, tracker.ErrUndoDeckDeleted):
		return "undo_deck_deleted"
	default:
		return "rejected"
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("session service error", attrs...)
}
