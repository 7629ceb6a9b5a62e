// Package checkpoint persists accumulated leads as CSV artifacts and restores them.
//
// Periodic saves are named after the accepted-lead count so they never overwrite each
// other; terminal saves use fixed names chosen by how the run ended. A small JSON state
// file next to the artifacts records the run ID, cursor and counters of the latest save.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
)

// Kind selects the artifact written by a save.
type Kind string

// Artifact kinds.
const (
	KindProgress Kind = "progress"
	KindFinal    Kind = "final"
	KindPartial  Kind = "partial"
	KindError    Kind = "error"
)

// Fixed artifact names.
const (
	DefaultFinalName = "leads_final.csv"
	PartialName      = "leads_partial.csv"
	ErrorName        = "leads_error.csv"
	StateName        = "checkpoint.json"
	progressPrefix   = "leads_progress_"
	csvContentType   = "text/csv; charset=utf-8"
)

// KindForState maps a terminal run state to the artifact kind of its final save.
func KindForState(state crawler.RunState) Kind {
	switch state {
	case crawler.RunStateCompleted:
		return KindFinal
	case crawler.RunStateInterrupted:
		return KindPartial
	default:
		return KindError
	}
}

// Config tunes a Manager.
type Config struct {
	// Every triggers a progress save each time the accepted count reaches a multiple of it.
	Every            int
	FinalName        string
	DescriptionLimit int
}

// Manager owns the checkpoint artifacts of a run.
type Manager struct {
	store   crawler.ObjectStore
	mirrors []crawler.BlobStore
	cfg     Config
	logger  *zap.Logger
	clock   crawler.Clock

	mu           sync.Mutex
	retryPending bool
	lastSaved    int
}

// NewManager builds a Manager writing to store and copying every artifact to mirrors.
func NewManager(store crawler.ObjectStore, mirrors []crawler.BlobStore, cfg Config, logger *zap.Logger, clock crawler.Clock) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: checkpoint store is required", crawler.ErrFatalConfig)
	}
	if cfg.Every <= 0 {
		cfg.Every = 500
	}
	if cfg.FinalName == "" {
		cfg.FinalName = DefaultFinalName
	}
	if cfg.DescriptionLimit <= 0 {
		cfg.DescriptionLimit = extract.DescriptionLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		mirrors:   mirrors,
		cfg:       cfg,
		logger:    logger.Named("checkpoint"),
		clock:     clock,
		lastSaved: -1,
	}, nil
}

// ArtifactName returns the file name for a save of kind holding count leads.
func (m *Manager) ArtifactName(kind Kind, count int) string {
	switch kind {
	case KindFinal:
		return m.cfg.FinalName
	case KindPartial:
		return PartialName
	case KindError:
		return ErrorName
	default:
		return progressPrefix + strconv.Itoa(count) + ".csv"
	}
}

// Due reports whether a periodic save should run at accepted leads.
func (m *Manager) Due(accepted int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accepted <= 0 || accepted == m.lastSaved {
		return false
	}
	return m.retryPending || accepted%m.cfg.Every == 0
}

// MaybeSave writes a progress artifact when one is due. A failed save is retried on the
// next call, whatever the count.
func (m *Manager) MaybeSave(ctx context.Context, cp crawler.RunCheckpoint) (bool, error) {
	if !m.Due(len(cp.Leads)) {
		return false, nil
	}
	_, err := m.Save(ctx, cp, KindProgress)
	m.mu.Lock()
	m.retryPending = err != nil
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return true, nil
}

type state struct {
	RunID    string         `json:"run_id"`
	Kind     Kind           `json:"kind"`
	Artifact string         `json:"artifact"`
	Count    int            `json:"count"`
	Cursor   crawler.Cursor `json:"cursor"`
	Stats    crawler.Stats  `json:"stats"`
	SavedAt  time.Time      `json:"saved_at"`
}

// Save writes cp as an artifact of kind and records the state file. It returns the
// artifact URI. Failures wrap crawler.ErrCheckpointIO; mirror failures are only logged.
func (m *Manager) Save(ctx context.Context, cp crawler.RunCheckpoint, kind Kind) (uri string, err error) {
	defer func() { metrics.ObserveCheckpointSave(string(kind), err) }()

	name := m.ArtifactName(kind, len(cp.Leads))
	var buf bytes.Buffer
	if err := Encode(&buf, cp.Leads, m.cfg.DescriptionLimit); err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", crawler.ErrCheckpointIO, name, err)
	}
	payload := buf.Bytes()

	uri, err = m.store.PutObject(ctx, name, csvContentType, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: write %s: %w", crawler.ErrCheckpointIO, name, err)
	}

	st := state{
		RunID:    cp.RunID,
		Kind:     kind,
		Artifact: name,
		Count:    len(cp.Leads),
		Cursor:   cp.Cursor,
		Stats:    cp.Stats,
		SavedAt:  m.now(),
	}
	stateJSON, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode state: %w", crawler.ErrCheckpointIO, err)
	}
	if _, err := m.store.PutObject(ctx, StateName, "application/json", bytes.NewReader(stateJSON)); err != nil {
		return "", fmt.Errorf("%w: write state: %w", crawler.ErrCheckpointIO, err)
	}

	m.mu.Lock()
	m.lastSaved = len(cp.Leads)
	m.mu.Unlock()

	// Mirrors keep every run's artifacts side by side; the primary store only holds the latest.
	mirrorName := name
	if cp.RunID != "" {
		mirrorName = path.Join(cp.RunID, name)
	}
	for _, mirror := range m.mirrors {
		if _, err := mirror.PutObject(ctx, mirrorName, csvContentType, bytes.NewReader(payload)); err != nil {
			m.logger.Warn("checkpoint mirror failed", zap.String("artifact", mirrorName), zap.Error(err))
		}
	}

	m.logger.Info("checkpoint saved",
		zap.String("run_id", cp.RunID),
		zap.String("kind", string(kind)),
		zap.String("uri", uri),
		zap.Int("leads", len(cp.Leads)))
	return uri, nil
}

// Load restores the latest checkpoint, or returns nil when none exists. When the state
// file is missing or stale, the best artifact on disk is used with a zero cursor:
// final, then partial, then error, then the progress save with the highest count.
func (m *Manager) Load(ctx context.Context) (*crawler.RunCheckpoint, error) {
	st, err := m.readState(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		leads, err := m.readArtifact(ctx, st.Artifact)
		switch {
		case err == nil:
			return &crawler.RunCheckpoint{
				RunID:   st.RunID,
				Leads:   leads,
				Cursor:  st.Cursor,
				Stats:   st.Stats,
				SavedAt: st.SavedAt,
			}, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
		m.logger.Warn("checkpoint state names a missing artifact", zap.String("artifact", st.Artifact))
	}

	name, err := m.bestArtifact(ctx)
	if err != nil || name == "" {
		return nil, err
	}
	leads, err := m.readArtifact(ctx, name)
	if err != nil {
		return nil, err
	}
	cp := &crawler.RunCheckpoint{Leads: leads}
	cp.Stats.LeadsAccepted = len(leads)
	if st != nil {
		cp.RunID = st.RunID
	}
	return cp, nil
}

func (m *Manager) readState(ctx context.Context) (*state, error) {
	raw, err := m.read(ctx, StateName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		m.logger.Warn("ignoring unreadable checkpoint state", zap.Error(err))
		return nil, nil
	}
	return &st, nil
}

func (m *Manager) readArtifact(ctx context.Context, name string) ([]crawler.Lead, error) {
	raw, err := m.read(ctx, name)
	if err != nil {
		return nil, err
	}
	leads, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", crawler.ErrCheckpointIO, name, err)
	}
	return leads, nil
}

func (m *Manager) read(ctx context.Context, name string) ([]byte, error) {
	rc, err := m.store.GetObject(ctx, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: open %s: %w", crawler.ErrCheckpointIO, name, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			m.logger.Debug("close checkpoint reader", zap.Error(cerr))
		}
	}()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", crawler.ErrCheckpointIO, name, err)
	}
	return raw, nil
}

func (m *Manager) bestArtifact(ctx context.Context) (string, error) {
	names, err := m.store.ListObjects(ctx, "")
	if err != nil {
		return "", fmt.Errorf("%w: list artifacts: %w", crawler.ErrCheckpointIO, err)
	}
	present := make(map[string]bool, len(names))
	var progress []string
	for _, n := range names {
		present[n] = true
		if strings.HasPrefix(n, progressPrefix) && strings.HasSuffix(n, ".csv") {
			progress = append(progress, n)
		}
	}
	for _, fixed := range []string{m.cfg.FinalName, PartialName, ErrorName} {
		if present[fixed] {
			return fixed, nil
		}
	}
	if len(progress) == 0 {
		return "", nil
	}
	sort.Slice(progress, func(i, j int) bool { return progressCount(progress[i]) > progressCount(progress[j]) })
	return progress[0], nil
}

func progressCount(name string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, progressPrefix), ".csv"))
	if err != nil {
		return -1
	}
	return n
}

func (m *Manager) now() time.Time {
	if m.clock == nil {
		return time.Now().UTC()
	}
	return m.clock.Now()
}
