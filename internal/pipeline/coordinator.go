// Package pipeline owns the multi-stage workflow that turns Gmail
// search results into generated dossiers: search → select → process →
// analyze → generate. The Coordinator is the single owner of pipeline
// state; every stage result is cached and replayed into later stages
// instead of recomputed.
package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/taralshah99/email-dossier-cli/internal/identity"
	"github.com/taralshah99/email-dossier-cli/internal/model"
)

// Stage names one serialized unit of pipeline work. Each stage carries
// its own status and error; two different stages may run concurrently,
// the same stage never overlaps itself.
type Stage string

const (
	StageSearch          Stage = "search"
	StageProcess         Stage = "process"
	StageAnalyze         Stage = "analyze"
	StageGenerateSummary Stage = "generate_summary"
	StageGenerateMeeting Stage = "generate_meeting"
	StageGenerateClient  Stage = "generate_client"
)

// StageStatus is the lifecycle of a single stage.
type StageStatus string

const (
	StatusIdle    StageStatus = "idle"
	StatusRunning StageStatus = "running"
	StatusDone    StageStatus = "done"
	StatusFailed  StageStatus = "failed"
)

// StageState is the per-stage entry of the keyed state map.
type StageState struct {
	Status StageStatus `json:"status"`
	Err    string      `json:"error,omitempty"`
}

// State is the coordinator's coarse position in the workflow.
type State string

const (
	StateIdle       State = "idle"
	StateSearching  State = "searching"
	StateSearched   State = "searched"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateGenerating State = "generating"
	StateReady      State = "ready"
)

// ErrStale marks a response that arrived after a newer search or reset
// superseded it. The result was discarded, not applied.
var ErrStale = eris.New("pipeline: stale response discarded")

var generateStages = []Stage{StageGenerateSummary, StageGenerateMeeting, StageGenerateClient}

// Snapshot is an immutable view of coordinator state pushed to
// subscribers on every change.
type Snapshot struct {
	State     State                                `json:"state"`
	Epoch     uint64                               `json:"epoch"`
	Suspended bool                                 `json:"suspended"`
	Stages    map[Stage]StageState                 `json:"stages"`
	Threads   []model.Thread                       `json:"threads,omitempty"`
	Selection []string                             `json:"selection,omitempty"`
	Metadata  *model.ProcessedMetadata             `json:"metadata,omitempty"`
	Analysis  *model.AnalysisResult                `json:"analysis,omitempty"`
	Dossiers  map[model.DossierKind]*model.Dossier `json:"dossiers,omitempty"`
	Identity  model.ClientIdentity                 `json:"identity"`
}

// Coordinator sequences the pipeline stages over the external services.
// All state lives behind the mutex; service calls are made with the
// lock released and their results applied only if the epoch they were
// issued under is still current.
type Coordinator struct {
	gate     *SessionGate
	search   SearchService
	metadata MetadataService
	analysis AnalysisService
	dossier  DossierService

	mu          sync.Mutex
	epoch       uint64
	state       State
	suspended   bool
	stages      map[Stage]StageState
	threads     []model.Thread
	selection   map[string]struct{}
	meta        *model.ProcessedMetadata
	analysisRes *model.AnalysisResult
	analysisKey string
	dossiers    map[model.DossierKind]*model.Dossier

	userSelection  string
	userCustomName string
	clientIdentity model.ClientIdentity

	subs    map[int]chan Snapshot
	nextSub int
}

// NewCoordinator wires the coordinator over its collaborating services.
func NewCoordinator(gate *SessionGate, search SearchService, metadata MetadataService, analysis AnalysisService, dossier DossierService) *Coordinator {
	c := &Coordinator{
		gate:      gate,
		search:    search,
		metadata:  metadata,
		analysis:  analysis,
		dossier:   dossier,
		state:     StateIdle,
		stages:    make(map[Stage]StageState),
		selection: make(map[string]struct{}),
		dossiers:  make(map[model.DossierKind]*model.Dossier),
		subs:      make(map[int]chan Snapshot),
	}
	for _, s := range []Stage{StageSearch, StageProcess, StageAnalyze, StageGenerateSummary, StageGenerateMeeting, StageGenerateClient} {
		c.stages[s] = StageState{Status: StatusIdle}
	}
	return c
}

// Search validates the criteria, runs the thread search, and on success
// replaces the thread list and clears every downstream cache. A new
// search always resets downstream state.
func (c *Coordinator) Search(ctx context.Context, criteria model.SearchCriteria) ([]model.Thread, error) {
	if strings.TrimSpace(criteria.Keyword) == "" && strings.TrimSpace(criteria.SenderEmail) == "" {
		return nil, &ValidationError{Field: "criteria", Reason: "keyword or sender email required"}
	}
	if criteria.EndDate.Before(criteria.StartDate) {
		return nil, &ValidationError{Field: "date_range", Reason: "start date is after end date"}
	}
	if err := c.checkGate(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.stages[StageSearch].Status == StatusRunning {
		c.mu.Unlock()
		return nil, &AlreadyInProgressError{Stage: StageSearch}
	}
	c.epoch++
	epoch := c.epoch
	prev := c.state
	c.state = StateSearching
	c.setStageLocked(StageSearch, StatusRunning, "")
	c.notifyLocked()
	c.mu.Unlock()

	threads, err := c.search.SearchThreads(ctx, criteria)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.discardLocked(StageSearch)
		return nil, ErrStale
	}
	if err != nil {
		c.state = prev
		c.setStageLocked(StageSearch, StatusFailed, err.Error())
		c.notifyLocked()
		return nil, &UpstreamServiceError{Stage: StageSearch, Err: err}
	}

	c.threads = threads
	c.selection = make(map[string]struct{})
	c.meta = nil
	c.analysisRes = nil
	c.analysisKey = ""
	c.dossiers = make(map[model.DossierKind]*model.Dossier)
	for _, s := range []Stage{StageProcess, StageAnalyze, StageGenerateSummary, StageGenerateMeeting, StageGenerateClient} {
		c.stages[s] = StageState{Status: StatusIdle}
	}
	c.state = StateSearched
	c.setStageLocked(StageSearch, StatusDone, "")
	c.recomputeIdentityLocked()
	c.notifyLocked()

	zap.L().Info("pipeline: search complete", zap.Int("threads", len(threads)))
	return threads, nil
}

// ToggleThread adds or removes a thread from the selection set. Any
// selection change invalidates processed metadata; the cached analysis
// survives until a process call with a different selection lands.
func (c *Coordinator) ToggleThread(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.threads) == 0 {
		return &ValidationError{Field: "thread", Reason: "no search results to select from"}
	}
	if !c.hasThreadLocked(id) {
		return &ValidationError{Field: "thread", Reason: "unknown thread id " + id}
	}

	if _, ok := c.selection[id]; ok {
		delete(c.selection, id)
	} else {
		c.selection[id] = struct{}{}
	}
	c.invalidateMetadataLocked()
	c.notifyLocked()
	return nil
}

// ClearSelection empties the selection set.
func (c *Coordinator) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.selection) == 0 {
		return
	}
	c.selection = make(map[string]struct{})
	c.invalidateMetadataLocked()
	c.notifyLocked()
}

// Process fetches and consolidates metadata for the selected threads.
// The cached analysis is kept only when the selection matches the one
// it was computed for.
func (c *Coordinator) Process(ctx context.Context) (*model.ProcessedMetadata, error) {
	if err := c.checkGate(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.selection) == 0 {
		c.mu.Unlock()
		return nil, &EmptySelectionError{}
	}
	if c.stages[StageProcess].Status == StatusRunning {
		c.mu.Unlock()
		return nil, &AlreadyInProgressError{Stage: StageProcess}
	}
	ids := c.selectedIDsLocked()
	key := selectionKey(ids)
	epoch := c.epoch
	prev := c.state
	c.state = StateProcessing
	c.setStageLocked(StageProcess, StatusRunning, "")
	c.notifyLocked()
	c.mu.Unlock()

	meta, err := c.metadata.ProcessThreads(ctx, ids)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.discardLocked(StageProcess)
		return nil, ErrStale
	}
	if err != nil {
		c.state = prev
		c.setStageLocked(StageProcess, StatusFailed, err.Error())
		c.notifyLocked()
		return nil, &UpstreamServiceError{Stage: StageProcess, Err: err}
	}

	c.meta = meta
	if key != c.analysisKey {
		c.analysisRes = nil
		c.analysisKey = ""
	}
	c.state = StateProcessed
	c.setStageLocked(StageProcess, StatusDone, "")
	c.recomputeIdentityLocked()
	c.notifyLocked()
	return meta, nil
}

// Generate produces one dossier kind. Requires processed metadata. When
// the cached analysis is missing or reuse is declined, the analysis
// stage runs first, exactly once, and its result is cached before the
// dossier call proceeds. Different kinds may generate concurrently.
// The returned dossier is stamped with the thread selection it was
// generated from.
func (c *Coordinator) Generate(ctx context.Context, kind model.DossierKind, reuseAnalysis bool) (*model.Dossier, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Field: "kind", Reason: "unknown dossier kind " + string(kind)}
	}
	if err := c.checkGate(ctx); err != nil {
		return nil, err
	}
	stage := stageForKind(kind)

	c.mu.Lock()
	if c.meta == nil {
		c.mu.Unlock()
		return nil, &ValidationError{Field: "state", Reason: "process selected threads before generating"}
	}
	if c.stages[stage].Status == StatusRunning {
		c.mu.Unlock()
		return nil, &AlreadyInProgressError{Stage: stage}
	}
	analysisRes := c.analysisRes
	needAnalysis := analysisRes == nil || !reuseAnalysis
	if needAnalysis {
		if c.stages[StageAnalyze].Status == StatusRunning {
			c.mu.Unlock()
			return nil, &AlreadyInProgressError{Stage: StageAnalyze}
		}
		c.setStageLocked(StageAnalyze, StatusRunning, "")
	}
	meta := c.meta
	key := selectionKey(meta.ProcessedThreadIDs)
	epoch := c.epoch
	c.state = StateGenerating
	c.setStageLocked(stage, StatusRunning, "")
	c.notifyLocked()
	c.mu.Unlock()

	if needAnalysis {
		res, err := c.analysis.Analyze(ctx, meta)

		c.mu.Lock()
		if c.epoch != epoch {
			c.stages[StageAnalyze] = StageState{Status: StatusIdle}
			c.discardLocked(stage)
			c.mu.Unlock()
			return nil, ErrStale
		}
		if err != nil {
			c.setStageLocked(StageAnalyze, StatusFailed, err.Error())
			c.stages[stage] = StageState{Status: StatusIdle}
			c.settleStateLocked()
			c.notifyLocked()
			c.mu.Unlock()
			return nil, &UpstreamServiceError{Stage: StageAnalyze, Err: err}
		}
		c.analysisRes = res
		c.analysisKey = key
		c.setStageLocked(StageAnalyze, StatusDone, "")
		c.recomputeIdentityLocked()
		c.notifyLocked()
		analysisRes = res
		c.mu.Unlock()
	}

	var dossier *model.Dossier
	var err error
	switch kind {
	case model.DossierMeeting:
		dossier, err = c.dossier.MeetingFlow(ctx, analysisRes, meta)
	case model.DossierSummary:
		dossier, err = c.dossier.PastSummary(ctx, analysisRes, meta)
	case model.DossierClient:
		c.mu.Lock()
		id := c.clientIdentity
		c.mu.Unlock()
		if !id.Resolved {
			c.mu.Lock()
			c.stages[stage] = StageState{Status: StatusIdle}
			c.settleStateLocked()
			c.notifyLocked()
			c.mu.Unlock()
			return nil, &ValidationError{Field: "client_name", Reason: "client identity unresolved; select or enter a client name"}
		}
		dossier, err = c.dossier.ClientDossier(ctx, id.Name, analysisRes.ProductDomain, meta.CombinedContent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.discardLocked(stage)
		return nil, ErrStale
	}
	if err != nil {
		c.setStageLocked(stage, StatusFailed, err.Error())
		c.settleStateLocked()
		c.notifyLocked()
		return nil, &UpstreamServiceError{Stage: stage, Err: err}
	}
	dossier.ThreadIDs = append([]string(nil), meta.ProcessedThreadIDs...)
	c.dossiers[kind] = dossier
	c.setStageLocked(stage, StatusDone, "")
	c.settleStateLocked()
	c.notifyLocked()

	zap.L().Info("pipeline: dossier generated", zap.String("kind", string(kind)))
	return dossier, nil
}

// SetClientSelection records the user's pick among the reported
// candidates. The sentinel "custom" defers to the custom name.
func (c *Coordinator) SetClientSelection(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userSelection = name
	c.recomputeIdentityLocked()
	c.notifyLocked()
}

// SetClientCustomName records a user-typed client name. A non-empty
// custom name outranks every other identity signal.
func (c *Coordinator) SetClientCustomName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userCustomName = name
	c.recomputeIdentityLocked()
	c.notifyLocked()
}

// Reset returns to Searched: search results stay, everything
// downstream (selection, metadata, analysis, dossiers, user identity
// overrides) is cleared. Outstanding calls become stale.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.selection = make(map[string]struct{})
	c.meta = nil
	c.analysisRes = nil
	c.analysisKey = ""
	c.dossiers = make(map[model.DossierKind]*model.Dossier)
	c.userSelection = ""
	c.userCustomName = ""
	for _, s := range []Stage{StageProcess, StageAnalyze, StageGenerateSummary, StageGenerateMeeting, StageGenerateClient} {
		c.stages[s] = StageState{Status: StatusIdle}
	}
	if len(c.threads) > 0 {
		c.state = StateSearched
	} else {
		c.state = StateIdle
	}
	c.recomputeIdentityLocked()
	c.notifyLocked()
}

// Snapshot returns the current coordinator state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers an observer. The channel is primed with the
// current snapshot and then receives one on every state change;
// a slow consumer sees the latest snapshot, intermediate ones are
// dropped. The returned func unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Coordinator) checkGate(ctx context.Context) error {
	if err := c.gate.Check(ctx); err != nil {
		c.mu.Lock()
		if !c.suspended {
			c.suspended = true
			c.notifyLocked()
		}
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	if c.suspended {
		c.suspended = false
		c.notifyLocked()
	}
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) setStageLocked(s Stage, status StageStatus, errMsg string) {
	c.stages[s] = StageState{Status: status, Err: errMsg}
}

// discardLocked handles a response whose epoch is no longer current:
// the stage flag is released without touching any data.
func (c *Coordinator) discardLocked(s Stage) {
	zap.L().Info("pipeline: stale response discarded", zap.String("stage", string(s)))
	c.stages[s] = StageState{Status: StatusIdle}
	c.notifyLocked()
}

// settleStateLocked recomputes the coarse state after a generate stage
// finishes while others may still be in flight.
func (c *Coordinator) settleStateLocked() {
	for _, s := range generateStages {
		if c.stages[s].Status == StatusRunning {
			c.state = StateGenerating
			return
		}
	}
	if len(c.dossiers) > 0 {
		c.state = StateReady
		return
	}
	c.state = StateProcessed
}

func (c *Coordinator) invalidateMetadataLocked() {
	c.meta = nil
	c.stages[StageProcess] = StageState{Status: StatusIdle}
	if len(c.threads) > 0 {
		c.state = StateSearched
	}
	c.recomputeIdentityLocked()
}

func (c *Coordinator) recomputeIdentityLocked() {
	var aiName string
	if c.analysisRes != nil {
		aiName = c.analysisRes.ClientName
	}
	var candidates []string
	if c.meta != nil {
		candidates = c.meta.AvailableClientNames
	}
	c.clientIdentity = identity.Resolve(identity.Signals{
		AIExtractedName:  aiName,
		DomainCandidates: candidates,
		UserSelection:    c.userSelection,
		UserCustomName:   c.userCustomName,
	})
}

func (c *Coordinator) hasThreadLocked(id string) bool {
	for _, t := range c.threads {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (c *Coordinator) selectedIDsLocked() []string {
	ids := make([]string, 0, len(c.selection))
	for id := range c.selection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Coordinator) snapshotLocked() Snapshot {
	stages := make(map[Stage]StageState, len(c.stages))
	for s, st := range c.stages {
		stages[s] = st
	}
	dossiers := make(map[model.DossierKind]*model.Dossier, len(c.dossiers))
	for k, d := range c.dossiers {
		dossiers[k] = d
	}
	threads := make([]model.Thread, len(c.threads))
	copy(threads, c.threads)

	return Snapshot{
		State:     c.state,
		Epoch:     c.epoch,
		Suspended: c.suspended,
		Stages:    stages,
		Threads:   threads,
		Selection: c.selectedIDsLocked(),
		Metadata:  c.meta,
		Analysis:  c.analysisRes,
		Dossiers:  dossiers,
		Identity:  c.clientIdentity,
	}
}

func (c *Coordinator) notifyLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer: replace the buffered snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func stageForKind(kind model.DossierKind) Stage {
	switch kind {
	case model.DossierMeeting:
		return StageGenerateMeeting
	case model.DossierClient:
		return StageGenerateClient
	default:
		return StageGenerateSummary
	}
}

func selectionKey(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return strings.Join(sorted, "\n")
}
