package l5tracks

import (
	"sort"
	"sync"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/monitoring"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l3embed"
	"github.com/courtside-data/replay.vision/internal/video/l4assoc"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	// TrackTentative is a new track that has not yet reached the hit
	// streak required for confirmation. Not visible to consumers.
	TrackTentative TrackState = "tentative"

	// TrackConfirmed is an established track, visible in snapshots.
	TrackConfirmed TrackState = "confirmed"

	// TrackDeleted is a terminal state; the track is purged at the end of
	// the frame cycle and its identity is never reused.
	TrackDeleted TrackState = "deleted"
)

// TrackerConfig holds the tuning parameters of one tracker instance.
type TrackerConfig struct {
	// MaxAge is how many consecutive unmatched frames a confirmed track
	// survives. It also bounds the matching cascade depth.
	MaxAge int

	// MinHits is the consecutive-match streak required to promote a
	// tentative track, counting the spawning detection as the first hit.
	MinHits int

	// MotionGate is the squared-Mahalanobis cutoff for motion gating
	// (chi-squared 95% quantile, 4 degrees of freedom).
	MotionGate float64

	// AppearanceGate is the cosine-distance cutoff for appearance gating
	// and the assignment threshold of the cascade.
	AppearanceGate float64

	// AppearanceBudget is the per-track appearance memory size.
	AppearanceBudget int

	// MaxIoUDistance gates the overlap recovery stage that follows the
	// cascade; 1 disables the stage (a disjoint pair costs exactly 1).
	MaxIoUDistance float64

	// StrictTentative deletes a tentative track on its first miss instead
	// of letting it coast under MaxAge.
	StrictTentative bool

	// MaxTracks caps concurrent live tracks; surplus detections are
	// dropped with a diagnostic rather than spawning unbounded state.
	MaxTracks int

	// Kalman noise weights, scaled by box height.
	StdWeightPosition float64
	StdWeightVelocity float64
}

// DefaultTrackerConfig returns the stock configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxAge:            30,
		MinHits:           3,
		MotionGate:        9.4877,
		AppearanceGate:    0.2,
		AppearanceBudget:  100,
		MaxIoUDistance:    0.7,
		StrictTentative:   false,
		MaxTracks:         128,
		StdWeightPosition: 1.0 / 20,
		StdWeightVelocity: 1.0 / 160,
	}
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MaxAge:            cfg.GetMaxAge(),
		MinHits:           cfg.GetMinHits(),
		MotionGate:        cfg.GetMotionGateThreshold(),
		AppearanceGate:    cfg.GetAppearanceGate(),
		AppearanceBudget:  cfg.GetAppearanceMemorySize(),
		MaxIoUDistance:    cfg.GetMaxIoUDistance(),
		StrictTentative:   cfg.GetStrictTentative(),
		MaxTracks:         cfg.GetMaxTracks(),
		StdWeightPosition: cfg.GetStdWeightPosition(),
		StdWeightVelocity: cfg.GetStdWeightVelocity(),
	}
}

// Track is one persistent identity hypothesis. All fields are owned by the
// tracker; getters hand out copies only.
type Track struct {
	ID    int64
	State TrackState

	// Hits counts consecutive matched frames since the last miss; the
	// spawning detection counts as the first hit.
	Hits int

	// TimeSinceUpdate counts frames since the last matched detection. It
	// is incremented by predict and zeroed by a successful correction, so
	// during association a track seen last frame carries the value 1.
	TimeSinceUpdate int

	Mean    StateMean
	Cov     StateCov
	Gallery *l3embed.Gallery

	StartFrame int64
	LastFrame  int64
	Confidence float32
	ClassID    int
}

// Box returns the current best bounding-box estimate of the track.
func (t *Track) Box() video.Box {
	return video.BoxFromXYAH(t.Mean.XYAH())
}

// Tracker owns the track table for one stream and drives the per-frame
// cycle. It is synchronous: one Update call fully processes one frame.
// The mutex only protects snapshot getters called from the monitor; no
// concurrent Update calls are supported or needed.
type Tracker struct {
	Config TrackerConfig

	Tracks      map[int64]*Track
	NextTrackID int64

	kf      *KalmanFilter
	frame   int64
	last    []video.TrackOutput
	metrics video.TrackerMetrics
	debug   video.DebugCollector

	mu sync.RWMutex
}

// Compile-time check that Tracker satisfies the shared contract.
var _ video.TrackerInterface = (*Tracker)(nil)

// fillDefaults replaces zero or negative fields with their default values so
// a partially filled config cannot produce a tracker that never confirms or
// never deletes.
func fillDefaults(cfg TrackerConfig) TrackerConfig {
	def := DefaultTrackerConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.MinHits <= 0 {
		cfg.MinHits = def.MinHits
	}
	if cfg.MotionGate <= 0 {
		cfg.MotionGate = def.MotionGate
	}
	if cfg.AppearanceGate <= 0 {
		cfg.AppearanceGate = def.AppearanceGate
	}
	if cfg.AppearanceBudget <= 0 {
		cfg.AppearanceBudget = def.AppearanceBudget
	}
	if cfg.MaxIoUDistance <= 0 {
		cfg.MaxIoUDistance = def.MaxIoUDistance
	}
	if cfg.MaxTracks <= 0 {
		cfg.MaxTracks = def.MaxTracks
	}
	if cfg.StdWeightPosition <= 0 {
		cfg.StdWeightPosition = def.StdWeightPosition
	}
	if cfg.StdWeightVelocity <= 0 {
		cfg.StdWeightVelocity = def.StdWeightVelocity
	}
	return cfg
}

// NewTracker creates a tracker with the given configuration. Zero or
// negative fields fall back to their defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	cfg = fillDefaults(cfg)
	return &Tracker{
		Config:      cfg,
		Tracks:      make(map[int64]*Track),
		NextTrackID: 1,
		kf:          NewKalmanFilter(cfg.StdWeightPosition, cfg.StdWeightVelocity),
	}
}

// GetConfig returns a copy of the current tracker parameters.
func (t *Tracker) GetConfig() TrackerConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Config
}

// UpdateConfig replaces the tracker parameters. The new values take effect
// from the next Update cycle; live tracks keep their states, galleries, and
// identities. Existing galleries keep the old appearance budget; only tracks
// created after the change use the new one. Zero or negative fields fall
// back to defaults the same way NewTracker fills them.
func (t *Tracker) UpdateConfig(cfg TrackerConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cfg = fillDefaults(cfg)
	t.Config = cfg
	t.kf = NewKalmanFilter(cfg.StdWeightPosition, cfg.StdWeightVelocity)
}

// SetDebugCollector attaches a collector for association and lifecycle
// events. Pass nil to detach.
func (t *Tracker) SetDebugCollector(c video.DebugCollector) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.debug = c
}

// Update runs one full frame cycle and returns the confirmed-track
// snapshot for the frame, in ascending identity order.
func (t *Tracker) Update(detections []video.Detection) []video.TrackOutput {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frame++
	t.metrics.FramesProcessed++

	// Step 1: predict every live track forward one frame. A track whose
	// state goes non-finite is unrecoverable and is deleted on the spot.
	ids := t.liveTrackIDs()
	for _, id := range ids {
		trk := t.Tracks[id]
		t.kf.Predict(trk.Mean, &trk.Cov)
		trk.TimeSinceUpdate++
		if !trk.Mean.IsFinite() {
			monitoring.Logf("track %d: non-finite state after predict, deleting", id)
			t.transition(trk, TrackDeleted)
		}
	}
	ids = t.liveTrackIDs()

	// Step 2: associate detections with tracks.
	matches, unmatchedTracks, unmatchedDets := t.associate(ids, detections)

	// Step 3: correct matched tracks and feed their galleries.
	for _, m := range matches {
		trk := t.Tracks[ids[m.TrackIdx]]
		det := detections[m.DetIdx]
		if err := t.kf.Update(trk.Mean, &trk.Cov, det.XYAH()); err != nil {
			// Correction impossible this frame; the prediction stands.
			monitoring.Logf("track %d: %v, keeping predicted state", trk.ID, err)
		}
		trk.Gallery.Push(det.Embedding)
		trk.Hits++
		trk.TimeSinceUpdate = 0
		trk.LastFrame = t.frame
		trk.Confidence = det.Confidence
		t.metrics.Matches++
		if trk.State == TrackTentative && trk.Hits >= t.Config.MinHits {
			t.transition(trk, TrackConfirmed)
			t.metrics.TracksPromoted++
		}
		if t.debug != nil {
			t.debug.RecordAssociation(t.frame, trk.ID, det, m.Cost)
		}
	}

	// Step 4: age unmatched tracks. The hit streak resets on any miss;
	// deletion policy depends on lifecycle state.
	for _, ti := range unmatchedTracks {
		trk := t.Tracks[ids[ti]]
		trk.Hits = 0
		t.metrics.Misses++
		switch {
		case trk.State == TrackTentative && t.Config.StrictTentative:
			t.transition(trk, TrackDeleted)
		case trk.TimeSinceUpdate > t.Config.MaxAge:
			t.transition(trk, TrackDeleted)
		}
	}

	// Step 5: spawn tentative tracks for unmatched detections.
	for _, dj := range unmatchedDets {
		if len(t.Tracks) >= t.Config.MaxTracks {
			monitoring.Logf("track table full (%d), dropping unmatched detection", t.Config.MaxTracks)
			break
		}
		t.initTrack(detections[dj])
	}

	// Step 6: purge deleted tracks. Identities are never reused.
	for id, trk := range t.Tracks {
		if trk.State == TrackDeleted {
			delete(t.Tracks, id)
		}
	}

	// Step 7: emit the confirmed snapshot.
	t.last = t.buildSnapshot()
	return cloneOutputs(t.last)
}

// associate runs the appearance/motion cascade over confirmed tracks, then
// the IoU recovery stage over tentative tracks and confirmed tracks that
// were seen last frame. ids must be ascending so results are deterministic.
func (t *Tracker) associate(ids []int64, detections []video.Detection) (matches []l4assoc.Match, unmatchedTracks, unmatchedDets []int) {
	if len(ids) == 0 || len(detections) == 0 {
		for i := range ids {
			unmatchedTracks = append(unmatchedTracks, i)
		}
		for j := range detections {
			unmatchedDets = append(unmatchedDets, j)
		}
		return nil, unmatchedTracks, unmatchedDets
	}

	xyahs := make([][]float64, len(detections))
	for j, d := range detections {
		xyahs[j] = d.XYAH()
	}

	var confirmed, unconfirmed []int
	for i, id := range ids {
		if t.Tracks[id].State == TrackConfirmed {
			confirmed = append(confirmed, i)
		} else {
			unconfirmed = append(unconfirmed, i)
		}
	}
	allDets := make([]int, len(detections))
	for j := range detections {
		allDets[j] = j
	}

	cascadeMatches, cascadeUnmatched, remainingDets := l4assoc.MatchingCascade(
		t.gatedCost(ids, xyahs, detections),
		t.Config.AppearanceGate,
		t.Config.MaxAge,
		func(ti int) int { return t.Tracks[ids[ti]].TimeSinceUpdate },
		confirmed, allDets)
	matches = append(matches, cascadeMatches...)

	// Overlap recovery: tentative tracks plus confirmed tracks missed
	// exactly once compete for the leftovers on box overlap alone.
	iouCandidates := append([]int(nil), unconfirmed...)
	for _, ti := range cascadeUnmatched {
		if t.Tracks[ids[ti]].TimeSinceUpdate == 1 {
			iouCandidates = append(iouCandidates, ti)
		} else {
			unmatchedTracks = append(unmatchedTracks, ti)
		}
	}
	sort.Ints(iouCandidates)

	iouMatches, iouUnmatched, remainingDets := l4assoc.MinCostMatching(
		t.iouCost(ids, detections), t.Config.MaxIoUDistance, iouCandidates, remainingDets)
	matches = append(matches, iouMatches...)
	unmatchedTracks = append(unmatchedTracks, iouUnmatched...)
	sort.Ints(unmatchedTracks)

	return matches, unmatchedTracks, remainingDets
}

// gatedCost builds the cascade cost: cosine appearance distance when both
// sides carry embeddings, otherwise the motion distance rescaled onto the
// appearance threshold. The motion gate applies to every pair; the
// appearance gate applies whenever appearance evidence exists.
func (t *Tracker) gatedCost(ids []int64, xyahs [][]float64, detections []video.Detection) l4assoc.CostFunc {
	return func(trackIdxs, detIdxs []int) [][]float64 {
		out := make([][]float64, len(trackIdxs))
		for i, ti := range trackIdxs {
			trk := t.Tracks[ids[ti]]
			zs := make([][]float64, len(detIdxs))
			for j, dj := range detIdxs {
				zs[j] = xyahs[dj]
			}
			maha := t.kf.GatingDistance(trk.Mean, trk.Cov, zs)

			row := make([]float64, len(detIdxs))
			for j, dj := range detIdxs {
				if maha[j] > t.Config.MotionGate {
					row[j] = video.ForbiddenCost
					continue
				}
				if d, ok := trk.Gallery.Distance(detections[dj].Embedding); ok {
					if d > t.Config.AppearanceGate {
						row[j] = video.ForbiddenCost
					} else {
						row[j] = d
					}
					continue
				}
				row[j] = t.Config.AppearanceGate * (maha[j] / t.Config.MotionGate)
			}
			out[i] = row
		}
		return out
	}
}

// iouCost builds the overlap cost for the recovery stage.
func (t *Tracker) iouCost(ids []int64, detections []video.Detection) l4assoc.CostFunc {
	return func(trackIdxs, detIdxs []int) [][]float64 {
		trackBoxes := make([]video.Box, len(trackIdxs))
		for i, ti := range trackIdxs {
			trackBoxes[i] = t.Tracks[ids[ti]].Box()
		}
		detBoxes := make([]video.Box, len(detIdxs))
		for j, dj := range detIdxs {
			detBoxes[j] = detections[dj].Box()
		}
		return l4assoc.IoUCostMatrix(trackBoxes, detBoxes)
	}
}

// initTrack seeds a tentative track from an unassociated detection.
func (t *Tracker) initTrack(det video.Detection) {
	trk := &Track{
		ID:         t.NextTrackID,
		State:      TrackTentative,
		Hits:       1,
		Mean:       NewStateMean(),
		Cov:        NewStateCov(),
		Gallery:    l3embed.NewGallery(t.Config.AppearanceBudget),
		StartFrame: t.frame,
		LastFrame:  t.frame,
		Confidence: det.Confidence,
		ClassID:    det.ClassID,
	}
	t.kf.Initiate(trk.Mean, &trk.Cov, det.XYAH())
	trk.Gallery.Push(det.Embedding)
	t.Tracks[trk.ID] = trk
	t.NextTrackID++
	t.metrics.TracksCreated++
	if t.debug != nil {
		t.debug.RecordLifecycle(t.frame, trk.ID, "", string(TrackTentative))
	}
}

// transition moves a track between lifecycle states and notifies the
// debug collector.
func (t *Tracker) transition(trk *Track, to TrackState) {
	from := trk.State
	trk.State = to
	if to == TrackDeleted {
		t.metrics.TracksDeleted++
	}
	if t.debug != nil {
		t.debug.RecordLifecycle(t.frame, trk.ID, string(from), string(to))
	}
}

// liveTrackIDs returns the non-deleted track identities in ascending order.
func (t *Tracker) liveTrackIDs() []int64 {
	ids := make([]int64, 0, len(t.Tracks))
	for id, trk := range t.Tracks {
		if trk.State != TrackDeleted {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// buildSnapshot lists confirmed tracks in ascending identity order.
func (t *Tracker) buildSnapshot() []video.TrackOutput {
	ids := make([]int64, 0, len(t.Tracks))
	for id, trk := range t.Tracks {
		if trk.State == TrackConfirmed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	out := make([]video.TrackOutput, 0, len(ids))
	for _, id := range ids {
		out = append(out, video.TrackOutput{
			Box:     t.Tracks[id].Box(),
			TrackID: id,
		})
	}
	return out
}

// Snapshot returns the confirmed-track view of the last processed frame.
func (t *Tracker) Snapshot() []video.TrackOutput {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneOutputs(t.last)
}

// ActiveTrackCount returns the number of live tracks.
func (t *Tracker) ActiveTrackCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Tracks)
}

// ConfirmedTracks returns value copies of all confirmed tracks in ascending
// identity order. Copies are shallow: the mean, covariance, and gallery still
// reference tracker-owned storage, so callers must treat them as read-only.
func (t *Tracker) ConfirmedTracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int64, 0, len(t.Tracks))
	for id, trk := range t.Tracks {
		if trk.State == TrackConfirmed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.Tracks[id])
	}
	return out
}

// Metrics returns a copy of the lifecycle counters with the current table
// sizes filled in.
func (t *Tracker) Metrics() video.TrackerMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m := t.metrics
	m.ActiveTracks = len(t.Tracks)
	for _, trk := range t.Tracks {
		if trk.State == TrackConfirmed {
			m.ConfirmedTracks++
		}
	}
	return m
}

// CurrentFrame returns the index of the last processed frame.
func (t *Tracker) CurrentFrame() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frame
}

// Reset drops all tracks and counters. The identity counter is preserved
// so identities stay unique for the lifetime of the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Tracks = make(map[int64]*Track)
	t.frame = 0
	t.last = nil
	t.metrics = video.TrackerMetrics{}
}

func cloneOutputs(in []video.TrackOutput) []video.TrackOutput {
	if in == nil {
		return nil
	}
	out := make([]video.TrackOutput, len(in))
	copy(out, in)
	return out
}
