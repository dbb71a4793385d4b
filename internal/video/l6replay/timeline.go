package l6replay

import (
	"sort"

	"github.com/courtside-data/replay.vision/internal/video"
)

// TimelineBuilder assembles dense per-player box sequences from per-frame
// tracker snapshots. Frames where a player is absent carry a zero box so
// every timeline has one entry per frame; when the detector runs every
// Nth frame, the skipped frames reuse the last emitted snapshot.
type TimelineBuilder struct {
	firstFrame int64
	lastFrame  int64
	started    bool
	frames     int

	// boxes[trackID][frameOffset]
	boxes map[int64][]video.Box
	last  []video.TrackOutput
}

// NewTimelineBuilder creates an empty builder.
func NewTimelineBuilder() *TimelineBuilder {
	return &TimelineBuilder{
		boxes: make(map[int64][]video.Box),
	}
}

// Add records the snapshot for one processed frame. Frames must arrive in
// ascending order; gaps are filled with carry-forward entries.
func (b *TimelineBuilder) Add(frame int64, outputs []video.TrackOutput) {
	if !b.started {
		b.firstFrame = frame
		b.lastFrame = frame - 1
		b.started = true
	}

	// Fill any skipped frames with the previous snapshot. With a detector
	// interval of N this republishes the last boxes N-1 times.
	for f := b.lastFrame + 1; f < frame; f++ {
		b.appendFrame(b.last)
	}
	b.appendFrame(outputs)
	b.last = outputs
	b.lastFrame = frame
}

func (b *TimelineBuilder) appendFrame(outputs []video.TrackOutput) {
	present := make(map[int64]video.Box, len(outputs))
	for _, o := range outputs {
		present[o.TrackID] = o.Box
	}

	// b.frames counts appended frames directly; deriving it from a player
	// sequence would lose frames appended before the first player appears.
	for id := range present {
		if _, known := b.boxes[id]; !known {
			// New player: backfill placeholders for frames before they
			// first appeared.
			b.boxes[id] = make([]video.Box, b.frames)
		}
	}
	for id, seq := range b.boxes {
		b.boxes[id] = append(seq, present[id])
	}
	b.frames++
}

// PlayerTimeline is one identity's dense box sequence.
type PlayerTimeline struct {
	TrackID    int64       `json:"track_id"`
	FirstFrame int64       `json:"first_frame"`
	Boxes      []video.Box `json:"boxes"`
	Present    int         `json:"present_frames"`
}

// Timelines returns per-player sequences in ascending identity order.
func (b *TimelineBuilder) Timelines() []PlayerTimeline {
	ids := make([]int64, 0, len(b.boxes))
	for id := range b.boxes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]PlayerTimeline, 0, len(ids))
	for _, id := range ids {
		seq := b.boxes[id]
		present := 0
		for _, box := range seq {
			if !box.IsZero() {
				present++
			}
		}
		out = append(out, PlayerTimeline{
			TrackID:    id,
			FirstFrame: b.firstFrame,
			Boxes:      append([]video.Box(nil), seq...),
			Present:    present,
		})
	}
	return out
}

// FrameRange reports the covered frame span, inclusive. ok is false
// before any frame has been added.
func (b *TimelineBuilder) FrameRange() (first, last int64, ok bool) {
	if !b.started {
		return 0, 0, false
	}
	return b.firstFrame, b.lastFrame, true
}
