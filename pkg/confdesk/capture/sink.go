package capture

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Filter is the effect a VideoSink applies to incoming frames
type Filter int

const (
	FilterNone Filter = iota
	FilterMonochrome
	FilterSepia
	FilterThermal
	FilterXRay
	FilterMosaic
	FilterComic
	FilterEdges
)

var filterNames = [...]string{
	"None",
	"Monochrome",
	"Sepia",
	"Thermal",
	"X-Ray",
	"Mosaic",
	"Comic",
	"Edges",
}

func (f Filter) String() string {
	if f < FilterNone || f > FilterEdges {
		return "Unknown"
	}

	return filterNames[f]
}

// Filters lists every filter in menu order
func Filters() []Filter {
	filters := make([]Filter, 0, len(filterNames))
	for f := FilterNone; f <= FilterEdges; f++ {
		filters = append(filters, f)
	}

	return filters
}

// ParseFilter looks a filter up by its display name
func ParseFilter(name string) (Filter, bool) {
	for f, n := range filterNames {
		if n == name {
			return Filter(f), true
		}
	}

	return FilterNone, false
}

// Frame is a processed video frame. Only its metadata travels through the graph.
type Frame struct {
	Seq       uint64
	DeviceID  string
	Filter    Filter
	Timestamp time.Time
}

// FrameReceiver is an output that accepts frames from the graph
type FrameReceiver interface {
	Output
	Receive(frame Frame)
}

const videoSinkID = "video_sink"

// VideoSink is the video output of a capture session. Frames are only processed
// while a filter is active.
type VideoSink struct {
	logger *zap.SugaredLogger

	lock   sync.RWMutex
	filter Filter
	latest *Frame

	frames chan Frame
}

func NewVideoSink(logger *zap.SugaredLogger) *VideoSink {
	vs := &VideoSink{
		logger: logger.Named("video_sink"),
		frames: make(chan Frame, 1),
	}

	vs.logger.Debug("Created video sink instance")

	return vs
}

func (vs *VideoSink) ID() string {
	return videoSinkID
}

func (vs *VideoSink) SetFilter(filter Filter) {
	vs.lock.Lock()
	defer vs.lock.Unlock()

	if vs.filter != filter {
		vs.logger.Debugw("Video filter changed", "from", vs.filter, "to", filter)
	}

	vs.filter = filter
}

func (vs *VideoSink) Filter() Filter {
	vs.lock.RLock()
	defer vs.lock.RUnlock()

	return vs.filter
}

func (vs *VideoSink) FilterEnabled() bool {
	return vs.Filter() != FilterNone
}

// LatestFrame returns the last processed frame, if any
func (vs *VideoSink) LatestFrame() (Frame, bool) {
	vs.lock.RLock()
	defer vs.lock.RUnlock()

	if vs.latest == nil {
		return Frame{}, false
	}

	return *vs.latest, true
}

// Frames delivers processed frames; late frames are discarded
func (vs *VideoSink) Frames() <-chan Frame {
	return vs.frames
}

func (vs *VideoSink) Receive(frame Frame) {
	vs.lock.Lock()
	if vs.filter == FilterNone {
		vs.lock.Unlock()
		return
	}

	frame.Filter = vs.filter
	vs.latest = &frame
	vs.lock.Unlock()

	// keep only the newest frame buffered
	select {
	case vs.frames <- frame:
	default:
		select {
		case <-vs.frames:
		default:
		}
		select {
		case vs.frames <- frame:
		default:
		}
	}
}
