package l1ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/courtside-data/replay.vision/internal/video"
)

// IngestStatsInterface provides transport statistics management.
type IngestStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddDetections(count int)
	LogStats()
}

// FrameHandler receives each decoded detection batch. Handlers run on the
// listener goroutine; slow handlers should hand off to their own queue.
type FrameHandler func(video.FrameDetections)

// noopStats is a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)     {}
func (n *noopStats) AddDropped()             {}
func (n *noopStats) AddDetections(count int) {}
func (n *noopStats) LogStats()               {}

// DetectionListener receives detection packets from the camera box over
// UDP and hands decoded batches to the configured handler.
type DetectionListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     FrameHandler
	stats       IngestStatsInterface

	connMu sync.RWMutex
	conn   *net.UDPConn
}

// DetectionListenerConfig contains configuration options for the listener.
type DetectionListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Handler     FrameHandler
	Stats       IngestStatsInterface
}

// NewDetectionListener creates a listener with the provided configuration.
func NewDetectionListener(config DetectionListenerConfig) *DetectionListener {
	stats := config.Stats
	if stats == nil {
		stats = &noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &DetectionListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		handler:     config.Handler,
		stats:       stats,
	}
}

// Start begins listening for detection packets. It blocks until the
// context is cancelled or the socket fails.
func (l *DetectionListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.setConn(conn)
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("detection listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	// One MTU-safe packet plus margin.
	buffer := make([]byte, 2048)
	var deadlineErrLogged bool

	for {
		select {
		case <-ctx.Done():
			log.Print("detection listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed.
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				if !deadlineErrLogged {
					log.Printf("failed to set read deadline: %v", err)
					deadlineErrLogged = true
				}
			}

			n, _, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return nil
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			l.handlePacket(buffer[:n])
		}
	}
}

// handlePacket decodes one received packet. A malformed packet is dropped
// with a diagnostic; transport errors never stop the stream.
func (l *DetectionListener) handlePacket(packet []byte) {
	l.stats.AddPacket(len(packet))

	frame, err := DecodeFrame(packet)
	if err != nil {
		l.stats.AddDropped()
		log.Printf("dropping malformed detection packet: %v", err)
		return
	}
	l.stats.AddDetections(len(frame.Detections))

	if l.handler != nil {
		l.handler(frame)
	}
}

func (l *DetectionListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

func (l *DetectionListener) setConn(conn *net.UDPConn) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// LocalAddr returns the bound address, or nil before Start.
func (l *DetectionListener) LocalAddr() net.Addr {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the listener socket. Safe to call multiple times.
func (l *DetectionListener) Close() error {
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
