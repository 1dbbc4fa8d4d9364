// Package publisher is the client side of the relay: it accepts frames
// from an application at arbitrary rates and uploads them as JPEGs,
// shedding load and adapting encode quality to observed latency.
package publisher

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

const (
	// minQuality is the floor for adaptive JPEG quality.
	minQuality = 50
	// qualityStep is how far quality moves per adaptation.
	qualityStep = 5
	// adaptEvery is the number of dequeued frames between adaptations.
	adaptEvery = 30
	// sampleWindow is how many recent send durations feed the average.
	sampleWindow = 10
	// dequeueTimeout is the sender's wait for the next frame before
	// resetting quality.
	dequeueTimeout = time.Second
	// shedThreshold is the queue fill ratio above which frames may be
	// skipped before enqueueing.
	shedThreshold = 0.7
)

// Options configures a Publisher.
type Options struct {
	// ServerURL is the relay base URL, e.g. "http://localhost:5000".
	ServerURL string
	// StreamName is the stream to publish to.
	StreamName string
	// Quality is the base JPEG quality (default 85).
	Quality int
	// MaxFPS caps the upload rate (default 30).
	MaxFPS int
	// RetryDelay bounds the post-failure backoff (default 5s).
	RetryDelay time.Duration
	// Adaptive enables load shedding and quality adaptation (default true).
	Adaptive bool
	// MaxQueueSize bounds the frame queue (default 15).
	MaxQueueSize int
	// Logger receives publisher events; defaults to slog.Default().
	Logger *slog.Logger
	// HTTPClient posts frames; defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// DefaultOptions returns Options with the standard values filled in.
func DefaultOptions(serverURL, streamName string) Options {
	return Options{
		ServerURL:    serverURL,
		StreamName:   streamName,
		Quality:      85,
		MaxFPS:       30,
		RetryDelay:   5 * time.Second,
		Adaptive:     true,
		MaxQueueSize: 15,
	}
}

// Stats is a snapshot of the publisher's counters.
type Stats struct {
	Total     int64   `json:"total"`
	Failed    int64   `json:"failed"`
	Skipped   int64   `json:"skipped"`
	Dropped   int64   `json:"dropped"`
	Queued    int     `json:"queued"`
	Quality   int     `json:"quality"`
	AvgSendMS float64 `json:"avg_send_ms"`
}

// Publisher uploads frames to one stream. Publish never blocks; a
// single background sender drains the queue.
type Publisher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger

	queue chan image.Image
	stop  chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	total     int64
	failed    int64
	skipped   int64
	dropped   int64
	quality   int
	durations []time.Duration
}

// New creates a publisher. Call Start to launch the sender and Stop to
// drain and shut it down.
func New(opts Options) *Publisher {
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	if opts.MaxFPS <= 0 {
		opts.MaxFPS = 30
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.MaxQueueSize <= 0 {
		opts.MaxQueueSize = 15
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Publisher{
		opts:    opts,
		client:  client,
		logger:  opts.Logger.With(slog.String("stream", opts.StreamName)),
		queue:   make(chan image.Image, opts.MaxQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		quality: opts.Quality,
	}
}

// Start launches the background sender.
func (p *Publisher) Start() {
	go p.sendLoop()
	p.logger.Info("publisher started",
		slog.String("server", p.opts.ServerURL),
		slog.Int("max_fps", p.opts.MaxFPS),
		slog.Bool("adaptive", p.opts.Adaptive))
}

// Stop signals the sender and waits for it to exit.
func (p *Publisher) Stop() {
	close(p.stop)
	<-p.done
	p.logger.Info("publisher stopped")
}

// Publish offers a frame without blocking. Under queue pressure the
// frame may be skipped before enqueueing; on a full queue it is
// dropped. Returns true when the frame was accepted.
func (p *Publisher) Publish(frame image.Image) bool {
	u := float64(len(p.queue)) / float64(p.opts.MaxQueueSize)

	if p.opts.Adaptive && u > shedThreshold {
		if rand.Float64() < (u-shedThreshold)/(1-shedThreshold) {
			p.count(&p.skipped)
			return false
		}
	}

	select {
	case p.queue <- frame:
		return true
	default:
		p.count(&p.dropped)
		return false
	}
}

// Stats returns a snapshot of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var avg float64
	if len(p.durations) > 0 {
		var sum time.Duration
		for _, d := range p.durations {
			sum += d
		}
		avg = float64(sum.Milliseconds()) / float64(len(p.durations))
	}

	return Stats{
		Total:     p.total,
		Failed:    p.failed,
		Skipped:   p.skipped,
		Dropped:   p.dropped,
		Queued:    len(p.queue),
		Quality:   p.quality,
		AvgSendMS: avg,
	}
}

func (p *Publisher) count(field *int64) {
	p.mu.Lock()
	*field++
	p.mu.Unlock()
}

// sendLoop dequeues, paces, encodes, and posts until stopped.
func (p *Publisher) sendLoop() {
	defer close(p.done)

	minGap := time.Second / time.Duration(p.opts.MaxFPS)
	var lastSend time.Time
	var dequeued int

	timeout := time.NewTimer(dequeueTimeout)
	defer timeout.Stop()

	for {
		timeout.Reset(dequeueTimeout)
		select {
		case <-p.stop:
			return
		case <-timeout.C:
			// Idle: latency samples are stale, go back to base quality.
			if p.opts.Adaptive {
				p.mu.Lock()
				p.quality = p.opts.Quality
				p.mu.Unlock()
			}
			continue
		case frame := <-p.queue:
			dequeued++
			if p.opts.Adaptive && dequeued%adaptEvery == 0 {
				p.adaptQuality()
			}

			if gap := time.Since(lastSend); gap < minGap {
				time.Sleep(minGap - gap)
			}

			if p.sendFrame(frame) {
				lastSend = time.Now()
			} else if float64(len(p.queue)) < 0.5*float64(p.opts.MaxQueueSize) {
				// Back off only while the queue has headroom.
				sleep := p.opts.RetryDelay
				if sleep > time.Second {
					sleep = time.Second
				}
				time.Sleep(sleep)
			}
		}
	}
}

// sendFrame encodes and posts one frame, reporting success.
func (p *Publisher) sendFrame(frame image.Image) bool {
	p.mu.Lock()
	quality := p.quality
	p.mu.Unlock()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		p.logger.Warn("frame encode failed", slog.String("error", err.Error()))
		p.count(&p.failed)
		return false
	}

	start := time.Now()
	if err := p.post(buf.Bytes()); err != nil {
		p.logger.Warn("frame upload failed", slog.String("error", err.Error()))
		p.count(&p.failed)
		return false
	}
	elapsed := time.Since(start)

	p.mu.Lock()
	p.total++
	p.durations = append(p.durations, elapsed)
	if len(p.durations) > sampleWindow {
		p.durations = p.durations[len(p.durations)-sampleWindow:]
	}
	p.mu.Unlock()
	return true
}

// post uploads one encoded frame as the multipart "frame" field.
func (p *Publisher) post(jpegBytes []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := fw.Write(jpegBytes); err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/publish/%s", p.opts.ServerURL, p.opts.StreamName)
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting frame: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

// adaptQuality reacts to observed send latency and queue pressure:
// slow sends with a filling queue lower quality, fast sends with an
// empty queue raise it back toward base.
func (p *Publisher) adaptQuality() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.durations) < 3 {
		return
	}

	var sum time.Duration
	for _, d := range p.durations {
		sum += d
	}
	avg := sum.Seconds() / float64(len(p.durations))
	u := float64(len(p.queue)) / float64(p.opts.MaxQueueSize)

	switch {
	case avg > 0.5 && u > 0.5:
		if p.quality-qualityStep >= minQuality {
			p.quality -= qualityStep
		} else {
			p.quality = minQuality
		}
	case avg < 0.2 && u < 0.3 && p.quality < p.opts.Quality:
		p.quality += qualityStep
		if p.quality > p.opts.Quality {
			p.quality = p.opts.Quality
		}
	}
}
