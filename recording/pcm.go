package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bosley/snipe/audio"
	"github.com/bosley/snipe/media"
)

// pcmRecorder appends captured samples to a WAV file, flushing once per
// timeslice. The header carries a placeholder size until Stop.
type pcmRecorder struct {
	stream media.Stream
	file   *os.File

	mu      sync.Mutex
	pending []int16
	written uint32

	unsubscribe func()
	stop        chan struct{}
	done        chan struct{}
	started     bool
	stopped     bool
}

func newPCMRecorder(stream media.Stream, dir string) (*pcmRecorder, error) {
	file, err := os.CreateTemp(dir, "segment-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}
	if err := audio.WriteWavHeader(file, stream.Format(), 0); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return &pcmRecorder{
		stream: stream,
		file:   file,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (r *pcmRecorder) Start(timeslice time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	r.started = true
	r.unsubscribe = r.stream.Subscribe(r.onSamples)
	go r.flushLoop(timeslice)
	return nil
}

func (r *pcmRecorder) onSamples(samples []int16) {
	r.mu.Lock()
	r.pending = append(r.pending, samples...)
	r.mu.Unlock()
}

func (r *pcmRecorder) flushLoop(timeslice time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(timeslice)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.flush(); err != nil {
				slog.Error("Failed to flush segment data", "file", r.file.Name(), "error", err)
			}
		}
	}
}

func (r *pcmRecorder) flush() error {
	r.mu.Lock()
	chunk := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(chunk) == 0 {
		return nil
	}
	n, err := r.file.Write(audio.SamplesToBytes(chunk))
	r.mu.Lock()
	r.written += uint32(n)
	r.mu.Unlock()
	return err
}

// finish stops capture and returns the path of the completed WAV file. The
// caller owns the file afterwards.
func (r *pcmRecorder) finish() (string, error) {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.stopped = true
	r.mu.Unlock()

	r.unsubscribe()
	close(r.stop)
	<-r.done

	path := r.file.Name()
	if err := r.flush(); err != nil {
		r.file.Close()
		return path, fmt.Errorf("failed to write segment data: %w", err)
	}
	r.mu.Lock()
	written := r.written
	r.mu.Unlock()

	if err := audio.UpdateWavHeader(r.file, written); err != nil {
		r.file.Close()
		return path, err
	}
	if err := r.file.Close(); err != nil {
		return path, fmt.Errorf("failed to close segment file: %w", err)
	}
	return path, nil
}

// Discard stops capture if it is running and deletes the segment file.
// Stop reports ErrNotRecording afterwards.
func (r *pcmRecorder) Discard() {
	r.mu.Lock()
	started, stopped := r.started, r.stopped
	r.stopped = true
	r.mu.Unlock()
	if stopped {
		return
	}

	if started {
		r.unsubscribe()
		close(r.stop)
		<-r.done
	}
	r.file.Close()
	if err := os.Remove(r.file.Name()); err != nil {
		slog.Warn("Failed to remove discarded segment", "file", r.file.Name(), "error", err)
	}
}

func (r *pcmRecorder) Stop() ([]byte, error) {
	path, err := r.finish()
	if path != "" {
		defer os.Remove(path)
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment file: %w", err)
	}
	return data, nil
}

// transcodingRecorder records WAV and converts it when stopped.
type transcodingRecorder struct {
	pcm      *pcmRecorder
	ffmpeg   string
	mimeType string
}

func (r *transcodingRecorder) Start(timeslice time.Duration) error {
	return r.pcm.Start(timeslice)
}

func (r *transcodingRecorder) Discard() {
	r.pcm.Discard()
}

func (r *transcodingRecorder) Stop() ([]byte, error) {
	path, err := r.pcm.finish()
	if path != "" {
		defer os.Remove(path)
	}
	if err != nil {
		return nil, err
	}

	data, err := Transcode(r.ffmpeg, path, r.mimeType)
	if err != nil {
		return nil, err
	}
	return data, nil
}
