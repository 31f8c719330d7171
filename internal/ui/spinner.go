package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner draws a one-line spinner until stopped. It does not take
// over the terminal, so it can run before and after a bubbletea program.
type SimpleSpinner struct {
	spinner  spinner.Spinner
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	message string
	stopped bool
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		message:  message,
		spinner:  s,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// NewSimpleSpinner creates a spinner for general loading operations
func NewSimpleSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Dot, 80*time.Millisecond)
}

// NewConnectionSpinner creates a spinner for network operations
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner creates a spinner for waiting on the other peer
func NewWaitingSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Points, 100*time.Millisecond)
}

func (s *SimpleSpinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(Out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SimpleSpinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Fprint(Out, "\r\033[K")
}

func (s *SimpleSpinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *SimpleSpinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

func (s *SimpleSpinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// RunSpinner starts a loading spinner and returns a stop function
func RunSpinner(message string) func() {
	sp := NewSimpleSpinner(message)
	sp.Start()
	return sp.Stop
}

// RunConnectionSpinner starts a connection spinner and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}

// RunWaitingSpinner starts a waiting spinner and returns a stop function
func RunWaitingSpinner(message string) func() {
	sp := NewWaitingSpinner(message)
	sp.Start()
	return sp.Stop
}
