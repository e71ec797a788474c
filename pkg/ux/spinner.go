// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// SpinnerType defines the animation style
type SpinnerType int

const (
	SpinnerDots SpinnerType = iota
	SpinnerTorch
)

var spinnerFrames = map[SpinnerType][]string{
	SpinnerDots:  {"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	SpinnerTorch: {"◐", "◓", "◑", "◒"},
}

const spinnerInterval = 80 * time.Millisecond

// Spinner shows an animated line while a slow operation (an archive upload,
// a restore) runs. In machine mode it prints a single PROGRESS line instead.
//
// # Thread Safety
//
// Start, Stop and UpdateMessage may be called from different goroutines.
type Spinner struct {
	mu        sync.Mutex
	message   string
	frames    []string
	stop      chan struct{}
	done      chan struct{}
	isRunning bool
	animated  bool
}

// NewSpinner creates a stopped spinner with the dots animation.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		frames:  spinnerFrames[SpinnerDots],
	}
}

// WithType sets the animation style. Call before Start.
func (s *Spinner) WithType(t SpinnerType) *Spinner {
	if frames, ok := spinnerFrames[t]; ok {
		s.frames = frames
	}
	return s
}

// Start begins the animation. Calling Start on a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true

	o, _ := writers()
	if GetPersonalityLevel() == PersonalityMachine {
		s.animated = false
		fmt.Fprintf(o, "PROGRESS: %s\n", s.message)
		return
	}

	s.animated = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(o)
}

func (s *Spinner) run(o io.Writer) {
	defer close(s.done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-s.stop:
			fmt.Fprint(o, "\r\033[K")
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(o, "\r%s %s", Styles.Highlight.Render(s.frames[frame]), msg)
			frame = (frame + 1) % len(s.frames)
		}
	}
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	animated := s.animated
	s.mu.Unlock()

	if animated {
		close(s.stop)
		<-s.done
	}
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// StopWithSuccess stops and prints a success message.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	Success(message)
}

// StopWithError stops and prints an error message.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	Error(message)
}

// WithSpinner runs fn behind a spinner and reports the outcome.
//
// # Examples
//
//	err := ux.WithSpinner("upload gs://saves/profile_0/x.tar.lz4", func() error {
//	    return archive.UploadFile(ctx, up, path, key)
//	})
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()

	if err := fn(); err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	spin.StopWithSuccess(message)
	return nil
}
