package plugin

import (
	"io"
	"sync"
)

// SliceStream returns a Stream over an in-memory list of fragments.
func SliceStream(fragments []string) Stream {
	return &sliceStream{fragments: fragments}
}

type sliceStream struct {
	mu        sync.Mutex
	fragments []string
	pos       int
	closed    bool
}

func (s *sliceStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
