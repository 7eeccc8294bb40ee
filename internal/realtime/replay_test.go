package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"terrarun/internal/territory/model"
)

type ReplayBufferSuite struct {
	suite.Suite
}

func TestReplayBufferSuite(t *testing.T) {
	suite.Run(t, new(ReplayBufferSuite))
}

func eventAt(ts int64) model.BroadcastEvent {
	return model.BroadcastEvent{
		EventID: fmt.Sprintf("evt-%d", ts),
		TS:      ts,
	}
}

func (s *ReplayBufferSuite) TestReplaySince() {
	b := NewReplayBuffer(10)
	for ts := int64(1); ts <= 5; ts++ {
		b.Push(eventAt(ts * 100))
	}

	s.Run("strictly newer events, oldest first", func() {
		got := b.ReplaySince(300)
		s.Require().Len(got, 2)
		s.Equal(int64(400), got[0].TS)
		s.Equal(int64(500), got[1].TS)
	})

	s.Run("boundary timestamp is excluded", func() {
		got := b.ReplaySince(500)
		s.Empty(got)
	})

	s.Run("zero returns everything retained", func() {
		s.Len(b.ReplaySince(0), 5)
	})
}

func (s *ReplayBufferSuite) TestEviction() {
	b := NewReplayBuffer(3)
	for ts := int64(1); ts <= 5; ts++ {
		b.Push(eventAt(ts))
	}

	s.Equal(3, b.Len())
	got := b.ReplaySince(0)
	s.Require().Len(got, 3)
	s.Equal(int64(3), got[0].TS)
	s.Equal(int64(5), got[2].TS)
}

func (s *ReplayBufferSuite) TestDefaultCapacity() {
	b := NewReplayBuffer(0)
	for ts := int64(1); ts <= 600; ts++ {
		b.Push(eventAt(ts))
	}
	s.Equal(500, b.Len())
	s.Equal(int64(101), b.ReplaySince(0)[0].TS)
}
