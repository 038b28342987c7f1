package transcript

import (
	"testing"
	"time"
)

func collectingAggregator(startedAt time.Time) (*Aggregator, *[]Chunk) {
	var chunks []Chunk
	a := NewAggregator(startedAt, func(c Chunk) {
		chunks = append(chunks, c)
	})
	return a, &chunks
}

func TestFlushJoinsFragments(t *testing.T) {
	a, chunks := collectingAggregator(time.Now())

	a.Add("we usually hack something together")
	a.Add("with prompts")
	a.Flush()

	if len(*chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(*chunks))
	}
	c := (*chunks)[0]
	if c.Text != "we usually hack something together with prompts" {
		t.Errorf("text = %q", c.Text)
	}
	if c.Kind != KindSpeech {
		t.Errorf("kind = %q, want speech", c.Kind)
	}
	if c.ID == "" {
		t.Error("chunk has no id")
	}
}

func TestFlushTrimsFragments(t *testing.T) {
	a, chunks := collectingAggregator(time.Now())

	a.Add("  hello ")
	a.Add("\tworld  ")
	a.Flush()

	if got := (*chunks)[0].Text; got != "hello world" {
		t.Errorf("text = %q, want %q", got, "hello world")
	}
}

func TestEmptyFlushEmitsNothing(t *testing.T) {
	a, chunks := collectingAggregator(time.Now())

	a.Flush()
	a.Add("   ")
	a.Add("")
	a.Flush()

	if len(*chunks) != 0 {
		t.Fatalf("got %d chunks, want 0", len(*chunks))
	}
}

func TestAccumulatorClearsAfterFlush(t *testing.T) {
	a, chunks := collectingAggregator(time.Now())

	a.Add("first")
	a.Flush()
	a.Add("second")
	a.Flush()

	if len(*chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(*chunks))
	}
	if (*chunks)[0].Text != "first" || (*chunks)[1].Text != "second" {
		t.Errorf("chunks = %q, %q", (*chunks)[0].Text, (*chunks)[1].Text)
	}
}

func TestInjectMarkerBypassesAccumulator(t *testing.T) {
	a, chunks := collectingAggregator(time.Now())

	a.Add("some speech")
	a.InjectMarker("question 2 asked")

	if len(*chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(*chunks))
	}
	if (*chunks)[0].Kind != KindMarker {
		t.Errorf("kind = %q, want marker", (*chunks)[0].Kind)
	}

	a.Flush()
	if len(*chunks) != 2 {
		t.Fatalf("got %d chunks after flush, want 2", len(*chunks))
	}
	if (*chunks)[1].Text != "some speech" {
		t.Errorf("speech chunk text = %q", (*chunks)[1].Text)
	}
}

func TestElapsedNonDecreasing(t *testing.T) {
	start := time.Now()
	a, chunks := collectingAggregator(start)

	times := []time.Time{
		start.Add(3 * time.Second),
		start.Add(8 * time.Second),
		start.Add(5 * time.Second), // clock skew: must not go backwards
	}
	i := 0
	a.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	a.Add("one")
	a.Flush()
	a.Add("two")
	a.Flush()
	a.InjectMarker("three")

	var prev time.Duration
	for _, c := range *chunks {
		if c.Elapsed < prev {
			t.Errorf("elapsed decreased: %v after %v", c.Elapsed, prev)
		}
		prev = c.Elapsed
	}
	if got := (*chunks)[2].Elapsed; got != 8*time.Second {
		t.Errorf("clamped elapsed = %v, want 8s", got)
	}
}

func TestConcurrentMarkerDeliversInOrder(t *testing.T) {
	start := time.Now()
	entered := make(chan struct{})
	release := make(chan struct{})
	var delivered []time.Duration
	a := NewAggregator(start, func(c Chunk) {
		if len(delivered) == 0 {
			close(entered)
			<-release
		}
		delivered = append(delivered, c.Elapsed)
	})

	times := []time.Time{start.Add(8 * time.Second), start.Add(3 * time.Second)}
	i := 0
	a.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	a.Add("speech before the marker")
	flushed := make(chan struct{})
	go func() {
		a.Flush()
		close(flushed)
	}()
	<-entered

	// The marker must wait for the in-flight flush delivery.
	marked := make(chan struct{})
	go func() {
		a.InjectMarker("question 2 asked")
		close(marked)
	}()

	select {
	case <-marked:
		t.Fatal("marker delivered while a flush was mid-delivery")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-flushed
	<-marked

	if len(delivered) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(delivered))
	}
	if delivered[1] < delivered[0] {
		t.Errorf("elapsed decreased across deliveries: %v after %v", delivered[1], delivered[0])
	}
}

func TestTimestampFormat(t *testing.T) {
	tests := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, "00:00"},
		{9 * time.Second, "00:09"},
		{65 * time.Second, "01:05"},
		{61 * time.Minute, "61:00"},
	}
	for _, tt := range tests {
		c := Chunk{Elapsed: tt.elapsed}
		if got := c.Timestamp(); got != tt.want {
			t.Errorf("Timestamp(%v) = %q, want %q", tt.elapsed, got, tt.want)
		}
	}
}
