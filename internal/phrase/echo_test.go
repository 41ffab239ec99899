package phrase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEchoWithinWindow(t *testing.T) {
	f := NewFilter(NewMatcher(samanthaLists()))
	finished := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	last := Spoken{Text: "I've updated the configuration file for you", FinishedAt: finished}

	assert.True(t, f.IsEcho("updated the configuration file", last, finished.Add(2*time.Second)))
	assert.False(t, f.IsEcho("updated the configuration file", last, finished.Add(15*time.Second)))
}

func TestEchoWordOverlap(t *testing.T) {
	f := NewFilter(nil)
	now := time.Now()
	last := Spoken{Text: "the build passed and all tests are green", FinishedAt: now}

	assert.True(t, f.IsEcho("build passed all tests green today", last, now))
	assert.False(t, f.IsEcho("please rename the build script", last, now))
	// Three words or fewer never use the overlap rule.
	assert.False(t, f.IsEcho("tests are passing", last, now))
}

func TestEchoNeedsSpokenText(t *testing.T) {
	f := NewFilter(nil)
	assert.False(t, f.IsEcho("anything", Spoken{}, time.Now()))
}

func TestClassify(t *testing.T) {
	f := NewFilter(NewMatcher(samanthaLists()))
	now := time.Now()
	last := Spoken{Text: "Done, the server is running", FinishedAt: now.Add(-time.Second)}

	assert.Equal(t, Echo, f.Classify("the server is running", last, now))
	assert.Equal(t, Noise, f.Classify("[Music]", last, now))
	assert.Equal(t, Keep, f.Classify("hey samantha restart it", last, now))
	assert.Equal(t, "echo", Echo.String())
}
