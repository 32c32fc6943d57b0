package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func results(pass int) []Result {
	var rs []Result
	for i, name := range CheckNames {
		status := OK
		if i >= pass {
			status = Failed
		}
		rs = append(rs, Result{Name: name, Status: status})
	}
	return rs
}

func TestClassify(t *testing.T) {
	for pass, want := range map[int]Classification{
		6: Healthy,
		5: Warning,
		4: Critical,
		3: Critical,
		0: Critical,
	} {
		assert.Equal(t, want, Classify(results(pass), false), "%d/6 passing", pass)
	}
	assert.Equal(t, Critical, Classify(results(5), true), "missing deployment")
	assert.Equal(t, Critical, Classify(nil, false))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, Healthy.ExitCode())
	assert.Equal(t, 1, Warning.ExitCode())
	assert.Equal(t, 2, Critical.ExitCode())
}

func TestCounter(t *testing.T) {
	now := time.Now()
	s := State{Threshold: 3, Cooldown: 30 * time.Minute}

	s.Observe(Critical, now)
	assert.Equal(t, 1, s.Consecutive)
	s.Observe(Warning, now)
	assert.Equal(t, 1, s.Consecutive, "warning leaves the counter alone")
	s.Observe(Critical, now)
	assert.Equal(t, 2, s.Consecutive)
	s.Observe(Healthy, now)
	assert.Equal(t, 0, s.Consecutive)
}

func TestAlertThresholdAndCooldown(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	s := State{Threshold: 3, Cooldown: 1800 * time.Second}

	assert.False(t, s.Observe(Critical, start))
	assert.False(t, s.Observe(Critical, start.Add(time.Minute)))
	assert.True(t, s.Observe(Critical, start.Add(2*time.Minute)), "third critical reaches the threshold")
	assert.Equal(t, 3, s.Consecutive, "alerting does not reset the counter")

	assert.False(t, s.Observe(Critical, start.Add(3*time.Minute)), "inside the cooldown")
	assert.False(t, s.Observe(Critical, start.Add(31*time.Minute)))
	assert.True(t, s.Observe(Critical, start.Add(32*time.Minute)), "cooldown has passed")
	assert.Equal(t, start.Add(32*time.Minute), s.LastAlert)
}
