package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/trustgate"
	"github.com/meigma/trustgate/cmd/trustgate/cli/config"
)

func TestProgressEnabled(t *testing.T) {
	t.Parallel()

	assert.True(t, progressEnabled(config.ProgressTTY))
	assert.False(t, progressEnabled(config.ProgressPlain))
}

func TestStageReporter_Disabled(t *testing.T) {
	t.Parallel()

	r := newStageReporter(&bytes.Buffer{}, false)
	assert.Nil(t, r.onStage())
	assert.Nil(t, r.loadProgress())
}

func TestStageReporter_Lines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newStageReporter(&buf, true)
	onStage := r.onStage()
	require.NotNil(t, onStage)

	onStage(trustgate.StageEvent{Stage: trustgate.StageVerification, Status: trustgate.StageStarted})
	onStage(trustgate.StageEvent{Stage: trustgate.StageVerification, Status: trustgate.StagePassed})
	onStage(trustgate.StageEvent{Stage: trustgate.StageIntent, Status: trustgate.StageSkipped})
	onStage(trustgate.StageEvent{Stage: trustgate.StagePolicy, Status: trustgate.StageFailed})

	assert.Equal(t, "... verification\nok  verification\n--  intent\n!!  policy\n", buf.String())
}

func TestStageReporter_LoadCounterEndsLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newStageReporter(&buf, true)
	progress := r.loadProgress()
	require.NotNil(t, progress)

	progress(512, 2048)
	progress(2048, 2048)
	r.onStage()(trustgate.StageEvent{Stage: trustgate.StageLoad, Status: trustgate.StagePassed})

	assert.Equal(t, "\r  512 B / 2.0 KiB\r  2.0 KiB / 2.0 KiB\nok  load\n", buf.String())
}

func TestStageReporter_UnknownTotal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newStageReporter(&buf, true)
	r.loadProgress()(1024, -1)

	assert.Equal(t, "\r  1.0 KiB", buf.String())
}
