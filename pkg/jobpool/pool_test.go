package jobpool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgekit/assetpipe/pkg/jobpool"
	"github.com/stretchr/testify/assert"
)

func TestExecuteAllRunsEveryJob(t *testing.T) {
	p := jobpool.New(4)
	defer p.Close()

	var count atomic.Int32
	work := make([]func(), 50)
	for i := range work {
		work[i] = func() { count.Add(1) }
	}

	p.ExecuteAll(work)
	assert.EqualValues(t, 50, count.Load())
}

func TestSubmitWaitBlocksUntilDone(t *testing.T) {
	p := jobpool.New(2)
	defer p.Close()

	var ran atomic.Bool
	p.SubmitWait(func() {
		time.Sleep(5 * time.Millisecond)
		ran.Store(true)
	})
	assert.True(t, ran.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	p := jobpool.New(2)
	p.Close()
	p.Close()
	assert.False(t, p.IsRunning())
}

func TestSubmitAfterCloseIsNoop(t *testing.T) {
	p := jobpool.New(1)
	p.Close()

	var ran atomic.Bool
	p.Submit(func() { ran.Store(true) })
	time.Sleep(5 * time.Millisecond)
	assert.False(t, ran.Load())
}
