package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

func TestSchedulerEmptyBlock(t *testing.T) {
	s := NewScheduler(0)
	assert.True(t, s.Done())
	assert.Equal(t, TaskDone, s.NextTask().Kind)
}

func TestSchedulerSingleWorkerFlow(t *testing.T) {
	s := NewScheduler(2)

	task := s.NextTask()
	require.Equal(t, TaskExecution, task.Kind)
	assert.Equal(t, types.Version{TxnIndex: 0, Incarnation: 0}, task.Version)
	status, _ := s.Status(0)
	assert.Equal(t, TxnExecuting, status)

	assert.Equal(t, TaskNone, s.FinishExecution(0, 0, true).Kind)

	task = s.NextTask()
	require.Equal(t, TaskValidation, task.Kind)
	assert.Equal(t, types.TxnIndex(0), task.Version.TxnIndex)
	assert.Equal(t, TaskNone, s.FinishValidation(0, false).Kind)

	task = s.NextTask()
	require.Equal(t, TaskExecution, task.Kind)
	assert.Equal(t, types.TxnIndex(1), task.Version.TxnIndex)
	assert.Equal(t, TaskNone, s.FinishExecution(1, 0, true).Kind)

	task = s.NextTask()
	require.Equal(t, TaskValidation, task.Kind)
	assert.Equal(t, TaskNone, s.FinishValidation(1, false).Kind)

	assert.Equal(t, TaskDone, s.NextTask().Kind)
	assert.True(t, s.Done())
}

func TestSchedulerValidationAbort(t *testing.T) {
	s := NewScheduler(2)

	require.Equal(t, TaskExecution, s.NextTask().Kind) // 0
	s.FinishExecution(0, 0, true)
	require.Equal(t, TaskValidation, s.NextTask().Kind) // validate 0
	s.FinishValidation(0, false)
	require.Equal(t, TaskExecution, s.NextTask().Kind) // 1
	s.FinishExecution(1, 0, true)

	task := s.NextTask()
	require.Equal(t, TaskValidation, task.Kind)
	require.Equal(t, types.TxnIndex(1), task.Version.TxnIndex)

	require.True(t, s.TryValidationAbort(1, 0))
	assert.False(t, s.TryValidationAbort(1, 0), "only one validator wins the abort")

	next := s.FinishValidation(1, true)
	require.Equal(t, TaskExecution, next.Kind)
	assert.Equal(t, types.Version{TxnIndex: 1, Incarnation: 1}, next.Version)

	// A stale validation of the old incarnation cannot abort again.
	assert.False(t, s.TryValidationAbort(1, 0))

	// Nothing new was written, so the same worker validates right away.
	task = s.FinishExecution(1, 1, false)
	require.Equal(t, TaskValidation, task.Kind)
	assert.Equal(t, types.Version{TxnIndex: 1, Incarnation: 1}, task.Version)
	s.FinishValidation(1, false)
	assert.Equal(t, TaskDone, s.NextTask().Kind)
}

func TestSchedulerDependency(t *testing.T) {
	s := NewScheduler(2)

	t0 := s.NextTask()
	require.Equal(t, types.TxnIndex(0), t0.Version.TxnIndex)
	t1 := s.NextTask()
	require.Equal(t, TaskExecution, t1.Kind)
	require.Equal(t, types.TxnIndex(1), t1.Version.TxnIndex)

	// 1 reads an estimate of 0 while 0 is still executing.
	require.True(t, s.AddDependency(1, 0))
	status, _ := s.Status(1)
	assert.Equal(t, TxnAborting, status)

	// Finishing 0 resumes 1 with a new incarnation.
	s.FinishExecution(0, 0, true)
	status, inc := s.Status(1)
	assert.Equal(t, TxnNotStarted, status)
	assert.Equal(t, types.Incarnation(1), inc)

	// Once 0 is executed a dependency on it is refused.
	assert.False(t, s.AddDependency(1, 0))

	var sawReexec bool
	for !s.Done() {
		task := s.NextTask()
		switch task.Kind {
		case TaskExecution:
			if task.Version.TxnIndex == 1 {
				assert.Equal(t, types.Incarnation(1), task.Version.Incarnation)
				sawReexec = true
			}
			if next := s.FinishExecution(task.Version.TxnIndex, task.Version.Incarnation, false); next.Kind == TaskValidation {
				s.FinishValidation(next.Version.TxnIndex, false)
			}
		case TaskValidation:
			s.FinishValidation(task.Version.TxnIndex, false)
		}
	}
	assert.True(t, sawReexec)
}

func TestSchedulerHalt(t *testing.T) {
	s := NewScheduler(10)
	assert.True(t, s.Halt())
	assert.False(t, s.Halt())
	assert.True(t, s.Halted())
	assert.Equal(t, TaskDone, s.NextTask().Kind)
}
