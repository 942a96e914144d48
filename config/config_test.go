package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBootstrapPath(t *testing.T) {
	c := Default()
	assert.Equal(t, "/etc/kdb/elektra.conf", c.Bootstrap.Path)
}

func TestGCOBeginCommitUpdate(t *testing.T) {
	o := &owner{}
	o.Put(Default())

	c := o.BeginUpdate()
	c.Log.Level = "debug"
	o.CommitUpdate(c)

	assert.Equal(t, "debug", o.Get().Log.Level)
}

func TestGCODiscardUpdateLeavesConfigUntouched(t *testing.T) {
	o := &owner{}
	o.Put(Default())

	c := o.BeginUpdate()
	c.Log.Level = "debug"
	o.DiscardUpdate()

	assert.Equal(t, "info", o.Get().Log.Level)
}

func TestGCOConcurrentReadsDuringUpdate(t *testing.T) {
	o := &owner{}
	o.Put(Default())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.Get().Log.Level
		}()
	}
	c := o.BeginUpdate()
	o.CommitUpdate(c)
	wg.Wait()
}
