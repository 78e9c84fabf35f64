package compiler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/compiler"
	"github.com/ekaya-inc/intentgate/pkg/testhelpers"
	"github.com/ekaya-inc/intentgate/pkg/validator"
)

// rotatingSource hands out a fresh catalog on every load, alternating the
// version so each reload publishes a distinguishable instance.
type rotatingSource struct {
	loads atomic.Int64
}

func (s *rotatingSource) Name() string { return "rotating" }

func (s *rotatingSource) Load(ctx context.Context) (*catalog.Catalog, error) {
	def := testhelpers.SalesDefinition()
	def.Version = fmt.Sprintf("test-%d", s.loads.Add(1)%2)
	return catalog.New(def)
}

func TestPipeline_ConcurrentWithReload(t *testing.T) {
	const (
		workers    = 16
		iterations = 50
	)

	holder, err := catalog.NewHolder(context.Background(), &rotatingSource{}, zap.NewNop())
	require.NoError(t, err)

	doc := `{
		"intent_type": "TREND",
		"metric": "units sold",
		"group_by": ["zone"],
		"time_dimension": {"dimension": "invoice_date", "granularity": "month"},
		"time_range": {"window": "last_30_days"},
		"filters": [{"dimension": "channel", "operator": "in", "value": ["retail"]}]
	}`

	opts := validator.DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC) }

	run := func(c *catalog.Catalog) ([]byte, error) {
		var raw map[string]any
		if err := json.Unmarshal([]byte(doc), &raw); err != nil {
			return nil, err
		}
		validated, err := validator.New(c, opts).Validate(raw)
		if err != nil {
			return nil, err
		}
		payload, err := compiler.Compile(validated)
		if err != nil {
			return nil, err
		}
		return compiler.MarshalPayload(payload)
	}

	want, err := run(holder.Current())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reloaderDone := make(chan struct{})
	var reloads atomic.Int64
	go func() {
		defer close(reloaderDone)
		for ctx.Err() == nil {
			if _, err := holder.Reload(ctx); err == nil {
				reloads.Add(1)
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				got, err := run(holder.Current())
				if !assert.NoError(t, err) {
					return
				}
				if !assert.Equal(t, string(want), string(got)) {
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Eventually(t, func() bool { return reloads.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	<-reloaderDone
}
