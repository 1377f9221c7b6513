package tool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Category:    CategorySystem,
		Description: "echo " + name,
		Parameters:  Object(map[string]*Schema{"text": {Type: TypeString}}, "text"),
		Execute: func(_ context.Context, in map[string]any) (string, error) {
			return fmt.Sprint(in["text"]), nil
		},
	}
}

func TestRegister_LastWins(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("a")))
	second := echoTool("a")
	second.Description = "second"
	require.NoError(t, r.Register(second))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.Description)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_Rejects(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&Tool{}))
	assert.Error(t, r.Register(&Tool{Name: "x"}))
}

func TestReplaceSource(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("local")))
	require.NoError(t, r.ReplaceSource("plugin", []*Tool{echoTool("p1"), echoTool("p2")}))
	assert.Equal(t, []string{"local", "p1", "p2"}, r.Names())

	require.NoError(t, r.ReplaceSource("plugin", []*Tool{echoTool("p3")}))
	assert.Equal(t, []string{"local", "p3"}, r.Names())

	p3, _ := r.Get("p3")
	assert.Equal(t, "plugin", p3.Source)

	r.RemoveSource("plugin")
	assert.Equal(t, []string{"local"}, r.Names())
}

func TestReplaceSource_ReadersSeeWholeSnapshots(t *testing.T) {
	r := NewRegistry()
	setA := []*Tool{echoTool("a1"), echoTool("a2"), echoTool("a3")}
	setB := []*Tool{echoTool("b1"), echoTool("b2"), echoTool("b3")}
	require.NoError(t, r.ReplaceSource("ext", setA))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				_ = r.ReplaceSource("ext", setB)
			} else {
				_ = r.ReplaceSource("ext", setA)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		decls := r.ProjectFor(Anthropic)
		require.Len(t, decls, 3)
		prefix := decls[0].Name[:1]
		for _, d := range decls {
			require.Equal(t, prefix, d.Name[:1], "mixed snapshot observed")
		}
	}
}

func TestTool_Timeout(t *testing.T) {
	fs := &Tool{Category: CategoryFilesystem}
	browser := &Tool{Category: CategoryBrowser}

	assert.Equal(t, DefaultTimeout, fs.Timeout(0, 0))
	assert.Equal(t, HeavyTimeout, browser.Timeout(0, 0))
	assert.Equal(t, time.Second, fs.Timeout(time.Second, time.Minute))
	assert.Equal(t, time.Minute, browser.Timeout(time.Second, time.Minute))
}
