package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/job"
)

// stubTEFactory avoids depending on a real TTCN-3 compiler in tests:
// it treats the source text itself as the generated TE main module.
type stubTEFactory struct{}

func (stubTEFactory) Generate(source, sourcePath, outDir string) (string, map[string]string, error) {
	out := filepath.Join(outDir, "main")
	if err := os.WriteFile(out, []byte(source), 0o644); err != nil {
		return "", nil, err
	}
	return out, map[string]string{}, nil
}

func (stubTEFactory) BuildCommand(artefactPath, inputSessionFile string) (string, []string, map[string]string) {
	return "/bin/true", nil, nil
}

func TestBuilderSubmitSourceATS(t *testing.T) {
	docRoot := t.TempDir()
	sched := New(NewRegistry(), nil)

	b := &Builder{
		Scheduler:   sched,
		DocRoot:     docRoot,
		MergeMode:   job.MergeLoose,
		TEFactory:   stubTEFactory{},
		Resolver:    job.TextImportResolver{},
	}

	j, err := b.SubmitSource(job.TypeATS, "suite1", "suite1.ats", "alice", "# empty ats\n", time.Now(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, j.State())

	got, ok := sched.Registry.Get(j.ID())
	require.True(t, ok)
	assert.Same(t, j, got)
}

func TestBuilderNewChildResolvesRelativeSource(t *testing.T) {
	docRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docRoot, "nested.ats"), []byte("body"), 0o644))

	sched := New(NewRegistry(), nil)
	b := &Builder{Scheduler: sched, DocRoot: docRoot, MergeMode: job.MergeLoose, TEFactory: stubTEFactory{}, Resolver: job.TextImportResolver{}}

	parentBase := job.NewBase(sched.Registry.NextID(), "parent", job.TypeCampaign, "alice", "", time.Now(), nil, nil)
	parent := job.NewCampaignJob(parentBase, "", b)

	node := &job.CampaignNode{Type: job.TypeATS, Path: "nested"}
	child, err := b.NewChild(node, parent, nil)
	require.NoError(t, err)
	assert.Equal(t, job.TypeATS, child.Kind())
}
