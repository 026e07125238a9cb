package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/testerman-project/testerman-core/internal/job"
)

// Builder resolves a job's source text given its repository path, and
// implements job.ChildFactory and job.TEFactory's supporting wiring so
// that CampaignJob/GroupJob can create and register their children
// without depending on the scheduler package directly.
type Builder struct {
	Scheduler   *Scheduler
	DocRoot     string
	CoreModules string
	MergeMode   job.MergeMode
	TEFactory   job.TEFactory
	Resolver    job.DependencyResolver
}

// NewChild implements job.ChildFactory: it loads the node's source
// file, allocates a fresh job id, and constructs the concrete job type
// named by the node.
func (b *Builder) NewChild(node *job.CampaignNode, parent job.Job, inputSession map[string]string) (job.Job, error) {
	id := b.Scheduler.Registry.NextID()
	name := node.Path
	now := time.Now()
	mapping := node.With

	switch node.Type {
	case job.TypeATS:
		source, sourcePath, err := b.readSource(node.Path, "ats")
		if err != nil {
			return nil, err
		}
		base := job.NewBase(id, name, job.TypeATS, parent.Owner(), sourcePath, now, nil, mapping)
		child := job.NewAtsJob(base, source, b.TEFactory, b.Resolver, b.DocRoot, b.CoreModules, b.MergeMode, node.Groups)
		child.SetParent(parent)
		return child, nil

	case job.TypeCampaign:
		source, sourcePath, err := b.readSource(node.Path, "campaign")
		if err != nil {
			return nil, err
		}
		base := job.NewBase(id, name, job.TypeCampaign, parent.Owner(), sourcePath, now, nil, mapping)
		child := job.NewCampaignJob(base, source, b)
		child.SetParent(parent)
		return child, nil

	case job.TypeGroup:
		base := job.NewBase(id, name, job.TypeGroup, parent.Owner(), "", now, nil, mapping)
		groupJob := job.NewGroupJob(base)
		groupJob.SetParent(parent)
		for _, child := range node.Children {
			grandchild, err := b.NewChild(child, groupJob, inputSession)
			if err != nil {
				return nil, err
			}
			b.Register(grandchild)
			groupJob.AddChild(job.BranchUnconditional, grandchild)
		}
		return groupJob, nil

	default:
		return nil, fmt.Errorf("unknown campaign node type %q", node.Type)
	}
}

// Register adds child to the scheduler's registry so it is visible to
// API lookups and to the purge/reschedule/signal operations.
func (b *Builder) Register(child job.Job) {
	b.Scheduler.Registry.Register(child)
}

// SubmitSource builds and submits a new root job (no parent) directly
// from raw source text, as opposed to a path resolved from a campaign
// node. This is the entry point used by the Ws façade's job submission
// endpoint.
func (b *Builder) SubmitSource(kind job.Type, name, sourcePath, owner, source string, scheduledAt time.Time, mapping map[string]string, groups []string) (job.Job, error) {
	id := b.Scheduler.Registry.NextID()

	var j job.Job
	switch kind {
	case job.TypeATS:
		base := job.NewBase(id, name, job.TypeATS, owner, sourcePath, scheduledAt, nil, mapping)
		j = job.NewAtsJob(base, source, b.TEFactory, b.Resolver, b.DocRoot, b.CoreModules, b.MergeMode, groups)
	case job.TypeCampaign:
		base := job.NewBase(id, name, job.TypeCampaign, owner, sourcePath, scheduledAt, nil, mapping)
		j = job.NewCampaignJob(base, source, b)
	default:
		return nil, fmt.Errorf("unsupported root job type %q", kind)
	}

	if err := b.Scheduler.Submit(j); err != nil {
		return j, err
	}
	return j, nil
}

func (b *Builder) readSource(relPath, ext string) (source, sourcePath string, err error) {
	sourcePath = relPath
	if len(sourcePath) < len(ext)+1 || sourcePath[len(sourcePath)-len(ext)-1:] != "."+ext {
		sourcePath = sourcePath + "." + ext
	}
	data, err := os.ReadFile(filepath.Join(b.DocRoot, sourcePath))
	if err != nil {
		return "", "", fmt.Errorf("reading %s source %s: %w", ext, sourcePath, err)
	}
	return string(data), sourcePath, nil
}
