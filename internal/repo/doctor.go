package repo

import "fmt"

// DoctorReport collects every integrity issue Doctor found, grouped the
// way the teacher's doctor_health.go/doctor_pollution.go accumulate a
// []string of human-readable issues before deciding whether to print a
// hint. An empty report means the repository is healthy.
type DoctorReport struct {
	Issues []string
}

// Healthy reports whether Doctor found nothing wrong.
func (d DoctorReport) Healthy() bool { return len(d.Issues) == 0 }

// Doctor walks the change graph, bookmark store, and operation log
// looking for dangling references and a broken head chain (SPEC_FULL
// §10's supplemented integrity check, generalized from the teacher's
// issue-database pollution/health checks to change-graph integrity).
func (r *Repo) Doctor() DoctorReport {
	var report DoctorReport

	for _, id := range r.Graph.All() {
		c := r.Graph.Get(id)
		for _, p := range c.Parents {
			if r.Graph.Get(p) == nil {
				report.Issues = append(report.Issues, fmt.Sprintf(
					"change %s has dangling parent reference %s", id, p))
			}
		}
	}

	for name, target := range r.Bookmarks.Local {
		if r.Graph.Get(target) == nil {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"bookmark %q points at missing change %s", name, target))
		}
	}
	for remote, branches := range r.Bookmarks.Remote {
		for name, target := range branches {
			if r.Graph.Get(target) == nil {
				report.Issues = append(report.Issues, fmt.Sprintf(
					"remote bookmark %s@%s points at missing change %s", name, remote, target))
			}
		}
	}

	for name, target := range r.Tags.Tags {
		if r.Graph.Get(target) == nil {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"tag %q points at missing change %s", name, target))
		}
	}

	if r.WC.State.ChangeID != "" && r.Graph.Get(r.WC.State.ChangeID) == nil {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"working copy points at missing change %s", r.WC.State.ChangeID))
	}

	if issue := r.checkOplogChain(); issue != "" {
		report.Issues = append(report.Issues, issue)
	}

	return report
}

// checkOplogChain verifies the operation log forms one unbroken chain
// from the first recorded operation to the current head, the change-graph
// analog of the teacher's CheckHooksQuick-style "is the chain intact"
// check.
func (r *Repo) checkOplogChain() string {
	ops := r.Oplog.All()
	seen := make(map[string]bool, len(ops))
	for _, op := range ops {
		seen[op.ID] = true
	}
	for _, op := range ops {
		for _, parent := range op.Parents {
			if parent != "" && !seen[parent] {
				return fmt.Sprintf("operation %s references missing parent operation %s", op.ID, parent)
			}
		}
	}
	return ""
}
