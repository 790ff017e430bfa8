package locator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jackzampolin/headloc/internal/candidate"
	"github.com/jackzampolin/headloc/internal/trace"
)

// enforce repairs ordering and sharing violations left by resolve. Each pass
// runs reanchor, dedupe and the monotonic guard; enforcement stops after
// MaxPasses or the first pass without corrections. Whatever still violates
// the order afterwards is demoted.
func (r *run) enforce(ctx context.Context) error {
	for pass := 1; pass <= r.opts.MaxPasses; pass++ {
		reanchored, err := r.reanchorPass(ctx)
		if err != nil {
			return err
		}
		deduped, err := r.dedupePass(ctx)
		if err != nil {
			return err
		}
		reordered, err := r.monotonicPass(ctx)
		if err != nil {
			return err
		}

		total := reanchored + deduped + reordered
		r.passes = pass
		r.corrections += total
		r.tr.Emit(trace.InvariantsPassSummary,
			"pass", pass,
			"reanchored", reanchored,
			"deduped", deduped,
			"reordered", reordered,
			"corrections", total,
		)
		if total == 0 {
			break
		}
	}
	r.sweep()
	r.reportUnresolvable()
	return nil
}

// reanchorPass moves a parent anchored at or after its earliest resolved
// descendant to an accepted candidate before that descendant.
func (r *run) reanchorPass(ctx context.Context) (int, error) {
	moved := 0
	for i := range r.outline.Nodes {
		if !r.resolved(i) {
			continue
		}
		earliest := -1
		for d := i + 1; d < r.outline.SubtreeEnd(i); d++ {
			if r.resolved(d) && (earliest < 0 || r.pos[d] < earliest) {
				earliest = r.pos[d]
			}
		}
		if earliest < 0 || r.pos[i] < earliest {
			continue
		}

		r.tr.Emit(trace.ReanchorParent,
			"node", i,
			"line", r.globalIndex(r.pos[i]),
			"descendant_line", r.globalIndex(earliest),
		)
		w := candidate.Window{Lo: r.lastBefore(i, false) + 1, Hi: earliest}
		c, found, err := r.search(ctx, i, w)
		if err != nil {
			return moved, err
		}
		if found && c.Pos < earliest {
			r.assign(i, c.Candidate, StrategyReanchor)
			moved++
		}
	}
	return moved, nil
}

// dedupePass keeps one heading per shared line. The others lose the line
// for good and get a single retry elsewhere.
func (r *run) dedupePass(ctx context.Context) (int, error) {
	groups := make(map[int][]int)
	for i := range r.outline.Nodes {
		if r.resolved(i) {
			groups[r.pos[i]] = append(groups[r.pos[i]], i)
		}
	}
	var shared []int
	for pos, nodes := range groups {
		if len(nodes) > 1 {
			shared = append(shared, pos)
		}
	}
	sort.Ints(shared)

	dropped := 0
	for _, pos := range shared {
		nodes := groups[pos]
		keep := r.keeper(nodes)
		for _, d := range nodes {
			if d == keep {
				continue
			}
			r.tr.Emit(trace.DedupeDrop,
				"node", d,
				"line", r.globalIndex(pos),
				"kept", keep,
				"policy", string(r.opts.DedupePolicy),
			)
			r.demote(d)
			if r.exclude[d] == nil {
				r.exclude[d] = make(map[int]bool)
			}
			r.exclude[d][pos] = true
			dropped++

			if r.retried[d] {
				r.markUnresolvable(d, r.window(d))
				continue
			}
			r.retried[d] = true
			if err := r.resolveNode(ctx, d, r.window(d), StrategyDedupeRetry); err != nil {
				return dropped, err
			}
		}
	}
	return dropped, nil
}

// keeper picks the node that keeps a shared line. nodes are in outline order.
func (r *run) keeper(nodes []int) int {
	keep := nodes[0]
	if r.opts.DedupePolicy == DedupeFirst {
		return keep
	}
	for _, n := range nodes[1:] {
		if r.chosen[n].Fused > r.chosen[keep].Fused+candidate.Epsilon {
			keep = n
		}
	}
	return keep
}

// monotonicPass re-resolves any heading anchored at or before the greatest
// anchor preceding it in the outline.
func (r *run) monotonicPass(ctx context.Context) (int, error) {
	fixed := 0
	prev := -1
	for i := range r.outline.Nodes {
		if !r.resolved(i) {
			continue
		}
		if r.pos[i] > prev {
			prev = r.pos[i]
			continue
		}

		r.tr.Emit(trace.MonotonicViolation,
			"node", i,
			"line", r.globalIndex(r.pos[i]),
			"predecessor_line", r.globalIndex(prev),
		)
		r.demote(i)
		w := candidate.Window{Lo: prev + 1, Hi: r.nextAfter(i)}
		if err := r.resolveNode(ctx, i, w, StrategyMonotonicRetry); err != nil {
			return fixed, err
		}
		fixed++
		if r.resolved(i) {
			prev = r.pos[i]
		}
	}
	return fixed, nil
}

// sweep demotes every heading that still breaks the order after the passes.
func (r *run) sweep() {
	prev, prevNode := -1, -1
	for i := range r.outline.Nodes {
		if !r.resolved(i) {
			continue
		}
		if r.pos[i] > prev {
			prev, prevNode = r.pos[i], i
			continue
		}
		line := r.globalIndex(r.pos[i])
		r.markUnresolvable(i, candidate.Window{Lo: prev + 1, Hi: prev + 1})
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Kind:    InvariantViolationPersisted,
			Node:    i,
			Heading: r.outline.Nodes[i].Label(),
			Message: fmt.Sprintf("anchor at line %d does not follow %q at line %d after %d passes",
				line, r.outline.Nodes[prevNode].Label(), r.globalIndex(prev), r.passes),
		})
	}
}

// reportUnresolvable closes every heading without an anchor and records a
// diagnostic for it.
func (r *run) reportUnresolvable() {
	for i := range r.outline.Nodes {
		if r.resolved(i) {
			continue
		}
		r.status[i] = StatusUnresolvable
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Kind:    UnresolvableHeading,
			Node:    i,
			Heading: r.outline.Nodes[i].Label(),
			Message: r.unresolvableReason(i),
		})
	}
}

func (r *run) unresolvableReason(i int) string {
	if len(r.exclude[i]) > 0 {
		return "no accepted candidate after its line went to another heading"
	}
	w := r.window(i)
	if w.Empty() {
		return "no lines left between its neighbors"
	}
	return fmt.Sprintf("no candidate reached the acceptance threshold %.2f in lines %d-%d",
		r.opts.Candidate.FuzzyThreshold, r.globalIndex(w.Lo), r.globalIndex(w.Hi)-1)
}

// violations counts anchors that break the strict outline order. It is zero
// after enforce.
func (r *run) violations() int {
	n := 0
	prev := math.MinInt
	for i := range r.outline.Nodes {
		if !r.resolved(i) {
			continue
		}
		if r.pos[i] <= prev {
			n++
			continue
		}
		prev = r.pos[i]
	}
	return n
}
