package comm

// AllGather returns every rank's local slice, indexed by rank. The local
// contribution is copied, so callers may reuse their slice afterward.
func AllGather[T any](r *Rank, local []T) [][]T {
	out := make([][]T, r.Size())
	for dst := 0; dst < r.Size(); dst++ {
		if dst == r.id {
			continue
		}
		r.send(dst, append([]T(nil), local...))
	}
	for src := 0; src < r.Size(); src++ {
		if src == r.id {
			out[src] = append([]T(nil), local...)
			continue
		}
		out[src] = r.recv(src).([]T)
	}
	return out
}

// Exchange performs an all-to-all-v: every rank supplies zero or more
// values for each destination rank and receives whatever the other ranks
// addressed to it, keyed by source rank. Absent and empty sends are
// equivalent; sources that sent nothing do not appear in the result.
func Exchange[T any](r *Rank, out map[int][]T) map[int][]T {
	in := make(map[int][]T)
	for dst := 0; dst < r.Size(); dst++ {
		if dst == r.id {
			continue
		}
		r.send(dst, out[dst])
	}
	if len(out[r.id]) > 0 {
		in[r.id] = out[r.id]
	}
	for src := 0; src < r.Size(); src++ {
		if src == r.id {
			continue
		}
		if vals := r.recv(src).([]T); len(vals) > 0 {
			in[src] = vals
		}
	}
	return in
}

// Broadcast distributes root's slice to every rank. Ranks other than root
// ignore their local argument.
func Broadcast[T any](r *Rank, root int, local []T) []T {
	if r.id == root {
		for dst := 0; dst < r.Size(); dst++ {
			if dst == root {
				continue
			}
			r.send(dst, append([]T(nil), local...))
		}
		return local
	}
	return r.recv(root).([]T)
}

// GatherTo collects every rank's slice on root, indexed by rank. Ranks
// other than root return nil.
func GatherTo[T any](r *Rank, root int, local []T) [][]T {
	if r.id != root {
		r.send(root, append([]T(nil), local...))
		return nil
	}
	out := make([][]T, r.Size())
	for src := 0; src < r.Size(); src++ {
		if src == root {
			out[src] = append([]T(nil), local...)
			continue
		}
		out[src] = r.recv(src).([]T)
	}
	return out
}

// Counts gathers the per-rank value of nLocal on every rank.
func Counts(r *Rank, nLocal int) []int {
	gathered := AllGather(r, []int{nLocal})
	counts := make([]int, r.Size())
	for rank, v := range gathered {
		counts[rank] = v[0]
	}
	return counts
}

// Offsets computes this rank's exclusive prefix sum of nLocal over the
// group, along with the group total. Rank 0's offset is always 0.
func Offsets(r *Rank, nLocal int) (offset, total int) {
	counts := Counts(r, nLocal)
	for rank, n := range counts {
		if rank < r.id {
			offset += n
		}
		total += n
	}
	return offset, total
}

// OffsetsFromCounts converts per-rank counts into per-rank exclusive
// offsets and the total.
func OffsetsFromCounts(counts []int) (offsets []int, total int) {
	offsets = make([]int, len(counts))
	for rank, n := range counts {
		offsets[rank] = total
		total += n
	}
	return offsets, total
}
