package interval

// cancelRegistry holds jobs canceled while a worker was holding them.
// An entry lives until that worker consults the registry.
type cancelRegistry struct {
	jobs map[*job]struct{}
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{jobs: make(map[*job]struct{})}
}

func (r *cancelRegistry) add(j *job) {
	r.jobs[j] = struct{}{}
}

// consume reports whether j was canceled and clears its entry.
func (r *cancelRegistry) consume(j *job) bool {
	if _, ok := r.jobs[j]; !ok {
		return false
	}
	delete(r.jobs, j)
	return true
}

func (r *cancelRegistry) len() int {
	return len(r.jobs)
}
