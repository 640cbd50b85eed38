package parvec

import (
	"fmt"

	"github.com/ibmesh/goimb/comm"
)

// AO is an application ordering: a total bijection between the fixed
// global application index space [0, N) and the current parallel index
// space [0, N). It is rebuilt from scratch on every redistribution; both
// directions are bulk operations over index slices.
type AO struct {
	appToPar []int
	parToApp []int
}

// NewAO collectively builds the ordering from each rank's owned
// application indices. Rank r's j-th owned application index localApp[j]
// is assigned parallel index offset_r + j. The union of all ranks' owned
// indices must be exactly [0, N) with no duplicates.
func NewAO(r *comm.Rank, localApp []int) (*AO, error) {
	rows := comm.AllGather(r, localApp)
	offsets, total := comm.OffsetsFromCounts(countsOf(rows))

	ao := &AO{
		appToPar: make([]int, total),
		parToApp: make([]int, total),
	}
	for i := range ao.appToPar {
		ao.appToPar[i] = -1
	}
	for rank, apps := range rows {
		for j, app := range apps {
			if app < 0 || app >= total {
				return nil, fmt.Errorf("application index %d outside [0, %d)", app, total)
			}
			if ao.appToPar[app] != -1 {
				return nil, fmt.Errorf("application index %d owned twice", app)
			}
			par := offsets[rank] + j
			ao.appToPar[app] = par
			ao.parToApp[par] = app
		}
	}
	for app, par := range ao.appToPar {
		if par == -1 {
			return nil, fmt.Errorf("application index %d unowned", app)
		}
	}
	return ao, nil
}

func countsOf(rows [][]int) []int {
	counts := make([]int, len(rows))
	for i, row := range rows {
		counts[i] = len(row)
	}
	return counts
}

// N returns the size of the index space.
func (ao *AO) N() int { return len(ao.appToPar) }

// ApplicationToParallel maps application indices to parallel indices in
// place.
func (ao *AO) ApplicationToParallel(inds []int) error {
	for i, app := range inds {
		if app < 0 || app >= len(ao.appToPar) {
			return fmt.Errorf("application index %d outside [0, %d)", app, len(ao.appToPar))
		}
		inds[i] = ao.appToPar[app]
	}
	return nil
}

// ParallelToApplication maps parallel indices to application indices in
// place.
func (ao *AO) ParallelToApplication(inds []int) error {
	for i, par := range inds {
		if par < 0 || par >= len(ao.parToApp) {
			return fmt.Errorf("parallel index %d outside [0, %d)", par, len(ao.parToApp))
		}
		inds[i] = ao.parToApp[par]
	}
	return nil
}
