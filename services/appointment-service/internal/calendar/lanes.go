package calendar

import (
	"sort"

	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

type lane struct {
	index int
	of    int
}

// packLanes assigns each appointment the first free lane inside its overlap cluster.
// Every member of a cluster shares the cluster's lane count so widths line up.
func packLanes(appts []model.Appointment) map[string]lane {
	sorted := append([]model.Appointment(nil), appts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].StartMinutes(), sorted[j].StartMinutes()
		if si != sj {
			return si < sj
		}
		return sorted[i].Duration > sorted[j].Duration
	})

	out := make(map[string]lane, len(sorted))
	var cluster []string
	var laneEnds []int
	clusterEnd := -1

	flush := func() {
		for _, id := range cluster {
			l := out[id]
			l.of = len(laneEnds)
			out[id] = l
		}
		cluster, laneEnds = nil, nil
	}

	for _, a := range sorted {
		start, end := a.StartMinutes(), a.StartMinutes()+a.Duration
		if start >= clusterEnd {
			flush()
		}
		idx := -1
		for i, e := range laneEnds {
			if e <= start {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = len(laneEnds)
			laneEnds = append(laneEnds, end)
		} else {
			laneEnds[idx] = end
		}
		out[a.ID] = lane{index: idx}
		cluster = append(cluster, a.ID)
		if end > clusterEnd {
			clusterEnd = end
		}
	}
	flush()
	return out
}
