package cluster

// agglomerate performs agglomerative clustering with average linkage over a
// precomputed distance matrix, merging until the target number of clusters
// remains. Returned labels are positional: label k is the k-th cluster in
// order of its first member's index. Labels are NOT stable identities across
// runs on different inputs; callers must not treat them as persistent.
func agglomerate(distance [][]float64, targetClusters int) []int {
	n := len(distance)
	if n == 0 {
		return nil
	}
	if targetClusters < 1 {
		targetClusters = 1
	}
	if targetClusters > n {
		targetClusters = n
	}

	// Each active cluster tracks its member indices; linkage distance
	// between clusters is the average pairwise member distance.
	members := make([][]int, n)
	for i := range members {
		members[i] = []int{i}
	}
	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}
	remaining := n

	avgLinkage := func(a, b []int) float64 {
		var sum float64
		for _, i := range a {
			for _, j := range b {
				sum += distance[i][j]
			}
		}
		return sum / float64(len(a)*len(b))
	}

	for remaining > targetClusters {
		bestI, bestJ := -1, -1
		bestDist := 0.0
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				d := avgLinkage(members[i], members[j])
				if bestI < 0 || d < bestDist {
					bestI, bestJ, bestDist = i, j, d
				}
			}
		}
		if bestI < 0 {
			break
		}

		members[bestI] = append(members[bestI], members[bestJ]...)
		active[bestJ] = false
		remaining--
	}

	// Order clusters by their smallest member index for deterministic labels.
	labels := make([]int, n)
	type group struct {
		first   int
		indices []int
	}
	groups := make([]group, 0, remaining)
	for i := 0; i < n; i++ {
		if !active[i] {
			continue
		}
		first := members[i][0]
		for _, m := range members[i] {
			if m < first {
				first = m
			}
		}
		groups = append(groups, group{first: first, indices: members[i]})
	}
	for i := range groups {
		for j := i + 1; j < len(groups); j++ {
			if groups[j].first < groups[i].first {
				groups[i], groups[j] = groups[j], groups[i]
			}
		}
	}
	for label, g := range groups {
		for _, idx := range g.indices {
			labels[idx] = label
		}
	}
	return labels
}
