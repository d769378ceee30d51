package memory

// ComputeHealth reduces a listing into summary statistics. Pure read+reduce:
// it never touches the store.
func ComputeHealth(memories []StoredMemory) Health {
	h := Health{MemoryCount: len(memories)}
	if len(memories) == 0 {
		return h
	}

	var importanceSum float64
	for _, m := range memories {
		importance := m.Payload.Importance
		if importance == 0 {
			importance = 1.0
		}
		importanceSum += importance

		created := m.Payload.CreatedAt
		if created.IsZero() {
			h.UntimedCount++
			continue
		}
		if h.OldestCreatedAt.IsZero() || created.Before(h.OldestCreatedAt) {
			h.OldestCreatedAt = created
		}
		if h.NewestCreatedAt.IsZero() || created.After(h.NewestCreatedAt) {
			h.NewestCreatedAt = created
		}
	}
	h.AverageImportance = round6(importanceSum / float64(len(memories)))
	return h
}
