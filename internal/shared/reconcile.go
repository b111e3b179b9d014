package shared

// Patch is the line-item change set produced by Reconcile.
type Patch[ID comparable, T any] struct {
	Create []T
	Update []T
	Delete []ID
}

// Empty reports whether applying the patch would change nothing structurally.
func (p Patch[ID, T]) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Reconcile diffs persisted child ids against a submitted set. Submitted items whose id is
// persisted are updates, the rest are creates, and persisted ids absent from the submission
// are deletes. Delete preserves the order of existing; Create and Update preserve submission order.
func Reconcile[ID comparable, T any](existing []ID, submitted []T, idOf func(T) ID) Patch[ID, T] {
	persisted := make(map[ID]struct{}, len(existing))
	for _, id := range existing {
		persisted[id] = struct{}{}
	}
	var patch Patch[ID, T]
	seen := make(map[ID]struct{}, len(submitted))
	for _, item := range submitted {
		id := idOf(item)
		seen[id] = struct{}{}
		if _, ok := persisted[id]; ok {
			patch.Update = append(patch.Update, item)
			continue
		}
		patch.Create = append(patch.Create, item)
	}
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			patch.Delete = append(patch.Delete, id)
		}
	}
	return patch
}
