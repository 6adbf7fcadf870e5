package state

// Merge returns a deep merge of patch over base. Where both sides hold a
// mapping under the same key the mappings are merged recursively; any other
// conflict is won by patch. Neither argument is modified.
func Merge(base, patch Value) Value {
	if base.kind != KindMap || patch.kind != KindMap {
		return patch.Clone()
	}
	out := base.Clone()
	for k, pv := range patch.m {
		if bv, ok := out.m[k]; ok && bv.kind == KindMap && pv.kind == KindMap {
			out.m[k] = Merge(bv, pv)
			continue
		}
		out.m[k] = pv.Clone()
	}
	return out
}
