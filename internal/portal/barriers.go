package portal

// BarriersForZones returns four barriers per zone in top, right, left,
// bottom order. Ids start at 1 and follow that order.
func BarriersForZones(zones []Zone) []Barrier {
	barriers := make([]Barrier, 0, 4*len(zones))
	id := uint32(1)
	add := func(x1, y1, x2, y2 int32) {
		barriers = append(barriers, Barrier{ID: id, X1: x1, Y1: y1, X2: x2, Y2: y2})
		id++
	}

	for _, z := range zones {
		x2 := z.X + int32(z.Width)
		y2 := z.Y + int32(z.Height)

		add(z.X, z.Y, x2, z.Y)
		add(x2, z.Y, x2, y2)
		add(z.X, z.Y, z.X, y2)
		add(z.X, y2, x2, y2)
	}
	return barriers
}

// dropBarriers removes the barriers whose id is in failed and returns the
// remaining set and the dropped barriers.
func dropBarriers(barriers []Barrier, failed []uint32) (kept, dropped []Barrier) {
	if len(failed) == 0 {
		return barriers, nil
	}
	bad := make(map[uint32]struct{}, len(failed))
	for _, id := range failed {
		bad[id] = struct{}{}
	}
	kept = barriers[:0:0]
	for _, b := range barriers {
		if _, ok := bad[b.ID]; ok {
			dropped = append(dropped, b)
			continue
		}
		kept = append(kept, b)
	}
	return kept, dropped
}
