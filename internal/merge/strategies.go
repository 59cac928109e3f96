package merge

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/JonMunkholm/gobimport/internal/core"
)

// Strategy merges a group of secondary entities into a primary entity.
type Strategy func(e core.Entity, group []core.Entity, cfg core.MergeConfig, write WriteFunc) error

var strategies = map[string]Strategy{
	"diva_into_dgdialog": divaIntoDgdialog,
}

// divaIntoDgdialog keeps the latest secondary state: the group is sorted by
// volgnummer, every state but the last is written as is and the copy fields
// of the last state move into the primary entity.
func divaIntoDgdialog(e core.Entity, group []core.Entity, cfg core.MergeConfig, write WriteFunc) error {
	sorted := slices.Clone(group)
	slices.SortStableFunc(sorted, func(a, b core.Entity) int {
		return cmp.Compare(sequence(a), sequence(b))
	})

	for _, s := range sorted[:len(sorted)-1] {
		if err := write(s); err != nil {
			return err
		}
	}
	last := sorted[len(sorted)-1]
	for _, attr := range cfg.Copy {
		e[attr] = last[attr]
	}
	return nil
}

func sequence(e core.Entity) int64 {
	switch v := e[core.FieldSequenceNumber].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case nil:
		return 0
	default:
		n, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return n
	}
}
