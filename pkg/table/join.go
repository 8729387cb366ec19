package table

import "fmt"

// LeftJoin keeps every left row in order and appends matching right columns.
// A left row with several right matches is repeated once per match; a row
// with none gets missing right values. Right columns that clash with a left
// name, other than the key, are renamed with suffix.
func LeftJoin(left, right *Table, key, suffix string) (*Table, error) {
	lk, err := left.MustColumn(key)
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	rk, err := right.MustColumn(key)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}

	matches := make(map[string][]int, rk.Len())
	for i := 0; i < rk.Len(); i++ {
		if rk.IsNull(i) {
			continue
		}
		k := rk.Key(i)
		matches[k] = append(matches[k], i)
	}

	var li, ri []int
	for i := 0; i < lk.Len(); i++ {
		m := matches[lk.Key(i)]
		if lk.IsNull(i) || len(m) == 0 {
			li = append(li, i)
			ri = append(ri, -1)
			continue
		}
		for _, j := range m {
			li = append(li, i)
			ri = append(ri, j)
		}
	}

	out := left.Take(li)
	for _, c := range right.cols {
		if c.Name == key {
			continue
		}
		rc := c.Take(ri)
		if left.Has(c.Name) {
			rc = rc.Rename(c.Name + suffix)
		}
		if err := out.Set(rc); err != nil {
			return nil, err
		}
	}
	return out, nil
}
