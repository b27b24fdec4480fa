package inventory

import "strings"

// Group is one dashboard section: all sizes of a category, color and collar.
type Group struct {
	Category    string        `json:"category"`
	Color       string        `json:"color"`
	CollarStyle string        `json:"collarStyle"`
	Items       []LevelRecord `json:"items"`
}

// LevelRecord pairs a record with its stock level.
type LevelRecord struct {
	Record
	Level Level `json:"level"`
}

// GroupRecords sorts the records and splits them into groups keyed by
// category, color and collar style. Keys compare case-insensitively.
func GroupRecords(records []Record) []Group {
	sorted := Clone(records)
	Sort(sorted)

	var groups []Group
	index := make(map[string]int)
	for _, rec := range sorted {
		key := strings.ToLower(rec.Category + "\x00" + rec.Color + "\x00" + rec.CollarStyle)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{
				Category:    rec.Category,
				Color:       rec.Color,
				CollarStyle: rec.CollarStyle,
			})
		}
		groups[i].Items = append(groups[i].Items, LevelRecord{Record: rec, Level: LevelOf(rec.Quantity)})
	}
	if groups == nil {
		return []Group{}
	}
	return groups
}
