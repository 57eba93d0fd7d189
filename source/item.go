package source

import "fmt"

// Item is one value of an auxiliary population: the primary name plus an
// optional secondary attribute such as an affiliation or identifier.
type Item struct {
	Name      string `json:"name"`
	Secondary string `json:"secondary,omitempty"`
}

// NamesToItems wraps names without secondary attributes.
func NamesToItems(names []string) []Item {
	out := make([]Item, 0, len(names))
	for _, n := range names {
		out = append(out, Item{Name: n})
	}
	return out
}

// ItemsWithSecondary pairs every name with the secondary attribute of the
// first document whose namePath equals it. secondaryExpr is JMESPath.
func ItemsWithSecondary(names []string, docs []*Record, namePath, secondaryExpr string) ([]Item, error) {
	byName := make(map[string]*Record, len(docs))
	for _, d := range docs {
		n := d.String(namePath)
		if _, seen := byName[n]; !seen && n != "" {
			byName[n] = d
		}
	}

	out := make([]Item, 0, len(names))
	for _, n := range names {
		item := Item{Name: n}
		if d, ok := byName[n]; ok {
			v, err := d.Search(secondaryExpr)
			if err != nil {
				return nil, fmt.Errorf("secondary attribute of %q: %w", n, err)
			}
			if texts := Texts(v); len(texts) > 0 {
				item.Secondary = texts[0]
			}
		}
		out = append(out, item)
	}
	return out, nil
}
