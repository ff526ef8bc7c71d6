// Package models describes the synchronised entity kinds and the queue of
// local changes awaiting upload.
package models

import (
	"fmt"

	"github.com/dmitrijs2005/herpsync/internal/common"
	"github.com/dmitrijs2005/herpsync/internal/record"
)

// Kind describes one synchronised entity type: its table, the field that
// must be unique per owner, the fields searched by free text and the fields
// grouped in statistics.
type Kind struct {
	Table        string
	Singular     string
	NameField    string
	SearchFields []string
	StatFields   []string
}

var (
	Animals = Kind{
		Table:        record.TableAnimals,
		Singular:     "animal",
		NameField:    "name",
		SearchFields: []string{"name", "species", "morph", "notes", "sire_id", "dam_id"},
		StatFields:   []string{"status", "sex", "species"},
	}

	OffspringBatches = Kind{
		Table:        record.TableOffspringBatches,
		Singular:     "offspring batch",
		NameField:    "name",
		SearchFields: []string{"name", "species", "notes", "sire_id", "dam_id"},
		StatFields:   []string{"status", "species"},
	}
)

// Kinds returns every registered kind in table order.
func Kinds() []Kind {
	return []Kind{Animals, OffspringBatches}
}

// LookupKind resolves a kind by table name or singular alias.
func LookupKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if k.Table == name || k.Singular == name {
			return k, nil
		}
	}
	switch name {
	case "batch", "batches", "offspring":
		return OffspringBatches, nil
	}
	return Kind{}, fmt.Errorf("%w: %s", common.ErrUnknownTable, name)
}
