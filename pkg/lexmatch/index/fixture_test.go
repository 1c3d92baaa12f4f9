package index

import (
	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

func fixtureRows() []store.CatalogRow {
	return []store.CatalogRow{
		{ID: 1, CategoryID: 1, EntityID: 101, AttributeCode: "wine_type", TextValue: "Vintage Port"},
		{ID: 2, CategoryID: 1, EntityID: 201, AttributeCode: "brand", TextValue: "Warre's"},
		{ID: 3, CategoryID: 1, EntityID: 102, AttributeCode: "wine_type", TextValue: "Ruby Port"},
		{ID: 4, CategoryID: 1, EntityID: 103, AttributeCode: "wine_type", TextValue: "Tawny Port"},
		{ID: 11, CategoryID: 1, EntityID: 107, AttributeCode: "wine_type", TextValue: "White Port"},
		{ID: 5, CategoryID: 1, EntityID: 104, AttributeCode: "wine_type", TextValue: "Rose"},
		{ID: 6, CategoryID: 1, EntityID: 105, AttributeCode: "color", TextValue: "Rose"},
		{ID: 7, CategoryID: 1, EntityID: 106, AttributeCode: "color", TextValue: "Rosé"},
		{ID: 8, CategoryID: 1, EntityID: 108, AttributeCode: "color", TextValue: "  "},
		{ID: 1, CategoryID: 1, EntityID: 109, AttributeCode: "color", TextValue: "Duplicate"},
		{ID: 10, CategoryID: 1, EntityID: 110, AttributeCode: "style", TextValue: "The"},
		{ID: 12, CategoryID: 1, EntityID: 111, AttributeCode: "style", TextValue: "Port"},
		{ID: 13, CategoryID: 1, EntityID: 112, TextValue: "No Code"},
	}
}

func buildFixture() (*Snapshot, Report) {
	return NewBuilder(config.DefaultMatching(), nil, nil).Build(1, fixtureRows())
}

func fixtureMatching() config.Matching {
	return config.DefaultMatching()
}
