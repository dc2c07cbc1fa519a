package syncer

import (
	"github.com/Sternrassler/tcg-catalog-sync/pkg/catalog"
	"github.com/Sternrassler/tcg-catalog-sync/pkg/store"
)

// Extended data names flattened onto stored products.
const (
	extRarity = "Rarity"
	extNumber = "Number"
)

func toRarities(in []catalog.Rarity) []store.CardRarity {
	out := make([]store.CardRarity, len(in))
	for i, r := range in {
		out[i] = store.CardRarity{ID: r.RarityID, DisplayText: r.DisplayText, DBValue: r.DBValue}
	}
	return out
}

func toPrintings(in []catalog.Printing) []store.Printing {
	out := make([]store.Printing, len(in))
	for i, p := range in {
		out[i] = store.Printing{
			ID:           p.PrintingID,
			Name:         p.Name,
			DisplayOrder: p.DisplayOrder,
			ModifiedOn:   p.ModifiedOn.Time,
		}
	}
	return out
}

func toConditions(in []catalog.Condition) []store.Condition {
	out := make([]store.Condition, len(in))
	for i, c := range in {
		out[i] = store.Condition{
			ID:           c.ConditionID,
			Name:         c.Name,
			Abbreviation: c.Abbreviation,
			DisplayOrder: c.DisplayOrder,
		}
	}
	return out
}

func toCardSets(in []catalog.CardSet) []store.CardSet {
	out := make([]store.CardSet, len(in))
	for i, s := range in {
		out[i] = store.CardSet{
			ID:             s.GroupID,
			Name:           s.Name,
			Code:           s.Abbreviation,
			IsSupplemental: s.IsSupplemental,
			PublishedOn:    s.PublishedOn.Time,
			ModifiedOn:     s.ModifiedOn.Time,
			CategoryID:     s.CategoryID,
		}
	}
	return out
}

func toProducts(in []catalog.Product) []store.Product {
	out := make([]store.Product, len(in))
	for i, p := range in {
		out[i] = store.Product{
			ID:         p.ProductID,
			Name:       p.Name,
			CleanName:  p.CleanName,
			ImageURL:   p.ImageURL,
			CategoryID: p.CategoryID,
			CardSetID:  p.GroupID,
			URL:        p.URL,
			ModifiedOn: p.ModifiedOn.Time,
			Rarity:     p.Extended(extRarity),
			Number:     p.Extended(extNumber),
		}
	}
	return out
}

// toSkus converts a product's SKUs, taking ProductID from the stored parent.
func toSkus(in []catalog.Sku, productID int64) []store.Sku {
	out := make([]store.Sku, len(in))
	for i, s := range in {
		out[i] = store.Sku{
			ID:          s.SkuID,
			ProductID:   productID,
			LanguageID:  s.LanguageID,
			PrintingID:  s.PrintingID,
			ConditionID: s.ConditionID,
		}
	}
	return out
}
