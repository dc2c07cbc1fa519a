package store

import "time"

// CardRarity is a rarity lookup row.
type CardRarity struct {
	ID          int64 `gorm:"primaryKey;autoIncrement:false"`
	DisplayText string
	DBValue     string `gorm:"index"`
}

// Printing is a printing/edition lookup row.
type Printing struct {
	ID           int64 `gorm:"primaryKey;autoIncrement:false"`
	Name         string
	DisplayOrder int
	ModifiedOn   time.Time
}

// Condition is a card condition lookup row.
type Condition struct {
	ID           int64 `gorm:"primaryKey;autoIncrement:false"`
	Name         string
	Abbreviation string
	DisplayOrder int
}

// CardSet is a published card set.
type CardSet struct {
	ID             int64  `gorm:"primaryKey;autoIncrement:false"`
	Name           string `gorm:"index"`
	Code           string
	IsSupplemental bool
	PublishedOn    time.Time
	ModifiedOn     time.Time
	CategoryID     int64
}

// Product is a card product. Rarity and Number are flattened from the
// product's extended data.
type Product struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Name       string `gorm:"index"`
	CleanName  string
	ImageURL   string
	CategoryID int64
	CardSetID  int64 `gorm:"index"`
	URL        string
	ModifiedOn time.Time
	Rarity     string
	Number     string
}

// Sku is a sellable variant of a product.
type Sku struct {
	ID          int64 `gorm:"primaryKey;autoIncrement:false"`
	ProductID   int64 `gorm:"index"`
	LanguageID  int64
	PrintingID  int64
	ConditionID int64
}

// Counts holds per-table row counts.
type Counts struct {
	Rarities   int64 `json:"rarities"`
	Printings  int64 `json:"printings"`
	Conditions int64 `json:"conditions"`
	CardSets   int64 `json:"card_sets"`
	Products   int64 `json:"products"`
	Skus       int64 `json:"skus"`
}

// models lists every table in dependency order, parents first.
func models() []any {
	return []any{
		&CardRarity{},
		&Printing{},
		&Condition{},
		&CardSet{},
		&Product{},
		&Sku{},
	}
}
