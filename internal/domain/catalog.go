package domain

// Dimensions are the shipping measures of one unit of a product.
type Dimensions struct {
	WeightGrams int `json:"weight_grams"`
	WidthCm     int `json:"width_cm"`
	HeightCm    int `json:"height_cm"`
	LengthCm    int `json:"length_cm"`
}

func (d Dimensions) Complete() bool {
	return d.WeightGrams > 0 && d.WidthCm > 0 && d.HeightCm > 0 && d.LengthCm > 0
}

func (d Dimensions) VolumeCm3() int {
	return d.WidthCm * d.HeightCm * d.LengthCm
}

type Product struct {
	ID         string
	Name       string
	Price      int64
	Stock      int
	Published  bool
	Image      string
	Dimensions Dimensions
	Variants   []Variant
}

func (p *Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// Variant has its own stock counter, independent of the product's.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	Stock     int
	Price     *int64
}

// StockDecrement is one line of a paid order applied to the catalog.
type StockDecrement struct {
	ProductID string
	VariantID *string
	Quantity  int
}
