package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"agora/internal/market"
)

// Catalog declares which markets exist: the regions, the tradeable goods
// with their base prices, and the gold exchange parameters. It expands into
// one market per (good, quality, region) plus one gold market per region.
type Catalog struct {
	Regions   []string       `yaml:"regions"`
	Gold      GoldSpec       `yaml:"gold"`
	Resources []ResourceSpec `yaml:"resources"`
}

type GoldSpec struct {
	InitialRate    string `yaml:"initial_rate"`
	VolumePerLevel int64  `yaml:"volume_per_level"`
	Adjustment     string `yaml:"adjustment"`
}

type ResourceSpec struct {
	GoodID         string `yaml:"good_id"`
	InitialPrice   string `yaml:"initial_price"`
	VolumePerLevel int64  `yaml:"volume_per_level"`
	Adjustment     string `yaml:"adjustment"`
	MaxQuality     int    `yaml:"max_quality"`
}

// LoadCatalog reads a YAML catalog from path, expanding environment
// variables in the file body first. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// DefaultCatalog is the built-in market set used when no catalog file is
// configured.
func DefaultCatalog() Catalog {
	c := Catalog{
		Regions: []string{"pannonia", "noricum", "dalmatia"},
		Resources: []ResourceSpec{
			{GoodID: "grain", InitialPrice: "10.00"},
			{GoodID: "iron", InitialPrice: "25.00"},
			{GoodID: "timber", InitialPrice: "8.00"},
			{GoodID: "livestock", InitialPrice: "15.00"},
			{GoodID: "oil", InitialPrice: "40.00"},
		},
	}
	c.applyDefaults()
	return c
}

func (c *Catalog) applyDefaults() {
	if c.Gold.InitialRate == "" {
		c.Gold.InitialRate = "100.00"
	}
	if c.Gold.VolumePerLevel == 0 {
		c.Gold.VolumePerLevel = 1000
	}
	if c.Gold.Adjustment == "" {
		c.Gold.Adjustment = "1.00"
	}
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.VolumePerLevel == 0 {
			r.VolumePerLevel = 200
		}
		if r.Adjustment == "" {
			r.Adjustment = "0.10"
		}
		if r.MaxQuality == 0 {
			r.MaxQuality = 5
		}
	}
}

func (c Catalog) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("catalog: at least one region is required")
	}
	seen := map[string]bool{}
	for _, region := range c.Regions {
		if region == "" {
			return fmt.Errorf("catalog: empty region name")
		}
		if seen[region] {
			return fmt.Errorf("catalog: duplicate region %q", region)
		}
		seen[region] = true
	}
	if _, err := decimal.NewFromString(c.Gold.InitialRate); err != nil {
		return fmt.Errorf("catalog: gold initial_rate: %w", err)
	}
	goods := map[string]bool{}
	for _, r := range c.Resources {
		if r.GoodID == "" {
			return fmt.Errorf("catalog: resource with empty good_id")
		}
		if r.GoodID == market.GoldGoodID {
			return fmt.Errorf("catalog: %q is reserved for the currency market", market.GoldGoodID)
		}
		if goods[r.GoodID] {
			return fmt.Errorf("catalog: duplicate good %q", r.GoodID)
		}
		goods[r.GoodID] = true
		if _, err := decimal.NewFromString(r.InitialPrice); err != nil {
			return fmt.Errorf("catalog: %s initial_price: %w", r.GoodID, err)
		}
		if _, err := decimal.NewFromString(r.Adjustment); err != nil {
			return fmt.Errorf("catalog: %s adjustment: %w", r.GoodID, err)
		}
		if r.MaxQuality < 1 || r.MaxQuality > 5 {
			return fmt.Errorf("catalog: %s max_quality must be in [1,5]", r.GoodID)
		}
	}
	return nil
}

// Expand produces the full market set: each resource at every quality tier
// in every region, plus one gold market per region. Quality q doubles the
// base price per tier above 1.
func (c Catalog) Expand() ([]market.Snapshot, error) {
	var out []market.Snapshot
	two := decimal.NewFromInt(2)
	for _, region := range c.Regions {
		for _, r := range c.Resources {
			base, err := decimal.NewFromString(r.InitialPrice)
			if err != nil {
				return nil, fmt.Errorf("catalog: %s initial_price: %w", r.GoodID, err)
			}
			adj, err := decimal.NewFromString(r.Adjustment)
			if err != nil {
				return nil, fmt.Errorf("catalog: %s adjustment: %w", r.GoodID, err)
			}
			price := base
			for q := 1; q <= r.MaxQuality; q++ {
				out = append(out, market.Snapshot{
					ID:                 market.ID(r.GoodID, q, region),
					GoodID:             r.GoodID,
					Quality:            q,
					Region:             region,
					InitialPrice:       price,
					VolumePerLevel:     r.VolumePerLevel,
					AdjustmentPerLevel: adj,
					Spread:             market.SpreadFor(r.GoodID),
				})
				price = price.Mul(two)
			}
		}

		rate, err := decimal.NewFromString(c.Gold.InitialRate)
		if err != nil {
			return nil, fmt.Errorf("catalog: gold initial_rate: %w", err)
		}
		goldAdj, err := decimal.NewFromString(c.Gold.Adjustment)
		if err != nil {
			return nil, fmt.Errorf("catalog: gold adjustment: %w", err)
		}
		out = append(out, market.Snapshot{
			ID:                 market.ID(market.GoldGoodID, 0, region),
			GoodID:             market.GoldGoodID,
			Region:             region,
			InitialPrice:       rate,
			VolumePerLevel:     c.Gold.VolumePerLevel,
			AdjustmentPerLevel: goldAdj,
			Spread:             market.SpreadFor(market.GoldGoodID),
		})
	}
	return out, nil
}
