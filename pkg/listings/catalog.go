package listings

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mktplace/pkg/models"

	"gopkg.in/yaml.v3"
)

//go:embed listings.yaml
var defaultListings []byte

var (
	// ErrNotFound is returned for ids that are not in the catalog.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidID is returned by ParseID for non-numeric or non-positive ids.
	ErrInvalidID = errors.New("invalid listing id")
)

type sellerYAML struct {
	Name     string  `yaml:"name"`
	Rating   float64 `yaml:"rating"`
	Verified bool    `yaml:"verified"`
}

type specYAML struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type listingYAML struct {
	ID             int         `yaml:"id"`
	Title          string      `yaml:"title"`
	Price          string      `yaml:"price"`
	Location       string      `yaml:"location"`
	Time           string      `yaml:"time"`
	Image          string      `yaml:"image"`
	Description    string      `yaml:"description"`
	Verified       bool        `yaml:"verified"`
	Category       string      `yaml:"category"`
	Seller         *sellerYAML `yaml:"seller"`
	Specifications []specYAML  `yaml:"specifications"`
}

// Catalog is an immutable, ordered set of listings.
type Catalog struct {
	items []models.Listing
	byID  map[int]int
}

// NewCatalog returns the built-in storefront catalog.
func NewCatalog() *Catalog {
	c, err := Load(bytes.NewReader(defaultListings))
	if err != nil {
		panic(fmt.Sprintf("listings: built-in catalog is invalid: %v", err))
	}
	return c
}

// Load decodes a YAML list of listings. Ids must be positive and unique.
func Load(r io.Reader) (*Catalog, error) {
	var raw []listingYAML
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	c := &Catalog{
		items: make([]models.Listing, 0, len(raw)),
		byID:  make(map[int]int, len(raw)),
	}
	for _, l := range raw {
		if l.ID <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidID, l.ID)
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate listing id %d", l.ID)
		}
		item := models.Listing{
			ID:          l.ID,
			Title:       l.Title,
			Price:       l.Price,
			Location:    l.Location,
			Time:        l.Time,
			Image:       l.Image,
			Description: l.Description,
			Verified:    l.Verified,
			Category:    l.Category,
		}
		if l.Seller != nil {
			item.Seller = &models.Seller{Name: l.Seller.Name, Rating: l.Seller.Rating, Verified: l.Seller.Verified}
		}
		for _, s := range l.Specifications {
			item.Specifications = append(item.Specifications, models.Spec{Name: s.Name, Value: s.Value})
		}
		c.byID[l.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	return c, nil
}

// All returns the listings in catalog order.
func (c *Catalog) All() []models.Listing {
	out := make([]models.Listing, len(c.items))
	for i, l := range c.items {
		out[i] = clone(l)
	}
	return out
}

func (c *Catalog) Len() int { return len(c.items) }

// ByID returns the listing with the given id.
func (c *Catalog) ByID(id int) (models.Listing, error) {
	i, ok := c.byID[id]
	if !ok {
		return models.Listing{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return clone(c.items[i]), nil
}

// clone copies the seller and specifications so callers cannot edit the
// catalog through a returned listing.
func clone(l models.Listing) models.Listing {
	if l.Seller != nil {
		seller := *l.Seller
		l.Seller = &seller
	}
	if l.Specifications != nil {
		l.Specifications = append([]models.Spec(nil), l.Specifications...)
	}
	return l
}

// ParseID parses a listing id taken from a route or user input.
func ParseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}
